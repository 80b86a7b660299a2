package migration

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rendis/flowgraph/internal/store"
)

// ErrPoolClosed is returned by Enqueue once the pool has been closed.
var ErrPoolClosed = errors.New("record pool is closed")

// PoolStats counts how the records handed to a pool were handled.
type PoolStats struct {
	Busy    int64 `json:"busy"`
	Handled int64 `json:"handled"`
	Failed  int64 `json:"failed"`
	Panics  int64 `json:"panics"`
}

// recordFunc migrates one flow version.
type recordFunc func(ctx context.Context, fv *store.FlowVersion) error

// recordPool feeds flow versions to a fixed set of workers over an
// unbuffered channel, so Enqueue blocks until a worker is free.
type recordPool struct {
	handle recordFunc
	queue  chan *store.FlowVersion
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	busy, handled, failed, panics atomic.Int64
}

// newRecordPool starts size workers. Each record is handled with ctx.
func newRecordPool(ctx context.Context, size int, handle recordFunc) *recordPool {
	if size <= 0 {
		size = 1
	}
	p := &recordPool{handle: handle, queue: make(chan *store.FlowVersion)}
	p.wg.Add(size)
	for range size {
		go p.work(ctx)
	}
	return p
}

func (p *recordPool) work(ctx context.Context) {
	defer p.wg.Done()
	for fv := range p.queue {
		p.busy.Add(1)
		if err := p.safeHandle(ctx, fv); err != nil {
			p.failed.Add(1)
		}
		p.handled.Add(1)
		p.busy.Add(-1)
	}
}

func (p *recordPool) safeHandle(ctx context.Context, fv *store.FlowVersion) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			err = errors.New("record handler panicked")
		}
	}()
	return p.handle(ctx, fv)
}

// Enqueue hands fv to the next idle worker. It gives up when ctx is done.
func (p *recordPool) Enqueue(ctx context.Context, fv *store.FlowVersion) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.queue <- fv:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting records and waits for the workers to finish.
// Calling it again is a no-op.
func (p *recordPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}

// Stats returns a snapshot of the pool counters.
func (p *recordPool) Stats() PoolStats {
	return PoolStats{
		Busy:    p.busy.Load(),
		Handled: p.handled.Load(),
		Failed:  p.failed.Load(),
		Panics:  p.panics.Load(),
	}
}
