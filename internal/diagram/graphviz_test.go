package diagram

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestRenderImageLinear(t *testing.T) {
	model, err := Build(linearGraph(), "Orders")
	require.NoError(t, err)

	png, err := RenderImage(context.Background(), model)
	require.NoError(t, err)
	require.Greater(t, len(png), 8)
	assert.Equal(t, pngMagic, png[:4])
}

func TestRenderImageRouterAndLoop(t *testing.T) {
	model, err := Build(routerGraph(), "")
	require.NoError(t, err)

	png, err := RenderImage(context.Background(), model)
	require.NoError(t, err)
	assert.Equal(t, pngMagic, png[:4])
}

func TestRenderDOT(t *testing.T) {
	model, err := Build(routerGraph(), "Routing")
	require.NoError(t, err)

	dot, err := RenderDOT(context.Background(), model)
	require.NoError(t, err)
	assert.Contains(t, dot, "digraph")
	assert.Contains(t, dot, "router")
	assert.Contains(t, dot, "__empty_loop_loop")
	assert.Contains(t, dot, "Routing")
}

func TestRenderSVG(t *testing.T) {
	model, err := Build(linearGraph(), "")
	require.NoError(t, err)

	svg, err := RenderSVG(context.Background(), model)
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")
}
