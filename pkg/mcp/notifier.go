package mcp

import (
	"context"

	"github.com/rendis/flowgraph/internal/migration"
)

// notifyRunFinished pushes a run summary to the client that started the run.
// Best-effort: clients that cannot receive notifications are skipped.
func (s *FlowgraphServer) notifyRunFinished(ctx context.Context, report *migration.Report) {
	payload := map[string]any{
		"level":  "info",
		"logger": "flowgraph.migrate",
		"data": map[string]any{
			"run_id":    report.RunID,
			"dry_run":   report.DryRun,
			"scanned":   report.Scanned,
			"migrated":  report.Migrated,
			"skipped":   report.Skipped,
			"conflicts": report.Conflicts,
			"failed":    report.Failed,
		},
	}
	if err := s.mcpServer.SendNotificationToClient(ctx, "notifications/message", payload); err != nil {
		s.logger.DebugContext(ctx, "run notification not delivered", "run_id", report.RunID, "error", err)
	}
}
