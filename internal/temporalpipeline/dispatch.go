package temporalpipeline

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"

	"github.com/copperdogma/codex-forge-sub006/internal/config"
)

// RunPipeline starts req as a PipelineWorkflow execution against
// settings.Temporal and blocks until it completes, letting the driver
// CLI dispatch a run to a Temporal cluster without embedding any
// client or workflow-ID bookkeeping of its own.
func RunPipeline(ctx context.Context, settings *config.Settings, req PipelineRequest) error {
	queue := settings.Temporal.TaskQueue
	if queue == "" {
		queue = defaultTaskQueue
	}

	c, err := client.Dial(client.Options{
		HostPort:  settings.Temporal.HostPort,
		Namespace: settings.Temporal.Namespace,
	})
	if err != nil {
		return fmt.Errorf("temporalpipeline: dial %s: %w", settings.Temporal.HostPort, err)
	}
	defer c.Close()

	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "codex-forge-" + req.RunID,
		TaskQueue: queue,
	}, PipelineWorkflow, req)
	if err != nil {
		return fmt.Errorf("temporalpipeline: start workflow for run %s: %w", req.RunID, err)
	}

	var result PipelineResult
	if err := run.Get(ctx, &result); err != nil {
		return fmt.Errorf("temporalpipeline: run %s: %w", req.RunID, err)
	}
	return nil
}
