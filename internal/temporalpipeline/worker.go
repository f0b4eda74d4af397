package temporalpipeline

import (
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/copperdogma/codex-forge-sub006/internal/config"
)

const defaultTaskQueue = "codex-forge-task-queue"

// StartWorker connects to Temporal and serves PipelineWorkflow and its
// activity on settings.Temporal's task queue until interrupted.
func StartWorker(logger *slog.Logger, settings *config.Settings) error {
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

	w := worker.New(c, queue, worker.Options{})

	acts := &Activities{Settings: settings}
	w.RegisterWorkflow(PipelineWorkflow)
	w.RegisterActivity(acts.RunStageActivity)

	logger.Info("temporal worker started", "task_queue", queue, "host_port", settings.Temporal.HostPort)
	return w.Run(worker.InterruptCh())
}
