package temporalrt

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/oxbowlabs/vqueryd/internal/activities"
	"github.com/oxbowlabs/vqueryd/internal/platform/logger"
	vqworkflow "github.com/oxbowlabs/vqueryd/internal/workflow"
)

// Runner starts the three Temporal workers this system needs: one polling
// the orchestrator task queue (workflow tasks only — spec 4.F's single
// long-lived workflow per instance) and one each for the CPU and GPU
// activity queues spec section 5 names. Grounded on the teacher's
// temporalworker.Runner: same dial-then-register-then-Start shape, minus the
// DB/job-registry dependencies this system doesn't have.
type Runner struct {
	log *logger.Logger
	tc  temporalsdkclient.Client
	acc *activities.Activities
}

func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, acc *activities.Activities) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporalrt: temporal client is not configured")
	}
	if acc == nil {
		return nil, fmt.Errorf("temporalrt: activities bundle is required")
	}
	return &Runner{log: log, tc: tc, acc: acc}, nil
}

// Start registers and starts all three workers, returning once each has
// begun polling. Cancelling ctx stops every worker.
func (r *Runner) Start(ctx context.Context) error {
	cfg := LoadConfig()

	orchestratorWorker := worker.New(r.tc, cfg.OrchestratorTaskQueue, worker.Options{})
	orchestratorWorker.RegisterWorkflowWithOptions(vqworkflow.Orchestrator, workflow.RegisterOptions{Name: vqworkflow.OrchestratorWorkflowName})

	cpuWorker := worker.New(r.tc, cfg.CPUTaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: cfg.CPUConcurrency,
	})
	cpuWorker.RegisterActivityWithOptions(r.acc.Search, activity.RegisterOptions{Name: vqworkflow.ActivitySearch})
	cpuWorker.RegisterActivityWithOptions(r.acc.Download, activity.RegisterOptions{Name: vqworkflow.ActivityDownload})
	cpuWorker.RegisterActivityWithOptions(r.acc.RefreshIndex, activity.RegisterOptions{Name: vqworkflow.ActivityRefreshIndex})
	cpuWorker.RegisterActivityWithOptions(r.acc.UpsertVideoStatus, activity.RegisterOptions{Name: vqworkflow.ActivityUpsertVideoStatus})
	cpuWorker.RegisterActivityWithOptions(r.acc.BuildCombined, activity.RegisterOptions{Name: vqworkflow.ActivityBuildCombined})

	gpuWorker := worker.New(r.tc, cfg.GPUTaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: cfg.GPUConcurrency,
	})
	gpuWorker.RegisterActivityWithOptions(r.acc.Transcribe, activity.RegisterOptions{Name: vqworkflow.ActivityTranscribe})
	gpuWorker.RegisterActivityWithOptions(r.acc.Summarize, activity.RegisterOptions{Name: vqworkflow.ActivitySummarize})

	for _, w := range []worker.Worker{orchestratorWorker, cpuWorker, gpuWorker} {
		if err := w.Start(); err != nil {
			return fmt.Errorf("temporalrt: start worker: %w", err)
		}
	}

	if r.log != nil {
		r.log.Info("Temporal workers started",
			"orchestrator_task_queue", cfg.OrchestratorTaskQueue,
			"cpu_task_queue", cfg.CPUTaskQueue,
			"gpu_task_queue", cfg.GPUTaskQueue,
			"cpu_concurrency", cfg.CPUConcurrency,
			"gpu_concurrency", cfg.GPUConcurrency,
		)
	}

	go func() {
		<-ctx.Done()
		orchestratorWorker.Stop()
		cpuWorker.Stop()
		gpuWorker.Stop()
	}()
	return nil
}
