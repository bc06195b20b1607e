package pipeline

import (
	"context"
	"log/slog"
)

// Worker executes queued runs.
type Worker struct {
	runner *Runner
	log    *slog.Logger
}

func NewWorker(runner *Runner, log *slog.Logger) *Worker {
	return &Worker{runner: runner, log: log}
}

// Process runs the job's stages and records the outcome on the job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "stage", job.Stage)
	job.SetStatus(StatusRunning, "starting")
	log.Info("run started")

	results, err := w.runner.Run(ctx, job.Stage, func(st Stage) {
		job.SetStatus(StatusRunning, string(st))
	})

	failedFiles := false
	for _, r := range results {
		job.AddResult(r)
		for _, f := range r.Files {
			if f.Status == FileFailed {
				job.AddError(f.Name + ": " + f.Detail)
				failedFiles = true
			}
		}
	}

	switch {
	case err != nil:
		log.Error("run failed", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "done")
	case failedFiles:
		log.Warn("run finished with failures")
		job.SetStatus(StatusPartial, "done")
	default:
		log.Info("run complete")
		job.SetStatus(StatusCompleted, "done")
	}
}
