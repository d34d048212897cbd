package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// Worker processes queued diff jobs one at a time.
type Worker struct {
	runner  *Runner
	log     *slog.Logger
	timeout time.Duration
}

func NewWorker(runner *Runner, log *slog.Logger, timeout time.Duration) *Worker {
	return &Worker{
		runner:  runner,
		log:     log,
		timeout: timeout,
	}
}

// Process runs one job's comparison and stores the outcome on the job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	req := job.Request()
	log := w.log.With("job_id", job.ID)

	if req.Timeout <= 0 || req.Timeout > w.timeout {
		req.Timeout = w.timeout
	}
	if req.RevID > 0 {
		job.SetStatus(StatusFetching, "fetching")
	} else {
		job.SetStatus(StatusComparing, "comparing")
	}
	req.onCompare = func() { job.SetStatus(StatusComparing, "comparing") }

	start := time.Now()
	diff, err := w.runner.Run(ctx, req)
	job.releaseInput()
	job.Complete(diff, err)

	if err != nil {
		log.Error("diff job failed", "status", Outcome(err), "error", err, "elapsed", time.Since(start))
		return
	}
	log.Info("diff job complete", "cost", diff.Cost, "elapsed", time.Since(start))
}
