package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Orchestrator queues runs and executes them one at a time. Stages share
// the working tree, so there is a single worker.
type Orchestrator struct {
	jobs      *JobStore
	queue     chan *Job
	runner    *Runner
	worker    *Worker
	log       *slog.Logger
	queueSize int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Call Start before submitting.
func NewOrchestrator(runner *Runner, queueSize int, ttl time.Duration, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:      NewJobStore(ttl),
		queue:     make(chan *Job, queueSize),
		runner:    runner,
		worker:    NewWorker(runner, log),
		log:       log,
		queueSize: queueSize,
	}
}

// Start launches the worker goroutine and the job store cleanup.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for {
			select {
			case <-workerCtx.Done():
				return
			case job, ok := <-o.queue:
				if !ok {
					return
				}
				o.worker.Process(workerCtx, job)
			}
		}
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		o.log.Info("run queued", "job_id", job.ID, "stage", job.Stage)
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", o.queueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// Jobs returns every known job, newest first.
func (o *Orchestrator) Jobs() []*Job {
	return o.jobs.List()
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Timings returns recent per-file stage durations.
func (o *Orchestrator) Timings() map[Stage]TimingSnapshot {
	return o.runner.Timings().Snapshot()
}
