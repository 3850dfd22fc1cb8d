package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/docrender/internal/observability"
	"github.com/dgallion1/docrender/internal/render"
)

// Config sizes the export pipeline.
type Config struct {
	WorkerCount          int
	QueueSize            int
	JobTTL               time.Duration
	MaxConcurrentRenders int
}

// Orchestrator manages the batch export pipeline.
type Orchestrator struct {
	jobs    *JobStore
	queue   chan *Job
	engine  *render.Engine
	metrics *observability.Metrics
	log     *slog.Logger
	cfg     Config

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewOrchestrator creates the pipeline. Call Start to launch workers.
func NewOrchestrator(cfg Config, engine *render.Engine, metrics *observability.Metrics, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:    NewJobStore(cfg.JobTTL),
		queue:   make(chan *Job, cfg.QueueSize),
		engine:  engine,
		metrics: metrics,
		log:     log,
		cfg:     cfg,
	}
}

// Start launches worker goroutines and the job store cleanup ticker.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	g, workerCtx := errgroup.WithContext(workerCtx)
	o.group = g

	for range o.cfg.WorkerCount {
		g.Go(func() error {
			w := NewWorker(o.engine, o.metrics, o.log, o.cfg.MaxConcurrentRenders)
			for {
				select {
				case <-workerCtx.Done():
					return nil
				case job, ok := <-o.queue:
					if !ok {
						return nil
					}
					w.Process(workerCtx, job)
				}
			}
		})
	}

	// Job store cleanup.
	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return nil
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	})
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	if o.group != nil {
		_ = o.group.Wait()
	}
}

// Submit queues a new job for processing. A full queue fails the job
// immediately rather than blocking the caller.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		o.metrics.RecordExportJob(string(StatusFailed))
		return fmt.Errorf("export queue is full (%d)", o.cfg.QueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
