package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/docread/internal/config"
	"github.com/dgallion1/docread/internal/parser"
)

var (
	// ErrQueueFull is returned by Submit when no queue slot is free.
	ErrQueueFull = errors.New("job queue is full")
	// ErrJobNotFound is returned for unknown or expired job ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrNotWaiting is returned by Unlock for jobs that are not waiting for a password.
	ErrNotWaiting = errors.New("job is not waiting for a password")
	// ErrStopped is returned by Submit and Unlock once Stop has been called.
	ErrStopped = errors.New("pipeline is stopped")
)

// Orchestrator runs load jobs on a fixed worker pool and keeps their results.
type Orchestrator struct {
	jobs     *JobStore
	docs     *DocumentStore
	queue    chan *Job
	registry parser.Registry
	log      *slog.Logger
	cfg      config.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards stopped and every send on queue, so nothing is sent after
	// Stop closes it.
	mu      sync.Mutex
	stopped bool
}

// NewOrchestrator creates the pipeline; Start launches its workers.
func NewOrchestrator(cfg config.Config, registry parser.Registry, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		jobs:     NewJobStore(cfg.JobTTL),
		docs:     NewDocumentStore(cfg.DocumentTTL),
		queue:    make(chan *Job, cfg.MaxQueueSize),
		registry: registry,
		log:      log,
		cfg:      cfg,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.registry, o.docs, o.log)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start store cleanup.
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
				o.docs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	close(o.queue)
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	return o.enqueue(job)
}

func (o *Orchestrator) enqueue(job *Job) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		job.Fail(StatusFailed, "stopped", ErrStopped)
		job.SetFileData(nil)
		return ErrStopped
	}
	select {
	case o.queue <- job:
		return nil
	default:
		err := fmt.Errorf("%w (%d)", ErrQueueFull, o.cfg.MaxQueueSize)
		job.Fail(StatusFailed, "queue_full", err)
		job.SetFileData(nil)
		return err
	}
}

// Unlock retries a job that stopped for a password.
func (o *Orchestrator) Unlock(id, password string) (*Job, error) {
	job := o.jobs.Get(id)
	if job == nil {
		return nil, ErrJobNotFound
	}
	if !job.requeue(password) {
		return job, ErrNotWaiting
	}
	return job, o.enqueue(job)
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// Document returns a loaded document by id, or nil.
func (o *Orchestrator) Document(id string) *StoredDocument {
	return o.docs.Get(id)
}

// Documents returns every loaded document.
func (o *Orchestrator) Documents() []*StoredDocument {
	return o.docs.List()
}

// DeleteDocument drops a document from the cache.
func (o *Orchestrator) DeleteDocument(id string) bool {
	return o.docs.Delete(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Stats is a point-in-time view of the pipeline.
type Stats struct {
	Workers    int `json:"workers"`
	QueueDepth int `json:"queue_depth"`
	QueueSize  int `json:"queue_size"`
	Jobs       int `json:"jobs"`
	Documents  int `json:"documents"`
}

func (o *Orchestrator) Stats() Stats {
	return Stats{
		Workers:    o.cfg.WorkerCount,
		QueueDepth: len(o.queue),
		QueueSize:  cap(o.queue),
		Jobs:       o.jobs.Len(),
		Documents:  o.docs.Len(),
	}
}
