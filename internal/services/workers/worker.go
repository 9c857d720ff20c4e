package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/killallgit/dataset-importer/internal/metrics"
	"github.com/killallgit/dataset-importer/internal/models"
	"github.com/killallgit/dataset-importer/internal/services/jobs"
)

// JobProcessor defines the interface for processing different job types
type JobProcessor interface {
	ProcessJob(ctx context.Context, job *models.Job) error
	CanProcess(jobType models.JobType) bool
	// JobTypes lists the job types the processor claims
	JobTypes() []models.JobType
}

// Worker represents a background worker that processes jobs
type Worker struct {
	id           string
	jobService   jobs.Service
	processors   []JobProcessor
	stopChan     chan struct{}
	wg           sync.WaitGroup
	pollInterval time.Duration
	jobTimeout   time.Duration
	metrics      *metrics.Metrics
}

// NewWorker creates a new worker instance
func NewWorker(id string, jobService jobs.Service, pollInterval time.Duration) *Worker {
	return &Worker{
		id:           id,
		jobService:   jobService,
		processors:   make([]JobProcessor, 0),
		stopChan:     make(chan struct{}),
		pollInterval: pollInterval,
	}
}

// RegisterProcessor registers a job processor
func (w *Worker) RegisterProcessor(processor JobProcessor) {
	w.processors = append(w.processors, processor)
}

// Start starts the worker in a goroutine
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop stops the worker gracefully, waiting for the current job
func (w *Worker) Stop() {
	close(w.stopChan)
	w.wg.Wait()
}

// run is the main worker loop
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log.Printf("[INFO] Worker %s starting", w.id)
	defer log.Printf("[INFO] Worker %s stopped", w.id)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			// drain the queue before waiting for the next tick
			for {
				processed, err := w.processNextJob(ctx)
				if err != nil {
					log.Printf("[ERROR] Worker %s: %v", w.id, err)
				}
				if !processed || w.stopping(ctx) {
					break
				}
			}
		}
	}
}

func (w *Worker) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-w.stopChan:
		return true
	default:
		return false
	}
}

// supportedTypes collects the unique job types of all processors
func (w *Worker) supportedTypes() []models.JobType {
	var types []models.JobType
	seen := make(map[models.JobType]bool)
	for _, p := range w.processors {
		for _, jobType := range p.JobTypes() {
			if !seen[jobType] {
				seen[jobType] = true
				types = append(types, jobType)
			}
		}
	}
	return types
}

// processNextJob claims and processes the next available job. processed is
// false when no job was claimed.
func (w *Worker) processNextJob(ctx context.Context) (processed bool, err error) {
	supportedTypes := w.supportedTypes()
	if len(supportedTypes) == 0 {
		return false, fmt.Errorf("no job processors registered")
	}

	job, err := w.jobService.ClaimNextJob(ctx, w.id, supportedTypes)
	if err != nil {
		if errors.Is(err, jobs.ErrNoJobsAvailable) || errors.Is(err, jobs.ErrJobAlreadyClaimed) || ctx.Err() != nil {
			return false, nil
		}
		return false, err
	}

	log.Printf("[INFO] Worker %s claimed job %d (type: %s)", w.id, job.ID, job.Type)

	var processor JobProcessor
	for _, p := range w.processors {
		if p.CanProcess(job.Type) {
			processor = p
			break
		}
	}

	if processor == nil {
		failErr := w.jobService.FailJobWithDetails(ctx, job.ID, models.ErrorTypeSystem, "no_processor", fmt.Sprintf("no processor for job type %s", job.Type), "")
		if failErr != nil {
			log.Printf("[ERROR] Worker %s: failed to mark job %d as failed: %v", w.id, job.ID, failErr)
		}
		return true, fmt.Errorf("no processor found for job type %s", job.Type)
	}

	jobCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	if err := processor.ProcessJob(jobCtx, job); err != nil {
		w.metrics.QueueJob(string(job.Type), "failed")
		// record the failure even when the worker context is already done
		failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if failErr := w.jobService.FailJob(failCtx, job.ID, err); failErr != nil {
			log.Printf("[ERROR] Worker %s: failed to mark job %d as failed: %v", w.id, job.ID, failErr)
		}
		return true, fmt.Errorf("job %d processing failed: %w", job.ID, err)
	}

	w.metrics.QueueJob(string(job.Type), "completed")
	log.Printf("[INFO] Worker %s completed job %d", w.id, job.ID)
	return true, nil
}

// PoolOption configures a WorkerPool
type PoolOption func(*WorkerPool)

// WithJobTimeout bounds each job's run time
func WithJobTimeout(timeout time.Duration) PoolOption {
	return func(p *WorkerPool) {
		for _, w := range p.workers {
			w.jobTimeout = timeout
		}
	}
}

// WithMetrics records processed jobs
func WithMetrics(m *metrics.Metrics) PoolOption {
	return func(p *WorkerPool) {
		for _, w := range p.workers {
			w.metrics = m
		}
	}
}

// WorkerPool manages multiple workers
type WorkerPool struct {
	workers    []*Worker
	jobService jobs.Service
	mu         sync.RWMutex
	started    bool
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(jobService jobs.Service, workerCount int, pollInterval time.Duration, opts ...PoolOption) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	pool := &WorkerPool{
		jobService: jobService,
		workers:    make([]*Worker, workerCount),
	}

	for i := 0; i < workerCount; i++ {
		workerID := fmt.Sprintf("worker-%d", i+1)
		pool.workers[i] = NewWorker(workerID, jobService, pollInterval)
	}

	for _, opt := range opts {
		opt(pool)
	}

	return pool
}

// RegisterProcessor registers a processor with all workers
func (p *WorkerPool) RegisterProcessor(processor JobProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, worker := range p.workers {
		worker.RegisterProcessor(processor)
	}
}

// Start starts all workers
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("worker pool already started")
	}

	log.Printf("[INFO] Starting worker pool with %d workers", len(p.workers))

	for _, worker := range p.workers {
		worker.Start(ctx)
	}

	p.started = true
	return nil
}

// Stop stops all workers gracefully
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	log.Printf("[INFO] Stopping worker pool")

	for _, worker := range p.workers {
		worker.Stop()
	}

	p.started = false
}

// Running reports whether the pool has been started and not stopped
func (p *WorkerPool) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

// Size returns the number of workers in the pool
func (p *WorkerPool) Size() int {
	return len(p.workers)
}
