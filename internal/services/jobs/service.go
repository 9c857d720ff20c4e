package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/killallgit/dataset-importer/internal/models"
)

// DefaultMaxRetries is the attempt budget of a job enqueued without WithMaxRetries
const DefaultMaxRetries = 3

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// wrap annotates repository failures with the operation, passing the queue
// sentinels through untouched so callers can match them
func wrap(op string, err error) error {
	if err == nil || errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrNoJobsAvailable) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *service) EnqueueJob(ctx context.Context, jobType models.JobType, payload models.JobPayload, opts ...JobOption) (*models.Job, error) {
	cfg := &jobConfig{MaxRetries: DefaultMaxRetries}
	for _, opt := range opts {
		opt(cfg)
	}

	job := &models.Job{
		Type:       jobType,
		Status:     models.JobStatusPending,
		Payload:    payload,
		MaxRetries: cfg.MaxRetries,
		CreatedBy:  cfg.CreatedBy,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating %s job: %w", jobType, err)
	}

	log.Printf("[DEBUG] Queued %s job %d (max attempts %d)", jobType, job.ID, job.MaxRetries)
	return job, nil
}

// EnqueueUniqueJob reuses a live job of the same type whose payload carries
// the same uniqueKey value; only a finished job lets a new one be queued
func (s *service) EnqueueUniqueJob(ctx context.Context, jobType models.JobType, payload models.JobPayload, uniqueKey string, opts ...JobOption) (*models.Job, error) {
	value, ok := payload[uniqueKey]
	if !ok {
		return nil, fmt.Errorf("payload has no %q to deduplicate %s jobs on", uniqueKey, jobType)
	}

	existing, err := s.repo.GetJobByTypeAndPayload(ctx, jobType, uniqueKey, fmt.Sprintf("%v", value))
	switch {
	case err == nil && !existing.IsTerminal():
		log.Printf("[DEBUG] Reusing %s job %d for %s=%v (%s)", jobType, existing.ID, uniqueKey, value, existing.Status)
		return existing, nil
	case err != nil && !errors.Is(err, ErrJobNotFound):
		return nil, wrap("looking up queued job", err)
	}

	return s.EnqueueJob(ctx, jobType, payload, opts...)
}

func (s *service) GetJob(ctx context.Context, jobID uint) (*models.Job, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, wrap("getting job", err)
	}
	return job, nil
}

func (s *service) ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error) {
	jobs, err := s.repo.GetJobsByStatus(ctx, status, limit)
	if err != nil {
		return nil, fmt.Errorf("listing %s jobs: %w", status, err)
	}
	return jobs, nil
}

func (s *service) ClaimNextJob(ctx context.Context, workerID string, jobTypes []models.JobType) (*models.Job, error) {
	job, err := s.repo.ClaimNextJob(ctx, workerID, jobTypes)
	if err != nil {
		return nil, wrap("claiming job", err)
	}
	log.Printf("[DEBUG] %s claimed %s job %d", workerID, job.Type, job.ID)
	return job, nil
}

func (s *service) UpdateProgress(ctx context.Context, jobID uint, progress int) error {
	return wrap("updating job progress", s.repo.UpdateJobProgress(ctx, jobID, progress))
}

func (s *service) CompleteJob(ctx context.Context, jobID uint, result models.JobResult) error {
	if err := s.repo.CompleteJob(ctx, jobID, result); err != nil {
		return wrap("completing job", err)
	}
	log.Printf("[DEBUG] Job %d completed", jobID)
	return nil
}

// FailJob records a failure. Structured errors keep their type and code.
func (s *service) FailJob(ctx context.Context, jobID uint, err error) error {
	var structured *models.StructuredJobError
	if errors.As(err, &structured) {
		return s.FailJobWithDetails(ctx, jobID, structured.Type, structured.Code, structured.Message, structured.Details)
	}

	if ferr := s.repo.FailJob(ctx, jobID, err.Error()); ferr != nil {
		return wrap("failing job", ferr)
	}
	s.logFailure(ctx, jobID, err.Error())
	return nil
}

func (s *service) FailJobWithDetails(ctx context.Context, jobID uint, errorType models.JobErrorType, errorCode, errorMsg, errorDetails string) error {
	if err := s.repo.FailJobWithDetails(ctx, jobID, errorType, errorCode, errorMsg, errorDetails); err != nil {
		return wrap("failing job", err)
	}
	s.logFailure(ctx, jobID, fmt.Sprintf("%s/%s: %s", errorType, errorCode, errorMsg))
	return nil
}

func (s *service) logFailure(ctx context.Context, jobID uint, msg string) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err == nil && job.IsRetryable() {
		log.Printf("[WARN] Job %d failed, attempt %d of %d: %s", jobID, job.RetryCount, job.MaxRetries, msg)
		return
	}
	log.Printf("[ERROR] Job %d failed for good: %s", jobID, msg)
}

func (s *service) ReleaseJob(ctx context.Context, jobID uint) error {
	if err := s.repo.ReleaseJob(ctx, jobID); err != nil {
		return wrap("releasing job", err)
	}
	log.Printf("[DEBUG] Job %d returned to the queue", jobID)
	return nil
}

func (s *service) CancelJob(ctx context.Context, jobID uint, reason string) error {
	if err := s.repo.CancelJob(ctx, jobID, reason); err != nil {
		return wrap("cancelling job", err)
	}
	log.Printf("[DEBUG] Job %d cancelled: %s", jobID, reason)
	return nil
}

// CleanupOldJobs deletes finished jobs created more than retention ago
func (s *service) CleanupOldJobs(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("job retention must be positive, got %s", retention)
	}

	deleted, err := s.repo.DeleteOldJobs(ctx, time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("pruning finished jobs: %w", err)
	}
	if deleted > 0 {
		log.Printf("[INFO] Pruned %d finished jobs older than %s", deleted, retention)
	}
	return deleted, nil
}
