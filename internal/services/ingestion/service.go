package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/killallgit/dataset-importer/internal/metrics"
	"github.com/killallgit/dataset-importer/internal/models"
	"github.com/killallgit/dataset-importer/internal/services/jobs"
	"github.com/killallgit/dataset-importer/internal/storage"
	"github.com/killallgit/dataset-importer/pkg/config"
	"github.com/killallgit/dataset-importer/pkg/retry"
	"github.com/killallgit/dataset-importer/pkg/yolo"
)

// maxSummaryLength bounds the failure summary stored on a dataset
const maxSummaryLength = 500

// failWriteTimeout bounds the writes recording a failure after ctx is done
const failWriteTimeout = 10 * time.Second

var errInterrupted = errors.New("ingestion interrupted by a restart")

var datasetIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,35}$`)

// Options tunes ingestion runs
type Options struct {
	TempDir       string
	MinFreeRatio  float64
	UploadImages  bool
	UploadWorkers int
	UploadPrefix  string
	Normalize     yolo.NormalizeOptions
	StoreRetry    retry.Policy
	// Resume re-queues interrupted ingestions instead of failing them
	Resume bool
}

// OptionsFromConfig builds Options from the application config
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TempDir:       cfg.Storage.TempDir,
		MinFreeRatio:  cfg.Storage.MinFreeRatio,
		UploadImages:  cfg.Ingestion.UploadImages,
		UploadWorkers: cfg.Ingestion.UploadWorkers,
		UploadPrefix:  cfg.STS.UploadPrefix,
		Normalize: yolo.NormalizeOptions{
			Workers:            cfg.Ingestion.LabelWorkers,
			InvalidLabelPolicy: yolo.InvalidLabelPolicy(cfg.Ingestion.InvalidLabelPolicy),
			EmptySplitPolicy:   yolo.EmptySplitPolicy(cfg.Ingestion.EmptySplitPolicy),
			DiagnosticSamples:  cfg.Ingestion.DiagnosticSamples,
		},
		StoreRetry: retry.Policy{
			MaxAttempts: cfg.Ingestion.StoreRetryAttempts,
			Initial:     cfg.Ingestion.StoreRetryInitial,
			Max:         cfg.Ingestion.StoreRetryMax,
		},
		Resume: cfg.Ingestion.ResumeInterrupted,
	}
}

// ServiceOption configures the ingestion service
type ServiceOption func(*service)

// WithMetrics records ingestion metrics
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *service) {
		s.metrics = m
	}
}

// WithFreeSpace replaces the scratch volume free space check
func WithFreeSpace(fn func(dir string) (uint64, error)) ServiceOption {
	return func(s *service) {
		s.freeSpace = fn
	}
}

type service struct {
	repo      Repository
	jobs      jobs.Service
	store     storage.ObjectStore
	opts      Options
	metrics   *metrics.Metrics
	freeSpace func(dir string) (uint64, error)

	// triggerMu serializes the find-or-create of ingestions
	triggerMu sync.Mutex
}

// NewService creates a new ingestion service
func NewService(repo Repository, jobService jobs.Service, store storage.ObjectStore, opts Options, serviceOpts ...ServiceOption) Service {
	if opts.UploadWorkers <= 0 {
		opts.UploadWorkers = 8
	}
	if opts.StoreRetry.MaxAttempts <= 0 {
		opts.StoreRetry = retry.DefaultPolicy()
	}
	s := &service{
		repo:      repo,
		jobs:      jobService,
		store:     store,
		opts:      opts,
		freeSpace: diskFree,
	}
	for _, opt := range serviceOpts {
		opt(s)
	}
	return s
}

func diskFree(dir string) (uint64, error) {
	usage, err := disk.Usage(dir)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// DatasetIDForKey derives the dataset an archive belongs to. Keys issued by
// the upload credentials service carry the id as "<prefix>/<id>/<file>";
// any other key maps to a stable name-based UUID.
func DatasetIDForKey(key, uploadPrefix string) string {
	prefix := strings.Trim(uploadPrefix, "/")
	if prefix != "" && strings.HasPrefix(key, prefix+"/") {
		id, file, ok := strings.Cut(strings.TrimPrefix(key, prefix+"/"), "/")
		if ok && file != "" && datasetIDPattern.MatchString(id) {
			return id
		}
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

func (s *service) Trigger(ctx context.Context, completion UploadCompletion) (*models.IngestionJob, error) {
	key, err := storage.CleanKey(completion.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidObjectKey, completion.ObjectKey)
	}
	filename := strings.TrimSpace(completion.Filename)
	if filename == "" {
		filename = path.Base(key)
	}
	datasetID := DatasetIDForKey(key, s.opts.UploadPrefix)

	s.triggerMu.Lock()
	defer s.triggerMu.Unlock()

	active, err := s.repo.FindActiveIngestion(ctx, datasetID)
	if err == nil {
		log.Printf("[INFO] Dataset %s already has ingestion %s in stage %s", datasetID, active.ID, active.Stage)
		return active, nil
	}
	if !errors.Is(err, ErrIngestionNotFound) {
		return nil, err
	}

	dataset := &models.Dataset{
		ID:        datasetID,
		Name:      filename,
		SourceKey: key,
		Filename:  filename,
	}
	if err := s.repo.UpsertPendingDataset(ctx, dataset); err != nil {
		return nil, err
	}

	ing := &models.IngestionJob{
		DatasetID: datasetID,
		ObjectKey: key,
		Filename:  filename,
		Stage:     models.StageReceived,
	}
	if err := s.repo.CreateIngestion(ctx, ing); err != nil {
		return nil, err
	}

	source := completion.Source
	if source == "" {
		source = "api"
	}
	if err := s.enqueue(ctx, ing, source); err != nil {
		return nil, err
	}

	log.Printf("[INFO] Queued ingestion %s for dataset %s from %s", ing.ID, datasetID, key)
	return ing, nil
}

// enqueue queues a worker job for the ingestion and records its id
func (s *service) enqueue(ctx context.Context, ing *models.IngestionJob, createdBy string) error {
	payload := models.JobPayload{
		"dataset_id":   ing.DatasetID,
		"ingestion_id": ing.ID,
	}
	opts := []jobs.JobOption{jobs.WithMaxRetries(1), jobs.WithCreatedBy(createdBy)}

	job, err := s.jobs.EnqueueUniqueJob(ctx, models.JobTypeDatasetIngestion, payload, "dataset_id", opts...)
	if err != nil {
		return fmt.Errorf("queueing ingestion: %w", err)
	}
	if queued, _ := job.GetPayloadString("ingestion_id"); queued != ing.ID {
		// the live job belongs to an earlier, already finished ingestion
		job, err = s.jobs.EnqueueJob(ctx, models.JobTypeDatasetIngestion, payload, opts...)
		if err != nil {
			return fmt.Errorf("queueing ingestion: %w", err)
		}
	}

	if err := s.repo.UpdateIngestion(ctx, ing.ID, map[string]interface{}{"queue_job_id": job.ID}); err != nil {
		return err
	}
	ing.QueueJobID = &job.ID
	return nil
}

func (s *service) Run(ctx context.Context, ingestionID string, progress ProgressFunc) (*models.IngestionJob, error) {
	ing, err := s.repo.GetIngestion(ctx, ingestionID)
	if err != nil {
		return nil, err
	}
	if ing.IsTerminal() {
		return ing, ErrAlreadyFinished
	}
	if ing.Stage != models.StageReceived {
		return ing, ErrAlreadyRunning
	}
	if progress == nil {
		progress = func(int) {}
	}

	r := &run{
		svc:        s,
		ing:        ing,
		progress:   progress,
		started:    time.Now(),
		stageStart: time.Now(),
	}
	s.metrics.IngestionStarted()

	acquired, err := s.repo.AcquireDataset(ctx, ing.DatasetID, ing.ID)
	if err != nil {
		return ing, r.fail(ctx, err)
	}
	if !acquired {
		return ing, r.fail(ctx, errLockLost)
	}

	log.Printf("[INFO] Ingestion %s started for dataset %s (%s)", ing.ID, ing.DatasetID, ing.ObjectKey)

	if err := r.execute(ctx); err != nil {
		return ing, r.fail(ctx, err)
	}

	elapsed := time.Since(r.started)
	s.metrics.IngestionFinished("ready", "", elapsed)
	if r.report != nil {
		s.metrics.RecordImages(r.report.ImagesAccepted, r.report.ImagesRejected, r.report.ImagesFlagged, r.report.LinesRejected)
		log.Printf("[INFO] Ingestion %s ready in %s: %s", ing.ID, elapsed.Round(time.Millisecond), r.report.Summary())
	}
	return ing, nil
}

func (s *service) GetIngestion(ctx context.Context, id string) (*models.IngestionJob, error) {
	return s.repo.GetIngestion(ctx, id)
}

func (s *service) ListIngestions(ctx context.Context, datasetID string, limit int) ([]*models.IngestionJob, error) {
	if _, err := s.repo.GetDataset(ctx, datasetID); err != nil {
		return nil, err
	}
	return s.repo.ListIngestions(ctx, datasetID, limit)
}

func (s *service) Reingest(ctx context.Context, datasetID string) (*models.IngestionJob, error) {
	dataset, err := s.repo.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if dataset.SourceKey == "" {
		return nil, ErrNoSource
	}
	return s.Trigger(ctx, UploadCompletion{
		ObjectKey: dataset.SourceKey,
		Filename:  dataset.Filename,
		Source:    "reingest",
	})
}

// RecoverInterrupted assumes this process owns the queue: jobs still marked
// processing at startup belong to a worker that no longer exists.
func (s *service) RecoverInterrupted(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport

	orphans := make(map[uint]bool)
	processing, err := s.jobs.ListJobs(ctx, models.JobStatusProcessing, 0)
	if err != nil {
		return report, err
	}
	for _, job := range processing {
		if job.Type == models.JobTypeDatasetIngestion {
			orphans[job.ID] = true
		}
	}

	unfinished, err := s.repo.ListUnfinished(ctx)
	if err != nil {
		return report, err
	}

	for _, ing := range unfinished {
		waiting, err := s.waitingJob(ctx, ing)
		if err != nil {
			return report, err
		}
		if ing.Stage == models.StageReceived && waiting != nil {
			continue
		}

		if s.opts.Resume {
			if err := s.resume(ctx, ing, orphans); err != nil {
				return report, fmt.Errorf("resuming ingestion %s: %w", ing.ID, err)
			}
			report.Resumed++
			continue
		}
		s.abandon(ctx, ing, orphans)
		report.Failed++
	}

	if report.Resumed > 0 || report.Failed > 0 {
		log.Printf("[INFO] Recovered interrupted ingestions: %d resumed, %d failed", report.Resumed, report.Failed)
	}
	return report, nil
}

// waitingJob returns the queue job that will still run the ingestion, if any
func (s *service) waitingJob(ctx context.Context, ing *models.IngestionJob) (*models.Job, error) {
	if ing.QueueJobID == nil {
		return nil, nil
	}
	job, err := s.jobs.GetJob(ctx, *ing.QueueJobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if job.Status == models.JobStatusPending || (job.Status == models.JobStatusFailed && job.IsRetryable()) {
		return job, nil
	}
	return nil, nil
}

func (s *service) resume(ctx context.Context, ing *models.IngestionJob, orphans map[uint]bool) error {
	if err := s.repo.UpdateIngestion(ctx, ing.ID, map[string]interface{}{
		"stage":      models.StageReceived,
		"progress":   0,
		"started_at": nil,
	}); err != nil {
		return err
	}
	ing.Stage = models.StageReceived
	ing.Progress = 0
	ing.StartedAt = nil

	if err := s.repo.ReleaseDataset(ctx, ing.DatasetID, ing.ID); err != nil {
		return err
	}

	if ing.QueueJobID != nil && orphans[*ing.QueueJobID] {
		err := s.jobs.ReleaseJob(ctx, *ing.QueueJobID)
		if err == nil {
			log.Printf("[INFO] Resuming ingestion %s with queue job %d", ing.ID, *ing.QueueJobID)
			return nil
		}
		if !errors.Is(err, jobs.ErrJobNotFound) {
			return err
		}
	}

	waiting, err := s.waitingJob(ctx, ing)
	if err != nil {
		return err
	}
	if waiting != nil {
		return nil
	}

	log.Printf("[INFO] Re-queueing interrupted ingestion %s", ing.ID)
	return s.enqueue(ctx, ing, "recovery")
}

func (s *service) abandon(ctx context.Context, ing *models.IngestionJob, orphans map[uint]bool) {
	_ = s.failIngestion(ctx, ing, errInterrupted, nil, time.Time{})

	if ing.QueueJobID == nil {
		return
	}
	jobID := *ing.QueueJobID
	var err error
	if orphans[jobID] {
		err = s.jobs.FailJobWithDetails(ctx, jobID, models.ErrorTypeSystem, models.ErrorKindInterrupted, errInterrupted.Error(), "")
	} else {
		err = s.jobs.CancelJob(ctx, jobID, errInterrupted.Error())
	}
	if err != nil && !errors.Is(err, jobs.ErrJobNotFound) {
		log.Printf("[WARN] Failed to close queue job %d of ingestion %s: %v", jobID, ing.ID, err)
	}
}

// failIngestion records a failed ingestion and returns the error for the queue
func (s *service) failIngestion(ctx context.Context, ing *models.IngestionJob, cause error, report *yolo.DiagnosticsReport, started time.Time) error {
	kind, retryable := classify(cause)
	summary := summarize(cause, report)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failWriteTimeout)
	defer cancel()

	now := time.Now()
	updates := map[string]interface{}{
		"stage":       models.StageFailed,
		"error_kind":  kind,
		"error":       truncate(cause.Error(), 4*maxSummaryLength),
		"retryable":   retryable,
		"finished_at": &now,
	}
	if report != nil {
		ing.ApplyReport(report)
		updates["images_accepted"] = ing.ImagesAccepted
		updates["images_rejected"] = ing.ImagesRejected
		updates["images_flagged"] = ing.ImagesFlagged
		updates["lines_rejected"] = ing.LinesRejected
		updates["diagnostics"] = ing.Diagnostics
	}
	if err := s.repo.UpdateIngestion(writeCtx, ing.ID, updates); err != nil {
		log.Printf("[ERROR] Failed to record failure of ingestion %s: %v", ing.ID, err)
	}
	if err := s.repo.FailDataset(writeCtx, ing.DatasetID, ing.ID, kind, summary); err != nil {
		log.Printf("[ERROR] Failed to mark dataset %s failed: %v", ing.DatasetID, err)
	}

	ing.Stage = models.StageFailed
	ing.ErrorKind = kind
	ing.Error = updates["error"].(string)
	ing.Retryable = retryable
	ing.FinishedAt = &now

	if !started.IsZero() {
		s.metrics.IngestionFinished("failed", kind, time.Since(started))
	}
	log.Printf("[ERROR] Ingestion %s of dataset %s failed (%s): %s", ing.ID, ing.DatasetID, kind, summary)

	return toJobError(kind, summary, cause)
}

// classify maps a failure to an error kind and whether a new ingestion may succeed
func classify(err error) (string, bool) {
	if kind, ok := yolo.KindOf(err); ok {
		return string(kind), false
	}

	var space *InsufficientSpaceError
	var store *storeError
	var metadata *metadataError
	switch {
	case errors.Is(err, errLockLost):
		return models.ErrorKindConflict, true
	case errors.Is(err, errInterrupted), errors.Is(err, context.Canceled):
		return models.ErrorKindInterrupted, true
	case errors.Is(err, context.DeadlineExceeded):
		return models.ErrorKindTimeout, true
	case errors.As(err, &space):
		return models.ErrorKindInsufficientSpace, true
	case errors.As(err, &store) && storage.IsNotFound(err):
		return models.ErrorKindSourceMissing, false
	case errors.As(err, &store), errors.As(err, &metadata):
		return models.ErrorKindStore, true
	}
	return models.ErrorKindInternal, false
}

func toJobError(kind, summary string, cause error) *models.StructuredJobError {
	if _, ok := yolo.KindOf(cause); ok {
		return models.NewProcessingError(kind, summary, cause.Error(), cause)
	}
	switch kind {
	case models.ErrorKindSourceMissing:
		return models.NewNotFoundError(kind, summary, cause.Error(), cause)
	case models.ErrorKindStore:
		return models.NewDownloadError(kind, summary, cause.Error(), cause)
	}
	return models.NewSystemError(kind, summary, cause.Error(), cause)
}

// summarize renders the human-readable failure stored on the dataset
func summarize(err error, report *yolo.DiagnosticsReport) string {
	msg := err.Error()
	if report != nil && report.ImagesTotal > 0 {
		msg += "; " + report.Summary()
	}
	return truncate(msg, maxSummaryLength)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
