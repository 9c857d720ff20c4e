package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/killallgit/dataset-importer/internal/models"
)

var (
	// ErrIngestionNotFound is returned when an ingestion does not exist
	ErrIngestionNotFound = errors.New("ingestion not found")

	// ErrDatasetNotFound is returned when a dataset does not exist
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrInvalidObjectKey is returned for an empty or escaping object key
	ErrInvalidObjectKey = errors.New("invalid object key")

	// ErrAlreadyFinished is returned when running an ingestion that reached ready or failed
	ErrAlreadyFinished = errors.New("ingestion already finished")

	// ErrAlreadyRunning is returned when running an ingestion that left the received stage
	ErrAlreadyRunning = errors.New("ingestion already running")

	// ErrNoSource is returned when a dataset has no source archive to re-ingest
	ErrNoSource = errors.New("dataset has no source archive")

	// errLockLost means another ingestion took over the dataset
	errLockLost = errors.New("dataset is locked by another ingestion")
)

// UploadCompletion notifies that an archive finished uploading
type UploadCompletion struct {
	ObjectKey string `json:"object_key"`
	Filename  string `json:"filename"`
	// Source names the caller, e.g. "api" or "oss-event"
	Source string `json:"source,omitempty"`
}

// ProgressFunc receives the ingestion percentage as stages advance
type ProgressFunc func(percent int)

// RecoveryReport counts the ingestions handled at startup
type RecoveryReport struct {
	Resumed int `json:"resumed"`
	Failed  int `json:"failed"`
}

// InsufficientSpaceError is returned when the scratch volume cannot hold the archive
type InsufficientSpaceError struct {
	Path      string
	Required  uint64
	Available uint64
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("insufficient scratch space in %s: need %d bytes, %d available", e.Path, e.Required, e.Available)
}

// storeError marks failures of object store calls
type storeError struct {
	op  string
	key string
	err error
}

func (e *storeError) Error() string {
	return fmt.Sprintf("object store %s %s: %v", e.op, e.key, e.err)
}

func (e *storeError) Unwrap() error { return e.err }

// metadataError marks metadata store writes that kept failing transiently
type metadataError struct {
	op  string
	err error
}

func (e *metadataError) Error() string {
	return fmt.Sprintf("metadata store %s: %v", e.op, e.err)
}

func (e *metadataError) Unwrap() error { return e.err }

// Service runs archive ingestions
type Service interface {
	// Trigger records an ingestion for an uploaded archive and queues it.
	// A trigger for a dataset with an unfinished ingestion returns that ingestion.
	Trigger(ctx context.Context, completion UploadCompletion) (*models.IngestionJob, error)

	// Run executes a received ingestion through extracting, parsing and persisting
	Run(ctx context.Context, ingestionID string, progress ProgressFunc) (*models.IngestionJob, error)

	// GetIngestion retrieves an ingestion by ID
	GetIngestion(ctx context.Context, id string) (*models.IngestionJob, error)

	// ListIngestions returns the newest ingestions of a dataset
	ListIngestions(ctx context.Context, datasetID string, limit int) ([]*models.IngestionJob, error)

	// Reingest triggers a new ingestion from the dataset's last source archive
	Reingest(ctx context.Context, datasetID string) (*models.IngestionJob, error)

	// RecoverInterrupted resumes or fails ingestions left unfinished by a previous process
	RecoverInterrupted(ctx context.Context) (RecoveryReport, error)
}

// Repository persists datasets, ingestions and images
type Repository interface {
	GetDataset(ctx context.Context, id string) (*models.Dataset, error)
	// UpsertPendingDataset creates the dataset or resets it to pending
	UpsertPendingDataset(ctx context.Context, dataset *models.Dataset) error
	// AcquireDataset takes the dataset's ingestion lock; false when another ingestion holds it
	AcquireDataset(ctx context.Context, datasetID, ingestionID string) (bool, error)
	// ReleaseDataset clears a held lock and returns the dataset to pending
	ReleaseDataset(ctx context.Context, datasetID, ingestionID string) error
	// FailDataset marks the dataset failed unless another ingestion holds the lock
	FailDataset(ctx context.Context, datasetID, ingestionID, kind, summary string) error
	// CommitDataset atomically replaces the dataset's images and marks dataset and ingestion ready
	CommitDataset(ctx context.Context, commit *Commit) error

	CreateIngestion(ctx context.Context, ingestion *models.IngestionJob) error
	GetIngestion(ctx context.Context, id string) (*models.IngestionJob, error)
	FindActiveIngestion(ctx context.Context, datasetID string) (*models.IngestionJob, error)
	ListIngestions(ctx context.Context, datasetID string, limit int) ([]*models.IngestionJob, error)
	ListUnfinished(ctx context.Context) ([]*models.IngestionJob, error)
	UpdateIngestion(ctx context.Context, id string, updates map[string]interface{}) error
}

// Commit is the final write of a successful ingestion
type Commit struct {
	Ingestion  *models.IngestionJob
	ClassNames []string
	Splits     []models.SplitInfo
	Images     []models.ImageRecord
}
