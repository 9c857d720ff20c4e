package uploads

import (
	"context"
	"errors"

	"github.com/killallgit/dataset-importer/internal/models"
	"github.com/killallgit/dataset-importer/internal/storage"
)

var (
	// ErrInvalidFilename is returned when nothing usable is left of a filename
	ErrInvalidFilename = errors.New("invalid filename")

	// ErrInvalidSize is returned for negative or oversized uploads
	ErrInvalidSize = errors.New("invalid upload size")

	// ErrOutsidePrefix is returned for object keys outside the upload prefix
	ErrOutsidePrefix = errors.New("object key is outside the upload prefix")

	// ErrUnsupportedEvent is returned for notifications in an unknown format
	ErrUnsupportedEvent = errors.New("unsupported object event payload")
)

// CredentialRequest asks for a new upload target
type CredentialRequest struct {
	Filename string `json:"filename" binding:"required"`
	Size     int64  `json:"size"`
}

// RefreshRequest re-issues credentials for an existing upload target
type RefreshRequest struct {
	ObjectKey string `json:"objectKey" binding:"required"`
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
}

// CompleteRequest signals that an upload finished
type CompleteRequest struct {
	ObjectKey string `json:"objectKey" binding:"required"`
	Filename  string `json:"filename"`
}

// EventResult reports what happened to one object in an event notification
type EventResult struct {
	ObjectKey   string `json:"object_key"`
	Triggered   bool   `json:"triggered"`
	DatasetID   string `json:"dataset_id,omitempty"`
	IngestionID string `json:"ingestion_id,omitempty"`
	Skipped     string `json:"skipped,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Service hands uploads over to the ingestion pipeline
type Service interface {
	// RequestCredentials allocates an object key and issues upload credentials for it
	RequestCredentials(ctx context.Context, req CredentialRequest) (*storage.UploadGrant, error)

	// RefreshCredentials re-issues credentials for the target named in req
	RefreshCredentials(ctx context.Context, req RefreshRequest) (*storage.UploadGrant, error)

	// Complete triggers ingestion of an uploaded archive
	Complete(ctx context.Context, req CompleteRequest) (*models.IngestionJob, error)

	// HandleObjectCreated triggers ingestion for every archive in an
	// OSS or S3 object-created notification
	HandleObjectCreated(ctx context.Context, payload []byte) ([]EventResult, error)
}
