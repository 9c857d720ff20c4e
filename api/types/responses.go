package types

import (
	"time"

	"github.com/killallgit/dataset-importer/internal/models"
	"github.com/killallgit/dataset-importer/pkg/yolo"
)

// Status constants for API responses
const (
	StatusOK                = "ok"
	StatusError             = "error"
	StatusProcessingStarted = "processing_started"
)

// BaseResponse contains fields common to all API responses
type BaseResponse struct {
	Status  string `json:"status"`  // One of the Status constants above
	Message string `json:"message"` // Human-readable message
}

// ErrorResponse for detailed error information
type ErrorResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Error   string      `json:"error,omitempty"`   // Error code/type
	Details interface{} `json:"details,omitempty"` // Additional error details
}

// HealthResponse for health check endpoint
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Services  map[string]interface{} `json:"services"`
}

// DatasetSummary is one entry of the dataset listing
type DatasetSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	ImageCount int    `json:"image_count"`
}

// SplitSummary describes one dataset partition
type SplitSummary struct {
	Name       string `json:"name"`
	Prefix     string `json:"prefix"`
	ImageCount int    `json:"image_count"`
}

// DatasetDetail is the full view of one dataset
type DatasetDetail struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Status          string         `json:"status"`
	ClassNames      []string       `json:"class_names"`
	Splits          []SplitSummary `json:"splits"`
	ImageCount      int            `json:"image_count"`
	ImagesRejected  int            `json:"images_rejected"`
	ImagesFlagged   int            `json:"images_flagged"`
	Filename        string         `json:"filename,omitempty"`
	Error           string         `json:"error,omitempty"`
	ErrorKind       string         `json:"error_kind,omitempty"`
	Ingesting       bool           `json:"ingesting"`
	LastIngestionID string         `json:"last_ingestion_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	ReadyAt         *time.Time     `json:"ready_at,omitempty"`
}

// ImageAnnotation is one bounding box of an image
type ImageAnnotation struct {
	ClassID   int        `json:"class_id"`
	ClassName string     `json:"class_name,omitempty"`
	BBox      [4]float64 `json:"bbox"`
}

// ImageSummary is one image record in the paginated listing
type ImageSummary struct {
	Filename      string            `json:"filename"`
	Path          string            `json:"path"`
	Split         string            `json:"split"`
	ObjectKey     string            `json:"object_key"`
	Width         *int              `json:"width,omitempty"`
	Height        *int              `json:"height,omitempty"`
	Annotations   []ImageAnnotation `json:"annotations"`
	NoAnnotations bool              `json:"no_annotations"`
	Flagged       bool              `json:"flagged"`
}

// ImagePageResponse is one page of image records
type ImagePageResponse struct {
	Images []ImageSummary `json:"images"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// SignedImage is one entry of the capped signed listing
type SignedImage struct {
	Filename      string            `json:"filename"`
	Path          string            `json:"path"`
	Split         string            `json:"split"`
	Annotations   []ImageAnnotation `json:"annotations"`
	SignedURL     string            `json:"signed_url"`
	Width         *int              `json:"width,omitempty"`
	Height        *int              `json:"height,omitempty"`
	NoAnnotations bool              `json:"no_annotations"`
}

// IngestionDetail is the view of one ingestion attempt
type IngestionDetail struct {
	ID             string                  `json:"id"`
	DatasetID      string                  `json:"dataset_id"`
	ObjectKey      string                  `json:"object_key"`
	Filename       string                  `json:"filename"`
	Stage          string                  `json:"stage"`
	Progress       int                     `json:"progress"`
	ErrorKind      string                  `json:"error_kind,omitempty"`
	Error          string                  `json:"error,omitempty"`
	Retryable      bool                    `json:"retryable"`
	ImagesAccepted int                     `json:"images_accepted"`
	ImagesRejected int                     `json:"images_rejected"`
	ImagesFlagged  int                     `json:"images_flagged"`
	LinesRejected  int                     `json:"lines_rejected"`
	Diagnostics    *yolo.DiagnosticsReport `json:"diagnostics,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
	StartedAt      *time.Time              `json:"started_at,omitempty"`
	FinishedAt     *time.Time              `json:"finished_at,omitempty"`
}

// IngestionListResponse is a dataset's ingestion history
type IngestionListResponse struct {
	Ingestions []IngestionDetail `json:"ingestions"`
	Count      int               `json:"count"`
}

// ProcessingStartedResponse is returned when an ingestion was queued
type ProcessingStartedResponse struct {
	Status      string `json:"status" example:"processing_started"`
	DatasetID   string `json:"dataset_id"`
	IngestionID string `json:"ingestion_id"`
	Stage       string `json:"stage"`
}

// NewProcessingStarted builds the 202 body for an ingestion
func NewProcessingStarted(ing *models.IngestionJob) ProcessingStartedResponse {
	return ProcessingStartedResponse{
		Status:      StatusProcessingStarted,
		DatasetID:   ing.DatasetID,
		IngestionID: ing.ID,
		Stage:       string(ing.Stage),
	}
}
