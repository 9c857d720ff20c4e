package datasets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/killallgit/dataset-importer/internal/models"
)

// ErrDatasetNotFound is returned for unknown dataset ids
var ErrDatasetNotFound = errors.New("dataset not found")

// DatasetNotReadyError is returned when a dataset is queried before it is ready
type DatasetNotReadyError struct {
	ID     string
	Status models.DatasetStatus
}

func (e *DatasetNotReadyError) Error() string {
	return fmt.Sprintf("dataset %s is %s, not ready", e.ID, e.Status)
}

// DatasetBusyError is returned when a dataset is being written by an ingestion
type DatasetBusyError struct {
	ID          string
	IngestionID string
}

func (e *DatasetBusyError) Error() string {
	if e.IngestionID == "" {
		return fmt.Sprintf("dataset %s is being ingested", e.ID)
	}
	return fmt.Sprintf("dataset %s is being ingested by %s", e.ID, e.IngestionID)
}

// Service defines the read side of imported datasets
type Service interface {
	// ListDatasets returns dataset summaries, newest first
	ListDatasets(ctx context.Context, filters *ListFilters) ([]DatasetSummary, error)

	// GetDataset retrieves a dataset by ID in any status
	GetDataset(ctx context.Context, id string) (*models.Dataset, error)

	// ListSignedImages returns at most the display cap of annotated images
	// with freshly signed download links
	ListSignedImages(ctx context.Context, id string, limit int) ([]SignedImage, error)

	// ListImages returns one page of image records
	ListImages(ctx context.Context, id string, limit, offset int) (*ImagePage, error)

	// DeleteDataset removes a dataset, its images and their stored objects
	DeleteDataset(ctx context.Context, id string) error

	// GetStats returns statistics about imported datasets
	GetStats(ctx context.Context) (*DatasetStats, error)
}

// ListFilters narrows a dataset listing
type ListFilters struct {
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// DatasetSummary is one row of the dataset listing
type DatasetSummary struct {
	ID         string               `json:"id"`
	Name       string               `json:"name"`
	Status     models.DatasetStatus `json:"status"`
	ImageCount int                  `json:"image_count"`
	CreatedAt  time.Time            `json:"created_at"`
}

// SignedAnnotation is an annotation with its resolved class name
type SignedAnnotation struct {
	ClassID   int        `json:"class_id"`
	ClassName string     `json:"class_name"`
	BBox      [4]float64 `json:"bbox"`
}

// SignedImage is one entry of the signed image listing
type SignedImage struct {
	Filename      string             `json:"filename"`
	Path          string             `json:"path"`
	Split         string             `json:"split"`
	Annotations   []SignedAnnotation `json:"annotations"`
	SignedURL     string             `json:"signed_url"`
	Width         *int               `json:"width,omitempty"`
	Height        *int               `json:"height,omitempty"`
	NoAnnotations bool               `json:"no_annotations"`
	Flagged       bool               `json:"flagged"`
}

// ImagePage is one page of image records
type ImagePage struct {
	Images []models.ImageRecord `json:"images"`
	Total  int64                `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// DatasetStats summarizes all datasets
type DatasetStats struct {
	TotalDatasets   int            `json:"total_datasets"`
	TotalImages     int            `json:"total_images"`
	ImagesRejected  int            `json:"images_rejected"`
	ByStatus        map[string]int `json:"by_status"`
	CreatedToday    int            `json:"created_today"`
	CreatedThisWeek int            `json:"created_this_week"`
}

// Repository defines dataset read access
type Repository interface {
	// GetByID retrieves a dataset by ID
	GetByID(ctx context.Context, id string) (*models.Dataset, error)

	// List retrieves datasets with optional filters
	List(ctx context.Context, filters *ListFilters) ([]models.Dataset, error)

	// ListImages retrieves a dataset's images ordered by path
	ListImages(ctx context.Context, datasetID string, limit, offset int) ([]models.ImageRecord, error)

	// CountImages counts a dataset's images
	CountImages(ctx context.Context, datasetID string) (int64, error)

	// SetImageDimensions stores lazily decoded dimensions
	SetImageDimensions(ctx context.Context, imageID uint, width, height int) error

	// Delete removes a dataset and its images
	Delete(ctx context.Context, id string) error

	// GetStats retrieves dataset statistics
	GetStats(ctx context.Context) (*DatasetStats, error)
}
