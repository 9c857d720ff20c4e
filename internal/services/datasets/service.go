package datasets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/killallgit/dataset-importer/internal/metrics"
	"github.com/killallgit/dataset-importer/internal/models"
	"github.com/killallgit/dataset-importer/internal/storage"
	"github.com/killallgit/dataset-importer/pkg/config"
	apperrors "github.com/killallgit/dataset-importer/pkg/errors"
	"github.com/killallgit/dataset-importer/pkg/yolo"
)

const (
	DefaultDisplayLimit = 10
	DefaultPageLimit    = 100
	DefaultSignedURLTTL = time.Hour
)

// Options controls the read path
type Options struct {
	// DisplayLimit caps the signed image listing
	DisplayLimit int
	SignedURLTTL time.Duration
	// PageLimit caps one page of the unsigned image listing
	PageLimit int
	// DimensionCacheTTL is how long a failed dimension decode is remembered
	DimensionCacheTTL time.Duration
}

// OptionsFromConfig builds Options from the query configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DisplayLimit:      cfg.Query.DisplayLimit,
		SignedURLTTL:      cfg.Query.SignedURLTTL,
		PageLimit:         cfg.Query.PageLimit,
		DimensionCacheTTL: cfg.Query.DimensionCacheTTL,
	}
}

// ServiceImpl implements the Service interface
type ServiceImpl struct {
	repo    Repository
	store   storage.ObjectStore
	opts    Options
	metrics *metrics.Metrics

	// failedDims holds object keys whose header could not be decoded
	failedDims *cache.Cache
}

// ServiceOption configures a ServiceImpl
type ServiceOption func(*ServiceImpl)

// WithMetrics records signed URL and dimension lookup metrics
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *ServiceImpl) {
		s.metrics = m
	}
}

// NewService creates a new dataset query service
func NewService(repo Repository, store storage.ObjectStore, opts Options, options ...ServiceOption) Service {
	if opts.DisplayLimit <= 0 {
		opts.DisplayLimit = DefaultDisplayLimit
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = DefaultPageLimit
	}
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = DefaultSignedURLTTL
	}
	if opts.DimensionCacheTTL <= 0 {
		opts.DimensionCacheTTL = 10 * time.Minute
	}

	s := &ServiceImpl{
		repo:       repo,
		store:      store,
		opts:       opts,
		failedDims: cache.New(opts.DimensionCacheTTL, opts.DimensionCacheTTL*2),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// ListDatasets returns dataset summaries, newest first
func (s *ServiceImpl) ListDatasets(ctx context.Context, filters *ListFilters) ([]DatasetSummary, error) {
	if filters != nil && filters.Status != "" {
		switch models.DatasetStatus(filters.Status) {
		case models.DatasetStatusPending, models.DatasetStatusProcessing, models.DatasetStatusReady, models.DatasetStatusFailed:
		default:
			return nil, apperrors.ValidationError("status", fmt.Sprintf("unknown dataset status %q", filters.Status))
		}
	}

	datasets, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}

	summaries := make([]DatasetSummary, 0, len(datasets))
	for _, d := range datasets {
		summaries = append(summaries, DatasetSummary{
			ID:         d.ID,
			Name:       d.Name,
			Status:     d.Status,
			ImageCount: d.ImageCount,
			CreatedAt:  d.CreatedAt,
		})
	}
	return summaries, nil
}

// GetDataset retrieves a dataset by ID
func (s *ServiceImpl) GetDataset(ctx context.Context, id string) (*models.Dataset, error) {
	return s.repo.GetByID(ctx, id)
}

// readyDataset loads a dataset and rejects it unless it is ready
func (s *ServiceImpl) readyDataset(ctx context.Context, id string) (*models.Dataset, error) {
	dataset, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !dataset.IsReady() {
		return nil, &DatasetNotReadyError{ID: dataset.ID, Status: dataset.Status}
	}
	return dataset, nil
}

// ClampDisplayLimit applies the display cap to a requested listing size
func (s *ServiceImpl) ClampDisplayLimit(limit int) int {
	if limit <= 0 || limit > s.opts.DisplayLimit {
		return s.opts.DisplayLimit
	}
	return limit
}

// ListSignedImages returns at most the display cap of images with signed URLs
func (s *ServiceImpl) ListSignedImages(ctx context.Context, id string, limit int) ([]SignedImage, error) {
	dataset, err := s.readyDataset(ctx, id)
	if err != nil {
		return nil, err
	}

	limit = s.ClampDisplayLimit(limit)
	images, err := s.repo.ListImages(ctx, dataset.ID, limit, 0)
	if err != nil {
		return nil, err
	}

	result := make([]SignedImage, 0, len(images))
	for i := range images {
		img := &images[i]

		url, err := s.store.PresignGet(ctx, img.ObjectKey, s.opts.SignedURLTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to sign %s: %w", img.Path, err)
		}

		if !img.HasDimensions() {
			s.fillDimensions(ctx, img)
		}

		annotations := make([]SignedAnnotation, 0, len(img.Annotations))
		for _, a := range img.Annotations {
			annotations = append(annotations, SignedAnnotation{
				ClassID:   a.ClassID,
				ClassName: dataset.ClassName(a.ClassID),
				BBox:      a.BBox,
			})
		}

		result = append(result, SignedImage{
			Filename:      img.Filename,
			Path:          img.Path,
			Split:         img.Split,
			Annotations:   annotations,
			SignedURL:     url,
			Width:         img.Width,
			Height:        img.Height,
			NoAnnotations: img.NoAnnotations,
			Flagged:       img.Flagged,
		})
	}

	s.metrics.SignedURLsIssued(len(result))
	return result, nil
}

// fillDimensions decodes an image header from the store and saves the
// dimensions on the record. Failures are remembered and otherwise ignored.
func (s *ServiceImpl) fillDimensions(ctx context.Context, img *models.ImageRecord) {
	if _, failed := s.failedDims.Get(img.ObjectKey); failed {
		s.metrics.DimensionLookup("cached_failure")
		return
	}

	width, height, err := s.decodeDimensions(ctx, img.ObjectKey)
	if err != nil {
		log.Printf("[WARN] Could not read dimensions of %s: %v", img.ObjectKey, err)
		s.failedDims.Set(img.ObjectKey, true, cache.DefaultExpiration)
		s.metrics.DimensionLookup("failure")
		return
	}

	if err := s.repo.SetImageDimensions(ctx, img.ID, width, height); err != nil {
		log.Printf("[WARN] Failed to save dimensions of %s: %v", img.Path, err)
	}
	img.Width = &width
	img.Height = &height
	s.metrics.DimensionLookup("decoded")
}

func (s *ServiceImpl) decodeDimensions(ctx context.Context, key string) (int, int, error) {
	rc, _, err := s.store.Get(ctx, key)
	if err != nil {
		return 0, 0, err
	}
	defer rc.Close()
	return yolo.Dimensions(io.LimitReader(rc, yolo.HeaderPeekSize))
}

// ListImages returns one page of image records
func (s *ServiceImpl) ListImages(ctx context.Context, id string, limit, offset int) (*ImagePage, error) {
	dataset, err := s.readyDataset(ctx, id)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > s.opts.PageLimit {
		limit = s.opts.PageLimit
	}
	if offset < 0 {
		offset = 0
	}

	total, err := s.repo.CountImages(ctx, dataset.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count images: %w", err)
	}
	images, err := s.repo.ListImages(ctx, dataset.ID, limit, offset)
	if err != nil {
		return nil, err
	}

	return &ImagePage{
		Images: images,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}, nil
}

// DeleteDataset removes a dataset and its stored images
func (s *ServiceImpl) DeleteDataset(ctx context.Context, id string) error {
	dataset, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if dataset.ActiveIngestionID != nil {
		return &DatasetBusyError{ID: dataset.ID, IngestionID: *dataset.ActiveIngestionID}
	}

	images, err := s.repo.ListImages(ctx, dataset.ID, 0, 0)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, dataset.ID); err != nil {
		if errors.Is(err, ErrDatasetNotFound) {
			// The row exists, so the guarded delete lost to a new ingestion
			return &DatasetBusyError{ID: dataset.ID}
		}
		return fmt.Errorf("failed to delete dataset: %w", err)
	}

	removed := 0
	for _, img := range images {
		if img.ObjectKey == "" {
			continue
		}
		if err := s.store.Delete(ctx, img.ObjectKey); err != nil {
			log.Printf("[WARN] Failed to delete object %s: %v", img.ObjectKey, err)
			continue
		}
		removed++
	}

	log.Printf("[INFO] Deleted dataset %s (%d/%d image objects removed)", dataset.ID, removed, len(images))
	return nil
}

// GetStats returns statistics about imported datasets
func (s *ServiceImpl) GetStats(ctx context.Context) (*DatasetStats, error) {
	return s.repo.GetStats(ctx)
}
