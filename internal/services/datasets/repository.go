package datasets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/killallgit/dataset-importer/internal/models"
)

// RepositoryImpl implements the Repository interface using GORM
type RepositoryImpl struct {
	db *gorm.DB
}

// NewRepository creates a new dataset repository
func NewRepository(db *gorm.DB) Repository {
	return &RepositoryImpl{db: db}
}

// GetByID retrieves a dataset by ID
func (r *RepositoryImpl) GetByID(ctx context.Context, id string) (*models.Dataset, error) {
	var dataset models.Dataset
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&dataset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDatasetNotFound
		}
		return nil, err
	}
	return &dataset, nil
}

// List retrieves datasets with optional filters
func (r *RepositoryImpl) List(ctx context.Context, filters *ListFilters) ([]models.Dataset, error) {
	var datasets []models.Dataset
	query := r.db.WithContext(ctx).Model(&models.Dataset{})

	if filters != nil {
		if filters.Status != "" {
			query = query.Where("status = ?", filters.Status)
		}
		if filters.Limit > 0 {
			query = query.Limit(filters.Limit)
		}
		if filters.Offset > 0 {
			query = query.Offset(filters.Offset)
		}
	}

	// Order by creation time (newest first)
	query = query.Order("created_at DESC, id")

	err := query.Find(&datasets).Error
	return datasets, err
}

// ListImages retrieves a dataset's images ordered by path
func (r *RepositoryImpl) ListImages(ctx context.Context, datasetID string, limit, offset int) ([]models.ImageRecord, error) {
	var images []models.ImageRecord
	query := r.db.WithContext(ctx).
		Where("dataset_id = ?", datasetID).
		Order("path ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&images).Error; err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}
	return images, nil
}

// CountImages counts a dataset's images
func (r *RepositoryImpl) CountImages(ctx context.Context, datasetID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ImageRecord{}).
		Where("dataset_id = ?", datasetID).
		Count(&count).Error
	return count, err
}

// SetImageDimensions stores lazily decoded dimensions
func (r *RepositoryImpl) SetImageDimensions(ctx context.Context, imageID uint, width, height int) error {
	return r.db.WithContext(ctx).
		Model(&models.ImageRecord{}).
		Where("id = ?", imageID).
		Updates(map[string]interface{}{"width": width, "height": height}).Error
}

// Delete removes a dataset and its images
func (r *RepositoryImpl) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("dataset_id = ?", id).Delete(&models.ImageRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("dataset_id = ?", id).Delete(&models.IngestionJob{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ? AND active_ingestion_id IS NULL", id).Delete(&models.Dataset{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrDatasetNotFound
		}
		return nil
	})
}

// GetStats retrieves dataset statistics
func (r *RepositoryImpl) GetStats(ctx context.Context) (*DatasetStats, error) {
	stats := &DatasetStats{
		ByStatus: make(map[string]int),
	}
	db := r.db.WithContext(ctx)

	var totalDatasets int64
	if err := db.Model(&models.Dataset{}).Count(&totalDatasets).Error; err != nil {
		return nil, err
	}
	stats.TotalDatasets = int(totalDatasets)

	var aggregates struct {
		TotalImages    int64
		ImagesRejected int64
	}
	if err := db.Model(&models.Dataset{}).
		Where("status = ?", models.DatasetStatusReady).
		Select("COALESCE(SUM(image_count), 0) as total_images, COALESCE(SUM(images_rejected), 0) as images_rejected").
		Scan(&aggregates).Error; err != nil {
		return nil, err
	}
	stats.TotalImages = int(aggregates.TotalImages)
	stats.ImagesRejected = int(aggregates.ImagesRejected)

	var statusCounts []struct {
		Status string
		Count  int
	}
	if err := db.Model(&models.Dataset{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return nil, err
	}
	for _, sc := range statusCounts {
		stats.ByStatus[sc.Status] = sc.Count
	}

	today := time.Now().Truncate(24 * time.Hour)
	thisWeek := today.AddDate(0, 0, -7)

	var createdToday, createdThisWeek int64
	if err := db.Model(&models.Dataset{}).
		Where("created_at >= ?", today).
		Count(&createdToday).Error; err != nil {
		return nil, fmt.Errorf("counting datasets created today: %w", err)
	}
	stats.CreatedToday = int(createdToday)

	if err := db.Model(&models.Dataset{}).
		Where("created_at >= ?", thisWeek).
		Count(&createdThisWeek).Error; err != nil {
		return nil, fmt.Errorf("counting datasets created this week: %w", err)
	}
	stats.CreatedThisWeek = int(createdThisWeek)

	return stats, nil
}
