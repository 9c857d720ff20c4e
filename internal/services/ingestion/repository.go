package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/killallgit/dataset-importer/internal/models"
)

// imageBatchSize bounds the rows of one INSERT
const imageBatchSize = 500

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new ingestion repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetDataset(ctx context.Context, id string) (*models.Dataset, error) {
	var dataset models.Dataset
	if err := r.db.WithContext(ctx).First(&dataset, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDatasetNotFound
		}
		return nil, fmt.Errorf("getting dataset: %w", err)
	}
	return &dataset, nil
}

func (r *repository) UpsertPendingDataset(ctx context.Context, dataset *models.Dataset) error {
	dataset.Status = models.DatasetStatusPending
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"name":       dataset.Name,
				"status":     models.DatasetStatusPending,
				"source_key": dataset.SourceKey,
				"filename":   dataset.Filename,
				"error":      "",
				"error_kind": "",
				"updated_at": time.Now(),
			}),
		}).
		Create(dataset).Error
	if err != nil {
		return fmt.Errorf("upserting dataset: %w", err)
	}
	return nil
}

func (r *repository) AcquireDataset(ctx context.Context, datasetID, ingestionID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Dataset{}).
		Where("id = ? AND (active_ingestion_id IS NULL OR active_ingestion_id = ?)", datasetID, ingestionID).
		Updates(map[string]interface{}{
			"active_ingestion_id": ingestionID,
			"status":              models.DatasetStatusProcessing,
			"error":               "",
			"error_kind":          "",
		})
	if result.Error != nil {
		return false, fmt.Errorf("acquiring dataset: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) ReleaseDataset(ctx context.Context, datasetID, ingestionID string) error {
	err := r.db.WithContext(ctx).
		Model(&models.Dataset{}).
		Where("id = ? AND active_ingestion_id = ?", datasetID, ingestionID).
		Updates(map[string]interface{}{
			"active_ingestion_id": nil,
			"status":              models.DatasetStatusPending,
		}).Error
	if err != nil {
		return fmt.Errorf("releasing dataset: %w", err)
	}
	return nil
}

func (r *repository) FailDataset(ctx context.Context, datasetID, ingestionID, kind, summary string) error {
	err := r.db.WithContext(ctx).
		Model(&models.Dataset{}).
		Where("id = ? AND (active_ingestion_id IS NULL OR active_ingestion_id = ?)", datasetID, ingestionID).
		Updates(map[string]interface{}{
			"status":              models.DatasetStatusFailed,
			"error":               summary,
			"error_kind":          kind,
			"active_ingestion_id": nil,
			"last_ingestion_id":   ingestionID,
		}).Error
	if err != nil {
		return fmt.Errorf("failing dataset: %w", err)
	}
	return nil
}

func (r *repository) CommitDataset(ctx context.Context, commit *Commit) error {
	ing := commit.Ingestion
	now := time.Now()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Dataset{}).
			Where("id = ? AND active_ingestion_id = ?", ing.DatasetID, ing.ID).
			Updates(map[string]interface{}{
				"status":              models.DatasetStatusReady,
				"class_names":         datatypes.NewJSONSlice(commit.ClassNames),
				"splits":              datatypes.NewJSONSlice(commit.Splits),
				"image_count":         len(commit.Images),
				"images_rejected":     ing.ImagesRejected,
				"images_flagged":      ing.ImagesFlagged,
				"error":               "",
				"error_kind":          "",
				"active_ingestion_id": nil,
				"last_ingestion_id":   ing.ID,
				"ready_at":            &now,
			})
		if result.Error != nil {
			return fmt.Errorf("updating dataset: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return errLockLost
		}

		if err := tx.Where("dataset_id = ?", ing.DatasetID).Delete(&models.ImageRecord{}).Error; err != nil {
			return fmt.Errorf("deleting previous images: %w", err)
		}
		if len(commit.Images) > 0 {
			if err := tx.CreateInBatches(commit.Images, imageBatchSize).Error; err != nil {
				return fmt.Errorf("inserting images: %w", err)
			}
		}

		if err := tx.Model(&models.IngestionJob{}).
			Where("id = ?", ing.ID).
			Updates(map[string]interface{}{
				"stage":           models.StageReady,
				"progress":        100,
				"images_accepted": ing.ImagesAccepted,
				"images_rejected": ing.ImagesRejected,
				"images_flagged":  ing.ImagesFlagged,
				"lines_rejected":  ing.LinesRejected,
				"diagnostics":     ing.Diagnostics,
				"finished_at":     &now,
			}).Error; err != nil {
			return fmt.Errorf("finishing ingestion: %w", err)
		}

		ing.Stage = models.StageReady
		ing.Progress = 100
		ing.FinishedAt = &now
		return nil
	})
}

func (r *repository) CreateIngestion(ctx context.Context, ingestion *models.IngestionJob) error {
	if err := r.db.WithContext(ctx).Create(ingestion).Error; err != nil {
		return fmt.Errorf("creating ingestion: %w", err)
	}
	return nil
}

func (r *repository) GetIngestion(ctx context.Context, id string) (*models.IngestionJob, error) {
	var ingestion models.IngestionJob
	if err := r.db.WithContext(ctx).First(&ingestion, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIngestionNotFound
		}
		return nil, fmt.Errorf("getting ingestion: %w", err)
	}
	return &ingestion, nil
}

func (r *repository) FindActiveIngestion(ctx context.Context, datasetID string) (*models.IngestionJob, error) {
	var ingestion models.IngestionJob
	err := r.db.WithContext(ctx).
		Where("dataset_id = ? AND stage NOT IN ?", datasetID, []models.IngestionStage{models.StageReady, models.StageFailed}).
		Order("created_at DESC").
		First(&ingestion).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIngestionNotFound
		}
		return nil, fmt.Errorf("finding active ingestion: %w", err)
	}
	return &ingestion, nil
}

func (r *repository) ListIngestions(ctx context.Context, datasetID string, limit int) ([]*models.IngestionJob, error) {
	var ingestions []*models.IngestionJob
	query := r.db.WithContext(ctx).
		Where("dataset_id = ?", datasetID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&ingestions).Error; err != nil {
		return nil, fmt.Errorf("listing ingestions: %w", err)
	}
	return ingestions, nil
}

func (r *repository) ListUnfinished(ctx context.Context) ([]*models.IngestionJob, error) {
	var ingestions []*models.IngestionJob
	err := r.db.WithContext(ctx).
		Where("stage NOT IN ?", []models.IngestionStage{models.StageReady, models.StageFailed}).
		Order("created_at ASC").
		Find(&ingestions).Error
	if err != nil {
		return nil, fmt.Errorf("listing unfinished ingestions: %w", err)
	}
	return ingestions, nil
}

func (r *repository) UpdateIngestion(ctx context.Context, id string, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&models.IngestionJob{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("updating ingestion: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrIngestionNotFound
	}
	return nil
}
