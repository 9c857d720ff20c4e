package workers

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/killallgit/dataset-importer/internal/models"
	"github.com/killallgit/dataset-importer/internal/services/ingestion"
	"github.com/killallgit/dataset-importer/internal/services/jobs"
)

// IngestionProcessor runs dataset ingestion jobs
type IngestionProcessor struct {
	jobService jobs.Service
	ingestion  ingestion.Service
}

// NewIngestionProcessor creates a new ingestion processor
func NewIngestionProcessor(jobService jobs.Service, ingestionService ingestion.Service) *IngestionProcessor {
	return &IngestionProcessor{
		jobService: jobService,
		ingestion:  ingestionService,
	}
}

// CanProcess returns true if this processor can handle the job type
func (p *IngestionProcessor) CanProcess(jobType models.JobType) bool {
	return jobType == models.JobTypeDatasetIngestion
}

// JobTypes lists the job types the processor claims
func (p *IngestionProcessor) JobTypes() []models.JobType {
	return []models.JobType{models.JobTypeDatasetIngestion}
}

// ProcessJob runs the ingestion named in the job payload
func (p *IngestionProcessor) ProcessJob(ctx context.Context, job *models.Job) error {
	if !p.CanProcess(job.Type) {
		return fmt.Errorf("unsupported job type: %s", job.Type)
	}

	ingestionID, ok := job.GetPayloadString("ingestion_id")
	if !ok || ingestionID == "" {
		return models.NewProcessingError("invalid_payload", "job payload has no ingestion_id", "", nil)
	}

	log.Printf("[INFO] Processing ingestion %s (job %d)", ingestionID, job.ID)

	progress := func(percent int) {
		if err := p.jobService.UpdateProgress(ctx, job.ID, percent); err != nil {
			log.Printf("[WARN] Failed to update progress of job %d: %v", job.ID, err)
		}
	}

	ing, err := p.ingestion.Run(ctx, ingestionID, progress)
	switch {
	case errors.Is(err, ingestion.ErrIngestionNotFound):
		return models.NewNotFoundError("ingestion_not_found", fmt.Sprintf("ingestion %s not found", ingestionID), "", err)
	case errors.Is(err, ingestion.ErrAlreadyFinished):
		log.Printf("[INFO] Ingestion %s already finished in stage %s, nothing to do", ingestionID, ing.Stage)
	case errors.Is(err, ingestion.ErrAlreadyRunning):
		return models.NewSystemError("ingestion_running", fmt.Sprintf("ingestion %s is already in stage %s", ingestionID, ing.Stage), "", err)
	case err != nil:
		return err
	}

	return p.jobService.CompleteJob(ctx, job.ID, models.JobResult{
		"ingestion_id":    ing.ID,
		"dataset_id":      ing.DatasetID,
		"stage":           string(ing.Stage),
		"images_accepted": ing.ImagesAccepted,
		"images_rejected": ing.ImagesRejected,
		"images_flagged":  ing.ImagesFlagged,
	})
}
