package types

import (
	"github.com/killallgit/dataset-importer/internal/database"
	"github.com/killallgit/dataset-importer/internal/metrics"
	"github.com/killallgit/dataset-importer/internal/services/datasets"
	"github.com/killallgit/dataset-importer/internal/services/ingestion"
	"github.com/killallgit/dataset-importer/internal/services/jobs"
	"github.com/killallgit/dataset-importer/internal/services/uploads"
	"github.com/killallgit/dataset-importer/internal/services/workers"
	"github.com/killallgit/dataset-importer/internal/storage"
	"github.com/killallgit/dataset-importer/pkg/config"
)

// Dependencies holds all the dependencies needed by handlers
type Dependencies struct {
	Version          string
	DB               *database.DB
	Config           *config.Config
	Store            storage.ObjectStore
	DatasetService   datasets.Service
	IngestionService ingestion.Service
	UploadService    uploads.Service
	JobService       jobs.Service
	WorkerPool       *workers.WorkerPool
	Metrics          *metrics.Metrics
}
