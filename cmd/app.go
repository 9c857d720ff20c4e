package cmd

import (
	"fmt"
	"log"

	"github.com/killallgit/dataset-importer/api/types"
	"github.com/killallgit/dataset-importer/internal/database"
	"github.com/killallgit/dataset-importer/internal/metrics"
	"github.com/killallgit/dataset-importer/internal/services/cleanup"
	"github.com/killallgit/dataset-importer/internal/services/datasets"
	"github.com/killallgit/dataset-importer/internal/services/ingestion"
	"github.com/killallgit/dataset-importer/internal/services/jobs"
	"github.com/killallgit/dataset-importer/internal/services/uploads"
	"github.com/killallgit/dataset-importer/internal/services/workers"
	"github.com/killallgit/dataset-importer/internal/storage"
	"github.com/killallgit/dataset-importer/pkg/config"
)

// application wires the services shared by serve and ingest
type application struct {
	cfg        *config.Config
	db         *database.DB
	store      storage.ObjectStore
	metrics    *metrics.Metrics
	jobs       jobs.Service
	ingestion  ingestion.Service
	datasets   datasets.Service
	uploads    uploads.Service
	workerPool *workers.WorkerPool
	processor  *workers.IngestionProcessor
	cleanup    *cleanup.Service
}

// newApplication opens the database, migrates it and builds every service
func newApplication(cfg *config.Config) (*application, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	store, err := storage.New(cfg.Storage, cfg.Server.PublicURL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create object store: %w", err)
	}

	issuer, err := storage.NewIssuer(cfg.STS, store)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create credential issuer: %w", err)
	}

	m, err := metrics.New()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	jobService := jobs.NewService(jobs.NewRepository(db.DB))
	ingestionService := ingestion.NewService(
		ingestion.NewRepository(db.DB),
		jobService,
		store,
		ingestion.OptionsFromConfig(cfg),
		ingestion.WithMetrics(m),
	)
	datasetService := datasets.NewService(
		datasets.NewRepository(db.DB),
		store,
		datasets.OptionsFromConfig(cfg),
		datasets.WithMetrics(m),
	)

	pool := workers.NewWorkerPool(
		jobService,
		cfg.Processing.Workers,
		cfg.Processing.PollInterval,
		workers.WithJobTimeout(cfg.Processing.JobTimeout),
		workers.WithMetrics(m),
	)
	processor := workers.NewIngestionProcessor(jobService, ingestionService)
	pool.RegisterProcessor(processor)

	log.Printf("[INFO] Using %s object store, %s database", cfg.Storage.Backend, cfg.Database.Driver)

	return &application{
		cfg:        cfg,
		db:         db,
		store:      store,
		metrics:    m,
		jobs:       jobService,
		ingestion:  ingestionService,
		datasets:   datasetService,
		uploads:    uploads.NewService(issuer, ingestionService, uploads.OptionsFromConfig(cfg)),
		workerPool: pool,
		processor:  processor,
		cleanup:    cleanup.NewService(cfg.Storage.TempDir, cfg.Storage.MaxTempAge, cfg.Storage.CleanupInterval,
			cleanup.WithJobPruning(jobService, cfg.Processing.JobRetention)),
	}, nil
}

// dependencies returns the handler dependencies
func (a *application) dependencies() *types.Dependencies {
	return &types.Dependencies{
		Version:          Version,
		DB:               a.db,
		Config:           a.cfg,
		Store:            a.store,
		DatasetService:   a.datasets,
		IngestionService: a.ingestion,
		UploadService:    a.uploads,
		JobService:       a.jobs,
		WorkerPool:       a.workerPool,
		Metrics:          a.metrics,
	}
}

// Close releases the database
func (a *application) Close() error {
	return a.db.Close()
}
