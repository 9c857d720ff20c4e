package api

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/killallgit/dataset-importer/api/datasets"
	"github.com/killallgit/dataset-importer/api/health"
	"github.com/killallgit/dataset-importer/api/ingestions"
	"github.com/killallgit/dataset-importer/api/objects"
	"github.com/killallgit/dataset-importer/api/types"
	"github.com/killallgit/dataset-importer/api/uploads"
	"github.com/killallgit/dataset-importer/api/version"
	_ "github.com/killallgit/dataset-importer/docs/swagger"
	"github.com/killallgit/dataset-importer/internal/storage"
	"github.com/killallgit/dataset-importer/pkg/config"
)

// RegisterRoutes registers all API routes
func RegisterRoutes(engine *gin.Engine, deps *types.Dependencies, rateLimiters *sync.Map, cleanupStop chan struct{}, cleanupInitialized *sync.Once) error {
	if deps == nil {
		return fmt.Errorf("dependencies are nil")
	}
	if deps.Config == nil {
		cfg, err := config.GetConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		deps.Config = cfg
	}
	if deps.DatasetService == nil || deps.IngestionService == nil || deps.UploadService == nil {
		return fmt.Errorf("dataset, ingestion and upload services are required")
	}
	cfg := deps.Config

	// Public routes (no rate limiting)
	health.RegisterRoutes(engine, deps)
	version.RegisterRoutes(engine, deps)

	engine.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/docs/index.html")
	})
	docsGroup := engine.Group("/docs")
	docsGroup.GET("/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	if cfg.Monitoring.Enabled && deps.Metrics != nil {
		path := cfg.Monitoring.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		engine.GET(path, gin.WrapH(deps.Metrics.Handler()))
	}

	engine.NoRoute(NotFoundHandler())

	v1 := engine.Group("/api/v1")
	limit := PerClientRateLimit(rateLimiters, cleanupStop, cleanupInitialized, cfg.Security.RateLimit, cfg.Security.RateBurst)

	datasetGroup := v1.Group("/datasets")
	datasetGroup.Use(RequestSizeLimit(), limit)
	datasets.RegisterRoutes(datasetGroup, deps)

	ingestionGroup := v1.Group("/ingestions")
	ingestionGroup.Use(limit)
	ingestions.RegisterRoutes(ingestionGroup, deps)

	uploadGroup := v1.Group("/uploads")
	uploadGroup.Use(RequestSizeLimit(), limit)
	uploads.RegisterRoutes(uploadGroup, deps)

	// Object store notifications arrive in bursts, so they skip the per-client limit
	eventGroup := v1.Group("/events")
	eventGroup.Use(RequestSizeLimit())
	uploads.RegisterEventRoutes(eventGroup, deps)

	// Archives are uploaded through signed links when the local backend is in use
	if local, ok := deps.Store.(*storage.LocalStore); ok {
		objectGroup := v1.Group("/objects")
		if cfg.STS.MaxUploadSize > 0 {
			objectGroup.Use(RequestSizeLimitWithSize(cfg.STS.MaxUploadSize))
		}
		objects.RegisterRoutes(objectGroup, local)
	}

	return nil
}

// NotFoundHandler handles 404 errors
func NotFoundHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"status":  "error",
			"message": "The requested endpoint was not found",
			"path":    c.Request.URL.Path,
		})
	}
}
