package datasets

import (
	"github.com/gin-gonic/gin"

	"github.com/killallgit/dataset-importer/api/types"
)

// RegisterRoutes registers dataset routes
func RegisterRoutes(router *gin.RouterGroup, deps *types.Dependencies) {
	// GET /api/v1/datasets - List datasets, newest first
	router.GET("", List(deps))

	// GET /api/v1/datasets/stats - Aggregate statistics
	router.GET("/stats", GetStats(deps))

	// GET /api/v1/datasets/:id - Dataset detail in any status
	router.GET("/:id", GetByID(deps))

	// DELETE /api/v1/datasets/:id - Remove a dataset and its images
	router.DELETE("/:id", Delete(deps))

	// GET /api/v1/datasets/:id/images - Paginated image records
	router.GET("/:id/images", GetImages(deps))

	// GET /api/v1/datasets/:id/images-signed - Capped listing with signed URLs
	router.GET("/:id/images-signed", GetSignedImages(deps))

	// GET /api/v1/datasets/:id/ingestions - Ingestion history
	router.GET("/:id/ingestions", GetIngestions(deps))

	// POST /api/v1/datasets/:id/reingest - Ingest the last source archive again
	router.POST("/:id/reingest", PostReingest(deps))
}
