package ingestions

import (
	"github.com/gin-gonic/gin"

	"github.com/killallgit/dataset-importer/api/types"
)

// RegisterRoutes registers ingestion routes
func RegisterRoutes(router *gin.RouterGroup, deps *types.Dependencies) {
	// GET /api/v1/ingestions/:id - Stage, progress and diagnostics of one ingestion
	router.GET("/:id", GetByID(deps))
}
