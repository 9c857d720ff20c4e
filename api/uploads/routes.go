package uploads

import (
	"github.com/gin-gonic/gin"

	"github.com/killallgit/dataset-importer/api/types"
)

// RegisterRoutes registers upload handoff routes
func RegisterRoutes(router *gin.RouterGroup, deps *types.Dependencies) {
	// POST /api/v1/uploads/credentials - New upload target with credentials
	router.POST("/credentials", PostCredentials(deps))

	// POST /api/v1/uploads/credentials/refresh - Re-issue for an explicit target
	router.POST("/credentials/refresh", PostRefreshCredentials(deps))

	// POST /api/v1/uploads/complete - Trigger ingestion of an uploaded archive
	router.POST("/complete", PostComplete(deps))
}

// RegisterEventRoutes registers object store notification routes
func RegisterEventRoutes(router *gin.RouterGroup, deps *types.Dependencies) {
	// POST /api/v1/events/object-created - OSS or S3 object-created notification
	router.POST("/object-created", PostObjectCreated(deps))
}
