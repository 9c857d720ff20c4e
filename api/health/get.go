package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/dataset-importer/api/types"
)

// Get handles health check requests
// @Summary      Health check
// @Description  Reports database connectivity, the object store backend and the worker pool
// @Tags         health
// @Produce      json
// @Success      200 {object} types.HealthResponse
// @Failure      503 {object} types.HealthResponse
// @Router       /health [get]
func Get(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := types.HealthResponse{
			Status:    types.StatusOK,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Services:  map[string]interface{}{},
		}
		status := http.StatusOK

		db := getDatabaseStatus(deps)
		response.Services["database"] = db
		if db["status"] == "unhealthy" {
			response.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}

		if deps != nil && deps.Config != nil {
			response.Services["storage"] = gin.H{"backend": deps.Config.Storage.Backend}
		}

		if deps != nil && deps.WorkerPool != nil {
			response.Services["workers"] = gin.H{
				"running": deps.WorkerPool.Running(),
				"size":    deps.WorkerPool.Size(),
			}
		}

		c.JSON(status, response)
	}
}

// getDatabaseStatus returns the database connection status
func getDatabaseStatus(deps *types.Dependencies) gin.H {
	if deps == nil || deps.DB == nil || deps.DB.DB == nil {
		return gin.H{"status": "not configured"}
	}

	if err := deps.DB.HealthCheck(); err != nil {
		return gin.H{"status": "unhealthy", "error": err.Error()}
	}

	return gin.H{"status": "healthy"}
}
