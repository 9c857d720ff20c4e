package version

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Get handles version requests
// @Summary      Service version
// @Tags         health
// @Produce      json
// @Success      200 {object} map[string]string
// @Router       / [get]
func Get(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":        "YOLO Dataset Importer",
			"version":     version,
			"description": "Ingests YOLO object-detection dataset archives and serves annotated image listings",
			"status":      "running",
		})
	}
}
