package ingestions

import (
	"github.com/gin-gonic/gin"

	"github.com/killallgit/dataset-importer/api/types"
)

// GetByID returns one ingestion
// @Summary      Get ingestion
// @Description  Stage, coarse progress, failure kind and diagnostics of an ingestion attempt
// @Tags         ingestions
// @Produce      json
// @Param        id  path     string true "Ingestion ID"
// @Success      200 {object} types.IngestionDetail
// @Failure      404 {object} types.ErrorResponse
// @Router       /api/v1/ingestions/{id} [get]
func GetByID(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		ing, err := deps.IngestionService.GetIngestion(c.Request.Context(), c.Param("id"))
		if err != nil {
			types.SendServiceError(c, "fetch ingestion", err)
			return
		}
		types.SendSuccess(c, types.FromIngestion(ing))
	}
}
