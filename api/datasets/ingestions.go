package datasets

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/dataset-importer/api/types"
)

const defaultHistoryLimit = 20

// GetIngestions returns the ingestion history of a dataset
// @Summary      Dataset ingestion history
// @Tags         datasets
// @Produce      json
// @Param        id    path  string true  "Dataset ID"
// @Param        limit query int    false "Maximum number of ingestions" default(20)
// @Success      200 {object} types.IngestionListResponse
// @Failure      400 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Router       /api/v1/datasets/{id}/ingestions [get]
func GetIngestions(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, ok := types.ParseIntQuery(c, "limit", defaultHistoryLimit)
		if !ok {
			return
		}
		if limit <= 0 || limit > 100 {
			limit = defaultHistoryLimit
		}

		ctx := c.Request.Context()
		id := c.Param("id")
		if _, err := deps.DatasetService.GetDataset(ctx, id); err != nil {
			types.SendServiceError(c, "fetch dataset", err)
			return
		}

		ings, err := deps.IngestionService.ListIngestions(ctx, id, limit)
		if err != nil {
			types.SendServiceError(c, "list ingestions", err)
			return
		}
		types.SendSuccess(c, types.FromIngestions(ings))
	}
}

// PostReingest starts a new ingestion from the dataset's last source archive
// @Summary      Re-ingest dataset
// @Description  Queue a fresh ingestion of the dataset's source archive. Returns the running ingestion if one exists.
// @Tags         datasets
// @Produce      json
// @Param        id  path     string true "Dataset ID"
// @Success      202 {object} types.ProcessingStartedResponse
// @Failure      404 {object} types.ErrorResponse
// @Failure      409 {object} types.ErrorResponse "Dataset has no source archive"
// @Router       /api/v1/datasets/{id}/reingest [post]
func PostReingest(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		ing, err := deps.IngestionService.Reingest(c.Request.Context(), c.Param("id"))
		if err != nil {
			types.SendServiceError(c, "re-ingest dataset", err)
			return
		}

		log.Printf("[INFO] Re-ingestion %s queued for dataset %s", ing.ID, ing.DatasetID)
		types.SendAccepted(c, types.NewProcessingStarted(ing))
	}
}
