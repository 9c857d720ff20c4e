package datasets

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/dataset-importer/api/types"
	datasetService "github.com/killallgit/dataset-importer/internal/services/datasets"
)

// List returns dataset summaries
// @Summary      List datasets
// @Description  List imported datasets, newest first. Each entry carries its lifecycle status.
// @Tags         datasets
// @Produce      json
// @Param        status query string false "Filter by status" Enums(pending, processing, ready, failed)
// @Param        limit  query int    false "Maximum number of datasets"
// @Param        offset query int    false "Number of datasets to skip"
// @Success      200 {array}  types.DatasetSummary
// @Failure      400 {object} types.ErrorResponse
// @Failure      500 {object} types.ErrorResponse
// @Router       /api/v1/datasets [get]
func List(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, ok := types.ParseIntQuery(c, "limit", 0)
		if !ok {
			return
		}
		offset, ok := types.ParseIntQuery(c, "offset", 0)
		if !ok {
			return
		}

		summaries, err := deps.DatasetService.ListDatasets(c.Request.Context(), &datasetService.ListFilters{
			Status: c.Query("status"),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			types.SendServiceError(c, "list datasets", err)
			return
		}

		types.SendSuccess(c, types.FromDatasetSummaries(summaries))
	}
}

// GetByID returns one dataset
// @Summary      Get dataset
// @Description  Get a dataset with its class table, splits, counts and failure summary
// @Tags         datasets
// @Produce      json
// @Param        id  path     string true "Dataset ID"
// @Success      200 {object} types.DatasetDetail
// @Failure      404 {object} types.ErrorResponse
// @Failure      500 {object} types.ErrorResponse
// @Router       /api/v1/datasets/{id} [get]
func GetByID(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		dataset, err := deps.DatasetService.GetDataset(c.Request.Context(), c.Param("id"))
		if err != nil {
			types.SendServiceError(c, "fetch dataset", err)
			return
		}
		types.SendSuccess(c, types.FromDataset(dataset))
	}
}

// GetStats returns aggregate dataset statistics
// @Summary      Dataset statistics
// @Tags         datasets
// @Produce      json
// @Success      200 {object} datasets.DatasetStats
// @Failure      500 {object} types.ErrorResponse
// @Router       /api/v1/datasets/stats [get]
func GetStats(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := deps.DatasetService.GetStats(c.Request.Context())
		if err != nil {
			types.SendServiceError(c, "fetch dataset statistics", err)
			return
		}
		types.SendSuccess(c, stats)
	}
}

// Delete removes a dataset
// @Summary      Delete dataset
// @Description  Delete a dataset, its image records and stored image objects. Refused while an ingestion is writing it.
// @Tags         datasets
// @Produce      json
// @Param        id  path     string true "Dataset ID"
// @Success      200 {object} types.BaseResponse
// @Failure      404 {object} types.ErrorResponse
// @Failure      409 {object} types.ErrorResponse
// @Failure      500 {object} types.ErrorResponse
// @Router       /api/v1/datasets/{id} [delete]
func Delete(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := deps.DatasetService.DeleteDataset(c.Request.Context(), id); err != nil {
			types.SendServiceError(c, "delete dataset", err)
			return
		}

		log.Printf("[INFO] Dataset %s deleted via API", id)
		types.SendSuccess(c, types.BaseResponse{
			Status:  types.StatusOK,
			Message: "Dataset deleted",
		})
	}
}
