package datasets

import (
	"github.com/gin-gonic/gin"

	"github.com/killallgit/dataset-importer/api/types"
)

// GetImages returns one page of image records
// @Summary      List dataset images
// @Description  Paginated image metadata of a ready dataset, ordered by path. The page size is capped server-side.
// @Tags         datasets
// @Produce      json
// @Param        id     path  string true  "Dataset ID"
// @Param        limit  query int    false "Page size"
// @Param        offset query int    false "Number of images to skip"
// @Success      200 {object} types.ImagePageResponse
// @Failure      400 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Failure      409 {object} types.ErrorResponse "Dataset is not ready"
// @Router       /api/v1/datasets/{id}/images [get]
func GetImages(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, ok := types.ParseIntQuery(c, "limit", 0)
		if !ok {
			return
		}
		offset, ok := types.ParseIntQuery(c, "offset", 0)
		if !ok {
			return
		}

		page, err := deps.DatasetService.ListImages(c.Request.Context(), c.Param("id"), limit, offset)
		if err != nil {
			types.SendServiceError(c, "list images", err)
			return
		}
		types.SendSuccess(c, types.FromImagePage(page))
	}
}

// GetSignedImages returns the capped annotated image listing
// @Summary      List images with signed URLs
// @Description  At most the configured display limit of images with annotations and time-limited download URLs. Larger limits are clamped.
// @Tags         datasets
// @Produce      json
// @Param        id    path  string true  "Dataset ID"
// @Param        limit query int    false "Requested number of images"
// @Success      200 {array}  types.SignedImage
// @Failure      400 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Failure      409 {object} types.ErrorResponse "Dataset is not ready"
// @Router       /api/v1/datasets/{id}/images-signed [get]
func GetSignedImages(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, ok := types.ParseIntQuery(c, "limit", 0)
		if !ok {
			return
		}

		images, err := deps.DatasetService.ListSignedImages(c.Request.Context(), c.Param("id"), limit)
		if err != nil {
			types.SendServiceError(c, "list signed images", err)
			return
		}

		c.Header("Cache-Control", "no-store")
		types.SendSuccess(c, types.FromSignedImages(images))
	}
}
