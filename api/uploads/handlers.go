package uploads

import (
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/dataset-importer/api/types"
	uploadService "github.com/killallgit/dataset-importer/internal/services/uploads"
)

// maxEventBody bounds object event notifications
const maxEventBody = 1 << 20

// PostCredentials issues credentials for a new upload
// @Summary      Request upload credentials
// @Description  Allocate an object key under the upload prefix and issue short-lived credentials or a signed upload URL for it
// @Tags         uploads
// @Accept       json
// @Produce      json
// @Param        request body     types.CredentialsRequest true "Archive to upload"
// @Success      200     {object} storage.UploadGrant
// @Failure      400     {object} types.ErrorResponse
// @Failure      500     {object} types.ErrorResponse
// @Router       /api/v1/uploads/credentials [post]
func PostCredentials(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.CredentialsRequest
		if !types.BindJSONOrError(c, &req) {
			return
		}

		grant, err := deps.UploadService.RequestCredentials(c.Request.Context(), uploadService.CredentialRequest{
			Filename: req.Filename,
			Size:     req.Size,
		})
		if err != nil {
			types.SendServiceError(c, "issue upload credentials", err)
			return
		}
		types.SendSuccess(c, grant)
	}
}

// PostRefreshCredentials re-issues credentials for an upload in progress
// @Summary      Refresh upload credentials
// @Description  Re-issue credentials for the upload target named in the request
// @Tags         uploads
// @Accept       json
// @Produce      json
// @Param        request body     types.RefreshCredentialsRequest true "Upload target"
// @Success      200     {object} storage.UploadGrant
// @Failure      400     {object} types.ErrorResponse
// @Failure      500     {object} types.ErrorResponse
// @Router       /api/v1/uploads/credentials/refresh [post]
func PostRefreshCredentials(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.RefreshCredentialsRequest
		if !types.BindJSONOrError(c, &req) {
			return
		}

		grant, err := deps.UploadService.RefreshCredentials(c.Request.Context(), uploadService.RefreshRequest{
			ObjectKey: req.ObjectKey,
			Filename:  req.Filename,
			Size:      req.Size,
		})
		if err != nil {
			types.SendServiceError(c, "refresh upload credentials", err)
			return
		}
		types.SendSuccess(c, grant)
	}
}

// PostComplete hands a finished upload to the ingestion pipeline
// @Summary      Complete upload
// @Description  Signal that an archive finished uploading. Processing continues asynchronously.
// @Tags         uploads
// @Accept       json
// @Produce      json
// @Param        request body     types.CompleteUploadRequest true "Uploaded archive"
// @Success      202     {object} types.ProcessingStartedResponse
// @Failure      400     {object} types.ErrorResponse
// @Failure      500     {object} types.ErrorResponse
// @Router       /api/v1/uploads/complete [post]
func PostComplete(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.CompleteUploadRequest
		if !types.BindJSONOrError(c, &req) {
			return
		}

		ing, err := deps.UploadService.Complete(c.Request.Context(), uploadService.CompleteRequest{
			ObjectKey: req.ObjectKey,
			Filename:  req.Filename,
		})
		if err != nil {
			types.SendServiceError(c, "start ingestion", err)
			return
		}

		log.Printf("[INFO] Upload %s complete, ingestion %s queued", req.ObjectKey, ing.ID)
		types.SendAccepted(c, types.NewProcessingStarted(ing))
	}
}

// PostObjectCreated consumes object store event notifications
// @Summary      Object-created event
// @Description  Accepts Aliyun OSS and S3 object-created notifications and starts an ingestion for every archive under the upload prefix
// @Tags         uploads
// @Accept       json
// @Produce      json
// @Success      202 {array}  uploads.EventResult
// @Failure      400 {object} types.ErrorResponse
// @Router       /api/v1/events/object-created [post]
func PostObjectCreated(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBody))
		if err != nil {
			types.SendBadRequest(c, "invalid_request", "Failed to read event body")
			return
		}

		results, err := deps.UploadService.HandleObjectCreated(c.Request.Context(), payload)
		if err != nil {
			types.SendServiceError(c, "handle object event", err)
			return
		}

		c.JSON(http.StatusAccepted, results)
	}
}
