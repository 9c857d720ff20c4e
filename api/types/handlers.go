package types

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/dataset-importer/internal/services/datasets"
	"github.com/killallgit/dataset-importer/internal/services/ingestion"
	"github.com/killallgit/dataset-importer/internal/services/uploads"
	"github.com/killallgit/dataset-importer/internal/storage"
	apperrors "github.com/killallgit/dataset-importer/pkg/errors"
)

// Handler utility functions to reduce duplication across handlers

// ParseIntQuery reads an optional integer query parameter
// Returns false and sends error response if parsing fails
func ParseIntQuery(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Status:  StatusError,
			Message: "Invalid " + name,
			Error:   "invalid_parameter",
		})
		return 0, false
	}
	return value, true
}

// BindJSONOrError attempts to bind JSON request body to target struct
// Returns false and sends error response if binding fails
func BindJSONOrError(c *gin.Context, target interface{}) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Status:  StatusError,
			Message: "Invalid request body",
			Error:   "invalid_request",
			Details: err.Error(),
		})
		return false
	}
	return true
}

// SendBadRequest sends a standardized bad request response
func SendBadRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Status: StatusError, Message: message, Error: code})
}

// SendNotFound sends a standardized not found response
func SendNotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Status: StatusError, Message: message, Error: "not_found"})
}

// SendInternalError sends a standardized internal server error response
func SendInternalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, ErrorResponse{Status: StatusError, Message: message, Error: "internal_error"})
}

// SendSuccess sends a standardized success response with data
func SendSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// SendAccepted sends a response for work that continues asynchronously
func SendAccepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, data)
}

// SendServiceError maps a service error to its HTTP status. action names the
// failed operation in logs and in the message of unexpected errors.
func SendServiceError(c *gin.Context, action string, err error) {
	appErr := serviceAppError(err)
	if appErr == nil {
		log.Printf("[ERROR] Failed to %s: %v", action, err)
		SendInternalError(c, "Failed to "+action)
		return
	}

	c.JSON(appErr.GetHTTPCode(), ErrorResponse{
		Status:  StatusError,
		Message: appErr.Message,
		Error:   strings.ToLower(string(appErr.Code)),
		Details: appErr.Details,
	})
}

// serviceAppError translates the services' domain errors into AppErrors.
// It returns nil for errors the API has no mapping for.
func serviceAppError(err error) *apperrors.AppError {
	var notReady *datasets.DatasetNotReadyError
	var busy *datasets.DatasetBusyError
	var appErr *apperrors.AppError

	switch {
	case errors.Is(err, datasets.ErrDatasetNotFound), errors.Is(err, ingestion.ErrDatasetNotFound):
		return apperrors.NotFound("dataset", err)

	case errors.Is(err, ingestion.ErrIngestionNotFound):
		return apperrors.NotFound("ingestion", err)

	case errors.As(err, &notReady):
		return apperrors.DatasetNotReady(string(notReady.Status), notReady)

	case errors.As(err, &busy):
		return apperrors.Wrap(busy, apperrors.ErrCodeDatasetBusy, busy.Error())

	case errors.Is(err, ingestion.ErrNoSource):
		return apperrors.Wrap(err, apperrors.ErrCodeNoSource, err.Error())

	case errors.Is(err, uploads.ErrInvalidFilename),
		errors.Is(err, uploads.ErrInvalidSize),
		errors.Is(err, uploads.ErrOutsidePrefix),
		errors.Is(err, uploads.ErrUnsupportedEvent),
		errors.Is(err, ingestion.ErrInvalidObjectKey),
		errors.Is(err, storage.ErrInvalidKey):
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidRequest, err.Error())

	case errors.As(err, &appErr):
		return appErr
	}
	return nil
}
