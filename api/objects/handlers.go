package objects

import (
	"errors"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/dataset-importer/api/types"
	"github.com/killallgit/dataset-importer/internal/storage"
)

// RegisterRoutes registers signed object routes when the local backend is in use
func RegisterRoutes(router *gin.RouterGroup, store *storage.LocalStore) {
	// GET /api/v1/objects/*key - Signed download
	router.GET("/*key", Get(store))

	// PUT /api/v1/objects/*key - Signed upload
	router.PUT("/*key", Put(store))
}

// verify checks the signed link and writes the error response on failure
func verify(c *gin.Context, store *storage.LocalStore, method string) (string, bool) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	err := store.Verify(method, key, c.Query("expires"), c.Query("signature"))
	switch {
	case err == nil:
		return key, true
	case errors.Is(err, storage.ErrSignatureExpired):
		c.JSON(http.StatusForbidden, types.ErrorResponse{Status: types.StatusError, Message: "Signed link expired", Error: "signature_expired"})
	case errors.Is(err, storage.ErrSignatureInvalid):
		c.JSON(http.StatusForbidden, types.ErrorResponse{Status: types.StatusError, Message: "Invalid signature", Error: "signature_invalid"})
	default:
		types.SendBadRequest(c, "invalid_key", err.Error())
	}
	return "", false
}

// Get serves an object for a signed GET link
// @Summary      Download object
// @Description  Serve an object of the local store. Only reachable through links signed by the API.
// @Tags         objects
// @Produce      octet-stream
// @Param        key       path  string true "Object key"
// @Param        expires   query int    true "Expiry as unix seconds"
// @Param        signature query string true "Link signature"
// @Success      200
// @Failure      403 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Router       /api/v1/objects/{key} [get]
func Get(store *storage.LocalStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := verify(c, store, http.MethodGet)
		if !ok {
			return
		}

		p, err := store.Path(key)
		if err != nil {
			types.SendBadRequest(c, "invalid_key", err.Error())
			return
		}
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			types.SendNotFound(c, "Object not found")
			return
		}

		c.Header("Cache-Control", "private, max-age=300")
		c.File(p)
	}
}

// Put stores the request body for a signed PUT link
// @Summary      Upload object
// @Description  Store the request body under the signed key. Used by clients of the local backend instead of STS credentials.
// @Tags         objects
// @Accept       octet-stream
// @Produce      json
// @Param        key       path  string true "Object key"
// @Param        expires   query int    true "Expiry as unix seconds"
// @Param        signature query string true "Link signature"
// @Success      200 {object} types.BaseResponse
// @Failure      403 {object} types.ErrorResponse
// @Failure      500 {object} types.ErrorResponse
// @Router       /api/v1/objects/{key} [put]
func Put(store *storage.LocalStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := verify(c, store, http.MethodPut)
		if !ok {
			return
		}

		contentType := c.ContentType()
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		if err := store.Put(c.Request.Context(), key, c.Request.Body, c.Request.ContentLength, contentType); err != nil {
			log.Printf("[ERROR] Failed to store object %s: %v", key, err)
			types.SendInternalError(c, "Failed to store object")
			return
		}

		log.Printf("[INFO] Stored object %s (%d bytes)", key, c.Request.ContentLength)
		types.SendSuccess(c, types.BaseResponse{Status: types.StatusOK, Message: "Object stored"})
	}
}
