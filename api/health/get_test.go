package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/killallgit/dataset-importer/api/types"
	"github.com/killallgit/dataset-importer/internal/database"
	"github.com/killallgit/dataset-importer/pkg/config"
)

func TestGet(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		setupDeps      func() *types.Dependencies
		expectedStatus int
		expectedHealth string
		expectedDB     string
	}{
		{
			name: "healthy with database",
			setupDeps: func() *types.Dependencies {
				db, err := database.Initialize("", false)
				require.NoError(t, err)
				t.Cleanup(func() { db.Close() })
				return &types.Dependencies{
					DB:     db,
					Config: &config.Config{Storage: config.StorageConfig{Backend: "local"}},
				}
			},
			expectedStatus: http.StatusOK,
			expectedHealth: "ok",
			expectedDB:     "healthy",
		},
		{
			name: "without database",
			setupDeps: func() *types.Dependencies {
				return &types.Dependencies{}
			},
			expectedStatus: http.StatusOK,
			expectedHealth: "ok",
			expectedDB:     "not configured",
		},
		{
			name: "unhealthy with closed database",
			setupDeps: func() *types.Dependencies {
				db, err := database.Initialize("", false)
				require.NoError(t, err)

				sqlDB, _ := db.DB.DB()
				sqlDB.Close()

				return &types.Dependencies{DB: db}
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedHealth: "unhealthy",
			expectedDB:     "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			Get(tt.setupDeps())(c)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response struct {
				Status   string                            `json:"status"`
				Services map[string]map[string]interface{} `json:"services"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.expectedHealth, response.Status)
			assert.Equal(t, tt.expectedDB, response.Services["database"]["status"])
		})
	}
}

func TestGet_StorageBackend(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Get(&types.Dependencies{Config: &config.Config{Storage: config.StorageConfig{Backend: "s3"}}})(c)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	services := response["services"].(map[string]interface{})
	assert.Equal(t, "s3", services["storage"].(map[string]interface{})["backend"])
	assert.NotContains(t, services, "workers")
}
