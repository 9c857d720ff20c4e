package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/killallgit/dataset-importer/api/types"
	"github.com/killallgit/dataset-importer/internal/database"
	"github.com/killallgit/dataset-importer/internal/services/datasets"
	"github.com/killallgit/dataset-importer/internal/services/ingestion"
	"github.com/killallgit/dataset-importer/internal/services/jobs"
	"github.com/killallgit/dataset-importer/internal/services/uploads"
	"github.com/killallgit/dataset-importer/internal/storage"
	"github.com/killallgit/dataset-importer/pkg/config"
	"github.com/killallgit/dataset-importer/pkg/retry"
)

func setupServer(t *testing.T) (*Server, *types.Dependencies) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Initialize("", false)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	store, err := storage.NewLocalStore(t.TempDir(), "test-signing-key", "http://localhost:8080")
	require.NoError(t, err)

	cfg := &config.Config{
		Server:     config.ServerConfig{Host: "127.0.0.1", Port: 8080},
		Storage:    config.StorageConfig{Backend: "local"},
		STS:        config.STSConfig{UploadPrefix: "uploads", MaxUploadSize: 1 << 20},
		Query:      config.QueryConfig{DisplayLimit: 2, PageLimit: 100, SignedURLTTL: time.Hour},
		Monitoring: config.MonitoringConfig{Enabled: false},
		Security:   config.SecurityConfig{CORSOrigins: []string{"*"}},
	}

	jobService := jobs.NewService(jobs.NewRepository(db.DB))
	ingestionService := ingestion.NewService(
		ingestion.NewRepository(db.DB),
		jobService,
		store,
		ingestion.Options{
			TempDir:       t.TempDir(),
			MinFreeRatio:  1.2,
			UploadImages:  true,
			UploadWorkers: 2,
			UploadPrefix:  "uploads",
			StoreRetry:    retry.Policy{MaxAttempts: 1, Initial: time.Millisecond},
		},
		ingestion.WithFreeSpace(func(string) (uint64, error) { return 1 << 40, nil }),
	)

	deps := &types.Dependencies{
		Version:          "test",
		DB:               db,
		Config:           cfg,
		Store:            store,
		DatasetService:   datasets.NewService(datasets.NewRepository(db.DB), store, datasets.OptionsFromConfig(cfg)),
		IngestionService: ingestionService,
		UploadService:    uploads.NewService(storage.NewPresignIssuer(store, time.Hour), ingestionService, uploads.OptionsFromConfig(cfg)),
		JobService:       jobService,
	}

	server := NewServer(cfg.Server)
	server.SetDependencies(deps)
	require.NoError(t, server.Initialize())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})
	return server, deps
}

func datasetArchive(t *testing.T) []byte {
	t.Helper()
	img := func(w, h int) string {
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
		return buf.String()
	}
	files := map[string]string{
		"data.yaml":          "names: [person, car]\ntrain: train/images\n",
		"train/images/a.png": img(4, 3),
		"train/labels/a.txt": "0 0.5 0.5 0.2 0.3\n",
		"train/images/b.png": img(4, 3),
		"train/labels/b.txt": "1 0.5 0.5 0.5 0.5\n",
		"train/images/c.png": img(2, 2),
	}
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, p := range paths {
		w, err := zw.Create(p)
		require.NoError(t, err)
		_, err = w.Write([]byte(files[p]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func doJSON(t *testing.T, engine *gin.Engine, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

// requestURI strips scheme and host from a signed link
func requestURI(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.RequestURI()
}

func TestUploadIngestAndBrowse(t *testing.T) {
	server, deps := setupServer(t)
	engine := server.Engine()

	w := doJSON(t, engine, http.MethodPost, "/api/v1/uploads/credentials", map[string]interface{}{"filename": "coco.zip"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var grant storage.UploadGrant
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &grant))
	require.NotEmpty(t, grant.UploadURL)
	assert.Regexp(t, `^uploads/[0-9a-f-]{36}/coco\.zip$`, grant.ObjectKey)

	req := httptest.NewRequest(http.MethodPut, requestURI(t, grant.UploadURL), bytes.NewReader(datasetArchive(t)))
	req.Header.Set("Content-Type", "application/zip")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, engine, http.MethodPost, "/api/v1/uploads/complete", map[string]interface{}{"objectKey": grant.ObjectKey})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var started types.ProcessingStartedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	assert.Equal(t, types.StatusProcessingStarted, started.Status)
	require.NotEmpty(t, started.IngestionID)

	// Listing before the run finishes reports the dataset as not ready
	w = doJSON(t, engine, http.MethodGet, "/api/v1/datasets/"+started.DatasetID+"/images-signed", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	_, err := deps.IngestionService.Run(context.Background(), started.IngestionID, nil)
	require.NoError(t, err)

	w = doJSON(t, engine, http.MethodGet, "/api/v1/datasets/"+started.DatasetID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail types.DatasetDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, "ready", detail.Status)
	assert.Equal(t, 3, detail.ImageCount)
	assert.Equal(t, []string{"person", "car"}, detail.ClassNames)
	assert.False(t, detail.Ingesting)

	w = doJSON(t, engine, http.MethodGet, "/api/v1/datasets/"+started.DatasetID+"/images-signed?limit=50", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	var signed []types.SignedImage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &signed))
	require.Len(t, signed, 2, "listing is capped at the display limit")
	assert.Equal(t, "train/images/a.png", signed[0].Path)
	require.Len(t, signed[0].Annotations, 1)
	assert.Equal(t, "person", signed[0].Annotations[0].ClassName)
	assert.NotContains(t, w.Body.String(), `"_id"`)

	w = doJSON(t, engine, http.MethodGet, requestURI(t, signed[0].SignedURL), nil)
	require.Equal(t, http.StatusOK, w.Code)
	cfg, err := png.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Width)

	w = doJSON(t, engine, http.MethodGet, "/api/v1/datasets/"+started.DatasetID+"/images?limit=1&offset=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page types.ImagePageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.EqualValues(t, 3, page.Total)
	require.Len(t, page.Images, 1)
	assert.True(t, page.Images[0].NoAnnotations)

	w = doJSON(t, engine, http.MethodGet, "/api/v1/ingestions/"+started.IngestionID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ing types.IngestionDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ing))
	assert.Equal(t, "ready", ing.Stage)
	assert.Equal(t, 3, ing.ImagesAccepted)

	w = doJSON(t, engine, http.MethodGet, "/api/v1/datasets/"+started.DatasetID+"/ingestions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history types.IngestionListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Equal(t, 1, history.Count)
}

func TestSignedObjectLinks(t *testing.T) {
	server, deps := setupServer(t)
	engine := server.Engine()
	store := deps.Store.(*storage.LocalStore)

	require.NoError(t, store.Put(context.Background(), "datasets/x/images/a.png", bytes.NewReader([]byte("img")), 3, "image/png"))
	link, err := store.PresignGet(context.Background(), "datasets/x/images/a.png", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		target string
		status int
	}{
		{name: "valid link", target: requestURI(t, link), status: http.StatusOK},
		{name: "missing signature", target: "/api/v1/objects/datasets/x/images/a.png", status: http.StatusForbidden},
		{name: "tampered key", target: "/api/v1/objects/datasets/x/images/b.png?" + mustQuery(t, link), status: http.StatusForbidden},
		{name: "expired", target: "/api/v1/objects/datasets/x/images/a.png?expires=1&signature=abc", status: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, engine, http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func mustQuery(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.RawQuery
}

func TestRouteErrors(t *testing.T) {
	server, _ := setupServer(t)
	engine := server.Engine()

	tests := []struct {
		name   string
		method string
		target string
		body   interface{}
		status int
	}{
		{name: "unknown route", method: http.MethodGet, target: "/api/v1/nope", status: http.StatusNotFound},
		{name: "missing dataset", method: http.MethodGet, target: "/api/v1/datasets/missing", status: http.StatusNotFound},
		{name: "missing dataset signed listing", method: http.MethodGet, target: "/api/v1/datasets/missing/images-signed", status: http.StatusNotFound},
		{name: "unknown status filter", method: http.MethodGet, target: "/api/v1/datasets?status=archived", status: http.StatusBadRequest},
		{name: "missing ingestion", method: http.MethodGet, target: "/api/v1/ingestions/missing", status: http.StatusNotFound},
		{name: "credentials without filename", method: http.MethodPost, target: "/api/v1/uploads/credentials", body: map[string]interface{}{}, status: http.StatusBadRequest},
		{name: "credentials for unusable filename", method: http.MethodPost, target: "/api/v1/uploads/credentials", body: map[string]interface{}{"filename": ".."}, status: http.StatusBadRequest},
		{name: "complete outside prefix", method: http.MethodPost, target: "/api/v1/uploads/complete", body: map[string]interface{}{"objectKey": "elsewhere/x/a.zip"}, status: http.StatusBadRequest},
		{name: "unsupported event", method: http.MethodPost, target: "/api/v1/events/object-created", body: map[string]interface{}{"foo": "bar"}, status: http.StatusBadRequest},
		{name: "health", method: http.MethodGet, target: "/health", status: http.StatusOK},
		{name: "version", method: http.MethodGet, target: "/", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, engine, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, w.Code, fmt.Sprintf("%s %s: %s", tt.method, tt.target, w.Body.String()))
		})
	}
}
