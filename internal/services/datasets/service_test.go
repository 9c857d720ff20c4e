package datasets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/killallgit/dataset-importer/internal/database"
	"github.com/killallgit/dataset-importer/internal/models"
	"github.com/killallgit/dataset-importer/internal/storage"
	apperrors "github.com/killallgit/dataset-importer/pkg/errors"
)

// countingStore counts object reads
type countingStore struct {
	storage.ObjectStore
	gets atomic.Int32
}

func (s *countingStore) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	s.gets.Add(1)
	return s.ObjectStore.Get(ctx, key)
}

type fixture struct {
	db    *database.DB
	repo  Repository
	store *countingStore
	svc   *ServiceImpl
}

func setupFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	db, err := database.Initialize("", false)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	local, err := storage.NewLocalStore(t.TempDir(), "test-signing-key", "http://localhost:8080")
	require.NoError(t, err)
	store := &countingStore{ObjectStore: local}

	repo := NewRepository(db.DB)
	return &fixture{
		db:    db,
		repo:  repo,
		store: store,
		svc:   NewService(repo, store, opts).(*ServiceImpl),
	}
}

func (f *fixture) createDataset(t *testing.T, id string, status models.DatasetStatus, createdAt time.Time) *models.Dataset {
	t.Helper()
	ds := &models.Dataset{
		ID:         id,
		Name:       id + ".zip",
		Status:     status,
		ClassNames: datatypes.JSONSlice[string]{"person", "car"},
		Splits:     datatypes.JSONSlice[models.SplitInfo]{{Name: "train", Prefix: "train/images"}},
		CreatedAt:  createdAt,
	}
	require.NoError(t, f.db.DB.Create(ds).Error)
	return ds
}

func (f *fixture) createImages(t *testing.T, datasetID string, n int, withDims bool) []models.ImageRecord {
	t.Helper()
	records := make([]models.ImageRecord, 0, n)
	for i := 0; i < n; i++ {
		p := fmt.Sprintf("train/images/img%03d.png", i)
		rec := models.ImageRecord{
			DatasetID: datasetID,
			Path:      p,
			Filename:  fmt.Sprintf("img%03d.png", i),
			Split:     "train",
			ObjectKey: models.ImageObjectKey(datasetID, p),
			Annotations: datatypes.NewJSONSlice([]models.Annotation{
				{ClassID: i % 2, BBox: [4]float64{0.5, 0.5, 0.2, 0.3}},
			}),
		}
		if withDims {
			w, h := 640, 480
			rec.Width, rec.Height = &w, &h
		}
		records = append(records, rec)
	}
	require.NoError(t, f.db.DB.Create(&records).Error)
	return records
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))))
	return buf.Bytes()
}

func (f *fixture) putObject(t *testing.T, key string, data []byte) {
	t.Helper()
	require.NoError(t, f.store.Put(context.Background(), key, bytes.NewReader(data), int64(len(data)), "image/png"))
}

func TestListSignedImages_DisplayCap(t *testing.T) {
	f := setupFixture(t, Options{DisplayLimit: 10})
	ctx := context.Background()
	f.createDataset(t, "ds-37", models.DatasetStatusReady, time.Now())
	f.createImages(t, "ds-37", 37, true)

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{name: "default cap", limit: 0, want: 10},
		{name: "negative uses cap", limit: -5, want: 10},
		{name: "smaller than cap", limit: 3, want: 3},
		{name: "clamped to cap", limit: 50, want: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			images, err := f.svc.ListSignedImages(ctx, "ds-37", tt.limit)
			require.NoError(t, err)
			assert.Len(t, images, tt.want)
		})
	}

	images, err := f.svc.ListSignedImages(ctx, "ds-37", 0)
	require.NoError(t, err)
	first := images[0]
	assert.Equal(t, "img000.png", first.Filename)
	assert.Equal(t, "train/images/img000.png", first.Path)
	assert.Equal(t, "train", first.Split)
	assert.Contains(t, first.SignedURL, "/api/v1/objects/datasets/ds-37/images/train/images/img000.png")
	assert.Contains(t, first.SignedURL, "signature=")
	require.Len(t, first.Annotations, 1)
	assert.Equal(t, "person", first.Annotations[0].ClassName)
	assert.Equal(t, "car", images[1].Annotations[0].ClassName)
	assert.Equal(t, 640, *first.Width)
	assert.Equal(t, int32(0), f.store.gets.Load(), "known dimensions are not re-read")
}

func TestListSignedImages_Errors(t *testing.T) {
	f := setupFixture(t, Options{})
	ctx := context.Background()

	for _, status := range []models.DatasetStatus{
		models.DatasetStatusPending,
		models.DatasetStatusProcessing,
		models.DatasetStatusFailed,
	} {
		t.Run(string(status), func(t *testing.T) {
			id := "ds-" + string(status)
			f.createDataset(t, id, status, time.Now())

			_, err := f.svc.ListSignedImages(ctx, id, 0)
			var notReady *DatasetNotReadyError
			require.True(t, errors.As(err, &notReady))
			assert.Equal(t, status, notReady.Status)
			assert.Contains(t, err.Error(), string(status))

			_, err = f.svc.ListImages(ctx, id, 0, 0)
			assert.True(t, errors.As(err, &notReady))
		})
	}

	t.Run("not found", func(t *testing.T) {
		_, err := f.svc.ListSignedImages(ctx, "missing", 0)
		assert.ErrorIs(t, err, ErrDatasetNotFound)
	})
}

func TestListSignedImages_ClassNameFallback(t *testing.T) {
	f := setupFixture(t, Options{})
	ctx := context.Background()
	f.createDataset(t, "ds-fallback", models.DatasetStatusReady, time.Now())

	rec := models.ImageRecord{
		DatasetID: "ds-fallback",
		Path:      "train/images/a.png",
		Filename:  "a.png",
		ObjectKey: "datasets/ds-fallback/images/train/images/a.png",
		Annotations: datatypes.NewJSONSlice([]models.Annotation{
			{ClassID: 7, BBox: [4]float64{0.1, 0.1, 0.1, 0.1}},
		}),
	}
	require.NoError(t, f.db.DB.Create(&rec).Error)

	images, err := f.svc.ListSignedImages(ctx, "ds-fallback", 0)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, "Class 7", images[0].Annotations[0].ClassName)
}

func TestListSignedImages_LazyDimensions(t *testing.T) {
	f := setupFixture(t, Options{DimensionCacheTTL: time.Minute})
	ctx := context.Background()
	f.createDataset(t, "ds-lazy", models.DatasetStatusReady, time.Now())
	records := f.createImages(t, "ds-lazy", 2, false)

	f.putObject(t, records[0].ObjectKey, pngBytes(t, 7, 5))
	f.putObject(t, records[1].ObjectKey, []byte("not an image"))

	images, err := f.svc.ListSignedImages(ctx, "ds-lazy", 0)
	require.NoError(t, err)
	require.Len(t, images, 2)

	require.NotNil(t, images[0].Width)
	assert.Equal(t, 7, *images[0].Width)
	assert.Equal(t, 5, *images[0].Height)
	assert.Nil(t, images[1].Width)
	assert.Equal(t, int32(2), f.store.gets.Load())

	var saved models.ImageRecord
	require.NoError(t, f.db.DB.First(&saved, records[0].ID).Error)
	require.True(t, saved.HasDimensions())
	assert.Equal(t, 7, *saved.Width)

	// decoded dimensions come from the record, the failure from the cache
	_, err = f.svc.ListSignedImages(ctx, "ds-lazy", 0)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.store.gets.Load())
}

func TestListImages_Pagination(t *testing.T) {
	f := setupFixture(t, Options{PageLimit: 20})
	ctx := context.Background()
	f.createDataset(t, "ds-page", models.DatasetStatusReady, time.Now())
	f.createImages(t, "ds-page", 37, true)

	page, err := f.svc.ListImages(ctx, "ds-page", 50, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(37), page.Total)
	assert.Equal(t, 20, page.Limit)
	assert.Len(t, page.Images, 20)

	page, err = f.svc.ListImages(ctx, "ds-page", 10, 30)
	require.NoError(t, err)
	assert.Len(t, page.Images, 7)
	assert.Equal(t, "train/images/img030.png", page.Images[0].Path)

	page, err = f.svc.ListImages(ctx, "ds-page", 10, -1)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Offset)
}

func TestImageRecordRoundTrip(t *testing.T) {
	f := setupFixture(t, Options{})
	ctx := context.Background()
	f.createDataset(t, "ds-round", models.DatasetStatusReady, time.Now())

	want := []models.Annotation{
		{ClassID: 0, BBox: [4]float64{0.5, 0.5, 0.2, 0.3}},
		{ClassID: 1, BBox: [4]float64{1, 0, 0.125, 0.75}},
	}
	require.NoError(t, f.db.DB.Create(&models.ImageRecord{
		DatasetID:   "ds-round",
		Path:        "valid/images/x.jpg",
		Filename:    "x.jpg",
		Split:       "val",
		Annotations: datatypes.NewJSONSlice(want),
	}).Error)

	ds, err := f.svc.GetDataset(ctx, "ds-round")
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"person", "car"}, []string(ds.ClassNames)); diff != "" {
		t.Errorf("class names mismatch (-want +got):\n%s", diff)
	}

	page, err := f.svc.ListImages(ctx, "ds-round", 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Images, 1)
	assert.Equal(t, "val", page.Images[0].Split)
	if diff := cmp.Diff(want, []models.Annotation(page.Images[0].Annotations)); diff != "" {
		t.Errorf("annotations mismatch (-want +got):\n%s", diff)
	}
}

func TestListDatasets(t *testing.T) {
	f := setupFixture(t, Options{})
	ctx := context.Background()

	now := time.Now()
	f.createDataset(t, "old", models.DatasetStatusReady, now.Add(-2*time.Hour))
	f.createDataset(t, "new", models.DatasetStatusProcessing, now)
	f.createDataset(t, "mid", models.DatasetStatusFailed, now.Add(-time.Hour))

	summaries, err := f.svc.ListDatasets(ctx, nil)
	require.NoError(t, err)
	ids := make([]string, 0, len(summaries))
	for _, s := range summaries {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"new", "mid", "old"}, ids)
	assert.Equal(t, models.DatasetStatusProcessing, summaries[0].Status)

	summaries, err = f.svc.ListDatasets(ctx, &ListFilters{Status: "ready"})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "old", summaries[0].ID)

	summaries, err = f.svc.ListDatasets(ctx, &ListFilters{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "mid", summaries[0].ID)

	_, err = f.svc.ListDatasets(ctx, &ListFilters{Status: "archived"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation))
}

func TestDeleteDataset(t *testing.T) {
	f := setupFixture(t, Options{})
	ctx := context.Background()

	f.createDataset(t, "ds-del", models.DatasetStatusReady, time.Now())
	records := f.createImages(t, "ds-del", 2, true)
	for _, r := range records {
		f.putObject(t, r.ObjectKey, []byte("x"))
	}

	require.NoError(t, f.svc.DeleteDataset(ctx, "ds-del"))

	_, err := f.svc.GetDataset(ctx, "ds-del")
	assert.ErrorIs(t, err, ErrDatasetNotFound)
	for _, r := range records {
		_, err := f.store.Stat(ctx, r.ObjectKey)
		assert.True(t, storage.IsNotFound(err), "object %s should be removed", r.ObjectKey)
	}

	var remaining int64
	require.NoError(t, f.db.DB.Model(&models.ImageRecord{}).Where("dataset_id = ?", "ds-del").Count(&remaining).Error)
	assert.Zero(t, remaining)

	t.Run("busy", func(t *testing.T) {
		ds := f.createDataset(t, "ds-busy", models.DatasetStatusProcessing, time.Now())
		lock := "ing-1"
		require.NoError(t, f.db.DB.Model(ds).Update("active_ingestion_id", lock).Error)

		err := f.svc.DeleteDataset(ctx, "ds-busy")
		var busy *DatasetBusyError
		require.True(t, errors.As(err, &busy))
		assert.Equal(t, "ing-1", busy.IngestionID)
		assert.True(t, strings.HasSuffix(err.Error(), "ing-1"))
	})

	t.Run("missing", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.DeleteDataset(ctx, "nope"), ErrDatasetNotFound)
	})
}

func TestGetStats(t *testing.T) {
	f := setupFixture(t, Options{})
	ctx := context.Background()

	ready := f.createDataset(t, "a", models.DatasetStatusReady, time.Now())
	require.NoError(t, f.db.DB.Model(ready).Updates(map[string]interface{}{"image_count": 5, "images_rejected": 2}).Error)
	f.createDataset(t, "b", models.DatasetStatusFailed, time.Now())
	f.createDataset(t, "c", models.DatasetStatusReady, time.Now().AddDate(0, 0, -30))

	stats, err := f.svc.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalDatasets)
	assert.Equal(t, 5, stats.TotalImages)
	assert.Equal(t, 2, stats.ImagesRejected)
	assert.Equal(t, 2, stats.ByStatus["ready"])
	assert.Equal(t, 1, stats.ByStatus["failed"])
	assert.Equal(t, 2, stats.CreatedThisWeek)
}

func TestGetStats_CountFailures(t *testing.T) {
	tests := []struct {
		name   string
		marker string
	}{
		{name: "created today", marker: "created today"},
		{name: "created this week", marker: "created this week"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupFixture(t, Options{})
			ctx := context.Background()
			f.createDataset(t, "a", models.DatasetStatusReady, time.Now())

			// fail the i-th windowed count; earlier ones succeed
			seen := 0
			require.NoError(t, f.db.DB.Callback().Query().After("gorm:query").Register("fail_window_count", func(tx *gorm.DB) {
				if !strings.Contains(tx.Statement.SQL.String(), "created_at >=") {
					return
				}
				if seen == i {
					tx.AddError(errors.New("database is locked"))
				}
				seen++
			}))

			_, err := f.svc.GetStats(ctx)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.marker)
			assert.Contains(t, err.Error(), "database is locked")
		})
	}
}
