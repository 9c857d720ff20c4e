package models

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/killallgit/dataset-importer/pkg/yolo"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every :memory: connection is a separate database
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(AllModels()...))
	return db
}

func TestDataset_RoundTrip(t *testing.T) {
	db := setupTestDB(t)

	ds := &Dataset{
		Name:       "traffic",
		Status:     DatasetStatusReady,
		ClassNames: []string{"person", "car", "bus"},
		Splits: []SplitInfo{
			{Name: "train", Prefix: "train/images", ImageCount: 2},
			{Name: "val", Prefix: "valid/images", ImageCount: 1},
		},
		ImageCount: 3,
	}
	require.NoError(t, db.Create(ds).Error)
	assert.NotEmpty(t, ds.ID)

	images := []ImageRecord{
		{DatasetID: ds.ID, Path: "train/images/a.jpg", Filename: "a.jpg", Split: "train",
			Annotations: []Annotation{{ClassID: 0, BBox: [4]float64{0.5, 0.5, 0.2, 0.3}}, {ClassID: 2, BBox: [4]float64{0.1, 0.1, 0.1, 0.1}}}},
		{DatasetID: ds.ID, Path: "train/images/b.jpg", Filename: "b.jpg", Split: "train", NoAnnotations: true},
		{DatasetID: ds.ID, Path: "valid/images/c.jpg", Filename: "c.jpg", Split: "val",
			Annotations: []Annotation{{ClassID: 1, BBox: [4]float64{1, 1, 0.5, 0.5}}}},
	}
	require.NoError(t, db.Create(&images).Error)

	var got Dataset
	require.NoError(t, db.First(&got, "id = ?", ds.ID).Error)
	if diff := cmp.Diff([]string(ds.ClassNames), []string(got.ClassNames)); diff != "" {
		t.Errorf("class names mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]SplitInfo(ds.Splits), []SplitInfo(got.Splits)); diff != "" {
		t.Errorf("splits mismatch (-want +got):\n%s", diff)
	}

	var gotImages []ImageRecord
	require.NoError(t, db.Where("dataset_id = ?", ds.ID).Order("path").Find(&gotImages).Error)
	require.Len(t, gotImages, 3)
	for i := range images {
		assert.Equal(t, images[i].Split, gotImages[i].Split)
		assert.Equal(t, images[i].NoAnnotations, gotImages[i].NoAnnotations)
		if diff := cmp.Diff([]Annotation(images[i].Annotations), []Annotation(gotImages[i].Annotations), cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("annotations mismatch for %s (-want +got):\n%s", images[i].Path, diff)
		}
		for _, a := range gotImages[i].Annotations {
			assert.GreaterOrEqual(t, a.ClassID, 0)
			assert.Less(t, a.ClassID, len(got.ClassNames))
		}
	}
}

func TestImageRecord_UniquePath(t *testing.T) {
	db := setupTestDB(t)
	ds := &Dataset{Name: "d"}
	require.NoError(t, db.Create(ds).Error)
	assert.Equal(t, DatasetStatusPending, ds.Status)

	require.NoError(t, db.Create(&ImageRecord{DatasetID: ds.ID, Path: "a.jpg", Filename: "a.jpg"}).Error)
	assert.Error(t, db.Create(&ImageRecord{DatasetID: ds.ID, Path: "a.jpg", Filename: "a.jpg"}).Error)
}

func TestIngestionJob_Diagnostics(t *testing.T) {
	db := setupTestDB(t)

	job := &IngestionJob{DatasetID: "d1", ObjectKey: "uploads/d1/a.zip"}
	job.ApplyReport(&yolo.DiagnosticsReport{
		ImagesTotal:    3,
		ImagesAccepted: 2,
		ImagesRejected: 1,
		LinesRejected:  4,
		Counts:         map[yolo.DiagnosticKind]int{yolo.DiagFieldCount: 4},
		Samples:        []yolo.Diagnostic{{Kind: yolo.DiagFieldCount, Severity: yolo.SeverityError, Path: "l.txt", Line: 2, Message: "expected 5 fields, got 4"}},
	})
	require.NoError(t, db.Create(job).Error)
	assert.Equal(t, StageReceived, job.Stage)

	var got IngestionJob
	require.NoError(t, db.First(&got, "id = ?", job.ID).Error)
	report := got.Diagnostics.Data()
	assert.Equal(t, 2, got.ImagesAccepted)
	assert.Equal(t, 4, report.Counts[yolo.DiagFieldCount])
	require.Len(t, report.Samples, 1)
	assert.Equal(t, 2, report.Samples[0].Line)
}
