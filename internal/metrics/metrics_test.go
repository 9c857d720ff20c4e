package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.IngestionStarted()
	m.IngestionStarted()
	m.IngestionFinished("ready", "", 3*time.Second)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ingestionsInFlight))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ingestionsTotal.WithLabelValues("ready", "")))

	m.RecordImages(142, 8, 3, 11)
	assert.Equal(t, float64(142), testutil.ToFloat64(m.imagesTotal.WithLabelValues("accepted")))
	assert.Equal(t, float64(8), testutil.ToFloat64(m.imagesTotal.WithLabelValues("rejected")))
	assert.Equal(t, float64(11), testutil.ToFloat64(m.labelLinesRejected))

	m.RecordStoreOperation("put", nil, time.Millisecond)
	m.RecordStoreOperation("put", errors.New("boom"), time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.storeOperations.WithLabelValues("put", "error")))

	m.SignedURLsIssued(10)
	assert.Equal(t, float64(10), testutil.ToFloat64(m.signedURLsIssued))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IngestionStarted()
		m.IngestionFinished("failed", "store", time.Second)
		m.StageCompleted("parsing", time.Second)
		m.RecordImages(1, 2, 3, 4)
		m.RecordStoreOperation("get", nil, 0)
		m.SignedURLsIssued(1)
		m.DimensionLookup("decoded")
		m.QueueJob("dataset_ingestion", "completed")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	m.QueueJob("dataset_ingestion", "completed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `dataset_importer_queue_jobs_total{status="completed",type="dataset_ingestion"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
