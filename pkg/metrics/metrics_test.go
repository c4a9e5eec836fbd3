package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *PipelineMetrics {
	t.Helper()
	m, err := NewPipelineMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestNewPipelineMetrics_DoubleRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewPipelineMetrics(registry)
	require.NoError(t, err)

	_, err = NewPipelineMetrics(registry)
	assert.Error(t, err)
}

func TestRecordIngestRun(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordIngestRun(true, 2, 40, time.Second)
	m.RecordIngestRun(false, 1, 5, time.Second)

	assert.InDelta(t, 1, testutil.ToFloat64(m.IngestRunsTotal.WithLabelValues("success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.IngestRunsTotal.WithLabelValues("failure")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.TomogramsCreatedTotal), 0)
	assert.InDelta(t, 45, testutil.ToFloat64(m.AnnotationsIngested), 0)
	assert.Positive(t, testutil.ToFloat64(m.IngestLastSuccessTime))
}

func TestRecordQuery(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordQuery("count_annotations", nil, time.Millisecond)
	m.RecordQuery("count_annotations", errors.New("boom"), time.Millisecond)
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordCacheLookup(false)

	assert.InDelta(t, 1, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("count_annotations", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("count_annotations", "error")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.QueryCacheTotal.WithLabelValues("miss")), 0)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *PipelineMetrics

	assert.NotPanics(t, func() {
		m.RecordBootstrap("ready", "retrieved")
		m.RecordIngestRun(true, 1, 1, time.Second)
		m.RecordSkippedRows("malformed", 3)
		m.RecordQuery("q", nil, time.Millisecond)
		m.RecordCacheLookup(true)
	})
	assert.NoError(t, m.Push(context.Background(), "http://pushgateway:9091", "cryoet"))
}

func TestPush(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := newTestMetrics(t)
	m.RecordSkippedRows("missing_volume", 2)

	require.NoError(t, m.Push(context.Background(), srv.URL, "cryoet_ingest"))
	assert.Equal(t, "/metrics/job/cryoet_ingest", gotPath)
}
