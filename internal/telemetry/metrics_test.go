package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orders_etl/internal/model"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.Outcome(OutcomeProcessed)
	m.Outcome(OutcomeSkipped)
	m.Failure("EmptyInputError")
	m.Batch(model.Stats{Rows: 10, SkippedRows: 1, NullDates: 2, AmbiguousDates: 3, NullNumbers: 4}, 512)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.invocations.WithLabelValues(OutcomeProcessed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invocations.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("EmptyInputError")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.rows))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.nullDates))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ambiguousDates))
	assert.Equal(t, 512.0, testutil.ToFloat64(m.artifactBytes))
}

func TestPusher(t *testing.T) {
	t.Setenv("AWS_LAMBDA_LOG_STREAM_NAME", "env-1")
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/metrics/job/orders_transformer/instance/env-1", r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	m := New()
	m.Outcome(OutcomeProcessed)
	require.NoError(t, NewPusher(srv.URL, "", m).Push(context.Background()))
	assert.Equal(t, 1, hits)

	var nilPusher *Pusher
	assert.NoError(t, nilPusher.Push(context.Background()))
	assert.Nil(t, NewPusher("", "job", m))
}

func TestPusher_EnvironmentsPushSeparateGroups(t *testing.T) {
	paths := make(map[string]bool)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths[r.URL.Path] = true
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	for _, stream := range []string{"2024/03/09/[$LATEST]aaaa", "2024/03/09/[$LATEST]bbbb"} {
		t.Setenv("AWS_LAMBDA_LOG_STREAM_NAME", stream)
		require.NoError(t, NewPusher(srv.URL, "orders", New()).Push(context.Background()))
	}

	require.Len(t, paths, 2)
	for p := range paths {
		assert.Contains(t, p, "/metrics/job/orders/instance@base64/")
	}
}

func TestInstance(t *testing.T) {
	t.Setenv("AWS_LAMBDA_LOG_STREAM_NAME", "")
	assert.NotEmpty(t, Instance())

	t.Setenv("AWS_LAMBDA_LOG_STREAM_NAME", "stream-1")
	assert.Equal(t, "stream-1", Instance())
}
