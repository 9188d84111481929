// Package telemetry counts invocation outcomes and per-batch coercions.
package telemetry

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"orders_etl/internal/model"
)

// Outcome label values.
const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeInvalid   = "invalid"
	OutcomeFailed    = "failed"
)

// Metrics holds the counters of one process on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	invocations    *prometheus.CounterVec
	failures       *prometheus.CounterVec
	rows           prometheus.Counter
	skippedRows    prometheus.Counter
	nullDates      prometheus.Counter
	ambiguousDates prometheus.Counter
	nullNumbers    prometheus.Counter
	artifactBytes  prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_invocations_total",
			Help: "Transformer invocations by outcome.",
		}, []string{"outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_failures_total",
			Help: "Failed invocations by error kind.",
		}, []string{"kind"}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_rows_total",
			Help: "Records written to artifacts.",
		}),
		skippedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_rows_skipped_total",
			Help: "Rows dropped for a field count that differs from the header.",
		}),
		nullDates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_null_dates_total",
			Help: "Date values that failed day-first parsing and were written as null.",
		}),
		ambiguousDates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_ambiguous_dates_total",
			Help: "Dates parsed day-first that are also valid month-first.",
		}),
		nullNumbers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_null_numbers_total",
			Help: "Numeric values that failed to parse and were written as null.",
		}),
		artifactBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_artifact_bytes_total",
			Help: "Bytes of Parquet written.",
		}),
	}
	m.Registry.MustRegister(
		m.invocations, m.failures, m.rows, m.skippedRows,
		m.nullDates, m.ambiguousDates, m.nullNumbers, m.artifactBytes,
	)
	return m
}

// Outcome records how an invocation ended.
func (m *Metrics) Outcome(outcome string) {
	m.invocations.WithLabelValues(outcome).Inc()
}

// Failure records a failed invocation and its error kind.
func (m *Metrics) Failure(kind string) {
	m.invocations.WithLabelValues(OutcomeFailed).Inc()
	m.failures.WithLabelValues(kind).Inc()
}

// Batch adds the counters of one written batch.
func (m *Metrics) Batch(st model.Stats, bytes int) {
	m.rows.Add(float64(st.Rows))
	m.skippedRows.Add(float64(st.SkippedRows))
	m.nullDates.Add(float64(st.NullDates))
	m.ambiguousDates.Add(float64(st.AmbiguousDates))
	m.nullNumbers.Add(float64(st.NullNumbers))
	m.artifactBytes.Add(float64(bytes))
}

// Pusher sends the registry to a Prometheus Pushgateway. Lambda functions
// have no scrape endpoint, so counters are pushed after each invocation.
type Pusher struct {
	pusher *push.Pusher
}

// NewPusher returns nil when url is empty. Each execution environment pushes
// under its own instance label so their counters do not replace each other.
func NewPusher(url, job string, m *Metrics) *Pusher {
	if url == "" {
		return nil
	}
	if job == "" {
		job = "orders_transformer"
	}
	p := push.New(url, job).
		Gatherer(m.Registry).
		Grouping("instance", Instance())
	return &Pusher{pusher: p}
}

// Instance names this process: the Lambda log stream, else the host name.
func Instance() string {
	if s := os.Getenv("AWS_LAMBDA_LOG_STREAM_NAME"); s != "" {
		return s
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "unknown"
}

// Push is a no-op on a nil Pusher.
func (p *Pusher) Push(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if err := p.pusher.AddContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
