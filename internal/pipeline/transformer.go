// Package pipeline runs one upload through gate, parse, normalize, encode and
// write, and reports a single outcome for it.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"orders_etl/internal/csvparse"
	"orders_etl/internal/etlerr"
	"orders_etl/internal/model"
	"orders_etl/internal/normalize"
	"orders_etl/internal/parquetout"
	"orders_etl/internal/storage"
	"orders_etl/internal/telemetry"
)

// EligibleSuffix is the only extension the gate lets through.
const EligibleSuffix = ".csv"

// Status distinguishes the two successful outcomes.
type Status string

const (
	StatusProcessed Status = "processed"
	StatusSkipped   Status = "skipped"
)

// Outcome describes a successful invocation.
type Outcome struct {
	Status      Status
	Source      model.ObjectRef
	Target      model.ObjectRef
	ProcessedAt time.Time
	Bytes       int
	Stats       model.Stats
	Duration    time.Duration
}

// Options configures a Transformer.
type Options struct {
	// TargetBucket receives artifacts; empty writes back to the source bucket.
	TargetBucket     string
	RowShapePolicy   csvparse.RowShapePolicy
	DisambiguateKeys bool
}

// Transformer holds the collaborators shared by every invocation. It has no
// per-invocation state and is safe for concurrent use.
type Transformer struct {
	store      storage.ObjectStore
	normalizer *normalize.Normalizer
	encoder    *parquetout.Encoder
	metrics    *telemetry.Metrics
	opts       Options
	newToken   func() string
	log        *slog.Logger
}

// New returns a Transformer. metrics may be nil.
func New(store storage.ObjectStore, n *normalize.Normalizer, enc *parquetout.Encoder, metrics *telemetry.Metrics, opts Options) *Transformer {
	if metrics == nil {
		metrics = telemetry.New()
	}
	return &Transformer{
		store:      store,
		normalizer: n,
		encoder:    enc,
		metrics:    metrics,
		opts:       opts,
		newToken:   parquetout.NewToken,
		log:        slog.Default(),
	}
}

// WithTokenFunc replaces the key token generator.
func (t *Transformer) WithTokenFunc(fn func() string) *Transformer {
	t.newToken = fn
	return t
}

// WithLogger replaces the logger.
func (t *Transformer) WithLogger(l *slog.Logger) *Transformer {
	t.log = l
	return t
}

// Eligible reports whether key names a CSV upload.
func Eligible(key string) bool {
	return strings.HasSuffix(strings.ToLower(key), EligibleSuffix)
}

// Process transforms the object at src. Every failure is an *etlerr.Error.
func (t *Transformer) Process(ctx context.Context, src model.ObjectRef) (*Outcome, error) {
	start := time.Now()
	log := t.log.With("bucket", src.Bucket, "key", src.Key)

	out, err := t.process(ctx, src, log)
	if err != nil {
		kind := etlerr.KindOf(err)
		if kind == etlerr.KindInvalidInvocation {
			t.metrics.Outcome(telemetry.OutcomeInvalid)
		} else {
			t.metrics.Failure(kind.String())
		}
		log.Error("transformation failed", "kind", kind.String(), "retryable", kind.Retryable(), "error", err)
		return nil, err
	}
	out.Duration = time.Since(start)

	switch out.Status {
	case StatusSkipped:
		t.metrics.Outcome(telemetry.OutcomeSkipped)
		log.Info("skipped ineligible object", "outcome", out.Status, "kind", etlerr.KindIneligibleInput.String())
	default:
		t.metrics.Outcome(telemetry.OutcomeProcessed)
		t.metrics.Batch(out.Stats, out.Bytes)
		log.Info("wrote artifact",
			"outcome", out.Status,
			"target_bucket", out.Target.Bucket,
			"target_key", out.Target.Key,
			"rows", out.Stats.Rows,
			"skipped_rows", out.Stats.SkippedRows,
			"null_dates", out.Stats.NullDates,
			"ambiguous_dates", out.Stats.AmbiguousDates,
			"null_numbers", out.Stats.NullNumbers,
			"bytes", out.Bytes,
			"duration", out.Duration)
	}
	return out, nil
}

func (t *Transformer) process(ctx context.Context, src model.ObjectRef, log *slog.Logger) (*Outcome, error) {
	if src.Bucket == "" || src.Key == "" {
		return nil, etlerr.Newf(etlerr.KindInvalidInvocation, "validate", "bucket and key are required (got %q, %q)", src.Bucket, src.Key)
	}
	if !Eligible(src.Key) {
		return &Outcome{Status: StatusSkipped, Source: src}, nil
	}

	body, err := t.store.Fetch(ctx, src.Bucket, src.Key)
	if err != nil {
		return nil, etlerr.New(etlerr.KindFetch, "fetch", err)
	}
	log.Debug("fetched object", "bytes", len(body))

	table, err := csvparse.Parse(body, csvparse.Options{Policy: t.opts.RowShapePolicy, Logger: log})
	if err != nil {
		return nil, err
	}

	batch, err := t.normalizer.Normalize(src, table)
	if err != nil {
		return nil, err
	}

	data, err := t.encoder.Encode(batch)
	if err != nil {
		return nil, err
	}

	token := ""
	if t.opts.DisambiguateKeys {
		token = t.newToken()
	}
	target := model.ObjectRef{
		Bucket: t.opts.TargetBucket,
		Key:    parquetout.ObjectKey(batch.ProcessedAt, token),
	}
	if target.Bucket == "" {
		target.Bucket = src.Bucket
	}

	// a caller that already gave up must not see a late artifact
	if err := ctx.Err(); err != nil {
		return nil, etlerr.New(etlerr.KindWrite, "write", err)
	}
	metadata := map[string]string{
		"record-count":  strconv.Itoa(len(batch.Records)),
		"source-bucket": src.Bucket,
		"source-key":    src.Key,
		"processed-at":  batch.ProcessedAt.Format(time.RFC3339),
	}
	if err := t.store.Put(ctx, target.Bucket, target.Key, data, metadata); err != nil {
		return nil, etlerr.New(etlerr.KindWrite, "write", err)
	}

	return &Outcome{
		Status:      StatusProcessed,
		Source:      src,
		Target:      target,
		ProcessedAt: batch.ProcessedAt,
		Bytes:       len(data),
		Stats:       batch.Stats,
	}, nil
}

// IsRetryable reports whether err from Process is worth re-delivering.
func IsRetryable(err error) bool {
	var e *etlerr.Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return err != nil
}
