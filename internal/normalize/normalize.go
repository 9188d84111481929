// Package normalize maps a parsed CSV table onto canonical column names and
// declared column types, and stamps every record with the batch instant.
package normalize

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"orders_etl/internal/etlerr"
	"orders_etl/internal/model"
)

// DefaultColumnTypes declares the typed columns of the sales export. Columns
// not listed here are carried through as strings.
var DefaultColumnTypes = map[string]model.ColumnType{
	"date":           model.TypeDate,
	"year":           model.TypeInteger,
	"day":            model.TypeInteger,
	"customer_age":   model.TypeInteger,
	"order_quantity": model.TypeInteger,
	"revenue":        model.TypeDecimal,
	"cost":           model.TypeDecimal,
	"profit":         model.TypeDecimal,
	"unit_cost":      model.TypeDecimal,
	"unit_price":     model.TypeDecimal,
}

// ColumnName canonicalizes one header token.
func ColumnName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Header canonicalizes every token of h. Blank tokens are named
// unnamed_<index>. Two tokens landing on the same name, or a token landing on
// the provenance column, is a schema collision.
func Header(h model.Header) ([]string, error) {
	names := make([]string, len(h))
	seen := make(map[string]string, len(h)+1)
	seen[model.ProcessedAtColumn] = "(provenance)"
	for i, tok := range h {
		name := ColumnName(tok)
		if name == "" {
			name = fmt.Sprintf("unnamed_%d", i)
		}
		if strings.ContainsAny(name, ",=") {
			return nil, etlerr.Newf(etlerr.KindSchemaCollision, "normalize header",
				"column %q contains a character not allowed in column names", tok)
		}
		if prev, dup := seen[name]; dup {
			return nil, etlerr.Newf(etlerr.KindSchemaCollision, "normalize header",
				"columns %q and %q both normalize to %q", prev, tok, name)
		}
		seen[name] = tok
		names[i] = name
	}
	return names, nil
}

// Normalizer converts tables into typed batches.
type Normalizer struct {
	types        map[string]model.ColumnType
	decimalScale int32
	now          func() time.Time
	log          *slog.Logger
}

// Option customizes a Normalizer.
type Option func(*Normalizer)

// WithColumnTypes overrides or extends the declared column types.
func WithColumnTypes(types map[string]model.ColumnType) Option {
	return func(n *Normalizer) {
		for name, typ := range types {
			n.types[ColumnName(name)] = typ
		}
	}
}

// WithDecimalScale sets the number of fractional digits kept on decimals.
func WithDecimalScale(scale int32) Option {
	return func(n *Normalizer) { n.decimalScale = scale }
}

// WithClock replaces time.Now for the provenance stamp.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithLogger sets the logger used for batch-level coercion reports.
func WithLogger(l *slog.Logger) Option {
	return func(n *Normalizer) { n.log = l }
}

// New returns a Normalizer using DefaultColumnTypes and a scale of 2.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		types:        make(map[string]model.ColumnType, len(DefaultColumnTypes)),
		decimalScale: 2,
		now:          time.Now,
		log:          slog.Default(),
	}
	for name, typ := range DefaultColumnTypes {
		n.types[name] = typ
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// DecimalScale returns the configured decimal scale.
func (n *Normalizer) DecimalScale() int32 { return n.decimalScale }

// Normalize types every row of table. The provenance instant is read once,
// before the first row, and shared by the whole batch.
func (n *Normalizer) Normalize(src model.ObjectRef, table *model.Table) (*model.Batch, error) {
	processedAt := n.now().UTC()

	names, err := Header(table.Header)
	if err != nil {
		return nil, err
	}

	schema := make(model.Schema, 0, len(names)+1)
	for _, name := range names {
		typ, ok := n.types[name]
		if !ok {
			typ = model.TypeString
		}
		schema = append(schema, model.Column{Name: name, Type: typ})
	}
	schema = append(schema, model.Column{Name: model.ProcessedAtColumn, Type: model.TypeTimestamp})

	batch := &model.Batch{
		Source:      src,
		Schema:      schema,
		Records:     make([]model.NormalizedRecord, 0, len(table.Rows)),
		ProcessedAt: processedAt,
		Stats:       model.Stats{SkippedRows: table.SkippedRows},
	}

	for _, row := range table.Rows {
		rec := make(model.NormalizedRecord, len(schema))
		for i, col := range schema[:len(names)] {
			rec[col.Name] = n.convert(col, row[i], &batch.Stats)
		}
		rec[model.ProcessedAtColumn] = processedAt
		batch.Records = append(batch.Records, rec)
	}
	batch.Stats.Rows = len(batch.Records)

	if batch.Stats.NullDates > 0 || batch.Stats.NullNumbers > 0 {
		n.log.Warn("coerced unparsable values to null",
			"source", src.String(),
			"rows", batch.Stats.Rows,
			"null_dates", batch.Stats.NullDates,
			"null_numbers", batch.Stats.NullNumbers)
	}
	if batch.Stats.AmbiguousDates > 0 {
		n.log.Info("day-first dates also valid month-first",
			"source", src.String(),
			"ambiguous_dates", batch.Stats.AmbiguousDates)
	}
	return batch, nil
}

func (n *Normalizer) convert(col model.Column, raw string, st *model.Stats) any {
	switch col.Type {
	case model.TypeDate:
		d, ok := ParseDayFirst(raw)
		if !ok {
			st.NullDates++
			return nil
		}
		if isAmbiguous(raw, d) {
			st.AmbiguousDates++
		}
		return d.Format(ISODate)
	case model.TypeInteger:
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			st.NullNumbers++
			return nil
		}
		return v
	case model.TypeDecimal:
		d, err := decimal.NewFromString(strings.TrimSpace(raw))
		// out of range values would not survive the fixed-width column
		if err != nil || !model.DecimalFits(d, n.decimalScale) {
			st.NullNumbers++
			return nil
		}
		return d.Round(n.decimalScale)
	case model.TypeTimestamp:
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
		if err != nil {
			st.NullDates++
			return nil
		}
		return t.UTC()
	default:
		return raw
	}
}
