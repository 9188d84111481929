package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ProcessedAtColumn is the provenance column appended to every record.
const ProcessedAtColumn = "processed_at"

// DecimalPrecision is the total digit count of decimal columns. With an INT64
// physical type Parquet allows at most 18.
const DecimalPrecision = 18

var decimalLimit = decimal.New(1, DecimalPrecision)

// DecimalFits reports whether d, rounded to scale, has at most
// DecimalPrecision digits.
func DecimalFits(d decimal.Decimal, scale int32) bool {
	return d.Round(scale).Shift(scale).Abs().LessThan(decimalLimit)
}

// ObjectRef identifies one object in the store.
type ObjectRef struct {
	Bucket string
	Key    string
}

func (r ObjectRef) String() string {
	return fmt.Sprintf("s3://%s/%s", r.Bucket, r.Key)
}

// Header is the list of column names read from the first line of a file.
type Header []string

// RawRecord is one data line, positionally aligned to the Header.
type RawRecord []string

// Table is the parsed but untyped content of one file.
type Table struct {
	Header Header
	Rows   []RawRecord
	// SkippedRows counts rows dropped by the skip row-shape policy.
	SkippedRows int
}

// ColumnType is the declared type of a normalized column.
type ColumnType string

const (
	TypeString    ColumnType = "string"
	TypeDate      ColumnType = "date"
	TypeInteger   ColumnType = "integer"
	TypeDecimal   ColumnType = "decimal"
	TypeTimestamp ColumnType = "timestamp"
)

// ParseColumnType accepts the names used in configuration files.
func ParseColumnType(s string) (ColumnType, error) {
	switch ColumnType(strings.ToLower(strings.TrimSpace(s))) {
	case TypeString:
		return TypeString, nil
	case TypeDate:
		return TypeDate, nil
	case TypeInteger, "int":
		return TypeInteger, nil
	case TypeDecimal, "numeric":
		return TypeDecimal, nil
	case TypeTimestamp:
		return TypeTimestamp, nil
	}
	return "", fmt.Errorf("unknown column type %q", s)
}

// Column is one entry of the output schema.
type Column struct {
	Name string
	Type ColumnType
}

// Schema is the ordered column list of a batch, provenance column last.
type Schema []Column

// NormalizedRecord maps canonical column names to typed values. A nil value
// is a null. Non-nil values are string for TypeString and TypeDate, int64 for
// TypeInteger, decimal.Decimal for TypeDecimal and time.Time for
// TypeTimestamp.
type NormalizedRecord map[string]any

// Decimal returns a decimal column value, if set.
func (r NormalizedRecord) Decimal(col string) (decimal.Decimal, bool) {
	d, ok := r[col].(decimal.Decimal)
	return d, ok
}

// Stats counts the permissive coercions applied to one batch.
type Stats struct {
	Rows           int `json:"rows"`
	SkippedRows    int `json:"skipped_rows"`
	NullDates      int `json:"null_dates"`
	AmbiguousDates int `json:"ambiguous_dates"`
	NullNumbers    int `json:"null_numbers"`
}

// Batch is the normalized content of one input file.
type Batch struct {
	Source      ObjectRef
	Schema      Schema
	Records     []NormalizedRecord
	ProcessedAt time.Time
	Stats       Stats
}
