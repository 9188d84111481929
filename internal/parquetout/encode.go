// Package parquetout serializes normalized batches into Parquet artifacts and
// derives the partitioned key each artifact is written under.
package parquetout

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"orders_etl/internal/etlerr"
	"orders_etl/internal/model"
)

// DecimalPrecision is the total digit count of decimal columns.
const DecimalPrecision = model.DecimalPrecision

// Encoder writes batches as a single Parquet file held in memory.
type Encoder struct {
	Compression  parquet.CompressionCodec
	DecimalScale int32
	RowGroupSize int64
}

// ParseCompression maps a codec name such as "snappy" to its Parquet code.
func ParseCompression(name string) (parquet.CompressionCodec, error) {
	if strings.TrimSpace(name) == "" {
		return parquet.CompressionCodec_SNAPPY, nil
	}
	codec, err := parquet.CompressionCodecFromString(strings.ToUpper(strings.TrimSpace(name)))
	if err != nil {
		return codec, fmt.Errorf("unknown compression %q: %w", name, err)
	}
	return codec, nil
}

// NewEncoder returns an Encoder using SNAPPY and the given decimal scale.
func NewEncoder(scale int32) *Encoder {
	return &Encoder{
		Compression:  parquet.CompressionCodec_SNAPPY,
		DecimalScale: scale,
		RowGroupSize: 128 * 1024 * 1024,
	}
}

// Metadata returns the parquet-go column definitions for schema.
func (e *Encoder) Metadata(schema model.Schema) []string {
	md := make([]string, len(schema))
	for i, col := range schema {
		switch col.Type {
		case model.TypeInteger:
			md[i] = fmt.Sprintf("name=%s, type=INT64, repetitiontype=OPTIONAL", col.Name)
		case model.TypeDecimal:
			md[i] = fmt.Sprintf("name=%s, type=INT64, convertedtype=DECIMAL, scale=%d, precision=%d, repetitiontype=OPTIONAL",
				col.Name, e.DecimalScale, DecimalPrecision)
		case model.TypeTimestamp:
			md[i] = fmt.Sprintf("name=%s, type=INT64, convertedtype=TIMESTAMP_MILLIS, repetitiontype=OPTIONAL", col.Name)
		default:
			md[i] = fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY, repetitiontype=OPTIONAL", col.Name)
		}
	}
	return md
}

// Encode returns the complete Parquet file for batch.
func (e *Encoder) Encode(batch *model.Batch) ([]byte, error) {
	fw := buffer.NewBufferFile()

	pw, err := writer.NewCSVWriter(e.Metadata(batch.Schema), fw, 1)
	if err != nil {
		return nil, etlerr.New(etlerr.KindEncode, "create parquet writer", err)
	}
	pw.CompressionType = e.Compression
	if e.RowGroupSize > 0 {
		pw.RowGroupSize = e.RowGroupSize
	}

	for i, rec := range batch.Records {
		// the writer buffers rows until WriteStop, so each needs its own slice
		row := make([]interface{}, len(batch.Schema))
		for j, col := range batch.Schema {
			v, err := e.value(col, rec[col.Name])
			if err != nil {
				return nil, etlerr.Newf(etlerr.KindEncode, "encode", "record %d: %w", i, err)
			}
			row[j] = v
		}
		if err := pw.Write(row); err != nil {
			return nil, etlerr.Newf(etlerr.KindEncode, "encode", "record %d: %w", i, err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, etlerr.New(etlerr.KindEncode, "finalize parquet", err)
	}
	if err := fw.Close(); err != nil {
		return nil, etlerr.New(etlerr.KindEncode, "close buffer", err)
	}
	return fw.Bytes(), nil
}

func (e *Encoder) value(col model.Column, v any) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch col.Type {
	case model.TypeInteger:
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("column %s: want int64, got %T", col.Name, v)
		}
		return n, nil
	case model.TypeDecimal:
		d, ok := v.(decimal.Decimal)
		if !ok {
			return nil, fmt.Errorf("column %s: want decimal, got %T", col.Name, v)
		}
		if !model.DecimalFits(d, e.DecimalScale) {
			return nil, fmt.Errorf("column %s: %s does not fit DECIMAL(%d,%d)", col.Name, d, DecimalPrecision, e.DecimalScale)
		}
		return d.Round(e.DecimalScale).Shift(e.DecimalScale).IntPart(), nil
	case model.TypeTimestamp:
		t, ok := v.(time.Time)
		if !ok {
			return nil, fmt.Errorf("column %s: want time, got %T", col.Name, v)
		}
		return t.UnixMilli(), nil
	default:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("column %s: want string, got %T", col.Name, v)
		}
		return s, nil
	}
}
