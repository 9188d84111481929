// Package csvparse turns the raw bytes of an uploaded file into a header and
// positionally aligned records.
package csvparse

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"orders_etl/internal/etlerr"
	"orders_etl/internal/model"
)

// RowShapePolicy decides what happens to a row whose field count differs
// from the header.
type RowShapePolicy string

const (
	RowShapeFail RowShapePolicy = "fail"
	RowShapeSkip RowShapePolicy = "skip"
)

// ParseRowShapePolicy validates a configured policy name.
func ParseRowShapePolicy(s string) (RowShapePolicy, error) {
	switch RowShapePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", RowShapeFail:
		return RowShapeFail, nil
	case RowShapeSkip:
		return RowShapeSkip, nil
	}
	return "", fmt.Errorf("unknown row shape policy %q (want fail or skip)", s)
}

// DefaultDelimiter is the field separator of the sales exports.
const DefaultDelimiter = ';'

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Options configures Parse.
type Options struct {
	Delimiter rune
	Policy    RowShapePolicy
	Logger    *slog.Logger
}

// RowShapeError reports a data row whose length does not match the header.
type RowShapeError struct {
	Line int
	Want int
	Got  int
}

func (e *RowShapeError) Error() string {
	return fmt.Sprintf("line %d: expected %d fields, got %d", e.Line, e.Want, e.Got)
}

// Parse decodes body as UTF-8 and splits it into a header and records.
func Parse(body []byte, opts Options) (*model.Table, error) {
	if opts.Delimiter == 0 {
		opts.Delimiter = DefaultDelimiter
	}
	if opts.Policy == "" {
		opts.Policy = RowShapeFail
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	if !utf8.Valid(body) {
		return nil, etlerr.New(etlerr.KindDecode, "decode", errors.New("input is not valid UTF-8"))
	}
	body = bytes.TrimPrefix(body, utf8BOM)

	r := csv.NewReader(bytes.NewReader(body))
	r.Comma = opts.Delimiter
	r.FieldsPerRecord = -1

	header, err := readRecord(r)
	if err == io.EOF {
		return nil, etlerr.New(etlerr.KindEmptyInput, "parse", errors.New("input has no header line"))
	}
	if err != nil {
		return nil, etlerr.New(etlerr.KindDecode, "parse header", err)
	}

	table := &model.Table{Header: model.Header(header)}
	for {
		rec, err := readRecord(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, etlerr.New(etlerr.KindDecode, "parse", err)
		}
		if len(rec) != len(header) {
			line, _ := r.FieldPos(0)
			shapeErr := &RowShapeError{Line: line, Want: len(header), Got: len(rec)}
			if opts.Policy == RowShapeFail {
				return nil, etlerr.New(etlerr.KindRowShape, "parse", shapeErr)
			}
			log.Warn("skipping malformed row", "line", line, "want", len(header), "got", len(rec))
			table.SkippedRows++
			continue
		}
		table.Rows = append(table.Rows, model.RawRecord(rec))
	}

	if len(table.Rows) == 0 {
		return nil, etlerr.Newf(etlerr.KindEmptyInput, "parse",
			"no data rows after header (%d malformed rows skipped)", table.SkippedRows)
	}
	return table, nil
}

// readRecord returns the next record, skipping lines that hold nothing but
// whitespace. encoding/csv already drops truly empty lines.
func readRecord(r *csv.Reader) ([]string, error) {
	for {
		rec, err := r.Read()
		if err != nil {
			return nil, err
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		return rec, nil
	}
}
