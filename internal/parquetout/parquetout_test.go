package parquetout

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"

	"orders_etl/internal/etlerr"
	"orders_etl/internal/model"
)

func TestObjectKey(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

	assert.Equal(t,
		"orders_parquet_datalake/snapshot_day=2024-03-09/orders_20240309-140507.parquet",
		ObjectKey(ts, ""))
	assert.Equal(t,
		"orders_parquet_datalake/snapshot_day=2024-03-09/orders_20240309-140507_0a1b2c3d.parquet",
		ObjectKey(ts, "0a1b2c3d"))
}

func TestObjectKey_UsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	ts := time.Date(2024, 3, 10, 1, 0, 0, 0, loc)

	assert.Equal(t,
		"orders_parquet_datalake/snapshot_day=2024-03-09/orders_20240309-220000.parquet",
		ObjectKey(ts, ""))
}

func TestNewToken_DistinctKeysInSameSecond(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		tok := NewToken()
		require.Len(t, tok, 8)
		seen[ObjectKey(ts, tok)] = struct{}{}
	}
	assert.Len(t, seen, 1000)
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, parquet.CompressionCodec_SNAPPY, c)

	c, err = ParseCompression("gzip")
	require.NoError(t, err)
	assert.Equal(t, parquet.CompressionCodec_GZIP, c)

	_, err = ParseCompression("rar")
	assert.Error(t, err)
}

func testBatch() *model.Batch {
	processedAt := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	return &model.Batch{
		Schema: model.Schema{
			{Name: "date", Type: model.TypeDate},
			{Name: "country", Type: model.TypeString},
			{Name: "year", Type: model.TypeInteger},
			{Name: "revenue", Type: model.TypeDecimal},
			{Name: model.ProcessedAtColumn, Type: model.TypeTimestamp},
		},
		Records: []model.NormalizedRecord{
			{
				"date":                  "2011-02-01",
				"country":               "Germany",
				"year":                  int64(2011),
				"revenue":               decimal.NewFromInt(100),
				model.ProcessedAtColumn: processedAt,
			},
			{
				"date":                  nil,
				"country":               "France",
				"year":                  nil,
				"revenue":               decimal.RequireFromString("12.5"),
				model.ProcessedAtColumn: processedAt,
			},
		},
		ProcessedAt: processedAt,
	}
}

// readBack decodes an artifact into one lower-cased map per row.
func readBack(t *testing.T, data []byte) ([]*parquet.SchemaElement, []map[string]any) {
	t.Helper()
	pr, err := reader.NewParquetReader(buffer.NewBufferFileFromBytes(data), nil, 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	rows, err := pr.ReadByNumber(int(pr.GetNumRows()))
	require.NoError(t, err)

	raw, err := json.Marshal(rows)
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	out := make([]map[string]any, len(decoded))
	for i, row := range decoded {
		out[i] = make(map[string]any, len(row))
		for k, v := range row {
			out[i][strings.ToLower(k)] = v
		}
	}
	return pr.Footer.Schema, out
}

func TestEncode_ReadableTypedArtifact(t *testing.T) {
	data, err := NewEncoder(2).Encode(testBatch())
	require.NoError(t, err)
	require.Equal(t, "PAR1", string(data[:4]))

	schema, rows := readBack(t, data)
	require.Len(t, rows, 2)

	types := make(map[string]*parquet.SchemaElement)
	for _, el := range schema {
		types[strings.ToLower(el.Name)] = el
	}
	require.Contains(t, types, "revenue")
	assert.Equal(t, parquet.Type_INT64, types["revenue"].GetType())
	assert.Equal(t, parquet.ConvertedType_DECIMAL, types["revenue"].GetConvertedType())
	assert.Equal(t, parquet.Type_INT64, types["year"].GetType())
	assert.Equal(t, parquet.Type_BYTE_ARRAY, types["country"].GetType())
	assert.Equal(t, parquet.ConvertedType_TIMESTAMP_MILLIS, types["processed_at"].GetConvertedType())

	assert.Equal(t, "2011-02-01", rows[0]["date"])
	assert.Equal(t, "Germany", rows[0]["country"])
	assert.Equal(t, float64(2011), rows[0]["year"])
	assert.Equal(t, float64(10000), rows[0]["revenue"])
	assert.Equal(t, float64(testBatch().ProcessedAt.UnixMilli()), rows[0]["processed_at"])

	assert.Nil(t, rows[1]["date"])
	assert.Nil(t, rows[1]["year"])
	assert.Equal(t, float64(1250), rows[1]["revenue"])
}

func TestEncode_CompressionCodecRecorded(t *testing.T) {
	enc := NewEncoder(2)
	enc.Compression = parquet.CompressionCodec_GZIP
	data, err := enc.Encode(testBatch())
	require.NoError(t, err)

	pr, err := reader.NewParquetReader(buffer.NewBufferFileFromBytes(data), nil, 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	require.NotEmpty(t, pr.Footer.RowGroups)
	for _, col := range pr.Footer.RowGroups[0].Columns {
		assert.Equal(t, parquet.CompressionCodec_GZIP, col.MetaData.Codec)
	}
}

func TestEncode_RejectsMistypedValue(t *testing.T) {
	batch := testBatch()
	batch.Records[0]["year"] = "2011"

	_, err := NewEncoder(2).Encode(batch)
	assert.Error(t, err)
}

func TestEncode_RejectsDecimalOutOfRange(t *testing.T) {
	for _, v := range []string{"100000000000000000000", "95000000000000000", "-10000000000000000"} {
		batch := testBatch()
		batch.Records[0]["revenue"] = decimal.RequireFromString(v)

		_, err := NewEncoder(2).Encode(batch)
		assert.True(t, etlerr.Is(err, etlerr.KindEncode), v)
	}
}

func TestEncode_LargestDecimalRoundTrips(t *testing.T) {
	batch := testBatch()
	batch.Records[0]["revenue"] = decimal.RequireFromString("-9999999999999999.99")

	data, err := NewEncoder(2).Encode(batch)
	require.NoError(t, err)
	_, rows := readBack(t, data)
	// JSON decoding goes through float64, compare at that precision
	assert.InDelta(t, float64(-999999999999999999), rows[0]["revenue"], 1e3)
}
