package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go/parquet"

	"orders_etl/internal/config"
	"orders_etl/internal/csvparse"
	"orders_etl/internal/model"
	"orders_etl/internal/storage"
)

func TestBootstrap(t *testing.T) {
	cfg := config.Default()
	cfg.TargetBucket = "lake"
	cfg.RowShapePolicy = "skip"
	cfg.Compression = "gzip"
	cfg.DecimalScale = 3
	cfg.DisambiguateKeys = false
	cfg.Columns = map[string]string{"discount": "decimal"}

	store := storage.NewMemoryStore()
	tr, err := Bootstrap(cfg, store, nil)
	require.NoError(t, err)

	assert.Equal(t, "lake", tr.opts.TargetBucket)
	assert.Equal(t, csvparse.RowShapeSkip, tr.opts.RowShapePolicy)
	assert.Equal(t, parquet.CompressionCodec_GZIP, tr.encoder.Compression)
	assert.Equal(t, int32(3), tr.encoder.DecimalScale)

	require.NoError(t, store.Put(context.Background(), "uploads", "s.csv", []byte("Discount;Country\n0.125;Spain\nbad row;x;y\n"), nil))
	out, err := tr.Process(context.Background(), model.ObjectRef{Bucket: "uploads", Key: "s.csv"})
	require.NoError(t, err)
	assert.Equal(t, "lake", out.Target.Bucket)
	assert.Equal(t, 1, out.Stats.Rows)
	assert.Equal(t, 1, out.Stats.SkippedRows)
	assert.Zero(t, out.Stats.NullNumbers)
}

func TestBootstrap_RejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Compression = "rar"
	_, err := Bootstrap(cfg, storage.NewMemoryStore(), nil)
	assert.Error(t, err)
}
