package pipeline

import (
	"fmt"

	"orders_etl/internal/config"
	"orders_etl/internal/logging"
	"orders_etl/internal/normalize"
	"orders_etl/internal/parquetout"
	"orders_etl/internal/storage"
	"orders_etl/internal/telemetry"
)

// Bootstrap builds a Transformer from validated configuration.
func Bootstrap(cfg config.Config, store storage.ObjectStore, metrics *telemetry.Metrics) (*Transformer, error) {
	policy, err := cfg.RowPolicy()
	if err != nil {
		return nil, err
	}
	types, err := cfg.ColumnTypes()
	if err != nil {
		return nil, err
	}
	codec, err := cfg.CompressionCodec()
	if err != nil {
		return nil, err
	}
	if cfg.DecimalScale < 0 || cfg.DecimalScale > parquetout.DecimalPrecision {
		return nil, fmt.Errorf("decimal_scale %d out of range", cfg.DecimalScale)
	}

	n := normalize.New(
		normalize.WithColumnTypes(types),
		normalize.WithDecimalScale(int32(cfg.DecimalScale)),
		normalize.WithLogger(logging.L()),
	)
	enc := parquetout.NewEncoder(n.DecimalScale())
	enc.Compression = codec

	t := New(store, n, enc, metrics, Options{
		TargetBucket:     cfg.TargetBucket,
		RowShapePolicy:   policy,
		DisambiguateKeys: cfg.DisambiguateKeys,
	})
	return t.WithLogger(logging.L()), nil
}
