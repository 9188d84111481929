package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/xitongsys/parquet-go/parquet"

	"orders_etl/internal/csvparse"
	"orders_etl/internal/model"
	"orders_etl/internal/parquetout"
)

const (
	EnvPrefix     = "ORDERS_"
	EnvConfigFile = "ORDERS_CONFIG_FILE"
)

type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

type MetricsConfig struct {
	PushgatewayURL string `koanf:"pushgateway_url"`
	Job            string `koanf:"job"`
}

type Config struct {
	Region           string `koanf:"region"`
	Endpoint         string `koanf:"endpoint"`
	S3ForcePathStyle bool   `koanf:"s3_force_path_style"`

	// TargetBucket receives the artifacts; empty means the source bucket.
	TargetBucket string `koanf:"target_bucket"`

	RowShapePolicy       string            `koanf:"row_shape_policy"` // fail|skip
	DecimalScale         int               `koanf:"decimal_scale"`
	Compression          string            `koanf:"compression"`
	DisambiguateKeys     bool              `koanf:"disambiguate_keys"`
	VerifyUpload         bool              `koanf:"verify_upload"`
	ReturnErrorOnFailure bool              `koanf:"return_error_on_failure"`
	Columns              map[string]string `koanf:"columns"` // column name -> type

	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
}

func Default() Config {
	return Config{
		RowShapePolicy:   string(csvparse.RowShapeFail),
		DecimalScale:     2,
		Compression:      "snappy",
		DisambiguateKeys: true,
		Log:              LogConfig{Level: "info", JSON: true},
		Metrics:          MetricsConfig{Job: "orders_transformer"},
	}
}

// Load merges the YAML file at path with ORDERS_* environment variables over
// Default(). A missing file at an explicit path is an error. With an empty
// path, $ORDERS_CONFIG_FILE is read if it exists. A double underscore in a
// variable name nests, e.g. ORDERS_LOG__LEVEL.
func Load(path string) (Config, error) {
	optional := false
	if path == "" {
		path = os.Getenv(EnvConfigFile)
		optional = true
	}
	k := koanf.New(".")
	if path != "" {
		err := k.Load(file.Provider(path), yaml.Parser())
		if err != nil && !(optional && errors.Is(err, fs.ErrNotExist)) {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func (c Config) Validate() error {
	if _, err := c.RowPolicy(); err != nil {
		return err
	}
	if c.DecimalScale < 0 || c.DecimalScale > parquetout.DecimalPrecision {
		return fmt.Errorf("decimal_scale %d out of range [0,%d]", c.DecimalScale, parquetout.DecimalPrecision)
	}
	if _, err := c.CompressionCodec(); err != nil {
		return err
	}
	if _, err := c.ColumnTypes(); err != nil {
		return err
	}
	return nil
}

func (c Config) RowPolicy() (csvparse.RowShapePolicy, error) {
	return csvparse.ParseRowShapePolicy(c.RowShapePolicy)
}

func (c Config) CompressionCodec() (parquet.CompressionCodec, error) {
	return parquetout.ParseCompression(c.Compression)
}

func (c Config) ColumnTypes() (map[string]model.ColumnType, error) {
	types := make(map[string]model.ColumnType, len(c.Columns))
	for name, typ := range c.Columns {
		ct, err := model.ParseColumnType(typ)
		if err != nil {
			return nil, fmt.Errorf("columns.%s: %w", name, err)
		}
		types[name] = ct
	}
	return types, nil
}
