// Command orders-transform runs the transformer outside Lambda against S3 or a
// local directory that stands in for it.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"orders_etl/internal/config"
	"orders_etl/internal/logging"
	"orders_etl/internal/pipeline"
	"orders_etl/internal/storage"
	"orders_etl/internal/telemetry"
)

type flags struct {
	configFile string
	localDir   string
	statsFile  string
	workers    int
	timeout    time.Duration
}

func main() {
	os.Exit(Execute())
}

func Execute() int {
	if err := rootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func rootCommand() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:          "orders-transform <bucket> <key> [key...]",
		Short:        "Convert uploaded sales CSV files into partitioned Parquet artifacts",
		Args:         cobra.MinimumNArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd.Context(), f, args[0], args[1:])
		},
	}
	cmd.Flags().StringVar(&f.configFile, "config", "", "YAML config file (overrides "+config.EnvConfigFile+")")
	cmd.Flags().StringVar(&f.localDir, "local-dir", "", "serve buckets from subdirectories of this directory instead of S3")
	cmd.Flags().StringVar(&f.statsFile, "stats", "", "also write the run summary to this file")
	cmd.Flags().IntVar(&f.workers, "workers", runtime.NumCPU()*2, "files processed concurrently")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 15*time.Minute, "overall deadline for the run")
	return cmd
}

func runCommand(ctx context.Context, f flags, bucket string, keys []string) error {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	cfg, err := config.Load(f.configFile)
	if err != nil {
		return err
	}
	logging.Configure(logging.Options{Level: cfg.Log.Level, JSON: false})

	var store storage.ObjectStore
	if f.localDir != "" {
		store = storage.NewDirStore(f.localDir)
	} else {
		store, err = storage.NewS3Store(storage.S3Config{
			Region:         cfg.Region,
			Endpoint:       cfg.Endpoint,
			ForcePathStyle: cfg.S3ForcePathStyle,
			VerifyUpload:   cfg.VerifyUpload,
		})
		if err != nil {
			return err
		}
	}

	metrics := telemetry.New()
	tr, err := pipeline.Bootstrap(cfg, store, metrics)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	logging.L().Info("starting run", "bucket", bucket, "files", len(keys), "workers", f.workers)
	stats := runBatch(ctx, tr, bucket, keys, f.workers)

	if pusher := telemetry.NewPusher(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, metrics); pusher != nil {
		if err := pusher.Push(ctx); err != nil {
			logging.L().Warn("metrics push failed", "error", err)
		}
	}

	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize stats: %w", err)
	}
	fmt.Println(string(out))
	if f.statsFile != "" {
		if err := os.WriteFile(f.statsFile, out, 0o644); err != nil {
			logging.L().Warn("failed to write stats file", "path", f.statsFile, "error", err)
		}
	}

	if stats.FilesFailed > 0 {
		return fmt.Errorf("%d of %d files failed", stats.FilesFailed, len(keys))
	}
	return nil
}
