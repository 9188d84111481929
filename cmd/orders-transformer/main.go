// Command orders-transformer is the Lambda function that turns each uploaded
// sales CSV into a partitioned Parquet artifact.
package main

import (
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"orders_etl/internal/config"
	"orders_etl/internal/handler"
	"orders_etl/internal/logging"
	"orders_etl/internal/pipeline"
	"orders_etl/internal/storage"
	"orders_etl/internal/telemetry"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Configure(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})

	// one session per execution environment, reused by every invocation
	store, err := storage.NewS3Store(storage.S3Config{
		Region:         cfg.Region,
		Endpoint:       cfg.Endpoint,
		ForcePathStyle: cfg.S3ForcePathStyle,
		VerifyUpload:   cfg.VerifyUpload,
	})
	if err != nil {
		log.Fatalf("s3: %v", err)
	}

	metrics := telemetry.New()
	tr, err := pipeline.Bootstrap(cfg, store, metrics)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	pusher := telemetry.NewPusher(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, metrics)

	logging.L().Info("orders transformer ready",
		"target_bucket", cfg.TargetBucket,
		"row_shape_policy", cfg.RowShapePolicy,
		"compression", cfg.Compression)

	lambda.Start(handler.New(tr, pusher, cfg.ReturnErrorOnFailure).Handle)
}
