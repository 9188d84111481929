package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Config configures the process-wide S3 session.
type S3Config struct {
	Region         string
	Endpoint       string
	ForcePathStyle bool
	VerifyUpload   bool
}

// S3Store reads and writes objects through one shared session. It is built
// once at process start and never reconfigured.
type S3Store struct {
	client       *s3.S3
	downloader   *s3manager.Downloader
	uploader     *s3manager.Uploader
	verifyUpload bool
}

// NewS3Store creates the session and the clients used by every invocation.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	awsCfg := aws.NewConfig()
	if cfg.Region != "" {
		awsCfg = awsCfg.WithRegion(cfg.Region)
	}
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint)
	}
	if cfg.ForcePathStyle {
		awsCfg = awsCfg.WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *awsCfg,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return &S3Store{
		client:     s3.New(sess),
		downloader: s3manager.NewDownloader(sess),
		uploader: s3manager.NewUploader(sess, func(u *s3manager.Uploader) {
			u.LeavePartsOnError = false
		}),
		verifyUpload: cfg.VerifyUpload,
	}, nil
}

// Fetch downloads the whole object into memory.
func (s *S3Store) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	buf := &aws.WriteAtBuffer{}
	n, err := s.downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("download s3://%s/%s: %w", bucket, key, classify(err))
	}
	slog.Debug("downloaded object", "bucket", bucket, "key", key, "bytes", n)
	return buf.Bytes(), nil
}

// Put uploads body as a single object. Multipart uploads are aborted on
// failure, so the key only becomes visible once the upload completes. With
// VerifyUpload set, an object that fails the HEAD check is deleted again.
func (s *S3Store) Put(ctx context.Context, bucket, key string, body []byte, metadata map[string]string) error {
	md := make(map[string]*string, len(metadata))
	for k, v := range metadata {
		md[k] = aws.String(v)
	}
	result, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/vnd.apache.parquet"),
		Metadata:    md,
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", bucket, key, classify(err))
	}
	slog.Debug("uploaded object", "location", result.Location, "bytes", len(body))

	if !s.verifyUpload {
		return nil
	}
	if err := s.verify(ctx, bucket, key, int64(len(body))); err != nil {
		// a visible but unverified artifact would be duplicated by the retry
		s.remove(ctx, bucket, key)
		return err
	}
	return nil
}

func (s *S3Store) verify(ctx context.Context, bucket, key string, want int64) error {
	head, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("verify s3://%s/%s: %w", bucket, key, classify(err))
	}
	if size := aws.Int64Value(head.ContentLength); size != want {
		return fmt.Errorf("verify s3://%s/%s: stored %d bytes, wrote %d", bucket, key, size, want)
	}
	return nil
}

// remove deletes an object even when ctx is already done.
func (s *S3Store) remove(ctx context.Context, bucket, key string) {
	_, err := s.client.DeleteObjectWithContext(context.WithoutCancel(ctx), &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Error("failed to remove unverified object", "bucket", bucket, "key", key, "error", err)
		return
	}
	slog.Warn("removed unverified object", "bucket", bucket, "key", key)
}

// classify maps S3 error codes onto the package sentinels.
func classify(err error) error {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) {
		switch reqErr.StatusCode() {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrAccessDenied, err)
		}
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("%w: %v", ErrAccessDenied, err)
		}
	}
	return err
}
