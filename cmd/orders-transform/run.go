package main

import (
	"context"
	"sync"
	"time"

	"orders_etl/internal/etlerr"
	"orders_etl/internal/logging"
	"orders_etl/internal/model"
	"orders_etl/internal/pipeline"
)

type processor interface {
	Process(ctx context.Context, src model.ObjectRef) (*pipeline.Outcome, error)
}

// FileResult is the per-file line of a run summary.
type FileResult struct {
	Key       string      `json:"key"`
	Status    string      `json:"status"`
	Target    string      `json:"target,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
	Stats     model.Stats `json:"stats"`
}

// RunStats summarizes one CLI run.
type RunStats struct {
	TotalExecutionTime string       `json:"total_execution_time"`
	FilesRequested     int          `json:"files_requested"`
	FilesProcessed     int          `json:"files_processed"`
	FilesSkipped       int          `json:"files_skipped"`
	FilesFailed        int          `json:"files_failed"`
	TotalRows          int64        `json:"total_rows"`
	TotalBytesWritten  int64        `json:"total_bytes_written"`
	Files              []FileResult `json:"files"`
}

// runBatch processes keys with at most workers in flight. Results keep the
// order of keys.
func runBatch(ctx context.Context, p processor, bucket string, keys []string, workers int) RunStats {
	if workers < 1 {
		workers = 1
	}
	start := time.Now()
	results := make([]FileResult, len(keys))
	outcomes := make([]*pipeline.Outcome, len(keys))

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			out, err := p.Process(ctx, model.ObjectRef{Bucket: bucket, Key: key})
			res := FileResult{Key: key}
			if err != nil {
				logging.L().Error("file failed", "key", key, "error", err)
				res.Status = "failed"
				res.Error = err.Error()
				res.ErrorKind = etlerr.KindOf(err).String()
			} else {
				res.Status = string(out.Status)
				res.Stats = out.Stats
				if out.Status == pipeline.StatusProcessed {
					res.Target = out.Target.String()
				}
				outcomes[i] = out
			}
			results[i] = res
		}(i, key)
	}
	wg.Wait()

	stats := RunStats{FilesRequested: len(keys), Files: results}
	for i, res := range results {
		switch res.Status {
		case "failed":
			stats.FilesFailed++
		case string(pipeline.StatusSkipped):
			stats.FilesSkipped++
		default:
			stats.FilesProcessed++
			stats.TotalRows += int64(res.Stats.Rows)
			stats.TotalBytesWritten += int64(outcomes[i].Bytes)
		}
	}
	stats.TotalExecutionTime = time.Since(start).String()
	logging.L().Info("run finished",
		"processed", stats.FilesProcessed,
		"skipped", stats.FilesSkipped,
		"failed", stats.FilesFailed,
		"duration", stats.TotalExecutionTime)
	return stats
}
