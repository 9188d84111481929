package parquetout

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// KeyPrefix and the snapshot_day segment are the partition convention the
// downstream catalog crawler is configured for. Changing either requires a
// catalog change.
const (
	KeyPrefix       = "orders_parquet_datalake"
	SnapshotDayName = "snapshot_day"

	snapshotDayLayout = "2006-01-02"
	artifactLayout    = "20060102-150405"
)

// ObjectKey derives the destination key for a batch processed at t. A
// non-empty token is appended to the file name so that two batches finishing
// in the same second land on different keys.
func ObjectKey(t time.Time, token string) string {
	t = t.UTC()
	name := "orders_" + t.Format(artifactLayout)
	if token != "" {
		name += "_" + token
	}
	return fmt.Sprintf("%s/%s=%s/%s.parquet", KeyPrefix, SnapshotDayName, t.Format(snapshotDayLayout), name)
}

// NewToken returns a short random token for ObjectKey.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
