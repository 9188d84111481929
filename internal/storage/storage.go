// Package storage provides the object store the transformer reads uploads
// from and writes artifacts to.
package storage

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("object not found")
	ErrAccessDenied = errors.New("access denied")
)

// ObjectStore fetches and writes whole objects. Put must be all-or-nothing:
// a failed Put leaves no object, empty or truncated, at the key.
type ObjectStore interface {
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, body []byte, metadata map[string]string) error
}
