package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DirStore maps bucket/key onto <root>/<bucket>/<key> on the local disk. It
// backs local runs of the transformer without S3.
type DirStore struct {
	root string
}

func NewDirStore(root string) *DirStore {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &DirStore{root: filepath.Clean(root)}
}

func (d *DirStore) path(bucket, key string) (string, error) {
	p := filepath.Join(d.root, bucket, filepath.FromSlash(key))
	if !strings.HasPrefix(p, d.root+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes store root", key)
	}
	return p, nil
}

func (d *DirStore) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := d.path(bucket, key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	case errors.Is(err, fs.ErrPermission):
		return nil, fmt.Errorf("%w: %s", ErrAccessDenied, p)
	case err != nil:
		return nil, err
	}
	return b, nil
}

// Put writes to a temp file in the destination directory and renames it into
// place. Metadata is not persisted.
func (d *DirStore) Put(ctx context.Context, bucket, key string, body []byte, _ map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := d.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-"+filepath.Base(p)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}
