package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Object is one stored object of a MemoryStore.
type Object struct {
	Body     []byte
	Metadata map[string]string
}

// MemoryStore is an in-process ObjectStore. FetchErr and PutErr, when set,
// are returned instead of touching the map.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]Object

	FetchErr error
	PutErr   error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]Object)}
}

func memKey(bucket, key string) string { return bucket + "/" + key }

func (m *MemoryStore) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	obj, ok := m.objects[memKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	return append([]byte(nil), obj.Body...), nil
}

func (m *MemoryStore) Put(ctx context.Context, bucket, key string, body []byte, metadata map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return m.PutErr
	}
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	m.objects[memKey(bucket, key)] = Object{Body: append([]byte(nil), body...), Metadata: md}
	return nil
}

// Get returns a stored object.
func (m *MemoryStore) Get(bucket, key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[memKey(bucket, key)]
	return obj, ok
}

// Keys lists the keys stored in bucket, sorted.
func (m *MemoryStore) Keys(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	prefix := bucket + "/"
	for k := range m.objects {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k[len(prefix):])
		}
	}
	sort.Strings(keys)
	return keys
}
