package objectstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Fake is an in-memory Store used by tests that do not need a real MinIO.
type Fake struct {
	mu      sync.Mutex
	objects map[string][]byte
	buckets map[string]bool
}

// NewFake returns an empty in-memory Store.
func NewFake() *Fake {
	return &Fake{objects: make(map[string][]byte), buckets: make(map[string]bool)}
}

func objectKey(bucket, key string) string { return bucket + "/" + key }

func (f *Fake) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(body))
	copy(cp, body)
	f.objects[objectKey(bucket, key)] = cp
	f.buckets[bucket] = true
	return nil
}

func (f *Fake) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[objectKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("objectstore: %s/%s not found", bucket, key)
	}
	cp := make([]byte, len(body))
	copy(cp, body)
	return cp, nil
}

func (f *Fake) Exists(ctx context.Context, bucket, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[objectKey(bucket, key)]
	return ok, nil
}

func (f *Fake) EnsureBucket(ctx context.Context, bucket string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets[bucket] = true
	return nil
}

// Keys returns the keys currently stored in bucket, letting tests assert
// on what was written without predicting a generated key in advance.
func (f *Fake) Keys(bucket string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := bucket + "/"
	var out []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, strings.TrimPrefix(k, prefix))
		}
	}
	return out
}
