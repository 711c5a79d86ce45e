// Package memory is an in-memory export target used for dry runs and tests.
package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
)

// ErrNotFound is returned for keys that were never uploaded
var ErrNotFound = errors.New("object not found")

// Backend keeps uploaded objects keyed by stored relative path
type Backend struct {
	mu              sync.RWMutex
	objects         map[string][]byte
	objectsMimeType map[string]string
}

// New creates a new in-memory backend
func New() *Backend {
	return &Backend{
		objects:         make(map[string][]byte),
		objectsMimeType: make(map[string]string),
	}
}

func (b *Backend) Exists(ctx context.Context, relPath string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, exists := b.objects[relPath]
	return exists, nil
}

func (b *Backend) Upload(ctx context.Context, relPath, contentType string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[relPath] = data
	b.objectsMimeType[relPath] = contentType
	return nil
}

// Download returns the stored bytes for relPath
func (b *Backend) Download(ctx context.Context, relPath string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[relPath]
	if !exists {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// ContentType returns the type recorded at upload
func (b *Backend) ContentType(relPath string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.objectsMimeType[relPath]
}

// Keys lists stored paths in order
func (b *Backend) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
