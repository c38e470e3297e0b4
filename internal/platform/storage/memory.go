package storage

import (
	"context"
	"sync"
	"time"

	"github.com/bobbygour30/admitcard/internal/domain"
)

const memoryScheme = "mem://"

// MemoryDocuments keeps documents in process memory and serves them back as
// data URLs. Used by the memory store driver and tests.
type MemoryDocuments struct {
	mu    sync.RWMutex
	blobs map[string]domain.Blob
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryDocuments returns an empty store.
func NewMemoryDocuments() *MemoryDocuments {
	return &MemoryDocuments{blobs: make(map[string]domain.Blob), ttl: defaultViewTTL, now: time.Now}
}

// Put stores blob and returns "mem://<object>".
func (m *MemoryDocuments) Put(_ context.Context, object string, blob domain.Blob) (string, error) {
	ref := memoryScheme + object
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[ref] = domain.Blob{ContentType: blob.ContentType, Data: append([]byte(nil), blob.Data...)}
	return ref, nil
}

// Delete removes ref.
func (m *MemoryDocuments) Delete(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, ref)
	return nil
}

// ViewURL returns the document as a data URL.
func (m *MemoryDocuments) ViewURL(_ context.Context, ref string) (ViewURL, error) {
	m.mu.RLock()
	blob, ok := m.blobs[ref]
	m.mu.RUnlock()
	if !ok {
		return ViewURL{}, ErrNotFound
	}
	return ViewURL{URL: blob.DataURL(), ExpiresAt: m.now().UTC().Add(m.ttl)}, nil
}

// Len reports how many documents are held.
func (m *MemoryDocuments) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
