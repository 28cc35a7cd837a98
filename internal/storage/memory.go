// memory.go - In-process scan repository used when MongoDB is not configured

package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps scan records in process memory. It is used when no
// MongoDB URI is configured, so results are lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	scans map[string]ScanRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scans: make(map[string]ScanRecord)}
}

// SaveScan implements ScanRepository.
func (m *MemoryStore) SaveScan(ctx context.Context, rec *ScanRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = NewScanID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans[rec.ID] = *rec
	return nil
}

// GetScan implements ScanRepository.
func (m *MemoryStore) GetScan(ctx context.Context, id string) (*ScanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.scans[id]
	if !ok {
		return nil, ErrScanNotFound
	}
	return &rec, nil
}
