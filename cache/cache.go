// Package cache holds the global tender cache and the announced live-tender count.
//
// The cache is a fallback for clients, never the source of truth: writes are
// last-writer-wins with no ordering token. Memory is per process; Redis is
// shared by every replica pointed at the same key prefix.
package cache

import (
	"context"
	"sync"

	"tender-notifier/pkg/tender"
)

// Store is the read/write contract of the global tender cache.
type Store interface {
	Get(ctx context.Context) (tender.CacheRecord, error)
	Set(ctx context.Context, rec tender.CacheRecord) error
	// Stats returns the last announced count; ok is false if none was recorded.
	Stats(ctx context.Context) (rec tender.StatsRecord, ok bool, err error)
	SetStats(ctx context.Context, rec tender.StatsRecord) error
}

// Memory is a single-slot in-process store.
type Memory struct {
	mu       sync.RWMutex
	record   tender.CacheRecord
	stats    tender.StatsRecord
	hasStats bool
}

// NewMemory returns a store holding the empty default record.
func NewMemory() *Memory {
	return &Memory{record: tender.EmptyCacheRecord()}
}

// Get returns a copy of the current record.
func (m *Memory) Get(_ context.Context) (tender.CacheRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyRecord(m.record), nil
}

// Set replaces the record wholesale.
func (m *Memory) Set(_ context.Context, rec tender.CacheRecord) error {
	rec = copyRecord(rec)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = rec
	return nil
}

// Stats returns the last announced count.
func (m *Memory) Stats(_ context.Context) (tender.StatsRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats, m.hasStats, nil
}

// SetStats replaces the announced count.
func (m *Memory) SetStats(_ context.Context, rec tender.StatsRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = rec
	m.hasStats = true
	return nil
}

// copyRecord detaches the tender slice so callers cannot mutate the slot.
func copyRecord(rec tender.CacheRecord) tender.CacheRecord {
	tenders := make([]tender.Tender, len(rec.Tenders))
	copy(tenders, rec.Tenders)
	rec.Tenders = tenders
	return rec
}
