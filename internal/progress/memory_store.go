package progress

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps progress records in process memory with per-record
// expiry. It backs deployments without Redis and the test suite.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	records map[string]memoryRecord
}

type memoryRecord struct {
	record    Record
	expiresAt time.Time
}

// NewMemoryStore returns a store whose records expire after ttl.
// A non-positive ttl falls back to DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		records: make(map[string]memoryRecord),
	}
}

func (s *MemoryStore) Set(ctx context.Context, jobID string, percent int, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey(jobID)] = memoryRecord{
		record:    Record{Percent: percent, Status: status},
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, jobID string) (Record, error) {
	key := recordKey(jobID)
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.records[key]
	if !ok {
		return unknownRecord(), nil
	}
	if s.now().After(entry.expiresAt) {
		delete(s.records, key)
		return unknownRecord(), nil
	}
	return entry.record, nil
}
