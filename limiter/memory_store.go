package limiter

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type memoryRecord struct {
	value []byte
	token string
}

// memoryStore implements the Store interface using an in-memory map.
// State is local to the process, so it cannot enforce a global limit
// across replicas; use it for tests and single-instance deployments.
type memoryStore struct {
	mu      sync.Mutex
	records map[string]memoryRecord
}

// NewMemoryStore creates a new in-memory rate limit state store.
func NewMemoryStore() Store {
	return &memoryStore{
		records: make(map[string]memoryRecord),
	}
}

// Get implements the Store interface for memory storage.
func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, "", nil
	}
	// copy so callers can't mutate the stored bytes
	value := make([]byte, len(rec.value))
	copy(value, rec.value)
	return value, rec.token, nil
}

// CompareAndSwap implements the Store interface for memory storage.
// Each successful write stamps the record with a fresh uuid token.
func (s *memoryStore) CompareAndSwap(ctx context.Context, key string, expectedToken string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := ""
	if rec, ok := s.records[key]; ok {
		current = rec.token
	}
	if current != expectedToken {
		return ErrBackendConflict
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	s.records[key] = memoryRecord{value: stored, token: uuid.NewString()}
	return nil
}
