package state

import (
	"context"
	"sync"

	"github.com/XiaoConstantine/reflexion-go/pkg/errors"
)

// Store is the abstract key-value contract used for stack persistence.
// Implementations decide durability; the engine only requires Put/Get
// round-tripping and a ResourceNotFound error for missing keys.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]string, error)
}

// InMemoryStore is a process-local Store for tests and short-lived sessions.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string][]byte)}
}

func (s *InMemoryStore) Put(ctx context.Context, key string, value []byte) error {
	if err := errors.CheckContext(ctx, "store put"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[key] = stored
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := errors.CheckContext(ctx, "store get"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		return nil, errors.WithFields(
			errors.New(errors.ResourceNotFound, "key not found"),
			errors.Fields{"key": key},
		)
	}

	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *InMemoryStore) Delete(ctx context.Context, key string) error {
	if err := errors.CheckContext(ctx, "store delete"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *InMemoryStore) List(ctx context.Context) ([]string, error) {
	if err := errors.CheckContext(ctx, "store list"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys, nil
}
