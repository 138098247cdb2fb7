package state

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/XiaoConstantine/reflexion-go/pkg/errors"
)

// Stack is a LIFO sequence of snapshots. The top of the stack is the most
// recently captured branch point. Popping below the root is an error.
//
// Stack is safe for concurrent use; within one run, mutations are expected to
// happen in decision order.
type Stack struct {
	mu        sync.RWMutex
	snapshots []Snapshot
}

// NewStack creates an empty snapshot stack.
func NewStack() *Stack {
	return &Stack{}
}

// Push adds a snapshot as the new branch point.
func (s *Stack) Push(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
}

// Pop removes and returns the most recent branch point.
func (s *Stack) Pop() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.snapshots) == 0 {
		return Snapshot{}, errors.New(errors.EmptyStack, "cannot pop below stack root")
	}

	top := s.snapshots[len(s.snapshots)-1]
	s.snapshots = s.snapshots[:len(s.snapshots)-1]
	return top, nil
}

// Peek returns the most recent branch point without removing it. The second
// return value is false when the stack is empty.
func (s *Stack) Peek() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.snapshots) == 0 {
		return Snapshot{}, false
	}
	return s.snapshots[len(s.snapshots)-1], true
}

// Len returns the number of snapshots on the stack.
func (s *Stack) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// Snapshots returns a copy of the stack contents from root to top.
func (s *Stack) Snapshots() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Snapshot, len(s.snapshots))
	copy(out, s.snapshots)
	return out
}

// Persist serializes the stack to the store under the given key, allowing
// long-running sessions to survive process restarts.
func (s *Stack) Persist(ctx context.Context, store Store, key string) error {
	s.mu.RLock()
	data, err := json.Marshal(s.snapshots)
	s.mu.RUnlock()
	if err != nil {
		return errors.Wrap(err, errors.StoreFailed, "failed to serialize snapshot stack")
	}

	if err := store.Put(ctx, key, data); err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.StoreFailed, "failed to persist snapshot stack"),
			errors.Fields{"key": key},
		)
	}
	return nil
}

// LoadStack restores a previously persisted stack. Loading a key that was
// never persisted returns a ResourceNotFound error.
func LoadStack(ctx context.Context, store Store, key string) (*Stack, error) {
	data, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var snapshots []Snapshot
	if err := json.Unmarshal(data, &snapshots); err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.StoreFailed, "failed to decode snapshot stack"),
			errors.Fields{"key": key},
		)
	}
	return &Stack{snapshots: snapshots}, nil
}
