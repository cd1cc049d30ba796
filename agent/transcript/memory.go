package transcript

import (
	"context"
	"sync"
	"time"

	"github.com/lachopopov/multiagent-system-demo/types"
)

// MemoryStore keeps the transcript in process memory.
// Suitable for development, tests and single-session CLI runs.
type MemoryStore struct {
	mu     sync.RWMutex
	msgs   []types.Message
	closed bool
	now    func() time.Time
}

// NewMemoryStore creates an empty in-memory transcript.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) Append(ctx context.Context, msg types.Message) (types.Message, error) {
	if err := ctx.Err(); err != nil {
		return types.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.Message{}, ErrStoreClosed
	}
	m, err := stamp(msg, int64(len(s.msgs)+1), s.now())
	if err != nil {
		return types.Message{}, err
	}
	s.msgs = append(s.msgs, m)
	return m.Clone(), nil
}

func (s *MemoryStore) Snapshot(ctx context.Context) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Snapshot{}, ErrStoreClosed
	}
	// Stored messages are never mutated, so the snapshot can share them.
	return snapshotOf(s.msgs), nil
}

func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrStoreClosed
	}
	return len(s.msgs), nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
