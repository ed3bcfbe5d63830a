package queue

import (
	"context"
	"sync"
	"time"

	"github.com/nimbusbrowser/nimbus/internal/sync/change"
)

// Memory is an exclusive-lock-guarded in-process queue. Suitable for tests
// and for sessions where durability across restarts is handled elsewhere.
type Memory struct {
	mu      sync.Mutex
	entries []QueuedChange
}

var _ Queue = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{}
}

func (q *Memory) Enqueue(_ context.Context, c change.Change) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, QueuedChange{Change: c, EnqueuedAt: time.Now().UTC()})
	return nil
}

func (q *Memory) Drain(_ context.Context) ([]QueuedChange, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.entries
	q.entries = nil
	return out, nil
}

func (q *Memory) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries), nil
}
