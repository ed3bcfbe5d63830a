// Package queue buffers changes made while the device cannot reach the sync
// server. Entries leave the queue in the exact order they entered it; the
// queue never reorders, deduplicates or drops.
package queue

import (
	"context"
	"time"

	"github.com/nimbusbrowser/nimbus/internal/sync/change"
)

// QueuedChange wraps a Change with queueing metadata.
type QueuedChange struct {
	Change     change.Change `json:"change"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
}

// Queue is a durable FIFO buffer of changes awaiting transmission.
//
// Enqueue may be called concurrently from arbitrary callers; Drain is called
// by the orchestrator at cycle start. Implementations must make the two
// mutually exclusive: no enqueue may be lost during a drain and no drained
// entry may be delivered twice.
type Queue interface {
	// Enqueue appends c to the tail. No size limit is applied at this
	// layer; backpressure belongs to the orchestrator.
	Enqueue(ctx context.Context, c change.Change) error

	// Drain atomically removes and returns all queued entries in enqueue
	// order, leaving the queue empty. There is no peek-without-remove.
	Drain(ctx context.Context) ([]QueuedChange, error)

	// Len returns the current number of queued entries.
	Len(ctx context.Context) (int, error)
}
