// Package transport carries changes between this device and the sync server.
//
// The engine assumes a single logical remote peer per account, so the
// boundary is deliberately small: push a batch, pull a batch, ping. The wire
// format is the engine's stable snake_case JSON, sent over gRPC with a
// registered JSON codec; there are no generated protobuf messages.
package transport

import (
	"context"
	"time"

	"github.com/nimbusbrowser/nimbus/internal/sync/change"
)

// Transport reaches the remote sync peer. Implementations classify every
// failure with a syncerr kind so the orchestrator can distinguish retryable
// network trouble from auth failures and rate limiting.
type Transport interface {
	// Push uploads local changes of one data type and returns how many the
	// server accepted.
	Push(ctx context.Context, req PushRequest) (*PushResponse, error)

	// Pull downloads remote changes of one data type strictly after Since.
	Pull(ctx context.Context, req PullRequest) (*PullResponse, error)

	// Ping probes server reachability.
	Ping(ctx context.Context) error

	Close() error
}

// PushRequest uploads a batch of changes for one data type.
type PushRequest struct {
	DeviceID string          `json:"device_id"`
	DataType change.DataType `json:"data_type"`
	Changes  []change.Change `json:"changes"`
}

// PushResponse reports how many changes the server accepted.
type PushResponse struct {
	Accepted int `json:"accepted"`
}

// PullRequest asks for changes of one data type made after Since by other
// devices of the same account.
type PullRequest struct {
	DeviceID string          `json:"device_id"`
	DataType change.DataType `json:"data_type"`
	Since    time.Time       `json:"since"`
}

// PullResponse carries the remote changes.
type PullResponse struct {
	Changes []change.Change `json:"changes"`
}

// PingRequest probes reachability.
type PingRequest struct{}

// PingResponse acknowledges a ping.
type PingResponse struct {
	Status string `json:"status"`
}
