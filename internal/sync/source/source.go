// Package source defines the capability interface a browser data store
// (bookmarks, history, settings, ...) implements to participate in sync.
// The orchestrator only ever sees this boundary, never the stores themselves.
package source

import (
	"context"
	"time"

	"github.com/nimbusbrowser/nimbus/internal/sync/change"
)

// SyncableData is implemented by each external data source. All methods may
// suspend on I/O and honor ctx cancellation.
type SyncableData interface {
	// DataType identifies which category of data this source holds.
	DataType() change.DataType

	// SyncKey is a stable identifier for the source instance.
	SyncKey() string

	// GetChangesSince returns all local changes strictly after since,
	// for incremental sync.
	GetChangesSince(ctx context.Context, since time.Time) ([]change.Change, error)

	// ApplyChanges applies remote changes and returns how many were
	// applied. It must be idempotent: applying the same change twice must
	// not duplicate effects, which also makes a cancelled-then-retried
	// apply safe.
	ApplyChanges(ctx context.Context, changes []change.Change) (int, error)

	// GetAllData returns a full snapshot as changes, used for first-time
	// device sync.
	GetAllData(ctx context.Context) ([]change.Change, error)

	// ClearSyncData wipes sync state, used on logout/reset.
	ClearSyncData(ctx context.Context) error
}
