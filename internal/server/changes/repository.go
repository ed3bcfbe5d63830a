// Package changes provides PostgreSQL-backed persistence for the per-account
// change log that devices push to and pull from.
package changes

import (
	"context"
	"time"

	"github.com/nimbusbrowser/nimbus/internal/sync/change"
)

// Repository stores and queries the server-side change log.
type Repository interface {
	// Save records one change for userID. Changes are immutable: re-saving
	// an already-seen change ID is a no-op and reports inserted=false.
	Save(ctx context.Context, userID string, c change.Change) (inserted bool, err error)

	// SelectSince returns userID's changes of one data type with a timestamp
	// strictly after since, excluding those made by excludeDeviceID, in
	// (timestamp, version) order.
	SelectSince(ctx context.Context, userID string, dt change.DataType, since time.Time, excludeDeviceID string) ([]change.Change, error)

	// SelectAll returns every change of one data type for userID, in
	// (timestamp, version) order. Used by the snapshot archiver.
	SelectAll(ctx context.Context, userID string, dt change.DataType) ([]change.Change, error)

	// Users returns the distinct user IDs present in the change log.
	Users(ctx context.Context) ([]string, error)
}
