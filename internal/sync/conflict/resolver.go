package conflict

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/nimbusbrowser/nimbus/internal/sync/change"
	"github.com/nimbusbrowser/nimbus/internal/syncerr"
)

// Strategy names a conflict-resolution policy.
type Strategy string

const (
	// LastWriteWins keeps the side with the later timestamp. On an exact
	// timestamp tie the higher version wins; a full tie favors local.
	LastWriteWins Strategy = "last_write_wins"
	// LocalWins always keeps the local side.
	LocalWins Strategy = "local_wins"
	// RemoteWins always keeps the remote side.
	RemoteWins Strategy = "remote_wins"
	// Merge unions two JSON-object payloads field-wise; for keys present on
	// both sides the later-written side wins (remote on tie). When either
	// payload is not a JSON object, Merge deliberately falls back to
	// LastWriteWins rather than failing the entity.
	Merge Strategy = "merge"
	// KeepBoth is currently a degraded mode: it resolves to the newer side,
	// because true duplication requires minting a new entity ID, which only
	// a data source can do. The recorded strategy lets sources layer real
	// duplication on top later.
	KeepBoth Strategy = "keep_both"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case LastWriteWins, LocalWins, RemoteWins, Merge, KeepBoth:
		return true
	}
	return false
}

// Resolver resolves conflicts deterministically under one fixed strategy.
type Resolver struct {
	strategy Strategy
}

// NewResolver builds a resolver for the given strategy.
// An empty strategy defaults to LastWriteWins.
func NewResolver(s Strategy) (*Resolver, error) {
	if s == "" {
		s = LastWriteWins
	}
	if !s.Valid() {
		return nil, fmt.Errorf("conflict: unknown strategy %q", s)
	}
	return &Resolver{strategy: s}, nil
}

// Strategy returns the configured strategy.
func (r *Resolver) Strategy() Strategy { return r.strategy }

// Resolve collapses exactly one local/remote pair into one resolved change.
// The result is always a value derived from the inputs, never a mutation of
// them, and repeated calls return identical results.
func (r *Resolver) Resolve(local, remote change.Change) (change.Change, error) {
	if !local.ConflictsWith(remote) {
		return change.Change{}, syncerr.Entity(syncerr.KindConflict, "resolve", local.EntityID,
			fmt.Errorf("changes do not conflict (entity %q/%q, type %q/%q)",
				local.EntityID, remote.EntityID, local.DataType, remote.DataType))
	}

	switch r.strategy {
	case LocalWins:
		return local, nil
	case RemoteWins:
		return remote, nil
	case Merge:
		return r.merge(local, remote)
	case LastWriteWins, KeepBoth:
		return lastWriteWins(local, remote), nil
	default:
		return change.Change{}, fmt.Errorf("conflict: unknown strategy %q", r.strategy)
	}
}

// lastWriteWins applies the deterministic tie-break chain:
// strictly later timestamp, then higher version, then local.
func lastWriteWins(local, remote change.Change) change.Change {
	switch {
	case local.Timestamp.After(remote.Timestamp):
		return local
	case remote.Timestamp.After(local.Timestamp):
		return remote
	case local.Version >= remote.Version:
		return local
	default:
		return remote
	}
}

// merge unions two JSON-object payloads. The result is based on the
// last-write-wins side so its identity stays deterministic, carries
// timestamp = max(local, remote) and version = max(local, remote)+1 so the
// merge itself is a new, traceable version.
func (r *Resolver) merge(local, remote change.Change) (change.Change, error) {
	localObj, lok := local.ObjectData()
	remoteObj, rok := remote.ObjectData()
	if !lok || !rok {
		// Documented fallback: non-object payloads degrade to LastWriteWins.
		return lastWriteWins(local, remote), nil
	}

	remoteWinsKey := !remote.Timestamp.Before(local.Timestamp)

	merged := make(map[string]json.RawMessage, len(localObj)+len(remoteObj))
	for k, v := range localObj {
		merged[k] = v
	}
	for k, v := range remoteObj {
		if _, both := localObj[k]; both {
			if remoteWinsKey {
				merged[k] = v
			}
			continue
		}
		merged[k] = v
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return change.Change{}, syncerr.Entity(syncerr.KindSerialization, "merge", local.EntityID, err)
	}

	result := lastWriteWins(local, remote)
	// The merge is a new change, not a re-issue of either parent, so
	// idempotent sources that have already applied a parent still apply it.
	// A v5 UUID over both parent IDs keeps the identity deterministic.
	result.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(local.ID+"+"+remote.ID)).String()
	result.Data = data

	ts := local.Timestamp
	if remote.Timestamp.After(ts) {
		ts = remote.Timestamp
	}
	result.Timestamp = ts

	v := local.Version
	if remote.Version > v {
		v = remote.Version
	}
	result.Version = v + 1

	return result, nil
}
