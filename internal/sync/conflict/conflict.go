// Package conflict pairs divergent changes to the same entity and collapses
// each pair into a single resolved change under a configured strategy.
package conflict

import (
	"github.com/nimbusbrowser/nimbus/internal/sync/change"
)

// Conflict pairs one local and one remote change for the same
// (entity_id, data_type). Resolved and Strategy are filled by Resolve.
type Conflict struct {
	Local    change.Change  `json:"local_change"`
	Remote   change.Change  `json:"remote_change"`
	Resolved *change.Change `json:"resolved_change,omitempty"`
	Strategy Strategy       `json:"strategy,omitempty"`
}

// Resolve collapses the conflict with r and records the outcome on c.
// It is idempotent: resolving again with the same resolver yields the same
// result, because resolution is a pure function of the two changes.
func (c *Conflict) Resolve(r *Resolver) (change.Change, error) {
	resolved, err := r.Resolve(c.Local, c.Remote)
	if err != nil {
		return change.Change{}, err
	}
	c.Resolved = &resolved
	c.Strategy = r.Strategy()
	return resolved, nil
}

// Detect pairs each local change against remote changes mutating the same
// entity of the same type. A change never conflicts with itself (identical
// IDs mean the same change seen twice, not a conflict).
func Detect(local, remote []change.Change) []Conflict {
	type key struct {
		entity string
		dt     change.DataType
	}
	byEntity := make(map[key][]change.Change, len(remote))
	for _, rc := range remote {
		k := key{rc.EntityID, rc.DataType}
		byEntity[k] = append(byEntity[k], rc)
	}

	var out []Conflict
	for _, lc := range local {
		for _, rc := range byEntity[key{lc.EntityID, lc.DataType}] {
			if lc.ConflictsWith(rc) {
				out = append(out, Conflict{Local: lc, Remote: rc})
			}
		}
	}
	return out
}
