// Package change defines the versioned unit of mutation exchanged by the
// sync engine: one create/update/delete on one entity of one data type.
package change

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Operation is the kind of mutation a Change carries.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Valid reports whether o is a known operation.
func (o Operation) Valid() bool {
	switch o {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Change is an immutable-once-created record of a single mutation. The
// builder-style With* setters return modified copies; resolution and wire
// decoding always produce new values, never mutate existing ones.
type Change struct {
	ID           string          `json:"id"`
	DataType     DataType        `json:"data_type"`
	EntityID     string          `json:"entity_id"`
	Operation    Operation       `json:"operation"`
	Data         json.RawMessage `json:"data"`
	Timestamp    time.Time       `json:"timestamp"`
	DeviceID     string          `json:"device_id"`
	Version      uint64          `json:"version"`
	PreviousHash string          `json:"previous_hash,omitempty"`
}

// New creates a Change for a local mutation detected on this device.
// It stamps a fresh globally-unique ID, the current UTC time and version 1.
// The device ID is explicit configuration; there is no environment fallback.
func New(dt DataType, entityID string, op Operation, data json.RawMessage, deviceID string) Change {
	return Change{
		ID:        uuid.NewString(),
		DataType:  dt,
		EntityID:  entityID,
		Operation: op,
		Data:      data,
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
		Version:   1,
	}
}

// WithDeviceID returns a copy with the device ID replaced. Used when decoding
// changes that originated elsewhere.
func (c Change) WithDeviceID(deviceID string) Change {
	c.DeviceID = deviceID
	return c
}

// WithVersion returns a copy with the per-device version replaced.
func (c Change) WithVersion(v uint64) Change {
	c.Version = v
	return c
}

// WithPreviousHash returns a copy carrying the hash of the entity's previous
// state. The hash is round-tripped but not consumed by resolution; it is a
// forward-compatibility hook for fork detection.
func (c Change) WithPreviousHash(h string) Change {
	c.PreviousHash = h
	return c
}

// WithTimestamp returns a copy with the timestamp replaced (normalized to UTC).
func (c Change) WithTimestamp(t time.Time) Change {
	c.Timestamp = t.UTC()
	return c
}

// ConflictsWith reports whether c and other are concurrent mutations of the
// same entity: same entity ID, same data type, distinct change IDs.
// A change never conflicts with itself.
func (c Change) ConflictsWith(other Change) bool {
	return c.EntityID == other.EntityID &&
		c.DataType == other.DataType &&
		c.ID != other.ID
}

// SortKey returns the canonical (timestamp, version) ordering key used for
// FIFO and tie-break comparisons.
func (c Change) SortKey() (time.Time, uint64) {
	return c.Timestamp, c.Version
}

// Before reports whether c orders strictly before other under SortKey.
func (c Change) Before(other Change) bool {
	if !c.Timestamp.Equal(other.Timestamp) {
		return c.Timestamp.Before(other.Timestamp)
	}
	return c.Version < other.Version
}

// Validate checks the structural invariants a remote payload must satisfy
// before it is applied locally.
func (c Change) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("change: missing id")
	}
	if _, err := uuid.Parse(c.ID); err != nil {
		return fmt.Errorf("change: id is not a UUID: %w", err)
	}
	if !c.DataType.Valid() {
		return fmt.Errorf("change: unknown data type %q", c.DataType)
	}
	if c.EntityID == "" {
		return fmt.Errorf("change: missing entity_id")
	}
	if !c.Operation.Valid() {
		return fmt.Errorf("change: unknown operation %q", c.Operation)
	}
	if c.Version == 0 {
		return fmt.Errorf("change: version must be >= 1")
	}
	return nil
}

// ObjectData decodes the payload as a JSON object. The second return is false
// when the payload is absent or not an object (used by the Merge strategy).
func (c Change) ObjectData() (map[string]json.RawMessage, bool) {
	if len(c.Data) == 0 {
		return nil, false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(c.Data, &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}
