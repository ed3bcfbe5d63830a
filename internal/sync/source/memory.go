package source

import (
	"context"
	"sync"
	"time"

	"github.com/nimbusbrowser/nimbus/internal/sync/change"
)

// Memory is an in-process SyncableData used by tests and the demo CLI in
// place of real browser stores. It keeps the latest change per entity plus
// an append-only log for incremental queries.
type Memory struct {
	dataType change.DataType
	syncKey  string

	mu       sync.Mutex
	entities map[string]change.Change
	log      []change.Change
	applied  map[string]bool
}

var _ SyncableData = (*Memory)(nil)

func NewMemory(dt change.DataType, syncKey string) *Memory {
	return &Memory{
		dataType: dt,
		syncKey:  syncKey,
		entities: make(map[string]change.Change),
		applied:  make(map[string]bool),
	}
}

func (m *Memory) DataType() change.DataType { return m.dataType }

func (m *Memory) SyncKey() string { return m.syncKey }

// Record registers a local mutation, as a real store would when the user
// edits a bookmark or setting.
func (m *Memory) Record(c change.Change) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(c)
}

func (m *Memory) store(c change.Change) {
	if c.Operation == change.OpDelete {
		delete(m.entities, c.EntityID)
	} else {
		m.entities[c.EntityID] = c
	}
	m.log = append(m.log, c)
	m.applied[c.ID] = true
}

func (m *Memory) GetChangesSince(_ context.Context, since time.Time) ([]change.Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []change.Change
	for _, c := range m.log {
		if c.Timestamp.After(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) ApplyChanges(_ context.Context, changes []change.Change) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	applied := 0
	for _, c := range changes {
		if m.applied[c.ID] {
			continue // idempotent: already seen
		}
		m.store(c)
		applied++
	}
	return applied, nil
}

func (m *Memory) GetAllData(_ context.Context) ([]change.Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]change.Change, 0, len(m.entities))
	for _, c := range m.entities {
		out = append(out, c)
	}
	return out, nil
}

func (m *Memory) ClearSyncData(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities = make(map[string]change.Change)
	m.log = nil
	m.applied = make(map[string]bool)
	return nil
}

// Entity returns the current state of one entity, for assertions in tests.
func (m *Memory) Entity(entityID string) (change.Change, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.entities[entityID]
	return c, ok
}
