// Package manager contains the sync orchestrator: a state machine that
// walks each enabled data type through check → upload → download →
// conflict-resolution and back to idle, reporting a typed result instead of
// failing for expected conditions like network loss or rate limiting.
package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nimbusbrowser/nimbus/internal/cryptox"
	"github.com/nimbusbrowser/nimbus/internal/logging"
	"github.com/nimbusbrowser/nimbus/internal/sync/account"
	"github.com/nimbusbrowser/nimbus/internal/sync/change"
	"github.com/nimbusbrowser/nimbus/internal/sync/conflict"
	"github.com/nimbusbrowser/nimbus/internal/sync/queue"
	"github.com/nimbusbrowser/nimbus/internal/sync/source"
	"github.com/nimbusbrowser/nimbus/internal/sync/transport"
	"github.com/nimbusbrowser/nimbus/internal/syncerr"
)

// Config carries the orchestrator's explicit wiring. The device ID is
// configuration, never derived from ambient state.
type Config struct {
	DeviceID string
	Strategy conflict.Strategy
}

// Manager coordinates sync cycles for one account. Cycles are serialized:
// a second Sync while one is in flight fails fast with SyncInProgress.
type Manager struct {
	cfg       Config
	account   *account.Account
	transport transport.Transport
	queue     queue.Queue
	resolver  *conflict.Resolver
	cipher    *cryptox.Cipher
	log       logging.Logger

	running atomic.Bool
	paused  atomic.Bool

	mu                sync.Mutex
	sources           map[change.DataType]source.SyncableData
	state             State
	lastSync          *time.Time
	watermarks        map[change.DataType]time.Time
	typeStatus        map[change.DataType]TypeStatus
	conflictsDetected int
	errorMessage      string
	progress          *int
	enabled           bool
}

// New wires an orchestrator. The cipher seals payloads for data types that
// require encryption and may be nil only if no such type is ever synced.
func New(cfg Config, acc *account.Account, tr transport.Transport, q queue.Queue,
	cipher *cryptox.Cipher, log logging.Logger) (*Manager, error) {

	if cfg.DeviceID == "" {
		return nil, fmt.Errorf("manager: device ID is required")
	}
	resolver, err := conflict.NewResolver(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	return &Manager{
		cfg:        cfg,
		account:    acc,
		transport:  tr,
		queue:      q,
		resolver:   resolver,
		cipher:     cipher,
		log:        log.With("module", "sync_manager", "device_id", cfg.DeviceID),
		sources:    make(map[change.DataType]source.SyncableData),
		state:      StateIdle,
		watermarks: make(map[change.DataType]time.Time),
		typeStatus: make(map[change.DataType]TypeStatus),
		enabled:    true,
	}, nil
}

// RegisterSource plugs a data source into the orchestrator. One source per
// data type; registering again replaces the previous source.
func (m *Manager) RegisterSource(s source.SyncableData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[s.DataType()] = s
}

// Enqueue buffers a change made while disconnected. Safe to call from any
// goroutine at any time, including during a running cycle.
func (m *Manager) Enqueue(ctx context.Context, c change.Change) error {
	return m.queue.Enqueue(ctx, c)
}

// SetEnabled toggles syncing on this device. Disabled is reflected in
// Status; a Sync call while disabled fails without starting a cycle.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

// Pause requests a cooperative pause. A running cycle stops at the next
// per-type boundary and the state becomes Paused; in-flight network calls
// are not interrupted.
func (m *Manager) Pause() {
	m.paused.Store(true)
}

// Resume lifts a pause.
func (m *Manager) Resume() {
	m.paused.Store(false)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StatePaused {
		m.state = StateIdle
	}
}

// Status returns a point-in-time snapshot.
func (m *Manager) Status(ctx context.Context) Status {
	pending, err := m.queue.Len(ctx)
	if err != nil {
		pending = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		State:             m.state,
		LastSync:          m.lastSync,
		PendingChanges:    pending,
		ConflictsDetected: m.conflictsDetected,
		ErrorMessage:      m.errorMessage,
		IsEnabled:         m.enabled,
		Progress:          m.progress,
	}
	for _, dt := range change.AllDataTypes() {
		if ts, ok := m.typeStatus[dt]; ok {
			st.TypeStatus = append(st.TypeStatus, ts)
		}
	}
	return st
}

// Sync runs one cycle over the explicitly requested data types. Callers opt
// in per type; there is no implicit "all". The returned error is non-nil
// only for cycle-level conditions (NotLoggedIn, SyncInProgress, AuthFailed,
// RateLimited); per-type failures are reported in the Result.
func (m *Manager) Sync(ctx context.Context, types []change.DataType) (*Result, error) {
	if !m.running.CompareAndSwap(false, true) {
		return nil, syncerr.Newf(syncerr.KindSyncInProgress, "sync",
			"a sync cycle is already in flight for this account")
	}
	defer m.running.Store(false)

	m.mu.Lock()
	enabled := m.enabled
	m.mu.Unlock()
	if !enabled {
		return nil, syncerr.Newf(syncerr.KindSyncDisabled, "sync", "sync is disabled on this device")
	}

	// Precondition: authenticated, non-expired credentials. Failing here
	// must not leave Idle.
	if !m.account.IsLoggedIn() {
		return nil, syncerr.Newf(syncerr.KindNotLoggedIn, "sync",
			"no authenticated sync account")
	}

	started := time.Now()
	result := &Result{}
	defer func() {
		result.DurationMS = time.Since(started).Milliseconds()
	}()

	m.setState(StateChecking)
	m.setProgress(0)
	defer m.clearProgress()

	// Drain the offline queue once per cycle. Changes buffered while
	// disconnected join each type's pending set; anything the cycle does not
	// successfully transmit is put back so the next cycle retries it.
	queued, err := m.queue.Drain(ctx)
	if err != nil {
		serr := syncerr.New(syncerr.KindStorage, "drain_queue", err)
		m.failCycle(serr)
		return result, serr
	}
	queuedByType := make(map[change.DataType][]change.Change)
	for _, qc := range queued {
		queuedByType[qc.Change.DataType] = append(queuedByType[qc.Change.DataType], qc.Change)
	}

	ordered := append([]change.DataType(nil), types...)
	change.SortByPriority(ordered)

	// Entries for types outside this cycle go straight back to the queue.
	requested := make(map[change.DataType]bool, len(ordered))
	for _, dt := range ordered {
		requested[dt] = true
	}
	for dt, cs := range queuedByType {
		if !requested[dt] {
			m.requeue(ctx, cs)
			delete(queuedByType, dt)
		}
	}

	allOK := true
	for i, dt := range ordered {
		if m.paused.Load() {
			m.log.Info(ctx, "sync paused before type", "data_type", dt)
			m.requeueTypes(ctx, queuedByType, ordered[i:])
			m.setState(StatePaused)
			result.Success = false
			return result, nil
		}

		ts := m.syncType(ctx, dt, queuedByType[dt])

		m.mu.Lock()
		m.typeStatus[dt] = ts
		m.mu.Unlock()
		result.TypeResults = append(result.TypeResults, ts)
		result.ChangesUploaded += ts.Uploaded
		result.ChangesDownloaded += ts.Downloaded
		result.ConflictsResolved += ts.ConflictsResolved

		if !ts.Synced {
			allOK = false
			// The type's queued entries were not confirmed uploaded; keep
			// them buffered. Re-pushing after a partial failure is safe, the
			// server deduplicates by change ID.
			m.requeue(ctx, queuedByType[dt])
			// Cycle-level conditions bubble out of the type loop.
			if kind := ts.failureKind; kind == syncerr.KindAuthFailed {
				m.requeueTypes(ctx, queuedByType, ordered[i+1:])
				err := syncerr.New(syncerr.KindAuthFailed, "sync", ts.failure)
				m.failCycle(err)
				return result, err
			} else if kind == syncerr.KindRateLimited {
				m.log.Warn(ctx, "rate limited, pausing cycle",
					"data_type", dt, "retry_after", syncerr.RetryAfterOf(ts.failure))
				m.requeueTypes(ctx, queuedByType, ordered[i+1:])
				m.setState(StatePaused)
				return result, ts.failure
			}
		}

		m.setProgress((i + 1) * 100 / len(ordered))
	}

	now := time.Now().UTC()
	m.mu.Lock()
	m.lastSync = &now
	m.errorMessage = ""
	m.state = StateIdle
	m.mu.Unlock()

	result.Success = allOK
	m.log.Info(ctx, "sync cycle finished",
		"uploaded", result.ChangesUploaded,
		"downloaded", result.ChangesDownloaded,
		"conflicts_resolved", result.ConflictsResolved,
		"success", result.Success)
	return result, nil
}

// syncType runs one data type's sub-cycle. Failures are captured in the
// returned TypeStatus so sibling types keep going.
func (m *Manager) syncType(ctx context.Context, dt change.DataType, queued []change.Change) TypeStatus {
	ts := TypeStatus{DataType: dt}

	if !m.account.TypeEnabled(dt) {
		return ts.fail(syncerr.Newf(syncerr.KindTypeNotEnabled, "sync",
			"data type %q is disabled in device settings", dt))
	}

	m.mu.Lock()
	src, ok := m.sources[dt]
	watermark := m.watermarks[dt]
	m.mu.Unlock()
	if !ok {
		return ts.fail(syncerr.Newf(syncerr.KindStorage, "sync",
			"no data source registered for %q", dt))
	}

	// Upload phase: local changes since the last successful sync plus
	// anything buffered offline, deduplicated by change ID.
	m.setState(StateUploading)

	local, err := src.GetChangesSince(ctx, watermark)
	if err != nil {
		return ts.fail(syncerr.New(syncerr.KindStorage, "get_changes", err))
	}
	local = dedupe(append(queued, local...))

	outbound := make([]change.Change, 0, len(local))
	for _, c := range local {
		wire, err := m.sealIfRequired(c)
		if err != nil {
			// Corrupt entity: surfaced, not silently dropped.
			ts.EntityErrors = append(ts.EntityErrors, entityError(c.EntityID, err))
			continue
		}
		outbound = append(outbound, wire)
	}

	if len(outbound) > 0 {
		resp, err := m.transport.Push(ctx, transport.PushRequest{
			DeviceID: m.cfg.DeviceID,
			DataType: dt,
			Changes:  outbound,
		})
		if err != nil {
			return ts.fail(err)
		}
		ts.Uploaded = resp.Accepted
	}

	// Download phase.
	m.setState(StateDownloading)

	pulled, err := m.transport.Pull(ctx, transport.PullRequest{
		DeviceID: m.cfg.DeviceID,
		DataType: dt,
		Since:    watermark,
	})
	if err != nil {
		return ts.fail(err)
	}

	remote := make([]change.Change, 0, len(pulled.Changes))
	for _, c := range pulled.Changes {
		if err := c.Validate(); err != nil {
			ts.EntityErrors = append(ts.EntityErrors,
				entityError(c.EntityID, syncerr.Entity(syncerr.KindInvalidData, "pull", c.EntityID, err)))
			continue
		}
		plain, err := m.openIfRequired(c)
		if err != nil {
			ts.EntityErrors = append(ts.EntityErrors, entityError(c.EntityID, err))
			continue
		}
		remote = append(remote, plain)
	}

	// Conflict resolution: pair remote changes against the locally pending
	// set we just sent.
	m.setState(StateResolvingConflicts)

	conflicts := conflict.Detect(local, remote)
	m.mu.Lock()
	m.conflictsDetected += len(conflicts)
	m.mu.Unlock()

	conflicting := make(map[string]bool, len(conflicts))
	toApply := make([]change.Change, 0, len(remote))
	for i := range conflicts {
		conflicting[conflicts[i].Remote.ID] = true
		resolved, err := conflicts[i].Resolve(m.resolver)
		if err != nil {
			ts.EntityErrors = append(ts.EntityErrors,
				entityError(conflicts[i].Local.EntityID, err))
			continue
		}
		toApply = append(toApply, resolved)
		ts.ConflictsResolved++
	}
	for _, c := range remote {
		if !conflicting[c.ID] {
			toApply = append(toApply, c)
		}
	}

	if len(toApply) > 0 {
		applied, err := src.ApplyChanges(ctx, toApply)
		if err != nil {
			return ts.fail(syncerr.New(syncerr.KindStorage, "apply_changes", err))
		}
		ts.Downloaded = applied
	}

	now := time.Now().UTC()
	m.mu.Lock()
	m.watermarks[dt] = now
	m.mu.Unlock()

	ts.Synced = true
	ts.LastSync = &now
	return ts
}

// sealIfRequired wraps the payload in an encrypted envelope for protected
// data types; other types travel as-is.
func (m *Manager) sealIfRequired(c change.Change) (change.Change, error) {
	if !c.DataType.RequiresEncryption() {
		return c, nil
	}
	if m.cipher == nil {
		return change.Change{}, syncerr.Entity(syncerr.KindEncryption, "encrypt", c.EntityID,
			fmt.Errorf("data type %q requires encryption but no key is configured", c.DataType))
	}
	ed, err := m.cipher.Encrypt(c.Data)
	if err != nil {
		return change.Change{}, err
	}
	raw, err := json.Marshal(ed)
	if err != nil {
		return change.Change{}, syncerr.Entity(syncerr.KindSerialization, "encrypt", c.EntityID, err)
	}
	c.Data = raw
	return c, nil
}

// openIfRequired reverses sealIfRequired on downloaded changes.
func (m *Manager) openIfRequired(c change.Change) (change.Change, error) {
	if !c.DataType.RequiresEncryption() {
		return c, nil
	}
	if m.cipher == nil {
		return change.Change{}, syncerr.Entity(syncerr.KindEncryption, "decrypt", c.EntityID,
			fmt.Errorf("data type %q requires encryption but no key is configured", c.DataType))
	}
	var ed cryptox.EncryptedData
	if err := json.Unmarshal(c.Data, &ed); err != nil {
		return change.Change{}, syncerr.Entity(syncerr.KindSerialization, "decrypt", c.EntityID, err)
	}
	plain, err := m.cipher.Decrypt(ed)
	if err != nil {
		return change.Change{}, syncerr.Entity(syncerr.KindEncryption, "decrypt", c.EntityID, err)
	}
	c.Data = plain
	return c, nil
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

func (m *Manager) setProgress(p int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress = &p
}

func (m *Manager) clearProgress() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress = nil
}

// requeue puts drained offline changes back so a later cycle retries them.
// A failed re-enqueue is logged; the change is still gone from the drained
// batch, so this is the one place data loss can occur, and only if local
// storage itself is failing.
func (m *Manager) requeue(ctx context.Context, changes []change.Change) {
	for _, c := range changes {
		if err := m.queue.Enqueue(ctx, c); err != nil {
			m.log.Error(ctx, "failed to requeue offline change",
				"change_id", c.ID, "entity_id", c.EntityID, "error", err)
		}
	}
}

// requeueTypes requeues the drained entries of every listed type.
func (m *Manager) requeueTypes(ctx context.Context, byType map[change.DataType][]change.Change, types []change.DataType) {
	for _, dt := range types {
		m.requeue(ctx, byType[dt])
	}
}

// failCycle records an unrecoverable cycle failure.
func (m *Manager) failCycle(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateError
	m.errorMessage = err.Error()
}

// dedupe drops repeated change IDs, keeping first occurrence order.
func dedupe(changes []change.Change) []change.Change {
	seen := make(map[string]bool, len(changes))
	out := changes[:0]
	for _, c := range changes {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}

func entityError(entityID string, err error) string {
	return fmt.Sprintf("%s: %v", entityID, err)
}
