package manager

import (
	"time"

	"github.com/nimbusbrowser/nimbus/internal/sync/change"
	"github.com/nimbusbrowser/nimbus/internal/syncerr"
)

// State is the orchestrator's position in a sync cycle. Idle is both the
// initial state and the terminal state of every completed cycle.
type State string

const (
	StateIdle               State = "idle"
	StateChecking           State = "checking"
	StateUploading          State = "uploading"
	StateDownloading        State = "downloading"
	StateResolvingConflicts State = "resolving_conflicts"
	StatePaused             State = "paused"
	StateError              State = "error"
)

// TypeStatus reports the outcome of one data type's sub-cycle. Per-type
// failures are isolated here instead of aborting sibling types.
type TypeStatus struct {
	DataType          change.DataType `json:"data_type"`
	Synced            bool            `json:"synced"`
	Uploaded          int             `json:"uploaded"`
	Downloaded        int             `json:"downloaded"`
	ConflictsResolved int             `json:"conflicts_resolved"`
	LastSync          *time.Time      `json:"last_sync,omitempty"`
	Error             string          `json:"error,omitempty"`

	// EntityErrors lists per-entity corruption/conflict failures that were
	// surfaced without failing the type. Never silently dropped.
	EntityErrors []string `json:"entity_errors,omitempty"`

	// failure keeps the classified error so the orchestrator can promote
	// auth failures and rate limiting to cycle-level outcomes.
	failure     error
	failureKind syncerr.Kind
}

// fail marks the sub-cycle failed and records the classified cause.
func (ts TypeStatus) fail(err error) TypeStatus {
	ts.Synced = false
	ts.Error = err.Error()
	ts.failure = err
	ts.failureKind = syncerr.KindOf(err)
	return ts
}

// Status is a point-in-time snapshot of the sync engine.
type Status struct {
	State             State           `json:"state"`
	LastSync          *time.Time      `json:"last_sync,omitempty"`
	PendingChanges    int             `json:"pending_changes"`
	ConflictsDetected int             `json:"conflicts_detected"`
	TypeStatus        []TypeStatus    `json:"type_status"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	IsEnabled         bool            `json:"is_enabled"`
	Progress          *int            `json:"progress,omitempty"`
}

// Result summarizes one sync cycle.
type Result struct {
	Success           bool         `json:"success"`
	ChangesUploaded   int          `json:"changes_uploaded"`
	ChangesDownloaded int          `json:"changes_downloaded"`
	ConflictsResolved int          `json:"conflicts_resolved"`
	DurationMS        int64        `json:"duration_ms"`
	TypeResults       []TypeStatus `json:"type_results"`
}
