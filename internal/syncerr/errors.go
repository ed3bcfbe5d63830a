// Package syncerr provides the typed error taxonomy of the sync engine.
//
// Every failure that crosses a package boundary is classified with a Kind so
// callers can decide between retrying, re-authenticating, pausing, or
// surfacing the failure to the user. Match with errors.As / the helpers below.
package syncerr

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a sync failure.
type Kind string

const (
	// KindNotLoggedIn: no authenticated account; the cycle never starts.
	KindNotLoggedIn Kind = "NOT_LOGGED_IN"
	// KindNetwork: transport-level failure, retryable with backoff.
	KindNetwork Kind = "NETWORK"
	// KindServerError: remote peer failed, retryable with backoff.
	KindServerError Kind = "SERVER_ERROR"
	// KindAuthFailed: credentials rejected; requires re-authentication.
	KindAuthFailed Kind = "AUTH_FAILED"
	// KindConflict: a specific entity's conflict could not be resolved.
	KindConflict Kind = "CONFLICT"
	// KindEncryption: bad ciphertext, wrong key, or envelope version mismatch.
	KindEncryption Kind = "ENCRYPTION"
	// KindSerialization: malformed JSON on a payload.
	KindSerialization Kind = "SERIALIZATION"
	// KindInvalidData: remote payload failed structural validation.
	KindInvalidData Kind = "INVALID_DATA"
	// KindRateLimited: remote asked us to back off; pause, do not fail.
	KindRateLimited Kind = "RATE_LIMITED"
	// KindSyncInProgress: a cycle for this account is already in flight.
	KindSyncInProgress Kind = "SYNC_IN_PROGRESS"
	// KindTypeNotEnabled: the requested data type is disabled on this device.
	KindTypeNotEnabled Kind = "TYPE_NOT_ENABLED"
	// KindSyncDisabled: syncing as a whole is switched off on this device.
	KindSyncDisabled Kind = "SYNC_DISABLED"
	// KindStorage: local persistence failure, fatal for the type's cycle.
	KindStorage Kind = "STORAGE"
	// KindInternal: catch-all; should be rare and always logged with context.
	KindInternal Kind = "INTERNAL"
)

// Error is a classified sync failure.
type Error struct {
	// Kind of failure.
	Kind Kind

	// Op is the operation during which the failure occurred, e.g. "push".
	Op string

	// EntityID is set for per-entity failures (conflicts, corrupt payloads).
	EntityID string

	// RetryAfter is the minimum delay before retrying, for KindRateLimited.
	RetryAfter time.Duration

	// Err is the underlying cause, may be nil.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("sync: %s failed [%s]", e.Op, e.Kind)
	if e.EntityID != "" {
		msg += fmt.Sprintf(" entity=%s", e.EntityID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error wrapping cause.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Newf builds a classified error from a format string.
func Newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Entity builds a per-entity error (conflict, corrupt payload).
func Entity(kind Kind, op, entityID string, cause error) *Error {
	return &Error{Kind: kind, Op: op, EntityID: entityID, Err: cause}
}

// RateLimited builds a KindRateLimited error carrying the remote's delay.
func RateLimited(op string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Op: op, RetryAfter: retryAfter}
}

// KindOf extracts the Kind from err, or KindInternal if err carries none.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == kind
}

// Retryable reports whether the caller may retry with backoff.
// Only transient transport/server failures qualify; everything else needs
// user action or is a hard failure.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindServerError:
		return true
	default:
		return false
	}
}

// RetryAfterOf returns the remote-imposed delay for rate-limited errors,
// and zero for everything else.
func RetryAfterOf(err error) time.Duration {
	var se *Error
	if errors.As(err, &se) && se.Kind == KindRateLimited {
		return se.RetryAfter
	}
	return 0
}
