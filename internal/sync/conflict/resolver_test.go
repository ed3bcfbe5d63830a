package conflict

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nimbusbrowser/nimbus/internal/sync/change"
	"github.com/nimbusbrowser/nimbus/internal/syncerr"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func pair(t *testing.T, localData, remoteData string, localOffset, remoteOffset time.Duration) (change.Change, change.Change) {
	t.Helper()
	local := change.New(change.Bookmarks, "bm-1", change.OpUpdate, json.RawMessage(localData), "dev-local").
		WithTimestamp(baseTime.Add(localOffset))
	remote := change.New(change.Bookmarks, "bm-1", change.OpUpdate, json.RawMessage(remoteData), "dev-remote").
		WithTimestamp(baseTime.Add(remoteOffset))
	return local, remote
}

func TestNewResolver(t *testing.T) {
	r, err := NewResolver("")
	require.NoError(t, err)
	require.Equal(t, LastWriteWins, r.Strategy())

	_, err = NewResolver("newest_wins")
	require.Error(t, err)
}

func TestLastWriteWins_LaterTimestampWins(t *testing.T) {
	r, _ := NewResolver(LastWriteWins)

	local, remote := pair(t, `{"title":"local"}`, `{"title":"remote"}`, time.Second, 0)
	got, err := r.Resolve(local, remote)
	require.NoError(t, err)
	require.Equal(t, local.Data, got.Data)

	local, remote = pair(t, `{"title":"local"}`, `{"title":"remote"}`, 0, time.Second)
	got, err = r.Resolve(local, remote)
	require.NoError(t, err)
	require.Equal(t, remote.Data, got.Data)
}

func TestLastWriteWins_TieBreaks(t *testing.T) {
	r, _ := NewResolver(LastWriteWins)

	// exact timestamp tie: higher version wins
	local, remote := pair(t, `{"v":"local"}`, `{"v":"remote"}`, 0, 0)
	local = local.WithVersion(2)
	remote = remote.WithVersion(5)
	got, err := r.Resolve(local, remote)
	require.NoError(t, err)
	require.Equal(t, remote.ID, got.ID)

	// full tie: local wins
	remote = remote.WithVersion(2)
	got, err = r.Resolve(local, remote)
	require.NoError(t, err)
	require.Equal(t, local.ID, got.ID)
}

func TestLocalWins_RemoteWins(t *testing.T) {
	local, remote := pair(t, `{"v":"local"}`, `{"v":"remote"}`, 0, time.Hour)

	r, _ := NewResolver(LocalWins)
	got, err := r.Resolve(local, remote)
	require.NoError(t, err)
	require.Equal(t, local.ID, got.ID, "LocalWins ignores timestamps")

	r, _ = NewResolver(RemoteWins)
	local, remote = pair(t, `{"v":"local"}`, `{"v":"remote"}`, time.Hour, 0)
	got, err = r.Resolve(local, remote)
	require.NoError(t, err)
	require.Equal(t, remote.ID, got.ID, "RemoteWins ignores timestamps")
}

func TestMerge_FieldUnion(t *testing.T) {
	r, _ := NewResolver(Merge)

	// local is older, remote is newer: b comes from remote
	local, remote := pair(t, `{"a":1,"b":2}`, `{"b":3,"c":4}`, 0, time.Second)
	local = local.WithVersion(4)
	remote = remote.WithVersion(2)

	got, err := r.Resolve(local, remote)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1,"b":3,"c":4}`, string(got.Data))
	require.True(t, got.Timestamp.Equal(remote.Timestamp), "timestamp = max(local, remote)")
	require.EqualValues(t, 5, got.Version, "version = max(local, remote)+1")
	require.NotEqual(t, local.ID, got.ID, "merge mints a new change")
	require.NotEqual(t, remote.ID, got.ID)
	require.NoError(t, got.Validate())
}

func TestMerge_LocalNewerKeepsLocalFields(t *testing.T) {
	r, _ := NewResolver(Merge)

	local, remote := pair(t, `{"a":1,"b":2}`, `{"b":3,"c":4}`, time.Second, 0)
	got, err := r.Resolve(local, remote)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1,"b":2,"c":4}`, string(got.Data))
}

func TestMerge_RemoteWinsSharedKeysOnTie(t *testing.T) {
	r, _ := NewResolver(Merge)

	local, remote := pair(t, `{"b":2}`, `{"b":3}`, 0, 0)
	got, err := r.Resolve(local, remote)
	require.NoError(t, err)
	require.JSONEq(t, `{"b":3}`, string(got.Data))
}

func TestMerge_NonObjectPayloadFallsBackToLastWriteWins(t *testing.T) {
	r, _ := NewResolver(Merge)

	local, remote := pair(t, `"plain string"`, `{"b":3}`, time.Second, 0)
	got, err := r.Resolve(local, remote)
	require.NoError(t, err)
	require.Equal(t, local.ID, got.ID, "fallback keeps the newer side unchanged")
	require.Equal(t, local.Data, got.Data)
	require.Equal(t, local.Version, got.Version, "fallback does not bump the version")
}

func TestKeepBoth_DegradesToNewerSide(t *testing.T) {
	r, _ := NewResolver(KeepBoth)

	local, remote := pair(t, `{"v":"local"}`, `{"v":"remote"}`, 0, time.Second)
	got, err := r.Resolve(local, remote)
	require.NoError(t, err)
	require.Equal(t, remote.ID, got.ID)
}

func TestResolve_Deterministic(t *testing.T) {
	for _, s := range []Strategy{LastWriteWins, LocalWins, RemoteWins, Merge, KeepBoth} {
		r, err := NewResolver(s)
		require.NoError(t, err)

		local, remote := pair(t, `{"a":1,"b":2}`, `{"b":3,"c":4}`, 0, time.Second)
		first, err := r.Resolve(local, remote)
		require.NoError(t, err)

		for range 5 {
			again, err := r.Resolve(local, remote)
			require.NoError(t, err)
			require.Equal(t, first, again, "strategy %s must be deterministic", s)
		}
	}
}

func TestResolve_RejectsNonConflictingPair(t *testing.T) {
	r, _ := NewResolver(LastWriteWins)

	a := change.New(change.Bookmarks, "bm-1", change.OpUpdate, nil, "dev-a")
	b := change.New(change.Bookmarks, "bm-2", change.OpUpdate, nil, "dev-b")

	_, err := r.Resolve(a, b)
	require.Error(t, err)
	require.True(t, syncerr.IsKind(err, syncerr.KindConflict))
}

func TestConflict_ResolveRecordsOutcomeAndIsIdempotent(t *testing.T) {
	r, _ := NewResolver(LastWriteWins)
	local, remote := pair(t, `{"v":"local"}`, `{"v":"remote"}`, time.Second, 0)

	c := Conflict{Local: local, Remote: remote}
	first, err := c.Resolve(r)
	require.NoError(t, err)
	require.NotNil(t, c.Resolved)
	require.Equal(t, LastWriteWins, c.Strategy)
	require.Equal(t, first, *c.Resolved)

	second, err := c.Resolve(r)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestDetect(t *testing.T) {
	l1 := change.New(change.Bookmarks, "bm-1", change.OpUpdate, nil, "dev-a")
	l2 := change.New(change.History, "h-1", change.OpCreate, nil, "dev-a")
	r1 := change.New(change.Bookmarks, "bm-1", change.OpUpdate, nil, "dev-b")
	r2 := change.New(change.Bookmarks, "bm-2", change.OpUpdate, nil, "dev-b")

	conflicts := Detect([]change.Change{l1, l2}, []change.Change{r1, r2})
	require.Len(t, conflicts, 1)
	require.Equal(t, l1.ID, conflicts[0].Local.ID)
	require.Equal(t, r1.ID, conflicts[0].Remote.ID)

	// the same change seen on both sides is not a conflict
	conflicts = Detect([]change.Change{l1}, []change.Change{l1})
	require.Empty(t, conflicts)
}
