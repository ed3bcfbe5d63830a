package source

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nimbusbrowser/nimbus/internal/sync/change"
)

func TestMemory_GetChangesSince_StrictlyAfter(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(change.Bookmarks, "bookmarks-store")

	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	older := change.New(change.Bookmarks, "bm-1", change.OpCreate, nil, "dev-a").WithTimestamp(t0)
	newer := change.New(change.Bookmarks, "bm-2", change.OpCreate, nil, "dev-a").WithTimestamp(t0.Add(time.Minute))
	m.Record(older)
	m.Record(newer)

	got, err := m.GetChangesSince(ctx, t0)
	require.NoError(t, err)
	require.Len(t, got, 1, "changes at exactly the watermark are excluded")
	require.Equal(t, newer.ID, got[0].ID)

	got, err = m.GetChangesSince(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestMemory_ApplyChanges_Idempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(change.Bookmarks, "bookmarks-store")

	c := change.New(change.Bookmarks, "bm-1", change.OpCreate,
		json.RawMessage(`{"title":"Go"}`), "dev-b")

	n, err := m.ApplyChanges(ctx, []change.Change{c})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = m.ApplyChanges(ctx, []change.Change{c})
	require.NoError(t, err)
	require.Zero(t, n, "applying the same change twice must not duplicate effects")

	got, ok := m.Entity("bm-1")
	require.True(t, ok)
	require.Equal(t, c.ID, got.ID)
}

func TestMemory_DeleteRemovesEntity(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(change.OpenTabs, "tabs-store")

	create := change.New(change.OpenTabs, "tab-1", change.OpCreate, nil, "dev-a")
	del := change.New(change.OpenTabs, "tab-1", change.OpDelete, nil, "dev-a")
	_, err := m.ApplyChanges(ctx, []change.Change{create, del})
	require.NoError(t, err)

	_, ok := m.Entity("tab-1")
	require.False(t, ok)

	all, err := m.GetAllData(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestMemory_ClearSyncData(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(change.History, "history-store")
	m.Record(change.New(change.History, "h-1", change.OpCreate, nil, "dev-a"))

	require.NoError(t, m.ClearSyncData(ctx))

	all, err := m.GetAllData(ctx)
	require.NoError(t, err)
	require.Empty(t, all)

	got, err := m.GetChangesSince(ctx, time.Time{})
	require.NoError(t, err)
	require.Empty(t, got)
}
