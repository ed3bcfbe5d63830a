package grpc

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nimbusbrowser/nimbus/internal/dbx"
	"github.com/nimbusbrowser/nimbus/internal/logging"
	"github.com/nimbusbrowser/nimbus/internal/server/changes"
	"github.com/nimbusbrowser/nimbus/internal/server/ratelimit"
	"github.com/nimbusbrowser/nimbus/internal/sync/change"
	"github.com/nimbusbrowser/nimbus/internal/sync/transport"
)

// fakeRepo records saves and serves scripted pulls.
type fakeRepo struct {
	saved   []change.Change
	saveErr error
	since   []change.Change
	all     []change.Change
	users   []string
}

func (f *fakeRepo) Save(_ context.Context, _ string, c change.Change) (bool, error) {
	if f.saveErr != nil {
		return false, f.saveErr
	}
	for _, s := range f.saved {
		if s.ID == c.ID {
			return false, nil
		}
	}
	f.saved = append(f.saved, c)
	return true, nil
}

func (f *fakeRepo) SelectSince(context.Context, string, change.DataType, time.Time, string) ([]change.Change, error) {
	return f.since, nil
}

func (f *fakeRepo) SelectAll(context.Context, string, change.DataType) ([]change.Change, error) {
	return f.all, nil
}

func (f *fakeRepo) Users(context.Context) ([]string, error) {
	return f.users, nil
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestServer(t *testing.T, repo changes.Repository) (*GRPCServer, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	s, err := NewGRPCServer(":0", testLogger(), db,
		func(dbx.DBTX) changes.Repository { return repo },
		ratelimit.New(100, 100), "secret")
	require.NoError(t, err)
	return s, mock, db
}

func authedCtx(userID, deviceID string) context.Context {
	ctx := context.WithValue(context.Background(), userIDKey, userID)
	return context.WithValue(ctx, deviceIDKey, deviceID)
}

func TestPush(t *testing.T) {
	repo := &fakeRepo{}
	s, mock, db := newTestServer(t, repo)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	c1 := change.New(change.Bookmarks, "bm-1", change.OpCreate, []byte(`{"title":"a"}`), "dev-a")
	c2 := change.New(change.Bookmarks, "bm-2", change.OpCreate, []byte(`{"title":"b"}`), "dev-a")

	resp, err := s.Push(authedCtx("u1", "dev-a"), &transport.PushRequest{
		DeviceID: "dev-a",
		DataType: change.Bookmarks,
		Changes:  []change.Change{c1, c2},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Accepted)
	assert.Len(t, repo.saved, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPush_RePushIsIdempotent(t *testing.T) {
	repo := &fakeRepo{}
	s, mock, db := newTestServer(t, repo)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	c := change.New(change.Bookmarks, "bm-1", change.OpCreate, []byte(`{}`), "dev-a")
	req := &transport.PushRequest{DeviceID: "dev-a", DataType: change.Bookmarks, Changes: []change.Change{c}}

	resp, err := s.Push(authedCtx("u1", "dev-a"), req)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Accepted)

	resp, err = s.Push(authedCtx("u1", "dev-a"), req)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Accepted, "duplicate still counts as accepted")
	assert.Len(t, repo.saved, 1, "stored once")
}

func TestPush_InvalidChangeRejected(t *testing.T) {
	s, _, db := newTestServer(t, &fakeRepo{})
	defer db.Close()

	invalid := change.Change{DataType: change.Bookmarks, EntityID: "bm-1"}
	_, err := s.Push(authedCtx("u1", "dev-a"), &transport.PushRequest{
		DeviceID: "dev-a",
		DataType: change.Bookmarks,
		Changes:  []change.Change{invalid},
	})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestPush_MismatchedDataTypeRejected(t *testing.T) {
	s, _, db := newTestServer(t, &fakeRepo{})
	defer db.Close()

	c := change.New(change.History, "h-1", change.OpCreate, []byte(`{}`), "dev-a")
	_, err := s.Push(authedCtx("u1", "dev-a"), &transport.PushRequest{
		DeviceID: "dev-a",
		DataType: change.Bookmarks,
		Changes:  []change.Change{c},
	})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestPush_NoIdentity(t *testing.T) {
	s, _, db := newTestServer(t, &fakeRepo{})
	defer db.Close()

	_, err := s.Push(context.Background(), &transport.PushRequest{DataType: change.Bookmarks})
	require.Error(t, err)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestPush_RepoErrorRollsBack(t *testing.T) {
	repo := &fakeRepo{saveErr: errors.New("disk full")}
	s, mock, db := newTestServer(t, repo)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	c := change.New(change.Bookmarks, "bm-1", change.OpCreate, []byte(`{}`), "dev-a")
	_, err := s.Push(authedCtx("u1", "dev-a"), &transport.PushRequest{
		DeviceID: "dev-a", DataType: change.Bookmarks, Changes: []change.Change{c},
	})
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPull(t *testing.T) {
	remote := change.New(change.Bookmarks, "bm-r", change.OpCreate, []byte(`{}`), "dev-b")
	s, _, db := newTestServer(t, &fakeRepo{since: []change.Change{remote}})
	defer db.Close()

	resp, err := s.Pull(authedCtx("u1", "dev-a"), &transport.PullRequest{
		DeviceID: "dev-a",
		DataType: change.Bookmarks,
		Since:    time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, resp.Changes, 1)
	assert.Equal(t, remote.ID, resp.Changes[0].ID)
}

func TestPull_UnknownDataType(t *testing.T) {
	s, _, db := newTestServer(t, &fakeRepo{})
	defer db.Close()

	_, err := s.Pull(authedCtx("u1", "dev-a"), &transport.PullRequest{DataType: "cookies"})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestPing(t *testing.T) {
	s, _, db := newTestServer(t, &fakeRepo{})
	defer db.Close()

	resp, err := s.Ping(context.Background(), &transport.PingRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}
