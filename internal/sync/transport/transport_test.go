package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/nimbusbrowser/nimbus/internal/sync/change"
	"github.com/nimbusbrowser/nimbus/internal/syncerr"
)

func TestJSONCodec_RoundTrip(t *testing.T) {
	c := change.New(change.Bookmarks, "bm-1", change.OpCreate,
		[]byte(`{"title":"Go"}`), "dev-a")
	req := PushRequest{DeviceID: "dev-a", DataType: change.Bookmarks, Changes: []change.Change{c}}

	codec := jsonCodec{}
	raw, err := codec.Marshal(req)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"data_type":"bookmarks"`)
	require.Contains(t, string(raw), `"operation":"create"`)

	var back PushRequest
	require.NoError(t, codec.Unmarshal(raw, &back))
	require.Equal(t, req.DeviceID, back.DeviceID)
	require.Len(t, back.Changes, 1)
	require.Equal(t, c.ID, back.Changes[0].ID)

	require.Equal(t, CodecName, codec.Name())
	require.Error(t, codec.Unmarshal([]byte("{"), &back))
}

func TestClassify_StatusCodes(t *testing.T) {
	tests := []struct {
		code codes.Code
		want syncerr.Kind
	}{
		{codes.Unauthenticated, syncerr.KindAuthFailed},
		{codes.PermissionDenied, syncerr.KindAuthFailed},
		{codes.InvalidArgument, syncerr.KindInvalidData},
		{codes.Unavailable, syncerr.KindNetwork},
		{codes.DeadlineExceeded, syncerr.KindNetwork},
		{codes.Internal, syncerr.KindServerError},
		{codes.Unknown, syncerr.KindServerError},
	}
	for _, tc := range tests {
		err := classify("push", status.Error(tc.code, "boom"))
		require.True(t, syncerr.IsKind(err, tc.want), "code %s → %s, got %v", tc.code, tc.want, err)
	}
}

func TestClassify_NonStatusErrorIsNetwork(t *testing.T) {
	err := classify("push", errors.New("connection reset"))
	require.True(t, syncerr.IsKind(err, syncerr.KindNetwork))
}

func TestClassify_RateLimitedCarriesRetryDelay(t *testing.T) {
	st, err := status.New(codes.ResourceExhausted, "slow down").
		WithDetails(&errdetails.RetryInfo{RetryDelay: durationpb.New(42 * time.Second)})
	require.NoError(t, err)

	got := classify("push", st.Err())
	require.True(t, syncerr.IsKind(got, syncerr.KindRateLimited))
	require.Equal(t, 42*time.Second, syncerr.RetryAfterOf(got))
}

func TestClassify_RateLimitedWithoutDetailsUsesDefault(t *testing.T) {
	got := classify("push", status.Error(codes.ResourceExhausted, "slow down"))
	require.True(t, syncerr.IsKind(got, syncerr.KindRateLimited))
	require.Equal(t, defaultRetryAfter, syncerr.RetryAfterOf(got))
}

func TestTransient(t *testing.T) {
	require.True(t, transient(status.Error(codes.Unavailable, "down")))
	require.True(t, transient(status.Error(codes.DeadlineExceeded, "slow")))
	require.False(t, transient(status.Error(codes.Unauthenticated, "no")))
	require.False(t, transient(status.Error(codes.ResourceExhausted, "limit")))
}
