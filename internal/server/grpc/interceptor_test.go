package grpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/nimbusbrowser/nimbus/internal/common"
	"github.com/nimbusbrowser/nimbus/internal/server/auth"
	"github.com/nimbusbrowser/nimbus/internal/server/ratelimit"
	"github.com/nimbusbrowser/nimbus/internal/sync/transport"
)

func passthrough(captured *context.Context) grpc.UnaryHandler {
	return func(ctx context.Context, req any) (any, error) {
		if captured != nil {
			*captured = ctx
		}
		return "ok", nil
	}
}

func TestAccessTokenInterceptor_ValidToken(t *testing.T) {
	s, _, db := newTestServer(t, &fakeRepo{})
	defer db.Close()

	token, err := auth.GenerateToken("u1", "dev-a", s.jwtSecret, time.Minute)
	require.NoError(t, err)

	ctx := metadata.NewIncomingContext(context.Background(),
		metadata.Pairs(common.AccessTokenHeaderName, token))

	var handlerCtx context.Context
	_, err = s.accessTokenInterceptor(ctx, nil,
		&grpc.UnaryServerInfo{FullMethod: transport.PushFullMethod},
		passthrough(&handlerCtx))
	require.NoError(t, err)

	userID, ok := UserIDFromContext(handlerCtx)
	require.True(t, ok)
	assert.Equal(t, "u1", userID)
	deviceID, ok := DeviceIDFromContext(handlerCtx)
	require.True(t, ok)
	assert.Equal(t, "dev-a", deviceID)
}

func TestAccessTokenInterceptor_MissingToken(t *testing.T) {
	s, _, db := newTestServer(t, &fakeRepo{})
	defer db.Close()

	_, err := s.accessTokenInterceptor(context.Background(), nil,
		&grpc.UnaryServerInfo{FullMethod: transport.PushFullMethod},
		passthrough(nil))
	require.Error(t, err)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestAccessTokenInterceptor_InvalidToken(t *testing.T) {
	s, _, db := newTestServer(t, &fakeRepo{})
	defer db.Close()

	ctx := metadata.NewIncomingContext(context.Background(),
		metadata.Pairs(common.AccessTokenHeaderName, "garbage"))

	_, err := s.accessTokenInterceptor(ctx, nil,
		&grpc.UnaryServerInfo{FullMethod: transport.PullFullMethod},
		passthrough(nil))
	require.Error(t, err)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestAccessTokenInterceptor_PingBypassesAuth(t *testing.T) {
	s, _, db := newTestServer(t, &fakeRepo{})
	defer db.Close()

	_, err := s.accessTokenInterceptor(context.Background(), nil,
		&grpc.UnaryServerInfo{FullMethod: transport.PingFullMethod},
		passthrough(nil))
	require.NoError(t, err)
}

func TestRateLimitInterceptor_RejectsWithRetryInfo(t *testing.T) {
	s, _, db := newTestServer(t, &fakeRepo{})
	defer db.Close()
	s.limiter = ratelimit.New(1, 1)

	ctx := authedCtx("u1", "dev-a")
	info := &grpc.UnaryServerInfo{FullMethod: transport.PushFullMethod}

	_, err := s.rateLimitInterceptor(ctx, nil, info, passthrough(nil))
	require.NoError(t, err, "first request fits the burst")

	_, err = s.rateLimitInterceptor(ctx, nil, info, passthrough(nil))
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.ResourceExhausted, st.Code())

	var found bool
	for _, d := range st.Details() {
		if ri, ok := d.(*errdetails.RetryInfo); ok {
			found = true
			assert.Greater(t, ri.GetRetryDelay().AsDuration(), time.Duration(0))
		}
	}
	assert.True(t, found, "rejection carries a RetryInfo detail")
}

func TestRateLimitInterceptor_DevicesLimitedIndependently(t *testing.T) {
	s, _, db := newTestServer(t, &fakeRepo{})
	defer db.Close()
	s.limiter = ratelimit.New(1, 1)

	info := &grpc.UnaryServerInfo{FullMethod: transport.PushFullMethod}

	_, err := s.rateLimitInterceptor(authedCtx("u1", "dev-a"), nil, info, passthrough(nil))
	require.NoError(t, err)
	_, err = s.rateLimitInterceptor(authedCtx("u1", "dev-a"), nil, info, passthrough(nil))
	require.Error(t, err)

	_, err = s.rateLimitInterceptor(authedCtx("u1", "dev-b"), nil, info, passthrough(nil))
	assert.NoError(t, err, "second device unaffected")
}

func TestRateLimitInterceptor_PingBypassesLimit(t *testing.T) {
	s, _, db := newTestServer(t, &fakeRepo{})
	defer db.Close()
	s.limiter = ratelimit.New(1, 1)

	info := &grpc.UnaryServerInfo{FullMethod: transport.PingFullMethod}
	for i := 0; i < 5; i++ {
		_, err := s.rateLimitInterceptor(context.Background(), nil, info, passthrough(nil))
		require.NoError(t, err)
	}
}
