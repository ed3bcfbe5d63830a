package grpc

import (
	"context"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/nimbusbrowser/nimbus/internal/common"
	"github.com/nimbusbrowser/nimbus/internal/server/auth"
	"github.com/nimbusbrowser/nimbus/internal/sync/transport"
)

type ctxKey string

const (
	userIDKey   ctxKey = "userID"
	deviceIDKey ctxKey = "deviceID"
)

// UserIDFromContext returns the authenticated account ID placed by the
// access-token interceptor.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}

// DeviceIDFromContext returns the authenticated device ID placed by the
// access-token interceptor.
func DeviceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(deviceIDKey).(string)
	return id, ok
}

// accessTokenInterceptor authenticates every method except Ping by the JWT
// in the access_token metadata entry.
func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {

	if info.FullMethod != transport.PingFullMethod {

		var accessToken string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			values := md.Get(common.AccessTokenHeaderName)
			if len(values) > 0 {
				accessToken = values[0]
			}
		}
		if len(accessToken) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing token")
		}

		claims, err := auth.ParseToken(accessToken, s.jwtSecret)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}

		ctx = context.WithValue(ctx, userIDKey, claims.UserID)
		ctx = context.WithValue(ctx, deviceIDKey, claims.DeviceID)
	}

	return handler(ctx, req)
}

// rateLimitInterceptor enforces the per-device token bucket. Rejections
// carry a RetryInfo detail so clients know how long to pause.
func (s *GRPCServer) rateLimitInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {

	if info.FullMethod != transport.PingFullMethod {
		userID, _ := UserIDFromContext(ctx)
		deviceID, _ := DeviceIDFromContext(ctx)

		if ok, retryAfter := s.limiter.Allow(userID + "/" + deviceID); !ok {
			st := status.New(codes.ResourceExhausted, "rate limit exceeded")
			if detailed, err := st.WithDetails(&errdetails.RetryInfo{
				RetryDelay: durationpb.New(retryAfter),
			}); err == nil {
				st = detailed
			}
			return nil, st.Err()
		}
	}

	return handler(ctx, req)
}
