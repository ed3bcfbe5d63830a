package transport

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/nimbusbrowser/nimbus/internal/common"
	"github.com/nimbusbrowser/nimbus/internal/logging"
	"github.com/nimbusbrowser/nimbus/internal/syncerr"
)

const (
	// defaultRetryAfter applies when the server rate-limits without
	// attaching an explicit delay.
	defaultRetryAfter = 30 * time.Second

	retryBase = 500 * time.Millisecond
	retryMax  = 3
)

// TokenProvider supplies the current access token for outbound calls.
// It is a function so refreshed tokens take effect without re-dialing.
type TokenProvider func() string

// GRPCClient is the Transport implementation over a gRPC connection with
// the JSON codec. Transient transport failures are retried with exponential
// backoff before being reported as Network errors.
type GRPCClient struct {
	conn  *grpc.ClientConn
	token TokenProvider
	log   logging.Logger
}

var _ Transport = (*GRPCClient)(nil)

// NewGRPCClient dials addr lazily and returns a ready client.
func NewGRPCClient(addr string, token TokenProvider, log logging.Logger) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, syncerr.New(syncerr.KindNetwork, "dial", err)
	}
	return &GRPCClient{
		conn:  conn,
		token: token,
		log:   log.With("module", "transport"),
	}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) Push(ctx context.Context, req PushRequest) (*PushResponse, error) {
	resp := new(PushResponse)
	if err := c.invoke(ctx, "push", PushFullMethod, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *GRPCClient) Pull(ctx context.Context, req PullRequest) (*PullResponse, error) {
	resp := new(PullResponse)
	if err := c.invoke(ctx, "pull", PullFullMethod, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *GRPCClient) Ping(ctx context.Context) error {
	return c.invoke(ctx, "ping", PingFullMethod, PingRequest{}, new(PingResponse))
}

func (c *GRPCClient) invoke(ctx context.Context, op, method string, req, resp any) error {
	ctx = c.withAccessToken(ctx)

	backoff := retry.WithMaxRetries(retryMax, retry.NewExponential(retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.conn.Invoke(ctx, method, req, resp)
		if err != nil && transient(err) {
			c.log.Warn(ctx, "transient transport failure, will retry", "method", method, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return classify(op, err)
	}
	return nil
}

func (c *GRPCClient) withAccessToken(ctx context.Context) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, c.token())
	return metadata.NewOutgoingContext(ctx, md)
}

// transient reports whether the failure is worth an in-call retry.
func transient(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}

// classify maps a gRPC failure onto the sync error taxonomy.
func classify(op string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return syncerr.New(syncerr.KindNetwork, op, err)
	}

	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return syncerr.New(syncerr.KindAuthFailed, op, err)
	case codes.ResourceExhausted:
		return syncerr.RateLimited(op, retryAfterOf(st))
	case codes.InvalidArgument:
		return syncerr.New(syncerr.KindInvalidData, op, err)
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return syncerr.New(syncerr.KindNetwork, op, err)
	default:
		return syncerr.New(syncerr.KindServerError, op, err)
	}
}

// retryAfterOf extracts the server-imposed delay from status details.
func retryAfterOf(st *status.Status) time.Duration {
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.RetryInfo); ok && info.GetRetryDelay() != nil {
			return info.GetRetryDelay().AsDuration()
		}
	}
	return defaultRetryAfter
}
