// Package grpc exposes the sync service over gRPC with the engine's JSON
// codec, guarded by JWT auth and a per-device rate limit.
package grpc

import (
	"context"
	"database/sql"
	"net"

	"google.golang.org/grpc"

	"github.com/nimbusbrowser/nimbus/internal/dbx"
	"github.com/nimbusbrowser/nimbus/internal/logging"
	"github.com/nimbusbrowser/nimbus/internal/server/changes"
	"github.com/nimbusbrowser/nimbus/internal/server/ratelimit"
	"github.com/nimbusbrowser/nimbus/internal/sync/transport"
)

// RepoFactory binds a change repository to a DB or transaction handle, so
// Push can write its whole batch inside one transaction.
type RepoFactory func(dbx.DBTX) changes.Repository

type GRPCServer struct {
	address   string
	db        *sql.DB
	repo      RepoFactory
	limiter   *ratelimit.Limiter
	logger    logging.Logger
	jwtSecret []byte
}

func NewGRPCServer(a string, l logging.Logger, db *sql.DB, repo RepoFactory,
	limiter *ratelimit.Limiter, secretKey string) (*GRPCServer, error) {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		db:        db,
		repo:      repo,
		limiter:   limiter,
		jwtSecret: []byte(secretKey),
	}, nil
}

func (s *GRPCServer) Run(ctx context.Context) error {

	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		s.accessTokenInterceptor,
		s.rateLimitInterceptor,
	))

	transport.RegisterSyncServiceServer(srv, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
