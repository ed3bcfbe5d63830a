package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nimbusbrowser/nimbus/internal/dbx"
	"github.com/nimbusbrowser/nimbus/internal/sync/transport"
)

var _ transport.SyncServiceServer = (*GRPCServer)(nil)

// Push stores a batch of changes for the authenticated account. The whole
// batch is validated up front and written in one transaction; a re-pushed
// change is counted as accepted without being stored twice.
func (s *GRPCServer) Push(ctx context.Context, req *transport.PushRequest) (*transport.PushResponse, error) {
	userID, ok := UserIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing identity")
	}

	for _, c := range req.Changes {
		if err := c.Validate(); err != nil {
			return nil, status.Error(codes.InvalidArgument,
				fmt.Sprintf("change %s: %v", c.ID, err))
		}
		if c.DataType != req.DataType {
			return nil, status.Error(codes.InvalidArgument,
				fmt.Sprintf("change %s: data type %q does not match batch %q", c.ID, c.DataType, req.DataType))
		}
	}

	inserted := 0
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repo(tx)
		for _, c := range req.Changes {
			ok, err := repo.Save(ctx, userID, c)
			if err != nil {
				return err
			}
			if ok {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error(ctx, "push failed", "user_id", userID, "error", err.Error())
		return nil, status.Error(codes.Internal, "failed to store changes")
	}

	s.logger.Info(ctx, "push accepted",
		"user_id", userID, "device_id", req.DeviceID,
		"data_type", req.DataType, "received", len(req.Changes), "inserted", inserted)

	return &transport.PushResponse{Accepted: len(req.Changes)}, nil
}

// Pull returns the account's changes of one data type made strictly after
// Since by devices other than the caller.
func (s *GRPCServer) Pull(ctx context.Context, req *transport.PullRequest) (*transport.PullResponse, error) {
	userID, ok := UserIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing identity")
	}
	if !req.DataType.Valid() {
		return nil, status.Error(codes.InvalidArgument,
			fmt.Sprintf("unknown data type %q", req.DataType))
	}

	result, err := s.repo(s.db).SelectSince(ctx, userID, req.DataType, req.Since, req.DeviceID)
	if err != nil {
		s.logger.Error(ctx, "pull failed", "user_id", userID, "error", err.Error())
		return nil, status.Error(codes.Internal, "failed to load changes")
	}

	return &transport.PullResponse{Changes: result}, nil
}

// Ping is unauthenticated so clients can probe reachability before login.
func (s *GRPCServer) Ping(ctx context.Context, _ *transport.PingRequest) (*transport.PingResponse, error) {
	return &transport.PingResponse{Status: "ok"}, nil
}
