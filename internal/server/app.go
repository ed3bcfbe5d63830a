// Package server initializes and runs the sync server: it opens storage,
// wires the gRPC endpoint with auth and rate limiting, starts the snapshot
// archiver, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nimbusbrowser/nimbus/internal/dbx"
	"github.com/nimbusbrowser/nimbus/internal/logging"
	"github.com/nimbusbrowser/nimbus/internal/server/blob"
	"github.com/nimbusbrowser/nimbus/internal/server/changes"
	"github.com/nimbusbrowser/nimbus/internal/server/config"
	"github.com/nimbusbrowser/nimbus/internal/server/db"
	"github.com/nimbusbrowser/nimbus/internal/server/ratelimit"

	gs "github.com/nimbusbrowser/nimbus/internal/server/grpc"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	conn    *sql.DB
	limiter *ratelimit.Limiter
	job     *blob.Job
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	handler := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(handler)

	conn, err := db.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repo := changes.NewPostgresRepository(conn)
	archive := blob.NewArchive(c)
	job := blob.NewJob(repo, archive, logger, c.SnapshotInterval)

	// Disaster recovery: load an archived snapshot back into the change log
	// before accepting traffic.
	if c.RestoreSnapshotKey != "" {
		if _, err := job.Restore(ctx, c.RestoreSnapshotKey); err != nil {
			conn.Close()
			return nil, fmt.Errorf("snapshot restore error: %w", err)
		}
	}

	return &App{
		config:  c,
		logger:  logger,
		conn:    conn,
		limiter: ratelimit.New(c.RateLimitPerDevice, c.RateLimitBurst),
		job:     job,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s, err := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.conn,
		func(h dbx.DBTX) changes.Repository { return changes.NewPostgresRepository(h) },
		app.limiter, app.config.SecretKey)

	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
		return
	}

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.job.Run(ctx)
	}()

	wg.Wait()

	if err := app.conn.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err.Error())
	}
}
