package blob

import (
	"context"
	"time"

	"github.com/nimbusbrowser/nimbus/internal/logging"
	"github.com/nimbusbrowser/nimbus/internal/server/changes"
	"github.com/nimbusbrowser/nimbus/internal/sync/change"
)

// snapshotStore is the slice of Archive the job needs, split out so tests
// can substitute a fake.
type snapshotStore interface {
	StoreSnapshot(ctx context.Context, userID string, dt change.DataType, cs []change.Change) (string, error)
	FetchSnapshot(ctx context.Context, key string) (*Snapshot, error)
}

// Job periodically archives every account's change log. A failed account or
// data type is logged and skipped; one bad account must not starve the rest.
type Job struct {
	repo     changes.Repository
	store    snapshotStore
	logger   logging.Logger
	interval time.Duration
}

func NewJob(repo changes.Repository, store snapshotStore, logger logging.Logger, interval time.Duration) *Job {
	return &Job{
		repo:     repo,
		store:    store,
		logger:   logger.With("module", "snapshot_job"),
		interval: interval,
	}
}

// Run archives on every tick until ctx is cancelled.
func (j *Job) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// Restore loads an archived snapshot back into the change log, for disaster
// recovery. Saving is keyed by change ID, so restoring over a partially
// intact log only fills the gaps. Returns how many changes were inserted.
func (j *Job) Restore(ctx context.Context, key string) (int, error) {
	snap, err := j.store.FetchSnapshot(ctx, key)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, c := range snap.Changes {
		inserted, err := j.repo.Save(ctx, snap.UserID, c)
		if err != nil {
			return restored, err
		}
		if inserted {
			restored++
		}
	}

	j.logger.Info(ctx, "snapshot restored",
		"user_id", snap.UserID, "data_type", snap.DataType,
		"key", key, "changes", len(snap.Changes), "inserted", restored)
	return restored, nil
}

// RunOnce archives a snapshot per (account, data type) pair that has any
// changes.
func (j *Job) RunOnce(ctx context.Context) {
	users, err := j.repo.Users(ctx)
	if err != nil {
		j.logger.Error(ctx, "failed to list accounts", "error", err.Error())
		return
	}

	for _, userID := range users {
		for _, dt := range change.AllDataTypes() {
			cs, err := j.repo.SelectAll(ctx, userID, dt)
			if err != nil {
				j.logger.Error(ctx, "failed to load changes",
					"user_id", userID, "data_type", dt, "error", err.Error())
				continue
			}
			if len(cs) == 0 {
				continue
			}

			key, err := j.store.StoreSnapshot(ctx, userID, dt, cs)
			if err != nil {
				j.logger.Error(ctx, "failed to archive snapshot",
					"user_id", userID, "data_type", dt, "error", err.Error())
				continue
			}
			j.logger.Info(ctx, "snapshot archived",
				"user_id", userID, "data_type", dt, "key", key, "changes", len(cs))
		}
	}
}
