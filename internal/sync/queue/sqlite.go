package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/nimbusbrowser/nimbus/internal/dbx"
	"github.com/nimbusbrowser/nimbus/internal/sync/change"
	"github.com/nimbusbrowser/nimbus/internal/sync/queue/migrations"
	"github.com/nimbusbrowser/nimbus/internal/syncerr"
)

// SQLite is a durable queue backed by a local SQLite database. Entries
// survive restarts; FIFO order is the insertion order of the seq column.
type SQLite struct {
	db *sql.DB
}

var _ Queue = (*SQLite)(nil)

// NewSQLite opens (or creates) the queue database at dsn and applies the
// embedded goose migrations.
func NewSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, syncerr.New(syncerr.KindStorage, "queue_open", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, syncerr.New(syncerr.KindStorage, "queue_migrate", err)
	}
	return &SQLite{db: db}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// Close releases the underlying database handle.
func (q *SQLite) Close() error {
	return q.db.Close()
}

func (q *SQLite) Enqueue(ctx context.Context, c change.Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return syncerr.New(syncerr.KindSerialization, "enqueue", err)
	}
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO offline_queue (change_id, payload, enqueued_at) VALUES (?, ?, ?)`,
		c.ID, string(payload), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return syncerr.New(syncerr.KindStorage, "enqueue", err)
	}
	return nil
}

// Drain reads and deletes every entry inside one transaction, so a
// concurrent Enqueue either lands before the drain (and is returned) or
// after it (and stays queued); nothing is lost or double-delivered.
func (q *SQLite) Drain(ctx context.Context) ([]QueuedChange, error) {
	var out []QueuedChange
	err := dbx.WithTx(ctx, q.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT payload, enqueued_at FROM offline_queue ORDER BY seq`)
		if err != nil {
			return fmt.Errorf("failed to select queued changes: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var payload, enqueuedAt string
			if err := rows.Scan(&payload, &enqueuedAt); err != nil {
				return err
			}
			ts, err := time.Parse(time.RFC3339Nano, enqueuedAt)
			if err != nil {
				return fmt.Errorf("corrupt enqueued_at: %w", err)
			}
			var c change.Change
			if err := json.Unmarshal([]byte(payload), &c); err != nil {
				return fmt.Errorf("corrupt queue payload: %w", err)
			}
			out = append(out, QueuedChange{Change: c, EnqueuedAt: ts})
		}
		if err := rows.Err(); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM offline_queue`)
		return err
	})
	if err != nil {
		return nil, syncerr.New(syncerr.KindStorage, "drain", err)
	}
	return out, nil
}

func (q *SQLite) Len(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM offline_queue`).Scan(&n)
	if err != nil {
		return 0, syncerr.New(syncerr.KindStorage, "len", err)
	}
	return n, nil
}
