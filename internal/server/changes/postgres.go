package changes

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nimbusbrowser/nimbus/internal/dbx"
	"github.com/nimbusbrowser/nimbus/internal/sync/change"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Save(ctx context.Context, userID string, c change.Change) (bool, error) {
	query := `
		INSERT INTO sync_changes (id, user_id, data_type, entity_id, operation, data, ts, device_id, version, previous_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING;
	`
	res, err := r.db.ExecContext(ctx, query,
		c.ID, userID, string(c.DataType), c.EntityID, string(c.Operation),
		[]byte(c.Data), c.Timestamp, c.DeviceID, int64(c.Version), c.PreviousHash)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

const selectColumns = `id, data_type, entity_id, operation, data, ts, device_id, version, previous_hash`

func (r *PostgresRepository) SelectSince(ctx context.Context, userID string, dt change.DataType, since time.Time, excludeDeviceID string) ([]change.Change, error) {
	query := ` SELECT ` + selectColumns + ` FROM sync_changes
		WHERE user_id=$1 AND data_type=$2 AND ts>$3 AND device_id<>$4
		ORDER BY ts, version
		`
	rows, err := r.db.QueryContext(ctx, query, userID, string(dt), since, excludeDeviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to select changes: %w", err)
	}
	return scanChanges(rows)
}

func (r *PostgresRepository) SelectAll(ctx context.Context, userID string, dt change.DataType) ([]change.Change, error) {
	query := ` SELECT ` + selectColumns + ` FROM sync_changes
		WHERE user_id=$1 AND data_type=$2
		ORDER BY ts, version
		`
	rows, err := r.db.QueryContext(ctx, query, userID, string(dt))
	if err != nil {
		return nil, fmt.Errorf("failed to select changes: %w", err)
	}
	return scanChanges(rows)
}

func (r *PostgresRepository) Users(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM sync_changes ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select users: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanChanges(rows *sql.Rows) ([]change.Change, error) {
	defer rows.Close()

	var result []change.Change
	for rows.Next() {
		var (
			item     change.Change
			dataType string
			op       string
			data     []byte
			version  int64
		)
		if err := rows.Scan(
			&item.ID, &dataType, &item.EntityID, &op, &data,
			&item.Timestamp, &item.DeviceID, &version, &item.PreviousHash,
		); err != nil {
			return nil, err
		}
		item.DataType = change.DataType(dataType)
		item.Operation = change.Operation(op)
		item.Data = data
		item.Version = uint64(version)
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
