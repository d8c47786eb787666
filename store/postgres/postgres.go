// Package postgres implements store.SchedulingQueueStore and
// store.LiveActionStore on PostgreSQL via pgx, adapted from the teacher's
// PostgresStore (store/postgres.go): a pooled pgxpool.Pool, CAS expressed as
// a conditional UPDATE guarded by a revision column, loss detected when the
// UPDATE ... RETURNING matches no row (pgx.ErrNoRows).
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stormforge/actionscheduler/action"
	"github.com/stormforge/actionscheduler/store"
)

// QueueStore is a store.SchedulingQueueStore backed by PostgreSQL.
type QueueStore struct {
	pool *pgxpool.Pool
}

// NewPool opens a pooled connection to connString with the teacher's
// defaults for a moderate-concurrency control plane. Shared by QueueStore and
// LiveActionStore so both can point at the same database when the deployment
// doesn't split them.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 50
	cfg.MinConns = 5
	cfg.MaxConnLifetime = time.Hour
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}
	return pool, nil
}

// NewQueueStore connects a pooled QueueStore.
func NewQueueStore(ctx context.Context, connString string) (*QueueStore, error) {
	pool, err := NewPool(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &QueueStore{pool: pool}, nil
}

func (s *QueueStore) Close() { s.pool.Close() }

func (s *QueueStore) QueryReady(ctx context.Context, now time.Time) (*action.QueueItem, error) {
	// Ties at equal timestamps break by item ID, not insertion order.
	query := `
		SELECT id, liveaction_id, scheduled_start_timestamp, handling,
		       original_start_timestamp, action_execution_id, delay_ms, revision, updated_at
		FROM scheduling_queue_items
		WHERE handling = false AND scheduled_start_timestamp <= $1
		ORDER BY scheduled_start_timestamp ASC, id ASC
		LIMIT 1
	`
	item, err := scanQueueItem(s.pool.QueryRow(ctx, query, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

func (s *QueueStore) QueryStuck(ctx context.Context, cutoff time.Time) ([]*action.QueueItem, error) {
	// NOTE: compared against scheduled_start_timestamp, not a last-update
	// column — preserves the original scheduler's _handle_garbage_collection
	// query shape (see scheduler/gc.go).
	query := `
		SELECT id, liveaction_id, scheduled_start_timestamp, handling,
		       original_start_timestamp, action_execution_id, delay_ms, revision, updated_at
		FROM scheduling_queue_items
		WHERE handling = true AND scheduled_start_timestamp <= $1
	`
	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*action.QueueItem
	for rows.Next() {
		item, err := scanQueueItemRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *QueueStore) AddOrUpdate(ctx context.Context, item *action.QueueItem) error {
	if item.Revision == 0 {
		query := `
			INSERT INTO scheduling_queue_items
				(id, liveaction_id, scheduled_start_timestamp, handling,
				 original_start_timestamp, action_execution_id, delay_ms, revision, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 1, NOW())
			ON CONFLICT (id) DO NOTHING
			RETURNING revision, updated_at
		`
		var rev int64
		var updatedAt time.Time
		err := s.pool.QueryRow(ctx, query,
			item.ID, item.LiveActionID, item.ScheduledStartTimestamp, item.Handling,
			item.OriginalStartTimestamp, item.ActionExecutionID, item.Delay.Milliseconds(),
		).Scan(&rev, &updatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			// Row already existed — caller's zero revision is stale.
			return store.ErrWriteConflict
		}
		if err != nil {
			return err
		}
		item.Revision = rev
		item.UpdatedAt = updatedAt
		return nil
	}

	query := `
		UPDATE scheduling_queue_items
		SET scheduled_start_timestamp = $2,
		    handling = $3,
		    original_start_timestamp = $4,
		    action_execution_id = $5,
		    delay_ms = $6,
		    revision = revision + 1,
		    updated_at = NOW()
		WHERE id = $1 AND revision = $7
		RETURNING revision, updated_at
	`
	var rev int64
	var updatedAt time.Time
	err := s.pool.QueryRow(ctx, query,
		item.ID, item.ScheduledStartTimestamp, item.Handling,
		item.OriginalStartTimestamp, item.ActionExecutionID, item.Delay.Milliseconds(), item.Revision,
	).Scan(&rev, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrWriteConflict
	}
	if err != nil {
		return err
	}
	item.Revision = rev
	item.UpdatedAt = updatedAt
	return nil
}

func (s *QueueStore) Delete(ctx context.Context, item *action.QueueItem) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM scheduling_queue_items WHERE id = $1`, item.ID)
	return err
}

func scanQueueItem(row pgx.Row) (*action.QueueItem, error) {
	var it action.QueueItem
	var delayMs int64
	err := row.Scan(
		&it.ID, &it.LiveActionID, &it.ScheduledStartTimestamp, &it.Handling,
		&it.OriginalStartTimestamp, &it.ActionExecutionID, &delayMs, &it.Revision, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	it.Delay = time.Duration(delayMs) * time.Millisecond
	return &it, nil
}

func scanQueueItemRows(rows pgx.Rows) (*action.QueueItem, error) {
	var it action.QueueItem
	var delayMs int64
	err := rows.Scan(
		&it.ID, &it.LiveActionID, &it.ScheduledStartTimestamp, &it.Handling,
		&it.OriginalStartTimestamp, &it.ActionExecutionID, &delayMs, &it.Revision, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	it.Delay = time.Duration(delayMs) * time.Millisecond
	return &it, nil
}
