package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stormforge/actionscheduler/action"
	"github.com/stormforge/actionscheduler/store"
	"github.com/stormforge/actionscheduler/streaming"
)

// LiveActionStore is a store.LiveActionStore backed by PostgreSQL, with
// status-change notification delegated to a streaming.Publisher — the same
// split the teacher uses between durable storage and its Publisher
// abstraction (main.go wires a streaming.Publisher alongside the store).
type LiveActionStore struct {
	pool      *pgxpool.Pool
	publisher streaming.Publisher
}

func NewLiveActionStore(pool *pgxpool.Pool, publisher streaming.Publisher) *LiveActionStore {
	return &LiveActionStore{pool: pool, publisher: publisher}
}

func (s *LiveActionStore) GetByID(ctx context.Context, liveActionID string) (*action.LiveAction, error) {
	var la action.LiveAction
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, payload FROM live_actions WHERE id = $1`, liveActionID,
	).Scan(&la.ID, &la.Status, &la.Payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &la, nil
}

func (s *LiveActionStore) UpdateStatus(ctx context.Context, live *action.LiveAction, newStatus action.Status, publish bool) (*action.LiveAction, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE live_actions SET status = $2, updated_at = NOW() WHERE id = $1`,
		live.ID, newStatus,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, store.ErrNotFound
	}

	updated := *live
	updated.Status = newStatus

	if publish {
		if err := s.PublishStatus(ctx, &updated); err != nil {
			return &updated, err
		}
	}
	return &updated, nil
}

func (s *LiveActionStore) PublishStatus(ctx context.Context, live *action.LiveAction) error {
	if s.publisher == nil {
		return nil
	}
	return s.publisher.Publish(ctx, "liveaction.status.changed", statusChangeEvent{
		LiveActionID: live.ID,
		Status:       string(live.Status),
	})
}

type statusChangeEvent struct {
	LiveActionID string `json:"liveaction_id"`
	Status       string `json:"status"`
}
