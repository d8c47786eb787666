// Package store defines the persistence contracts the scheduling core
// consumes: a SchedulingQueueStore for QueueItems and a LiveActionStore for
// LiveActions. Concrete backends live in store/postgres, store/redis and
// store/memory.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/stormforge/actionscheduler/action"
)

// ErrWriteConflict is returned by AddOrUpdate when the revision token
// supplied by the caller no longer matches the persisted revision — another
// writer won the race. The store is left untouched.
var ErrWriteConflict = errors.New("store: write conflict")

// ErrNotFound is returned when a LiveAction lookup finds no record.
var ErrNotFound = errors.New("store: not found")

// SchedulingQueueStore is the persistent FIFO+priority collection of
// QueueItems. AddOrUpdate must never publish events — it is internal
// bookkeeping only.
type SchedulingQueueStore interface {
	// QueryReady returns the item with the smallest ScheduledStartTimestamp
	// among those with Handling=false and ScheduledStartTimestamp <= now,
	// or (nil, nil) if none are ready. How ties at equal timestamps break is
	// backend-specific: store/memory uses insertion order, store/postgres and
	// store/redis use item ID order.
	QueryReady(ctx context.Context, now time.Time) (*action.QueueItem, error)

	// QueryStuck returns items with Handling=true whose
	// ScheduledStartTimestamp is <= cutoff (see scheduler/gc.go for why the
	// cutoff field is ScheduledStartTimestamp and not a last-update column).
	QueryStuck(ctx context.Context, cutoff time.Time) ([]*action.QueueItem, error)

	// AddOrUpdate writes item using optimistic concurrency keyed on
	// item.Revision. On success item.Revision is advanced in place. On
	// conflict it returns ErrWriteConflict and leaves the store untouched.
	AddOrUpdate(ctx context.Context, item *action.QueueItem) error

	// Delete removes item. Deleting an item that no longer exists is not an
	// error.
	Delete(ctx context.Context, item *action.QueueItem) error
}

// LiveActionStore is the externally-owned collection of LiveActions that the
// core reads and transitions.
type LiveActionStore interface {
	// GetByID returns ErrNotFound if no such LiveAction exists.
	GetByID(ctx context.Context, liveActionID string) (*action.LiveAction, error)

	// UpdateStatus sets live.Status to newStatus. When publish is false the
	// downstream notification is suppressed; callers that need the
	// notification must call PublishStatus separately. This split exists so
	// the "scheduled" transition can be published strictly before the
	// QueueItem is deleted (see scheduler/dispatch.go).
	UpdateStatus(ctx context.Context, live *action.LiveAction, newStatus action.Status, publish bool) (*action.LiveAction, error)

	// PublishStatus emits live's current status to downstream subscribers
	// (the action executor) without mutating it.
	PublishStatus(ctx context.Context, live *action.LiveAction) error
}
