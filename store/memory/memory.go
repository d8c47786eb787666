// Package memory implements store.SchedulingQueueStore and
// store.LiveActionStore in process memory. It is adapted from the teacher's
// MemoryStore (store/memory.go): mutex-protected maps returning copies, no
// external dependency. Used by scheduler tests and as a standalone/dev-mode
// fallback when no durable backend is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stormforge/actionscheduler/action"
	"github.com/stormforge/actionscheduler/store"
)

type queueRecord struct {
	item *action.QueueItem
	seq  uint64 // insertion order, used as the QueryReady tie-break
}

// QueueStore is an in-memory store.SchedulingQueueStore.
type QueueStore struct {
	mu      sync.Mutex
	items   map[string]*queueRecord
	nextSeq uint64
}

func NewQueueStore() *QueueStore {
	return &QueueStore{items: make(map[string]*queueRecord)}
}

func (s *QueueStore) QueryReady(ctx context.Context, now time.Time) (*action.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *queueRecord
	for _, rec := range s.items {
		if rec.item.Handling {
			continue
		}
		if rec.item.ScheduledStartTimestamp.After(now) {
			continue
		}
		if best == nil ||
			rec.item.ScheduledStartTimestamp.Before(best.item.ScheduledStartTimestamp) ||
			(rec.item.ScheduledStartTimestamp.Equal(best.item.ScheduledStartTimestamp) && rec.seq < best.seq) {
			best = rec
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best.item
	return &cp, nil
}

func (s *QueueStore) QueryStuck(ctx context.Context, cutoff time.Time) ([]*action.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*action.QueueItem
	for _, rec := range s.items {
		if !rec.item.Handling {
			continue
		}
		if rec.item.ScheduledStartTimestamp.After(cutoff) {
			continue
		}
		cp := *rec.item
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *QueueStore) AddOrUpdate(ctx context.Context, item *action.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.items[item.ID]
	if !ok {
		if item.Revision != 0 {
			// Caller believes this item already exists; it doesn't.
			return store.ErrWriteConflict
		}
		item.Revision = 1
		item.UpdatedAt = time.Now().UTC()
		cp := *item
		s.nextSeq++
		s.items[item.ID] = &queueRecord{item: &cp, seq: s.nextSeq}
		return nil
	}

	if existing.item.Revision != item.Revision {
		return store.ErrWriteConflict
	}

	item.Revision++
	item.UpdatedAt = time.Now().UTC()
	cp := *item
	existing.item = &cp
	return nil
}

func (s *QueueStore) Delete(ctx context.Context, item *action.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, item.ID)
	return nil
}

// LiveActionStore is an in-memory store.LiveActionStore. Publish is recorded
// rather than transmitted anywhere; tests assert on PublishedCount.
type LiveActionStore struct {
	mu        sync.Mutex
	actions   map[string]*action.LiveAction
	published map[string]int
}

func NewLiveActionStore() *LiveActionStore {
	return &LiveActionStore{
		actions:   make(map[string]*action.LiveAction),
		published: make(map[string]int),
	}
}

// Put seeds or overwrites a LiveAction, for test setup.
func (s *LiveActionStore) Put(live *action.LiveAction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *live
	s.actions[live.ID] = &cp
}

func (s *LiveActionStore) GetByID(ctx context.Context, liveActionID string) (*action.LiveAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	live, ok := s.actions[liveActionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *live
	return &cp, nil
}

func (s *LiveActionStore) UpdateStatus(ctx context.Context, live *action.LiveAction, newStatus action.Status, publish bool) (*action.LiveAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.actions[live.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	stored.Status = newStatus
	cp := *stored
	if publish {
		s.published[live.ID]++
	}
	return &cp, nil
}

func (s *LiveActionStore) PublishStatus(ctx context.Context, live *action.LiveAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actions[live.ID]; !ok {
		return store.ErrNotFound
	}
	s.published[live.ID]++
	return nil
}

// PublishedCount returns how many times PublishStatus/UpdateStatus(publish=true)
// fired for liveActionID, for test assertions.
func (s *LiveActionStore) PublishedCount(liveActionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published[liveActionID]
}
