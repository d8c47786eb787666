package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stormforge/actionscheduler/action"
	"github.com/stormforge/actionscheduler/store"
)

func TestQueryReadyOrdersByTimestamp(t *testing.T) {
	s := NewQueueStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Inserted out of timestamp order; QueryReady must still return them
	// strictly by ScheduledStartTimestamp (spec §8 property 2).
	seed := []struct {
		id     string
		offset time.Duration
	}{
		{"qi-c", 2 * time.Second},
		{"qi-a", 0},
		{"qi-b", 1 * time.Second},
	}
	for _, s2 := range seed {
		item := &action.QueueItem{ID: s2.id, LiveActionID: s2.id, ScheduledStartTimestamp: base.Add(s2.offset)}
		if err := s.AddOrUpdate(ctx, item); err != nil {
			t.Fatalf("seed %s: %v", s2.id, err)
		}
	}

	want := []string{"qi-a", "qi-b", "qi-c"}
	for _, id := range want {
		got, err := s.QueryReady(ctx, base.Add(time.Hour))
		if err != nil {
			t.Fatalf("query ready: %v", err)
		}
		if got == nil || got.ID != id {
			t.Fatalf("query ready = %+v, want id %s", got, id)
		}
		got.Handling = true
		if err := s.AddOrUpdate(ctx, got); err != nil {
			t.Fatalf("claim %s: %v", id, err)
		}
	}
}

func TestQueryReadyTiesBreakByInsertionOrder(t *testing.T) {
	s := NewQueueStore()
	ctx := context.Background()
	same := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, id := range []string{"first", "second", "third"} {
		item := &action.QueueItem{ID: id, LiveActionID: id, ScheduledStartTimestamp: same}
		if err := s.AddOrUpdate(ctx, item); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	got, err := s.QueryReady(ctx, same)
	if err != nil {
		t.Fatalf("query ready: %v", err)
	}
	if got == nil || got.ID != "first" {
		t.Fatalf("query ready = %+v, want the first-inserted item at equal timestamps", got)
	}
}

func TestQueryReadyExcludesFutureItems(t *testing.T) {
	s := NewQueueStore()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	item := &action.QueueItem{ID: "qi-future", LiveActionID: "la", ScheduledStartTimestamp: now.Add(time.Minute)}
	if err := s.AddOrUpdate(ctx, item); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := s.QueryReady(ctx, now)
	if err != nil {
		t.Fatalf("query ready: %v", err)
	}
	if got != nil {
		t.Fatalf("query ready returned a not-yet-eligible item: %+v", got)
	}

	got, err = s.QueryReady(ctx, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("query ready at eligibility boundary: %v", err)
	}
	if got == nil {
		t.Fatalf("item should be eligible once now == ScheduledStartTimestamp")
	}
}

func TestAddOrUpdateRejectsStaleRevision(t *testing.T) {
	s := NewQueueStore()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	item := &action.QueueItem{ID: "qi-cas", LiveActionID: "la", ScheduledStartTimestamp: now}
	if err := s.AddOrUpdate(ctx, item); err != nil {
		t.Fatalf("seed: %v", err)
	}
	staleCopy := *item

	item.Handling = true
	if err := s.AddOrUpdate(ctx, item); err != nil {
		t.Fatalf("first writer should win: %v", err)
	}

	staleCopy.Handling = true
	if err := s.AddOrUpdate(ctx, &staleCopy); err != store.ErrWriteConflict {
		t.Fatalf("second writer on stale revision: err = %v, want ErrWriteConflict", err)
	}
}

// TestConcurrentClaimMutualExclusion fuzzes N goroutines racing to claim the
// same ready item via QueryReady+AddOrUpdate and asserts exactly one CAS
// succeeds, per spec §8 property 1.
func TestConcurrentClaimMutualExclusion(t *testing.T) {
	s := NewQueueStore()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	item := &action.QueueItem{ID: "qi-race", LiveActionID: "la", ScheduledStartTimestamp: now}
	if err := s.AddOrUpdate(ctx, item); err != nil {
		t.Fatalf("seed: %v", err)
	}

	const claimants = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.QueryReady(ctx, now)
			if err != nil || got == nil || got.Handling {
				return
			}
			got.Handling = true
			if err := s.AddOrUpdate(ctx, got); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("claim wins = %d, want exactly 1 across %d racing claimants", wins, claimants)
	}

	stuck, err := s.QueryStuck(ctx, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("query stuck: %v", err)
	}
	if len(stuck) != 1 || stuck[0].ID != item.ID {
		t.Fatalf("expected exactly the one claimed item to be handling=true, got %+v", stuck)
	}
}
