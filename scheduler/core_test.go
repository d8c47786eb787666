package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stormforge/actionscheduler/action"
	"github.com/stormforge/actionscheduler/clock"
	"github.com/stormforge/actionscheduler/policy"
	"github.com/stormforge/actionscheduler/store/memory"
)

// waitFor polls cond every 2ms until it's true or timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestCoreEndToEndSchedulesReadyAction(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	queue := memory.NewQueueStore()
	live := memory.NewLiveActionStore()

	cfg := DefaultConfig()
	cfg.SleepInterval = 5 * time.Millisecond
	cfg.GCInterval = time.Hour

	c := New(cfg, fake, queue, live, policy.NewChain())

	live.Put(&action.LiveAction{ID: "la-e2e", Status: action.StatusRequested})
	ctx := context.Background()
	item := &action.QueueItem{ID: "qi-e2e", LiveActionID: "la-e2e", ScheduledStartTimestamp: fake.Now()}
	if err := queue.AddOrUpdate(ctx, item); err != nil {
		t.Fatalf("seed item: %v", err)
	}

	c.Start()
	defer c.Shutdown()

	waitFor(t, time.Second, func() bool {
		got, err := live.GetByID(ctx, "la-e2e")
		return err == nil && got.Status == action.StatusScheduled
	})
	if live.PublishedCount("la-e2e") != 1 {
		t.Fatalf("published count = %d, want 1", live.PublishedCount("la-e2e"))
	}

	c.Shutdown()
	c.Wait()
}

func TestCoreDoesNotClaimFutureItem(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	queue := memory.NewQueueStore()
	live := memory.NewLiveActionStore()

	cfg := DefaultConfig()
	cfg.SleepInterval = 5 * time.Millisecond
	cfg.GCInterval = time.Hour

	c := New(cfg, fake, queue, live, policy.NewChain())

	live.Put(&action.LiveAction{ID: "la-future", Status: action.StatusRequested})
	ctx := context.Background()
	item := &action.QueueItem{
		ID:                      "qi-future",
		LiveActionID:            "la-future",
		ScheduledStartTimestamp: fake.Now().Add(time.Hour),
	}
	if err := queue.AddOrUpdate(ctx, item); err != nil {
		t.Fatalf("seed item: %v", err)
	}

	c.Start()
	defer c.Shutdown()

	time.Sleep(50 * time.Millisecond)

	got, err := live.GetByID(ctx, "la-future")
	if err != nil {
		t.Fatalf("get live action: %v", err)
	}
	if got.Status != action.StatusRequested {
		t.Fatalf("status = %q, want unchanged %q", got.Status, action.StatusRequested)
	}
}

// gatedLiveActionStore blocks inside GetByID until release is closed, letting
// a test pause a dispatch worker mid-flight. It surfaces ctx.Err() if the
// context passed to GetByID is ever canceled while waiting, the same way a
// real context-aware store client would — so the test can tell whether the
// worker was handed a context Shutdown cancels.
type gatedLiveActionStore struct {
	inner   *memory.LiveActionStore
	entered chan struct{}
	release chan struct{}

	once sync.Once
}

func (s *gatedLiveActionStore) GetByID(ctx context.Context, liveActionID string) (*action.LiveAction, error) {
	s.once.Do(func() { close(s.entered) })
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.inner.GetByID(ctx, liveActionID)
}

func (s *gatedLiveActionStore) UpdateStatus(ctx context.Context, live *action.LiveAction, newStatus action.Status, publish bool) (*action.LiveAction, error) {
	return s.inner.UpdateStatus(ctx, live, newStatus, publish)
}

func (s *gatedLiveActionStore) PublishStatus(ctx context.Context, live *action.LiveAction) error {
	return s.inner.PublishStatus(ctx, live)
}

// TestShutdownDoesNotInterruptInFlightDispatch covers spec §5's rule that an
// in-flight dispatch worker runs to completion across Shutdown — no forced
// interruption. A dispatch blocked inside GetByID when Shutdown fires must
// still finish and schedule the action once unblocked, instead of observing
// a canceled context.
func TestShutdownDoesNotInterruptInFlightDispatch(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	queue := memory.NewQueueStore()
	gated := &gatedLiveActionStore{
		inner:   memory.NewLiveActionStore(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	gated.inner.Put(&action.LiveAction{ID: "la-inflight", Status: action.StatusRequested})

	cfg := DefaultConfig()
	cfg.SleepInterval = 5 * time.Millisecond
	cfg.GCInterval = time.Hour

	c := New(cfg, fake, queue, gated, policy.NewChain())

	ctx := context.Background()
	item := &action.QueueItem{ID: "qi-inflight", LiveActionID: "la-inflight", ScheduledStartTimestamp: fake.Now()}
	if err := queue.AddOrUpdate(ctx, item); err != nil {
		t.Fatalf("seed item: %v", err)
	}

	c.Start()

	select {
	case <-gated.entered:
	case <-time.After(time.Second):
		t.Fatal("dispatch never reached GetByID")
	}

	// The dispatch worker is now parked inside GetByID. Request shutdown
	// while it's in flight, then let it proceed.
	c.Shutdown()
	close(gated.release)
	c.Wait()

	got, err := gated.inner.GetByID(ctx, "la-inflight")
	if err != nil {
		t.Fatalf("get live action: %v", err)
	}
	if got.Status != action.StatusScheduled {
		t.Fatalf("status = %q, want %q (dispatch should have completed despite shutdown)", got.Status, action.StatusScheduled)
	}
	if gated.inner.PublishedCount("la-inflight") != 1 {
		t.Fatalf("published count = %d, want 1", gated.inner.PublishedCount("la-inflight"))
	}
}

func TestCoreShutdownIsIdempotent(t *testing.T) {
	fake := clock.NewFake(time.Now())
	c := New(DefaultConfig(), fake, memory.NewQueueStore(), memory.NewLiveActionStore(), policy.NewChain())

	c.Start()
	c.Shutdown()
	c.Shutdown()
	c.Wait()
}
