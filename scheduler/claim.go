package scheduler

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stormforge/actionscheduler/action"
	"github.com/stormforge/actionscheduler/internal/observability"
	"github.com/stormforge/actionscheduler/store"
)

// claimLoop is C5: on every SleepInterval tick it claims at most one ready
// QueueItem and hands it to the dispatch pool. Mirrors the teacher's
// Scheduler.worker ticker loop (scheduler/scheduler.go), replacing task-queue
// pop+requeue with QueryReady+AddOrUpdate CAS. ctx governs the loop itself
// and the claim writes below; dispatchCtx (detached from ctx's cancellation)
// governs the worker pool so Shutdown stops new claims without aborting
// dispatches already in flight.
func (c *Core) claimLoop(ctx context.Context, group *errgroup.Group, dispatchCtx context.Context) {
	ticker := time.NewTicker(c.cfg.SleepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = group.Wait()
			return
		case <-ticker.C:
			c.claimTick(ctx, group, dispatchCtx)
		}
	}
}

func (c *Core) claimTick(ctx context.Context, group *errgroup.Group, dispatchCtx context.Context) {
	start := c.clock.Now()
	defer func() {
		observability.LoopDuration.Observe(c.clock.Now().Sub(start).Seconds())
	}()

	item, err := c.queue.QueryReady(ctx, c.clock.Now())
	if err != nil {
		logf("claim: query ready: %v", err)
		return
	}
	if item == nil {
		observability.ClaimAttempts.WithLabelValues("empty").Inc()
		observability.QueueDepth.Set(0)
		return
	}
	observability.QueueDepth.Set(1)

	item.Handling = true
	if err := c.queue.AddOrUpdate(ctx, item); err != nil {
		if err == store.ErrWriteConflict {
			// Another process claimed it first; nothing to do this tick.
			observability.ClaimAttempts.WithLabelValues("conflict").Inc()
			return
		}
		logf("claim: mark handling for %s: %v", item.ID, err)
		return
	}
	observability.ClaimAttempts.WithLabelValues("claimed").Inc()

	claimed := item
	group.Go(func() error {
		c.dispatch(dispatchCtx, claimed)
		return nil
	})
}

// reschedule pushes item ScheduledStartTimestamp into the future by delta and
// clears Handling, then writes it back. Used both by the policy_delayed path
// in dispatch.go and could be reused by future retry policies.
func (c *Core) reschedule(ctx context.Context, item *action.QueueItem, delta time.Duration) error {
	item.ScheduledStartTimestamp = c.clock.Shift(c.clock.Now(), delta)
	item.Handling = false
	return c.queue.AddOrUpdate(ctx, item)
}
