package scheduler

import (
	"context"

	"github.com/stormforge/actionscheduler/action"
	"github.com/stormforge/actionscheduler/internal/observability"
	"github.com/stormforge/actionscheduler/store"
)

// dispatch is C6: one worker-pool invocation handling a single claimed
// QueueItem. It never panics the caller's goroutine group — all errors are
// logged and accounted for via the Dispatches metric, and a failed dispatch
// simply leaves the item Handling=true for the GC loop (C7) to reclaim,
// mirroring _handle_execution's try/except-and-continue shape in the
// original scheduler.
func (c *Core) dispatch(ctx context.Context, item *action.QueueItem) {
	start := c.clock.Now()
	defer func() {
		observability.DispatchDuration.Observe(c.clock.Now().Sub(start).Seconds())
	}()
	defer func() {
		if r := recover(); r != nil {
			logf("dispatch: recovered panic for item %s: %v", item.ID, r)
			observability.Dispatches.WithLabelValues("error").Inc()
		}
	}()

	live, err := c.live.GetByID(ctx, item.LiveActionID)
	if err == store.ErrNotFound {
		if derr := c.queue.Delete(ctx, item); derr != nil {
			logf("dispatch: delete orphaned item %s: %v", item.ID, derr)
		}
		observability.Dispatches.WithLabelValues("not_found").Inc()
		return
	}
	if err != nil {
		logf("dispatch: load live action %s: %v", item.LiveActionID, err)
		observability.Dispatches.WithLabelValues("error").Inc()
		return
	}

	next, err := c.policies.ApplyPreRun(ctx, live)
	if err != nil {
		logf("dispatch: apply pre-run policies for %s: %v", live.ID, err)
		observability.Dispatches.WithLabelValues("error").Inc()
		return
	}

	switch {
	case next.Status.IsCompletedOrCanceled():
		c.dropItem(ctx, item, "dropped_terminal")

	case next.Status == action.StatusPolicyDelayed:
		c.delayForPolicy(ctx, item, next)

	case !next.Status.IsRunnable():
		logf("dispatch: live action %s in non-runnable status %q, dropping", next.ID, next.Status)
		c.dropItem(ctx, item, "dropped_not_runnable")

	default:
		c.scheduleForExecution(ctx, item, next)
	}
}

func (c *Core) dropItem(ctx context.Context, item *action.QueueItem, outcome string) {
	if err := c.queue.Delete(ctx, item); err != nil {
		logf("dispatch: delete item %s: %v", item.ID, err)
	}
	observability.Dispatches.WithLabelValues(outcome).Inc()
}

// delayForPolicy writes the LiveAction's status as delayed (without publishing — no
// subscriber needs to see a transient delay) and reschedules the QueueItem
// PolicyDelayedReschedule into the future with Handling explicitly cleared.
// The original source appears to leave handling=true on this path, relying on
// the GC loop to notice ~HandlingTimeout later; this implementation clears it
// immediately so the item becomes claimable again on its own schedule instead
// of waiting out an unrelated timeout (see the open question notes).
func (c *Core) delayForPolicy(ctx context.Context, item *action.QueueItem, live *action.LiveAction) {
	// The policy service marks the LiveAction policy_delayed as a transient
	// signal; the persisted status this worker writes back is delayed (one
	// of the runnable statuses below), not policy_delayed itself.
	if _, err := c.live.UpdateStatus(ctx, live, action.StatusDelayed, false); err != nil {
		if err == store.ErrWriteConflict {
			logf("dispatch: live action %s changed concurrently, skipping policy delay", live.ID)
		} else {
			logf("dispatch: mark %s delayed: %v", live.ID, err)
		}
		observability.Dispatches.WithLabelValues("error").Inc()
		return
	}

	if err := c.reschedule(ctx, item, c.cfg.PolicyDelayedReschedule); err != nil {
		if err == store.ErrWriteConflict {
			logf("dispatch: item %s changed concurrently, skipping reschedule", item.ID)
		} else {
			logf("dispatch: reschedule item %s: %v", item.ID, err)
		}
		observability.Dispatches.WithLabelValues("error").Inc()
		return
	}
	observability.Dispatches.WithLabelValues("policy_delayed").Inc()
}

// scheduleForExecution marks live scheduled (only if it isn't already —
// a live action already in status scheduled skips straight to publish),
// publishes the transition, and only then deletes the QueueItem — the
// publish-before-delete ordering spec §4.6 calls out to avoid a subscriber
// missing the scheduled notification.
func (c *Core) scheduleForExecution(ctx context.Context, item *action.QueueItem, live *action.LiveAction) {
	toPublish := live
	if live.Status == action.StatusRequested || live.Status == action.StatusDelayed {
		updated, err := c.live.UpdateStatus(ctx, live, action.StatusScheduled, false)
		if err != nil {
			if err == store.ErrWriteConflict {
				logf("dispatch: live action %s changed concurrently, skipping schedule", live.ID)
			} else {
				logf("dispatch: mark %s scheduled: %v", live.ID, err)
			}
			observability.Dispatches.WithLabelValues("error").Inc()
			return
		}
		toPublish = updated
	}

	if err := c.live.PublishStatus(ctx, toPublish); err != nil {
		logf("dispatch: publish scheduled status for %s: %v", toPublish.ID, err)
		observability.Dispatches.WithLabelValues("error").Inc()
		return
	}

	if err := c.queue.Delete(ctx, item); err != nil {
		logf("dispatch: delete scheduled item %s: %v", item.ID, err)
	}
	observability.Dispatches.WithLabelValues("scheduled").Inc()
}
