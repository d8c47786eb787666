package scheduler

import (
	"context"
	"time"

	"github.com/stormforge/actionscheduler/internal/observability"
	"github.com/stormforge/actionscheduler/store"
)

// gcLoop is C7: on every GCInterval tick it finds QueueItems stuck with
// Handling=true past HandlingTimeout and clears the flag so the claim loop
// can pick them up again. Grounded on _handle_garbage_collection in the
// original scheduler, which runs this same query on the same cadence against
// scheduled_start_timestamp rather than a last-write column.
func (c *Core) gcLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.gcTick(ctx)
		}
	}
}

func (c *Core) gcTick(ctx context.Context) {
	cutoff := c.clock.Shift(c.clock.Now(), -c.cfg.HandlingTimeout)

	stuck, err := c.queue.QueryStuck(ctx, cutoff)
	if err != nil {
		logf("gc: query stuck items: %v", err)
		return
	}

	for _, item := range stuck {
		item.Handling = false
		if err := c.queue.AddOrUpdate(ctx, item); err != nil {
			if err == store.ErrWriteConflict {
				logf("gc: item %s updated before reclaim, skipping", item.ID)
				observability.GCConflicts.Inc()
				continue
			}
			logf("gc: reclaim item %s: %v", item.ID, err)
			continue
		}
		logf("gc: removing lock for orphaned item %s", item.ID)
		observability.GCReclaimed.Inc()
	}
}
