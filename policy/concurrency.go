package policy

import (
	"context"
	"sync"
	"time"

	"github.com/stormforge/actionscheduler/action"
	"github.com/stormforge/actionscheduler/clock"
)

// KeyFunc extracts the policy partition key (e.g. tenant, action ref) from a
// LiveAction. The core's LiveAction payload is opaque to this package, so
// callers supply the extractor.
type KeyFunc func(live *action.LiveAction) string

// ConcurrencyPolicy caps the number of LiveActions simultaneously admitted
// for a given key, mirroring st2's "concurrency" / "concurrency_by_attribute"
// pre-run policies referenced by the original scheduler
// (st2common.services.policies, called from _apply_pre_run). When the cap is
// exceeded it marks the LiveAction policy_delayed so the dispatch worker
// reschedules it; it never drops or cancels.
//
// This component never observes a LiveAction again once it hands it off to
// the execution engine (no action execution engine lives here — spec §1's
// Non-goals), so there is no event to decrement an admission count on.
// Admissions therefore free themselves after ttl instead of waiting on a
// release call nothing in this process can ever make: a held slot expires on
// its own once ttl has elapsed since it was granted, which is why Apply
// requires an injected Clock rather than reading time.Now() directly.
type ConcurrencyPolicy struct {
	key   KeyFunc
	limit int
	ttl   time.Duration
	clock clock.Clock

	mu     sync.Mutex
	active map[string][]time.Time // admission times, oldest first
}

// NewConcurrencyPolicy builds a ConcurrencyPolicy admitting at most limit
// LiveActions per key within any ttl window.
func NewConcurrencyPolicy(limit int, ttl time.Duration, clk clock.Clock, key KeyFunc) *ConcurrencyPolicy {
	return &ConcurrencyPolicy{
		key:    key,
		limit:  limit,
		ttl:    ttl,
		clock:  clk,
		active: make(map[string][]time.Time),
	}
}

func (p *ConcurrencyPolicy) Name() string { return "concurrency" }

func (p *ConcurrencyPolicy) Apply(ctx context.Context, live *action.LiveAction) (*action.LiveAction, error) {
	k := p.key(live)
	now := p.clock.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	slots := p.prune(k, now)
	if len(slots) >= p.limit {
		delayed := *live
		delayed.Status = action.StatusPolicyDelayed
		return &delayed, nil
	}

	p.active[k] = append(slots, now)
	return live, nil
}

// prune drops admissions older than ttl for k and stores the pruned slice
// back, so the map never grows unbounded and expired holders stop counting
// against the cap without anyone having to call back in. Must be called with
// mu held.
func (p *ConcurrencyPolicy) prune(k string, now time.Time) []time.Time {
	slots := p.active[k]
	cutoff := now.Add(-p.ttl)

	i := 0
	for i < len(slots) && !slots[i].After(cutoff) {
		i++
	}
	if i > 0 {
		slots = slots[i:]
	}
	if len(slots) == 0 {
		delete(p.active, k)
		return nil
	}
	p.active[k] = slots
	return slots
}
