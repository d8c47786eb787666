package policy

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/stormforge/actionscheduler/action"
)

// RateLimitPolicy throttles admission per key using a token bucket per key,
// adapted from the teacher's TokenBucketLimiter (scheduler/limiter.go),
// which applies the same golang.org/x/time/rate pattern to node/tenant
// limits. A rejected reservation marks the LiveAction policy_delayed instead
// of dropping it — the action is retried, not abandoned.
type RateLimitPolicy struct {
	key KeyFunc
	r   rate.Limit
	b   int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewRateLimitPolicy(ratePerSecond float64, burst int, key KeyFunc) *RateLimitPolicy {
	return &RateLimitPolicy{
		key:      key,
		r:        rate.Limit(ratePerSecond),
		b:        burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (p *RateLimitPolicy) Name() string { return "rate_limit" }

func (p *RateLimitPolicy) Apply(ctx context.Context, live *action.LiveAction) (*action.LiveAction, error) {
	k := p.key(live)

	p.mu.Lock()
	limiter, ok := p.limiters[k]
	if !ok {
		limiter = rate.NewLimiter(p.r, p.b)
		p.limiters[k] = limiter
	}
	p.mu.Unlock()

	if limiter.Allow() {
		return live, nil
	}

	delayed := *live
	delayed.Status = action.StatusPolicyDelayed
	return &delayed, nil
}
