// Package policy implements the PolicyService consumed by the dispatch
// worker: pre-run admission control that may delay or leave untouched the
// LiveAction about to be scheduled. The original source (st2's
// st2common.services.policies, invoked from scheduler/handler.py's
// _apply_pre_run) composes a small set of independently pluggable policy
// types (concurrency, concurrency_by_attribute, retry, ...); this package
// keeps that shape as a Chain of PreRunPolicy values.
package policy

import (
	"context"

	"github.com/stormforge/actionscheduler/action"
)

// Service applies pre-run policies to a LiveAction before it is scheduled.
// The only statuses the dispatch worker interprets afterward are
// policy_delayed, a completed/cancel status, a runnable status, or anything
// else (dropped with a warning) — see scheduler/dispatch.go.
type Service interface {
	ApplyPreRun(ctx context.Context, live *action.LiveAction) (*action.LiveAction, error)
}

// PreRunPolicy is one admission rule. It returns live unchanged if it has
// nothing to say about this action.
type PreRunPolicy interface {
	Name() string
	Apply(ctx context.Context, live *action.LiveAction) (*action.LiveAction, error)
}

// Chain runs an ordered list of PreRunPolicy values, short-circuiting as
// soon as one of them moves the LiveAction out of a runnable status — a
// later policy has nothing useful to decide about an action that's already
// been delayed, completed, or canceled.
type Chain struct {
	policies []PreRunPolicy
}

func NewChain(policies ...PreRunPolicy) *Chain {
	return &Chain{policies: policies}
}

func (c *Chain) ApplyPreRun(ctx context.Context, live *action.LiveAction) (*action.LiveAction, error) {
	current := live
	for _, p := range c.policies {
		next, err := p.Apply(ctx, current)
		if err != nil {
			return nil, err
		}
		current = next
		if !current.Status.IsRunnable() {
			break
		}
	}
	return current, nil
}
