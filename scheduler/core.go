// Package scheduler implements the Action Execution Scheduling Queue
// Handler core: the claim loop (C5), dispatch worker (C6) and GC loop (C7)
// described by the spec. Structurally it follows the teacher's
// scheduler.Scheduler (scheduler/scheduler.go) — a ticker-driven loop that
// pops work and hands it to a bounded pool — generalized from FluxForge's
// reconciliation tasks to st2's LiveAction/QueueItem scheduling semantics.
package scheduler

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/stormforge/actionscheduler/clock"
	"github.com/stormforge/actionscheduler/policy"
	"github.com/stormforge/actionscheduler/store"
)

// Core is the Action Execution Scheduling Queue Handler. One Core is one
// scheduler process; correctness across a fleet of Cores relies entirely on
// CAS against the shared SchedulingQueue store (spec §5).
type Core struct {
	cfg      Config
	clock    clock.Clock
	queue    store.SchedulingQueueStore
	live     store.LiveActionStore
	policies policy.Service

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// New builds a Core. cfg, clk, queue, live and policies are all injected so
// tests can substitute fakes for every external collaborator named in spec §1.
func New(cfg Config, clk clock.Clock, queue store.SchedulingQueueStore, live store.LiveActionStore, policies policy.Service) *Core {
	return &Core{
		cfg:      cfg,
		clock:    clk,
		queue:    queue,
		live:     live,
		policies: policies,
	}
}

// Start launches the claim loop and GC loop. Re-entrant calls after Shutdown
// are not required to be supported (spec §6).
func (c *Core) Start() {
	if !c.running.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	// Dispatch workers run on dispatchCtx, a copy of ctx that ignores
	// Shutdown's cancellation, so a worker already in flight when Shutdown is
	// called can finish its store writes instead of having them fail with a
	// canceled context mid-dispatch — spec §5 is explicit that there is no
	// forced interruption of an in-flight dispatch. claimLoop still stops
	// submitting new work and drains the pool once ctx is canceled.
	dispatchCtx := context.WithoutCancel(ctx)

	group := &errgroup.Group{}
	group.SetLimit(c.cfg.PoolSize)

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.claimLoop(ctx, group, dispatchCtx)
	}()
	go func() {
		defer c.wg.Done()
		c.gcLoop(ctx)
	}()
}

// Shutdown requests cooperative termination and returns promptly; in-flight
// dispatch workers run to completion (spec §5's deliberate no-forced-
// interruption rule). It does not wait for the loops to exit.
func (c *Core) Shutdown() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
}

// Wait blocks until both loops have exited. Not part of the spec surface;
// exposed for tests that need a deterministic join point.
func (c *Core) Wait() {
	c.wg.Wait()
}

func logf(format string, args ...interface{}) {
	log.Printf("scheduler: "+format, args...)
}
