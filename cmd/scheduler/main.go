// Command scheduler runs the Action Execution Scheduling Queue Handler as a
// standalone process: the claim loop, dispatch pool and GC loop wired to a
// durable store and a Prometheus metrics endpoint. No HTTP API, auth or
// dashboard surface is started here — those concerns belong to the action
// execution engine and the dashboard service this component feeds, not to
// the scheduler itself.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/stormforge/actionscheduler/action"
	"github.com/stormforge/actionscheduler/clock"
	"github.com/stormforge/actionscheduler/policy"
	"github.com/stormforge/actionscheduler/scheduler"
	"github.com/stormforge/actionscheduler/store"
	"github.com/stormforge/actionscheduler/store/memory"
	"github.com/stormforge/actionscheduler/store/postgres"
	"github.com/stormforge/actionscheduler/store/redis"
	"github.com/stormforge/actionscheduler/streaming"
)

func main() {
	ctx := context.Background()

	cfg := scheduler.DefaultConfig()
	if v := os.Getenv("SCHEDULER_POOL_SIZE"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			cfg.PoolSize = n
		}
	}

	publisher := choosePublisher()
	defer publisher.Close()

	liveActions, closeLive := mustLiveActionStore(ctx, publisher)
	defer closeLive()

	queue := mustQueueStore(ctx)
	sysClock := clock.System{}
	chain := buildPolicyChain(sysClock)

	core := scheduler.New(cfg, sysClock, queue, liveActions, chain)
	core.Start()
	log.Printf("scheduler: started (pool_size=%d sleep=%s gc_interval=%s)", cfg.PoolSize, cfg.SleepInterval, cfg.GCInterval)

	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	go func() {
		addr := os.Getenv("METRICS_ADDR")
		if addr == "" {
			addr = ":9090"
		}
		log.Printf("scheduler: metrics listening on %s", addr)
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Printf("scheduler: metrics server stopped: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("scheduler: shutdown requested")
	core.Shutdown()
	core.Wait()
}

func choosePublisher() streaming.Publisher {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		return streaming.NewLogPublisher()
	}
	client := goredis.NewClient(&goredis.Options{Addr: redisAddr})
	return streaming.NewRedisPublisher(client)
}

func mustLiveActionStore(ctx context.Context, publisher streaming.Publisher) (store.LiveActionStore, func()) {
	dsn := os.Getenv("LIVEACTION_DB_DSN")
	if dsn == "" {
		log.Println("scheduler: LIVEACTION_DB_DSN unset, using in-memory LiveActionStore (dev mode)")
		return memory.NewLiveActionStore(), func() {}
	}
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("scheduler: connect live action DB: %v", err)
	}
	return postgres.NewLiveActionStore(pool, publisher), pool.Close
}

func mustQueueStore(ctx context.Context) store.SchedulingQueueStore {
	switch backend := os.Getenv("QUEUE_STORE_BACKEND"); backend {
	case "redis":
		redisAddr := os.Getenv("REDIS_ADDR")
		if redisAddr == "" {
			redisAddr = "localhost:6379"
		}
		client := goredis.NewClient(&goredis.Options{Addr: redisAddr})
		qs, err := redis.NewQueueStore(ctx, client)
		if err != nil {
			log.Fatalf("scheduler: connect redis queue store: %v", err)
		}
		log.Printf("scheduler: using redis queue store at %s", redisAddr)
		return qs
	case "postgres", "":
		dsn := os.Getenv("QUEUE_DB_DSN")
		if dsn == "" {
			log.Println("scheduler: QUEUE_DB_DSN unset, using in-memory queue store (dev mode)")
			return memory.NewQueueStore()
		}
		qs, err := postgres.NewQueueStore(ctx, dsn)
		if err != nil {
			log.Fatalf("scheduler: connect postgres queue store: %v", err)
		}
		return qs
	default:
		log.Fatalf("scheduler: unknown QUEUE_STORE_BACKEND %q", backend)
		return nil
	}
}

// globalKey partitions pre-run policies into a single shared bucket. The
// LiveAction payload that would carry a real action ref / tenant attribute is
// opaque to this module (owned by the execution engine); a deployment that
// wants per-action or per-tenant admission control supplies its own KeyFunc
// built from its payload schema instead of this default.
func globalKey(*action.LiveAction) string { return "global" }

func buildPolicyChain(clk clock.Clock) policy.Service {
	concurrencyLimit := 50
	if v := os.Getenv("POLICY_CONCURRENCY_LIMIT"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			concurrencyLimit = n
		}
	}
	concurrencyTTL := 5 * time.Minute
	if v := os.Getenv("POLICY_CONCURRENCY_TTL_SECONDS"); v != "" {
		var s int
		if _, err := fmt.Sscanf(v, "%d", &s); err == nil && s > 0 {
			concurrencyTTL = time.Duration(s) * time.Second
		}
	}
	ratePerSecond := 100.0
	if v := os.Getenv("POLICY_RATE_PER_SECOND"); v != "" {
		var r float64
		if _, err := fmt.Sscanf(v, "%f", &r); err == nil && r > 0 {
			ratePerSecond = r
		}
	}

	return policy.NewChain(
		policy.NewConcurrencyPolicy(concurrencyLimit, concurrencyTTL, clk, globalKey),
		policy.NewRateLimitPolicy(ratePerSecond, int(ratePerSecond)+1, globalKey),
	)
}
