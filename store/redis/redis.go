// Package redis implements store.SchedulingQueueStore on Redis, adapted from
// the teacher's store/redis_versioned.go Lua-CAS idiom: a single atomic
// script does the read-compare-write so there is no GET/SET race window,
// exactly the "document store write-conflict error surface" spec §9 asks an
// implementation to preserve when ported onto a non-document store.
//
// Eligibility ordering is maintained with two sorted sets (ready/handling)
// scored by ScheduledStartTimestamp; item payloads live in per-item hashes.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/stormforge/actionscheduler/action"
	"github.com/stormforge/actionscheduler/store"
)

const (
	readyZSetKey    = "actionscheduler:queue:ready"
	handlingZSetKey = "actionscheduler:queue:handling"
)

func itemKey(id string) string { return "actionscheduler:queue:item:" + id }

// upsertScript atomically checks the caller-supplied revision against the
// stored one, writes the new fields, and moves the item's ID between the
// ready/handling sorted sets in a single round trip.
//
// KEYS[1] = item hash key
// ARGV[1] = id
// ARGV[2] = liveaction_id
// ARGV[3] = scheduled_start_timestamp (unix ms)
// ARGV[4] = handling ("1"/"0")
// ARGV[5] = original_start_timestamp (unix ms)
// ARGV[6] = action_execution_id
// ARGV[7] = delay_ms
// ARGV[8] = expected_revision
// ARGV[9] = updated_at (unix ms)
const upsertScript = `
local current_rev = redis.call("HGET", KEYS[1], "revision")
local expected = tonumber(ARGV[8])

if current_rev then
    if tonumber(current_rev) ~= expected then
        return -1
    end
else
    if expected ~= 0 then
        return -1
    end
end

local new_rev = (current_rev and tonumber(current_rev) or 0) + 1

redis.call("HMSET", KEYS[1],
    "id", ARGV[1],
    "liveaction_id", ARGV[2],
    "scheduled_start_timestamp", ARGV[3],
    "handling", ARGV[4],
    "original_start_timestamp", ARGV[5],
    "action_execution_id", ARGV[6],
    "delay_ms", ARGV[7],
    "revision", new_rev,
    "updated_at", ARGV[9])

redis.call("ZREM", KEYS[2], ARGV[1])
redis.call("ZREM", KEYS[3], ARGV[1])
if ARGV[4] == "1" then
    redis.call("ZADD", KEYS[3], ARGV[3], ARGV[1])
else
    redis.call("ZADD", KEYS[2], ARGV[3], ARGV[1])
end

return new_rev
`

// deleteScript removes an item's hash and its membership in both sorted
// sets atomically.
const deleteScript = `
redis.call("DEL", KEYS[1])
redis.call("ZREM", KEYS[2], ARGV[1])
redis.call("ZREM", KEYS[3], ARGV[1])
return 1
`

// QueueStore is a store.SchedulingQueueStore backed by Redis.
type QueueStore struct {
	client    *goredis.Client
	upsertSHA string
	deleteSHA string
}

func NewQueueStore(ctx context.Context, client *goredis.Client) (*QueueStore, error) {
	upsertSHA, err := client.ScriptLoad(ctx, upsertScript).Result()
	if err != nil {
		return nil, fmt.Errorf("redis queue store: preload upsert script: %w", err)
	}
	deleteSHA, err := client.ScriptLoad(ctx, deleteScript).Result()
	if err != nil {
		return nil, fmt.Errorf("redis queue store: preload delete script: %w", err)
	}
	return &QueueStore{client: client, upsertSHA: upsertSHA, deleteSHA: deleteSHA}, nil
}

func (s *QueueStore) QueryReady(ctx context.Context, now time.Time) (*action.QueueItem, error) {
	// Ties break on Redis member ordering for equal scores, which go-redis
	// returns in lexicographic member (item ID) order — documented per
	// spec §4.2's requirement that a store unable to guarantee strict
	// insertion order break ties deterministically.
	ids, err := s.client.ZRangeByScore(ctx, readyZSetKey, &goredis.ZRangeBy{
		Min: "-inf", Max: strconv.FormatInt(now.UnixMilli(), 10), Offset: 0, Count: 1,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return s.getItem(ctx, ids[0])
}

func (s *QueueStore) QueryStuck(ctx context.Context, cutoff time.Time) ([]*action.QueueItem, error) {
	ids, err := s.client.ZRangeByScore(ctx, handlingZSetKey, &goredis.ZRangeBy{
		Min: "-inf", Max: strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*action.QueueItem, 0, len(ids))
	for _, id := range ids {
		item, err := s.getItem(ctx, id)
		if err != nil {
			return nil, err
		}
		if item != nil {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *QueueStore) AddOrUpdate(ctx context.Context, item *action.QueueItem) error {
	handling := "0"
	if item.Handling {
		handling = "1"
	}
	now := time.Now().UTC()

	result, err := s.evalUpsert(ctx, item, handling, now)
	if errors.Is(err, goredis.Nil) {
		return err
	}
	if err != nil && isNoScript(err) {
		sha, loadErr := s.client.ScriptLoad(ctx, upsertScript).Result()
		if loadErr != nil {
			return loadErr
		}
		s.upsertSHA = sha
		result, err = s.evalUpsert(ctx, item, handling, now)
	}
	if err != nil {
		return err
	}

	rev, ok := result.(int64)
	if !ok {
		return fmt.Errorf("redis queue store: unexpected upsert result type %T", result)
	}
	if rev < 0 {
		return store.ErrWriteConflict
	}
	item.Revision = rev
	item.UpdatedAt = now
	return nil
}

func (s *QueueStore) evalUpsert(ctx context.Context, item *action.QueueItem, handling string, now time.Time) (interface{}, error) {
	return s.client.EvalSha(ctx, s.upsertSHA,
		[]string{itemKey(item.ID), readyZSetKey, handlingZSetKey},
		item.ID,
		item.LiveActionID,
		item.ScheduledStartTimestamp.UnixMilli(),
		handling,
		item.OriginalStartTimestamp.UnixMilli(),
		item.ActionExecutionID,
		item.Delay.Milliseconds(),
		item.Revision,
		now.UnixMilli(),
	).Result()
}

func (s *QueueStore) Delete(ctx context.Context, item *action.QueueItem) error {
	_, err := s.client.EvalSha(ctx, s.deleteSHA,
		[]string{itemKey(item.ID), readyZSetKey, handlingZSetKey},
		item.ID,
	).Result()
	if err != nil && isNoScript(err) {
		sha, loadErr := s.client.ScriptLoad(ctx, deleteScript).Result()
		if loadErr != nil {
			return loadErr
		}
		s.deleteSHA = sha
		_, err = s.client.EvalSha(ctx, s.deleteSHA,
			[]string{itemKey(item.ID), readyZSetKey, handlingZSetKey},
			item.ID,
		).Result()
	}
	return err
}

func (s *QueueStore) getItem(ctx context.Context, id string) (*action.QueueItem, error) {
	vals, err := s.client.HGetAll(ctx, itemKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}

	scheduledMs, _ := strconv.ParseInt(vals["scheduled_start_timestamp"], 10, 64)
	originalMs, _ := strconv.ParseInt(vals["original_start_timestamp"], 10, 64)
	delayMs, _ := strconv.ParseInt(vals["delay_ms"], 10, 64)
	revision, _ := strconv.ParseInt(vals["revision"], 10, 64)
	updatedMs, _ := strconv.ParseInt(vals["updated_at"], 10, 64)

	return &action.QueueItem{
		ID:                      vals["id"],
		LiveActionID:            vals["liveaction_id"],
		ScheduledStartTimestamp: time.UnixMilli(scheduledMs).UTC(),
		Handling:                vals["handling"] == "1",
		OriginalStartTimestamp:  time.UnixMilli(originalMs).UTC(),
		ActionExecutionID:       vals["action_execution_id"],
		Delay:                   time.Duration(delayMs) * time.Millisecond,
		Revision:                revision,
		UpdatedAt:               time.UnixMilli(updatedMs).UTC(),
	}, nil
}

func isNoScript(err error) bool {
	return err != nil && len(err.Error()) >= 8 && err.Error()[:8] == "NOSCRIPT"
}
