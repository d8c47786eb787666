package action

import "time"

// LiveAction is one intended execution of an automation action. The core
// reads and updates Status; everything else is opaque passthrough owned by
// the action execution engine (out of scope here).
type LiveAction struct {
	ID      string
	Status  Status
	Payload []byte // opaque, owned by the execution engine
}

// QueueItem is a scheduler-owned pointer to a LiveAction awaiting dispatch.
type QueueItem struct {
	ID                      string
	LiveActionID            string
	ScheduledStartTimestamp time.Time
	Handling                bool

	// Passthrough metadata, forwarded to downstream runners untouched.
	OriginalStartTimestamp time.Time
	ActionExecutionID      string
	Delay                  time.Duration

	// Revision supports optimistic concurrency. A zero value means the item
	// has never been persisted.
	Revision int64

	// UpdatedAt is maintained by stores for observability only. Per the
	// original scheduler's _handle_garbage_collection query, QueryStuck's
	// cutoff is compared against ScheduledStartTimestamp, not UpdatedAt —
	// see the GC loop for why this field is not load-bearing there.
	UpdatedAt time.Time
}
