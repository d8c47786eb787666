// Package streaming defines the downstream-notification abstraction used by
// store.LiveActionStore.PublishStatus. Adapted from the teacher's
// streaming/interface.go: a minimal Publisher contract independent of the
// transport behind it.
package streaming

import "context"

// Publisher emits an event on a topic to whatever downstream subscribers
// (the action executor, in this system) are listening.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
	Close() error
}
