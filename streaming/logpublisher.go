package streaming

import (
	"context"
	"encoding/json"
	"log"
)

// LogPublisher is a Publisher that writes events to the standard logger.
// Adapted from the teacher's streaming.LogPublisher, used the same way: as
// the default until a real message bus is wired in, and in tests.
type LogPublisher struct {
	logger *log.Logger
}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{logger: log.Default()}
}

func (p *LogPublisher) Publish(ctx context.Context, topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	p.logger.Printf("streaming: publish %s: %s", topic, string(data))
	return nil
}

func (p *LogPublisher) Close() error { return nil }
