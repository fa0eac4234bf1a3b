package plugin

import (
	"context"
	"time"
)

// Event is a message published on the in-process bus.
type Event struct {
	Topic     string
	Source    string
	Timestamp time.Time
	Payload   any
}

// EventHandler receives events. Handlers run on the publisher's goroutine
// for Publish and must not block for long.
type EventHandler func(ctx context.Context, event Event)

// EventBus is a topic based publish/subscribe bus. Publish delivers to every
// handler synchronously, in subscription order, so a single publisher always
// observes its events delivered in publish order.
type EventBus interface {
	Publish(ctx context.Context, event Event) error
	PublishAsync(ctx context.Context, event Event)
	Subscribe(topic string, handler EventHandler) (unsubscribe func())
	SubscribeAll(handler EventHandler) (unsubscribe func())
}
