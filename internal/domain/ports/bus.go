// Package ports defines the interfaces between the core components.
package ports

import "github.com/cmericli/claude-remote/internal/domain/events"

// EventBus is the topic-keyed publish/subscribe fabric.
type EventBus interface {
	// Subscribe registers a new subscriber on a topic and returns its handle.
	// At most 5 unpinned subscribers may exist per topic; the oldest is
	// evicted when a sixth subscribes.
	Subscribe(topic string) Subscription

	// SubscribePinned registers a subscriber that is exempt from the
	// per-topic cap and never evicted. For in-process consumers that must
	// outlive any number of client connections.
	SubscribePinned(topic string) Subscription

	// Publish delivers an event to all subscribers of a topic. It never
	// blocks; a full subscriber queue drops its oldest event.
	Publish(topic string, event events.Event)

	// Unsubscribe removes a subscriber. Idempotent.
	Unsubscribe(sub Subscription)
}

// Subscription is a handle to a bounded per-subscriber event queue.
type Subscription interface {
	// ID returns the subscriber's unique identifier.
	ID() string

	// Topic returns the topic this subscription is attached to.
	Topic() string

	// Events returns the channel events are delivered on. The channel is
	// closed when the subscription is closed or evicted.
	Events() <-chan events.Event

	// Done is closed when the subscription is no longer live.
	Done() <-chan struct{}

	// Dropped returns the number of events dropped because the queue was full.
	Dropped() uint64
}
