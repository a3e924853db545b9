// Package bus implements the topic-keyed in-process event bus.
package bus

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/cmericli/claude-remote/internal/domain/events"
	"github.com/cmericli/claude-remote/internal/domain/ports"
)

const (
	// queueCapacity bounds each subscriber's event queue.
	queueCapacity = 256

	// maxSubscribersPerTopic bounds memory under tab-accumulation
	// workloads. The oldest unpinned subscriber is evicted when exceeded;
	// pinned subscribers do not count against the cap.
	maxSubscribersPerTopic = 5
)

// Bus fans events out to per-topic subscribers. Publish never blocks: a
// slow subscriber loses its oldest queued event, and topics evict their
// oldest subscriber when the cap is exceeded.
type Bus struct {
	mu     sync.Mutex
	topics map[string][]*subscription
	closed bool
}

// New creates a new Bus.
func New() *Bus {
	return &Bus{
		topics: make(map[string][]*subscription),
	}
}

// Subscribe registers a new subscriber on a topic.
func (b *Bus) Subscribe(topic string) ports.Subscription {
	return b.subscribe(topic, false)
}

// SubscribePinned registers a subscriber exempt from the per-topic cap.
// Internal loops use this so client churn can never evict them.
func (b *Bus) SubscribePinned(topic string) ports.Subscription {
	return b.subscribe(topic, true)
}

func (b *Bus) subscribe(topic string, pinned bool) ports.Subscription {
	sub := newSubscription(topic)
	sub.pinned = pinned

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.close()
		return sub
	}

	subs := b.topics[topic]
	if !pinned && countUnpinned(subs) >= maxSubscribersPerTopic {
		for i, cur := range subs {
			if cur.pinned {
				continue
			}
			// Oldest unpinned first in slice order.
			subs = append(subs[:i], subs[i+1:]...)
			cur.close()
			log.Debug().
				Str("topic", topic).
				Str("subscriber_id", cur.id).
				Msg("evicted oldest subscriber: topic at capacity")
			break
		}
	}
	b.topics[topic] = append(subs, sub)

	log.Debug().
		Str("topic", topic).
		Str("subscriber_id", sub.id).
		Int("topic_subscribers", len(b.topics[topic])).
		Msg("subscriber registered")

	return sub
}

func countUnpinned(subs []*subscription) int {
	n := 0
	for _, sub := range subs {
		if !sub.pinned {
			n++
		}
	}
	return n
}

// Unsubscribe removes a subscriber. Idempotent.
func (b *Bus) Unsubscribe(s ports.Subscription) {
	sub, ok := s.(*subscription)
	if !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[sub.topic]
	for i, cur := range subs {
		if cur == sub {
			b.topics[sub.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.topics[sub.topic]) == 0 {
		delete(b.topics, sub.topic)
	}
	sub.close()
}

// Publish delivers an event to every subscriber of a topic, in publish
// order per subscriber. Full queues drop their oldest event.
func (b *Bus) Publish(topic string, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for _, sub := range b.topics[topic] {
		if dropped := sub.offer(event); dropped {
			log.Debug().
				Str("topic", topic).
				Str("subscriber_id", sub.id).
				Uint64("dropped_total", sub.Dropped()).
				Msg("subscriber queue full: dropped oldest event")
		}
	}
}

// SubscriberCount returns the number of active subscribers on a topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

// Close shuts down the bus and closes every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for topic, subs := range b.topics {
		for _, sub := range subs {
			sub.close()
		}
		delete(b.topics, topic)
	}
	log.Debug().Msg("event bus closed")
}
