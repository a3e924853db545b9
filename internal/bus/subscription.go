package bus

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/cmericli/claude-remote/internal/domain/events"
)

// subscription is a bounded per-subscriber queue. Delivery order is publish
// order; when the queue is full the oldest event is dropped so that drops
// never reorder the remaining sequence.
type subscription struct {
	id     string
	topic  string
	pinned bool

	ch      chan events.Event
	done    chan struct{}
	dropped atomic.Uint64

	closeOnce sync.Once
}

func newSubscription(topic string) *subscription {
	return &subscription{
		id:    uuid.New().String(),
		topic: topic,
		ch:    make(chan events.Event, queueCapacity),
		done:  make(chan struct{}),
	}
}

// ID returns the subscriber's unique identifier.
func (s *subscription) ID() string {
	return s.id
}

// Topic returns the topic this subscription is attached to.
func (s *subscription) Topic() string {
	return s.topic
}

// Events returns the delivery channel.
func (s *subscription) Events() <-chan events.Event {
	return s.ch
}

// Done is closed when the subscription is no longer live.
func (s *subscription) Done() <-chan struct{} {
	return s.done
}

// Dropped returns the number of events dropped due to a full queue.
func (s *subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// offer enqueues an event, dropping the oldest queued event when full.
// Returns true when a drop occurred. Callers hold the bus lock, so offer
// never races with itself.
func (s *subscription) offer(event events.Event) (droppedOldest bool) {
	select {
	case <-s.done:
		return false
	default:
	}

	for {
		select {
		case s.ch <- event:
			return droppedOldest
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
			droppedOldest = true
		default:
			// Consumer drained the queue between the two selects; retry.
		}
	}
}

func (s *subscription) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		close(s.ch)
	})
}
