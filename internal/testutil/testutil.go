// Package testutil provides shared fakes for claude-remote tests.
package testutil

import (
	"sync"
	"time"

	"github.com/cmericli/claude-remote/internal/domain/events"
	"github.com/cmericli/claude-remote/internal/domain/ports"
)

// FakeClock is a manually advanced clock. Tickers fire only when the test
// calls Tick, so time-driven loops become deterministic.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*FakeTicker
}

// NewFakeClock creates a clock frozen at the given time.
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward without firing tickers.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// NewTicker returns a ticker controlled by Tick.
func (c *FakeClock) NewTicker(d time.Duration) ports.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &FakeTicker{ch: make(chan time.Time, 1), interval: d}
	c.tickers = append(c.tickers, t)
	return t
}

// Tick advances the clock and fires every live ticker once.
func (c *FakeClock) Tick(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := make([]*FakeTicker, len(c.tickers))
	copy(tickers, c.tickers)
	c.mu.Unlock()

	for _, t := range tickers {
		t.fire(now)
	}
}

// Tickers returns the tickers created so far, in creation order.
func (c *FakeClock) Tickers() []*FakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*FakeTicker, len(c.tickers))
	copy(out, c.tickers)
	return out
}

// FakeTicker is a ticker that fires on demand.
type FakeTicker struct {
	mu       sync.Mutex
	ch       chan time.Time
	interval time.Duration
	stopped  bool
}

// C returns the tick channel.
func (t *FakeTicker) C() <-chan time.Time {
	return t.ch
}

// Stop marks the ticker stopped; further fires are ignored.
func (t *FakeTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

// Interval returns the requested tick interval.
func (t *FakeTicker) Interval() time.Duration {
	return t.interval
}

// Fire delivers one tick at the given time.
func (t *FakeTicker) Fire(now time.Time) {
	t.fire(now)
}

func (t *FakeTicker) fire(now time.Time) {
	t.mu.Lock()
	stopped := t.stopped
	t.mu.Unlock()
	if stopped {
		return
	}
	select {
	case t.ch <- now:
	default:
	}
}

// RecordingBus implements ports.EventBus and records every publish.
type RecordingBus struct {
	mu        sync.Mutex
	published []PublishedEvent
}

// PublishedEvent pairs an event with the topic it went to.
type PublishedEvent struct {
	Topic string
	Event events.Event
}

// NewRecordingBus creates an empty recording bus.
func NewRecordingBus() *RecordingBus {
	return &RecordingBus{}
}

// Publish records the event.
func (b *RecordingBus) Publish(topic string, ev events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, PublishedEvent{Topic: topic, Event: ev})
}

// Subscribe returns a never-delivering subscription; tests that need real
// delivery use the bus package directly.
func (b *RecordingBus) Subscribe(topic string) ports.Subscription {
	return &nullSubscription{topic: topic, done: make(chan struct{})}
}

// SubscribePinned behaves like Subscribe.
func (b *RecordingBus) SubscribePinned(topic string) ports.Subscription {
	return b.Subscribe(topic)
}

// Unsubscribe is a no-op.
func (b *RecordingBus) Unsubscribe(ports.Subscription) {}

// Published returns all recorded publishes.
func (b *RecordingBus) Published() []PublishedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PublishedEvent, len(b.published))
	copy(out, b.published)
	return out
}

// OnTopic returns the events recorded for one topic.
func (b *RecordingBus) OnTopic(topic string) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, p := range b.published {
		if p.Topic == topic {
			out = append(out, p.Event)
		}
	}
	return out
}

// Reset clears recorded publishes.
func (b *RecordingBus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = nil
}

type nullSubscription struct {
	topic string
	done  chan struct{}
}

func (s *nullSubscription) ID() string                  { return "null" }
func (s *nullSubscription) Topic() string               { return s.topic }
func (s *nullSubscription) Events() <-chan events.Event { return nil }
func (s *nullSubscription) Done() <-chan struct{}       { return s.done }
func (s *nullSubscription) Dropped() uint64             { return 0 }

var _ ports.EventBus = (*RecordingBus)(nil)
var _ ports.Clock = (*FakeClock)(nil)
