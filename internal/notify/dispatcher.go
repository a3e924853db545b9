// Package notify forwards needs_input events to push subscribers with
// per-session and global rate limits.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cmericli/claude-remote/internal/domain/events"
	"github.com/cmericli/claude-remote/internal/domain/ports"
)

// SubscriptionStore is the slice of the index the dispatcher needs:
// enumerate push targets and drop the permanently dead ones.
type SubscriptionStore interface {
	PushSubscriptions(ctx context.Context) ([]ports.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error
}

// Options tunes dispatch rate limits. Zero values fall back to defaults.
type Options struct {
	SessionCooldown time.Duration
	GlobalHourlyCap int
	DeliveryTimeout time.Duration
}

func (o *Options) fill() {
	if o.SessionCooldown <= 0 {
		o.SessionCooldown = 5 * time.Minute
	}
	if o.GlobalHourlyCap <= 0 {
		o.GlobalHourlyCap = 10
	}
	if o.DeliveryTimeout <= 0 {
		o.DeliveryTimeout = 10 * time.Second
	}
}

// Dispatcher listens for needs_input events and pushes notifications.
// Suppressed and failed deliveries never propagate errors upstream; the
// bus must not observe slow or broken push targets.
type Dispatcher struct {
	bus      ports.EventBus
	store    SubscriptionStore
	delivery ports.DeliveryPort
	clock    ports.Clock
	opts     Options

	mu         sync.Mutex
	lastSent   map[string]time.Time
	recentSend []time.Time

	suppressed uint64
	delivered  uint64
}

// New creates a dispatcher.
func New(bus ports.EventBus, store SubscriptionStore, delivery ports.DeliveryPort, clock ports.Clock, opts Options) *Dispatcher {
	opts.fill()
	return &Dispatcher{
		bus:      bus,
		store:    store,
		delivery: delivery,
		clock:    clock,
		opts:     opts,
		lastSent: make(map[string]time.Time),
	}
}

// Run consumes needs_input events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	sub := d.bus.SubscribePinned(events.TopicDashboard)
	defer d.bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if ev.Type() == events.EventTypeNeedsInput {
				d.Handle(ctx, ev)
			}
		}
	}
}

// Handle processes one needs_input event, applying both rate limits.
func (d *Dispatcher) Handle(ctx context.Context, ev events.Event) {
	base, ok := ev.(*events.BaseEvent)
	if !ok {
		return
	}
	payload, ok := base.Payload.(events.NeedsInputPayload)
	if !ok {
		return
	}

	if !d.admit(payload.SessionID) {
		d.mu.Lock()
		d.suppressed++
		d.mu.Unlock()
		log.Debug().Str("session", payload.SessionID).Msg("notification suppressed by rate limit")
		return
	}

	d.deliverAll(ctx, notificationFor(payload))
}

// admit checks the per-session cooldown and the global rolling-hour cap,
// reserving a send slot when both pass.
func (d *Dispatcher) admit(sessionID string) bool {
	now := d.clock.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if sent, ok := d.lastSent[sessionID]; ok && now.Sub(sent) < d.opts.SessionCooldown {
		return false
	}

	cutoff := now.Add(-time.Hour)
	kept := d.recentSend[:0]
	for _, t := range d.recentSend {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	d.recentSend = kept

	if len(d.recentSend) >= d.opts.GlobalHourlyCap {
		return false
	}

	d.lastSent[sessionID] = now
	d.recentSend = append(d.recentSend, now)
	return true
}

// deliverAll fans one payload out to every subscription. A permanent
// delivery failure deletes the subscription; transient failures are
// logged and retried naturally on the next notification.
func (d *Dispatcher) deliverAll(ctx context.Context, payload ports.NotificationPayload) {
	subs, err := d.store.PushSubscriptions(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load push subscriptions")
		return
	}

	for _, sub := range subs {
		deliveryCtx, cancel := context.WithTimeout(ctx, d.opts.DeliveryTimeout)
		outcome := d.delivery.Deliver(deliveryCtx, sub, payload)
		cancel()

		switch outcome {
		case ports.DeliveryOK:
			d.mu.Lock()
			d.delivered++
			d.mu.Unlock()
		case ports.DeliveryPermanentError:
			log.Info().Str("endpoint", sub.Endpoint).Msg("removing dead push subscription")
			if err := d.store.DeletePushSubscription(ctx, sub.Endpoint); err != nil {
				log.Warn().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to remove subscription")
			}
		case ports.DeliveryTransientError:
			log.Debug().Str("endpoint", sub.Endpoint).Msg("transient push delivery failure")
		}
	}
}

// Delivered reports successful deliveries since start.
func (d *Dispatcher) Delivered() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delivered
}

// Suppressed reports notifications dropped by rate limits since start.
func (d *Dispatcher) Suppressed() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.suppressed
}

func notificationFor(p events.NeedsInputPayload) ports.NotificationPayload {
	title := "Claude needs input"
	if p.Slug != "" {
		title = fmt.Sprintf("%s needs input", p.Slug)
	}
	return ports.NotificationPayload{
		Title:     title,
		Body:      p.Preview,
		SessionID: p.SessionID,
	}
}
