// Package idle detects sessions that appear to be waiting for user input.
package idle

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cmericli/claude-remote/internal/domain/events"
	"github.com/cmericli/claude-remote/internal/domain/ports"
	"github.com/cmericli/claude-remote/internal/store"
)

// Options tunes the detector. Zero values fall back to defaults.
type Options struct {
	ScanInterval time.Duration
	Threshold    time.Duration
	Window       time.Duration
	Cooldown     time.Duration
}

func (o *Options) fill() {
	if o.ScanInterval <= 0 {
		o.ScanInterval = 15 * time.Second
	}
	if o.Threshold <= 0 {
		o.Threshold = 30 * time.Second
	}
	if o.Window <= 0 {
		o.Window = 24 * time.Hour
	}
	if o.Cooldown <= 0 {
		o.Cooldown = 5 * time.Minute
	}
}

// Detector periodically scans for sessions whose last message came from
// the assistant and has gone unanswered past the threshold. Each hit
// publishes a needs_input event, rate limited per session by a cooldown
// that a subsequent user message clears.
type Detector struct {
	store *store.Store
	bus   ports.EventBus
	clock ports.Clock
	opts  Options

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// New creates a detector.
func New(st *store.Store, bus ports.EventBus, clock ports.Clock, opts Options) *Detector {
	opts.fill()
	return &Detector{
		store:    st,
		bus:      bus,
		clock:    clock,
		opts:     opts,
		lastSent: make(map[string]time.Time),
	}
}

// Run blocks until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) error {
	sub := d.bus.SubscribePinned(events.TopicDashboard)
	defer d.bus.Unsubscribe(sub)

	ticker := d.clock.NewTicker(d.opts.ScanInterval)
	defer ticker.Stop()

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
			d.observe(ev)
		case <-ticker.C():
			d.scan(ctx)
		}
	}
}

// observe clears a session's cooldown when the user answers, so the next
// unanswered assistant message can alert immediately.
func (d *Detector) observe(ev events.Event) {
	if ev.Type() != events.EventTypeNewMessage {
		return
	}
	base, ok := ev.(*events.BaseEvent)
	if !ok {
		return
	}
	payload, ok := base.Payload.(events.NewMessagePayload)
	if !ok || payload.Role != "user" {
		return
	}

	d.mu.Lock()
	delete(d.lastSent, payload.SessionID)
	d.mu.Unlock()
}

// scan finds idle sessions and publishes needs_input for those not in
// cooldown.
func (d *Detector) scan(ctx context.Context) {
	now := d.clock.Now()
	windowStart := now.Add(-d.opts.Window)
	silentSince := now.Add(-d.opts.Threshold)

	candidates, err := d.store.IdleCandidates(ctx, windowStart, silentSince)
	if err != nil {
		log.Warn().Err(err).Msg("idle candidate scan failed")
		return
	}

	for _, c := range candidates {
		if !d.shouldAlert(c.SessionID, now) {
			continue
		}
		idleFor := now.Sub(c.LastMessageAt)
		ev := events.NewNeedsInputEvent(c.SessionID, c.Slug, preview(c.LastPreview), int64(idleFor.Seconds()))
		d.bus.Publish(c.SessionID, ev)
		d.bus.Publish(events.TopicDashboard, ev)
		log.Debug().Str("session", c.SessionID).Dur("idle", idleFor).Msg("session needs input")
	}
}

func (d *Detector) shouldAlert(sessionID string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sent, ok := d.lastSent[sessionID]; ok && now.Sub(sent) < d.opts.Cooldown {
		return false
	}
	d.lastSent[sessionID] = now
	return true
}

const previewMaxLen = 120

func preview(body string) string {
	runes := []rune(body)
	if len(runes) <= previewMaxLen {
		return body
	}
	return string(runes[:previewMaxLen])
}
