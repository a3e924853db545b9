package indexer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cmericli/claude-remote/internal/domain/events"
	"github.com/cmericli/claude-remote/internal/domain/ports"
)

const toolUseCap = 10

// pending accumulates one session's events inside a coalescing window.
// Only the latest message preview survives; tool uses are kept up to a cap.
type pending struct {
	started    events.Event
	newMessage events.Event
	toolUses   []events.Event
	overflow   uint64
}

// coalescer batches bursts of per-session events so a rapidly appending
// log produces one preview update per window instead of one per line.
type coalescer struct {
	bus    ports.EventBus
	clock  ports.Clock
	window time.Duration

	mu      sync.Mutex
	byID    map[string]*pending
	dropped uint64
}

func newCoalescer(bus ports.EventBus, clock ports.Clock, window time.Duration) *coalescer {
	return &coalescer{
		bus:    bus,
		clock:  clock,
		window: window,
		byID:   make(map[string]*pending),
	}
}

func (c *coalescer) add(sessionID string, ev events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.byID[sessionID]
	if !ok {
		p = &pending{}
		c.byID[sessionID] = p
	}

	switch ev.Type() {
	case events.EventTypeSessionStarted:
		p.started = ev
	case events.EventTypeNewMessage:
		p.newMessage = ev
	case events.EventTypeToolUse:
		if len(p.toolUses) >= toolUseCap {
			p.overflow++
			c.dropped++
			return
		}
		p.toolUses = append(p.toolUses, ev)
	default:
		// Other event kinds are not batched.
		c.publishLocked(sessionID, ev)
	}
}

func (c *coalescer) run(ctx context.Context) {
	ticker := c.clock.NewTicker(c.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.flush()
			return
		case <-ticker.C():
			c.flush()
		}
	}
}

// flush publishes all pending events, per session, to the session topic
// and the dashboard topic.
func (c *coalescer) flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for sessionID, p := range c.byID {
		if p.started != nil {
			c.publishLocked(sessionID, p.started)
		}
		if p.newMessage != nil {
			c.publishLocked(sessionID, p.newMessage)
		}
		for _, ev := range p.toolUses {
			c.publishLocked(sessionID, ev)
		}
		if p.overflow > 0 {
			log.Debug().Str("session", sessionID).Uint64("overflow", p.overflow).
				Msg("tool use events dropped in coalescing window")
		}
		delete(c.byID, sessionID)
	}
}

func (c *coalescer) publishLocked(sessionID string, ev events.Event) {
	c.bus.Publish(sessionID, ev)
	c.bus.Publish(events.TopicDashboard, ev)
}
