package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cmericli/claude-remote/internal/domain/events"
)

// handleEvents streams bus events as server-sent events. The topic query
// parameter selects a session topic; it defaults to the dashboard topic.
// A heartbeat event keeps intermediaries from timing the stream out.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	topic := r.URL.Query().Get("topic")
	if topic == "" {
		topic = events.TopicDashboard
	}

	sub := s.bus.Subscribe(topic)
	defer s.bus.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log.Debug().Str("topic", topic).Str("subscriber_id", sub.ID()).Msg("SSE stream opened")

	heartbeat := time.NewTicker(s.opts.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Debug().Str("topic", topic).Msg("SSE client disconnected")
			return

		case <-sub.Done():
			// Evicted by a newer subscriber or the bus shut down.
			log.Debug().Str("topic", topic).Msg("SSE subscription closed")
			return

		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()

		case <-heartbeat.C:
			if err := writeSSE(w, events.NewHeartbeatEvent()); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev events.Event) error {
	data, err := ev.ToJSON()
	if err != nil {
		log.Debug().Err(err).Msg("failed to encode SSE event")
		return nil
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type(), data)
	return err
}
