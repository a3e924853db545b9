// Package push delivers notifications to web push endpoints over HTTP.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cmericli/claude-remote/internal/domain/ports"
)

// Sender posts notification payloads to subscription endpoints. Endpoint
// responses map onto delivery outcomes: 2xx is success, 404/410 means the
// subscription is permanently gone, anything else is transient.
type Sender struct {
	client *http.Client
	ttl    int
}

// New creates a sender with its own HTTP client.
func New() *Sender {
	return &Sender{
		client: &http.Client{Timeout: 15 * time.Second},
		ttl:    3600,
	}
}

// NewWithClient creates a sender over a caller-provided client.
func NewWithClient(client *http.Client) *Sender {
	return &Sender{client: client, ttl: 3600}
}

// Deliver implements ports.DeliveryPort.
func (s *Sender) Deliver(ctx context.Context, sub ports.PushSubscription, payload ports.NotificationPayload) ports.DeliveryOutcome {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode push payload")
		return ports.DeliveryPermanentError
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(body))
	if err != nil {
		return ports.DeliveryPermanentError
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("TTL", "3600")
	req.Header.Set("Urgency", "high")

	resp, err := s.client.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("endpoint", sub.Endpoint).Msg("push request failed")
		return ports.DeliveryTransientError
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return ports.DeliveryOK
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ports.DeliveryPermanentError
	default:
		log.Debug().Int("status", resp.StatusCode).Str("endpoint", sub.Endpoint).
			Msg("push endpoint rejected notification")
		return ports.DeliveryTransientError
	}
}

var _ ports.DeliveryPort = (*Sender)(nil)
