package ports

import "context"

// DeliveryOutcome classifies the result of a push delivery attempt.
type DeliveryOutcome int

const (
	DeliveryOK DeliveryOutcome = iota
	DeliveryTransientError
	DeliveryPermanentError
)

// PushSubscription is the stored addressing material for one push client.
type PushSubscription struct {
	Endpoint  string
	P256DH    string
	Auth      string
	UserAgent string
}

// NotificationPayload is the content handed to the delivery port.
type NotificationPayload struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	SessionID string `json:"session_id"`
}

// DeliveryPort is the injected interface through which notifications reach
// an external push service. The core is protocol-agnostic; a permanent
// error causes the subscription record to be deleted.
type DeliveryPort interface {
	Deliver(ctx context.Context, sub PushSubscription, payload NotificationPayload) DeliveryOutcome
}
