// Package events defines the event types published on the bus.
package events

import (
	"encoding/json"
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// Indexer events
	EventTypeNewMessage     EventType = "new_message"
	EventTypeToolUse        EventType = "tool_use"
	EventTypeSessionStarted EventType = "session_started"

	// Idle detector events
	EventTypeNeedsInput EventType = "needs_input"

	// Connection events (emitted by the transport, not the bus)
	EventTypeHeartbeat EventType = "heartbeat"
)

// TopicDashboard is the reserved global topic. Per-session topics are the
// session ids themselves.
const TopicDashboard = "dashboard"

// Event is the base interface for all events.
type Event interface {
	// Type returns the event type.
	Type() EventType

	// Timestamp returns when the event occurred.
	Timestamp() time.Time

	// SessionID returns the session the event belongs to (may be empty).
	SessionID() string

	// ToJSON serializes the event to JSON.
	ToJSON() ([]byte, error)
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventType EventType   `json:"event"`
	EventTime time.Time   `json:"timestamp"`
	Session   string      `json:"session_id,omitempty"`
	Payload   interface{} `json:"payload"`
}

// Type returns the event type.
func (e *BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e *BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// SessionID returns the session the event belongs to.
func (e *BaseEvent) SessionID() string {
	return e.Session
}

// ToJSON serializes the event to JSON.
func (e *BaseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// NewEvent creates a new base event with the given type and payload.
func NewEvent(eventType EventType, sessionID string, payload interface{}) *BaseEvent {
	return &BaseEvent{
		EventType: eventType,
		EventTime: time.Now().UTC(),
		Session:   sessionID,
		Payload:   payload,
	}
}

// --- Indexer event payloads ---

// NewMessagePayload is published once per ingested message.
type NewMessagePayload struct {
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Preview   string    `json:"preview"`
	Timestamp time.Time `json:"timestamp"`
}

// NewNewMessageEvent creates a new_message event.
func NewNewMessageEvent(sessionID, role, preview string, ts time.Time) *BaseEvent {
	return NewEvent(EventTypeNewMessage, sessionID, NewMessagePayload{
		SessionID: sessionID,
		Role:      role,
		Preview:   preview,
		Timestamp: ts,
	})
}

// ToolUsePayload is published once per tool invocation.
type ToolUsePayload struct {
	SessionID string    `json:"session_id"`
	ToolName  string    `json:"tool_name"`
	Summary   string    `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
}

// NewToolUseEvent creates a tool_use event.
func NewToolUseEvent(sessionID, toolName, summary string, ts time.Time) *BaseEvent {
	return NewEvent(EventTypeToolUse, sessionID, ToolUsePayload{
		SessionID: sessionID,
		ToolName:  toolName,
		Summary:   summary,
		Timestamp: ts,
	})
}

// SessionStartedPayload is published when a previously unknown session id
// is first observed in the log root.
type SessionStartedPayload struct {
	SessionID string `json:"session_id"`
}

// NewSessionStartedEvent creates a session_started event.
func NewSessionStartedEvent(sessionID string) *BaseEvent {
	return NewEvent(EventTypeSessionStarted, sessionID, SessionStartedPayload{
		SessionID: sessionID,
	})
}

// --- Idle detector event payloads ---

// NeedsInputPayload is published when a session appears to be waiting for
// user input.
type NeedsInputPayload struct {
	SessionID   string `json:"session_id"`
	Slug        string `json:"slug,omitempty"`
	Preview     string `json:"last_message_preview,omitempty"`
	IdleSeconds int64  `json:"idle_seconds"`
}

// NewNeedsInputEvent creates a needs_input event.
func NewNeedsInputEvent(sessionID, slug, preview string, idleSeconds int64) *BaseEvent {
	return NewEvent(EventTypeNeedsInput, sessionID, NeedsInputPayload{
		SessionID:   sessionID,
		Slug:        slug,
		Preview:     preview,
		IdleSeconds: idleSeconds,
	})
}

// NewHeartbeatEvent creates a heartbeat event for idle streams.
func NewHeartbeatEvent() *BaseEvent {
	return NewEvent(EventTypeHeartbeat, "", nil)
}
