package store

import "time"

// TokenTotals aggregates token counters across messages.
type TokenTotals struct {
	Input       int64 `json:"input_tokens"`
	Output      int64 `json:"output_tokens"`
	CacheRead   int64 `json:"cache_read_tokens"`
	CacheCreate int64 `json:"cache_creation_tokens"`
}

// SessionSummary is one row of the sessions table.
type SessionSummary struct {
	SessionID             string      `json:"session_id"`
	Slug                  string      `json:"slug"`
	Branch                string      `json:"branch"`
	WorkingDir            string      `json:"working_dir"`
	Version               string      `json:"version"`
	Model                 string      `json:"model"`
	LogPath               string      `json:"-"`
	FileSizeBytes         int64       `json:"file_size_bytes"`
	MessageCount          int         `json:"message_count"`
	UserMessageCount      int         `json:"user_message_count"`
	AssistantMessageCount int         `json:"assistant_message_count"`
	ToolUseCount          int         `json:"tool_use_count"`
	Tokens                TokenTotals `json:"tokens"`
	TotalDurationMS       int64       `json:"total_duration_ms"`
	FirstMessageAt        time.Time   `json:"first_message_at"`
	LastMessageAt         time.Time   `json:"last_message_at"`
	LastRole              string      `json:"last_role"`
}

// ToolUseRecord is a tool invocation attached to a conversation message.
type ToolUseRecord struct {
	ToolUseID string `json:"tool_use_id,omitempty"`
	Name      string `json:"name"`
	Summary   string `json:"summary,omitempty"`
}

// ConversationMessage is one message in conversation order.
type ConversationMessage struct {
	Seq       int64           `json:"seq"`
	UUID      string          `json:"uuid"`
	Role      string          `json:"role"`
	Body      string          `json:"body"`
	Thinking  string          `json:"thinking,omitempty"`
	Model     string          `json:"model,omitempty"`
	Tokens    TokenTotals     `json:"tokens"`
	CreatedAt time.Time       `json:"created_at"`
	ToolUses  []ToolUseRecord `json:"tool_uses,omitempty"`
}

// SearchHit is a full-text match with a highlighted snippet.
type SearchHit struct {
	MessageUUID string    `json:"message_uuid"`
	SessionID   string    `json:"session_id"`
	Slug        string    `json:"slug"`
	Project     string    `json:"project"`
	Seq         int64     `json:"seq"`
	Role        string    `json:"role"`
	Snippet     string    `json:"snippet"`
	CreatedAt   time.Time `json:"created_at"`
}

// AggregateStats backs the dashboard summary.
type AggregateStats struct {
	TotalSessions  int         `json:"total_sessions"`
	TotalMessages  int         `json:"total_messages"`
	TotalToolUses  int         `json:"total_tool_uses"`
	Tokens         TokenTotals `json:"tokens"`
	SessionsActive int         `json:"sessions_active_24h"`
	SessionsToday  int         `json:"sessions_today"`
	SessionsWeek   int         `json:"sessions_week"`
}

// TokenBucket is one bucket of token usage: a day split by model, or a
// project when grouping by project.
type TokenBucket struct {
	Day     string      `json:"day,omitempty"`
	Model   string      `json:"model,omitempty"`
	Project string      `json:"project,omitempty"`
	Tokens  TokenTotals `json:"tokens"`
}

// ToolCount is aggregate usage of one tool.
type ToolCount struct {
	Name       string    `json:"name"`
	Count      int       `json:"count"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// RecentMessage is one row of the cross-session activity feed.
type RecentMessage struct {
	SessionID string    `json:"session_id"`
	Slug      string    `json:"slug"`
	Seq       int64     `json:"seq"`
	Role      string    `json:"role"`
	Preview   string    `json:"preview"`
	CreatedAt time.Time `json:"created_at"`
}

// FileTouch is a session's file activity de-duplicated by path.
type FileTouch struct {
	Path        string    `json:"path"`
	Count       int       `json:"count"`
	LastTouched time.Time `json:"last_touched"`
}

// FileEventRecord is one file touch in a session.
type FileEventRecord struct {
	Path      string    `json:"path"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// IdleCandidate is a session whose last indexed message was produced by
// the assistant; the idle detector decides whether it has gone quiet.
type IdleCandidate struct {
	SessionID     string
	Slug          string
	LastMessageAt time.Time
	LastPreview   string
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
