// Package parser converts session log lines into normalized records.
//
// The parser is a pure function over input bytes: it holds no state, does
// no I/O, and is deterministic for a given input and reference time. The
// reference time is only used for lines with malformed timestamps.
package parser

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// TokenUsage holds per-message token counters.
type TokenUsage struct {
	Input       int64
	Output      int64
	CacheRead   int64
	CacheCreate int64
}

// Add accumulates another usage into this one.
func (u *TokenUsage) Add(o TokenUsage) {
	u.Input += o.Input
	u.Output += o.Output
	u.CacheRead += o.CacheRead
	u.CacheCreate += o.CacheCreate
}

// ToolUse is a tool invocation observed in an assistant message.
type ToolUse struct {
	ID      string
	Name    string
	Summary string
}

// FileEvent is a file touch derived from a tool invocation.
type FileEvent struct {
	Path string
	Kind string // read, write, edit, bash, create
}

// Message is a normalized user or assistant message.
type Message struct {
	UUID       string
	ParentUUID string
	SessionID  string
	Role       string
	Body       string
	Thinking   string
	Model      string
	Usage      TokenUsage
	Timestamp  time.Time
	ToolUses   []ToolUse
	FileEvents []FileEvent
}

// SessionMeta carries session-scoped attributes extracted from log lines.
// String fields are first-observation-wins; DurationMS accumulates.
type SessionMeta struct {
	SessionID  string
	Slug       string
	Branch     string
	WorkingDir string
	Version    string
	Model      string
	DurationMS int64
}

// Result is the outcome of parsing a batch of lines.
type Result struct {
	Messages []Message
	// Meta holds per-session metadata keyed by session id. A batch from a
	// single file normally yields one entry, but a line's own session id
	// is authoritative, so cross-session lines are kept separate.
	Meta map[string]*SessionMeta

	Malformed   int
	UnknownType int
}

// Wire format of a single log line, discriminated by Type.
type rawEntry struct {
	Type       string     `json:"type"`
	Subtype    string     `json:"subtype"`
	UUID       string     `json:"uuid"`
	ParentUUID string     `json:"parentUuid"`
	SessionID  string     `json:"sessionId"`
	Slug       string     `json:"slug"`
	CWD        string     `json:"cwd"`
	GitBranch  string     `json:"gitBranch"`
	Version    string     `json:"version"`
	Timestamp  string     `json:"timestamp"`
	DurationMS int64      `json:"durationMs"`
	Message    rawMessage `json:"message"`
}

type rawMessage struct {
	Role    string          `json:"role"`
	Model   string          `json:"model"`
	Content json.RawMessage `json:"content"` // string or array of blocks
	Usage   rawUsage        `json:"usage"`
}

type rawUsage struct {
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheReadTokens     int64 `json:"cache_read_input_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_input_tokens"`
}

// contentBlock is one element of a structured message content array.
// Blocks are a tagged union on Type; unknown tags are tolerated.
type contentBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text"`
	Thinking string          `json:"thinking"`
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Input    json.RawMessage `json:"input"`
}

// Parse converts a batch of complete log lines into normalized records.
// fileSessionID is the session id inferred from the file name; a line's
// own session id overrides it. now is used for malformed timestamps.
func Parse(fileSessionID string, lines [][]byte, now time.Time) Result {
	res := Result{Meta: make(map[string]*SessionMeta)}

	for _, line := range lines {
		if len(line) == 0 {
			continue
		}

		var entry rawEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			res.Malformed++
			log.Debug().Err(err).Msg("skipping malformed log line")
			continue
		}

		sessionID := entry.SessionID
		if sessionID == "" {
			sessionID = fileSessionID
		}
		if sessionID == "" {
			res.Malformed++
			continue
		}
		meta := res.metaFor(sessionID)
		meta.observe(&entry)

		switch entry.Type {
		case "user", "assistant":
			msg, ok := parseMessage(sessionID, &entry, now)
			if !ok {
				continue
			}
			if msg.Model != "" && meta.Model == "" {
				meta.Model = msg.Model
			}
			res.Messages = append(res.Messages, msg)

		case "system":
			if entry.Subtype == "turn_duration" {
				meta.DurationMS += entry.DurationMS
			}

		case "progress", "file-history-snapshot", "queue-operation":
			// Tolerated, not indexed.

		default:
			res.UnknownType++
		}
	}

	return res
}

func (r *Result) metaFor(sessionID string) *SessionMeta {
	if m, ok := r.Meta[sessionID]; ok {
		return m
	}
	m := &SessionMeta{SessionID: sessionID}
	r.Meta[sessionID] = m
	return m
}

// observe extracts session-scoped attributes from any entry carrying them.
func (m *SessionMeta) observe(entry *rawEntry) {
	if m.Slug == "" && entry.Slug != "" {
		m.Slug = entry.Slug
	}
	if m.Branch == "" && entry.GitBranch != "" {
		m.Branch = entry.GitBranch
	}
	if m.WorkingDir == "" && entry.CWD != "" {
		m.WorkingDir = entry.CWD
	}
	if m.Version == "" && entry.Version != "" {
		m.Version = entry.Version
	}
}

// parseMessage normalizes a user/assistant entry. Returns ok=false for
// entries that do not yield a Message row (e.g. user entries consisting
// solely of tool_result blocks).
func parseMessage(sessionID string, entry *rawEntry, now time.Time) (Message, bool) {
	role := entry.Message.Role
	if role == "" {
		role = entry.Type
	}
	if role != "user" && role != "assistant" {
		return Message{}, false
	}

	body, thinking, toolUses, fileEvents, hasText := parseContent(entry.Message.Content)

	// A user entry with structured content but no text part carries only
	// tool results; it is not a message.
	if role == "user" && !hasText {
		return Message{}, false
	}

	ts, err := time.Parse(time.RFC3339Nano, entry.Timestamp)
	if err != nil {
		ts = now
	}

	return Message{
		UUID:       entry.UUID,
		ParentUUID: entry.ParentUUID,
		SessionID:  sessionID,
		Role:       role,
		Body:       body,
		Thinking:   thinking,
		Model:      entry.Message.Model,
		Usage: TokenUsage{
			Input:       entry.Message.Usage.InputTokens,
			Output:      entry.Message.Usage.OutputTokens,
			CacheRead:   entry.Message.Usage.CacheReadTokens,
			CacheCreate: entry.Message.Usage.CacheCreationTokens,
		},
		Timestamp:  ts.UTC(),
		ToolUses:   toolUses,
		FileEvents: fileEvents,
	}, true
}

// parseContent extracts text, reasoning and tool invocations from message
// content, which is either a plain string or an array of tagged blocks.
func parseContent(content json.RawMessage) (body, thinking string, toolUses []ToolUse, fileEvents []FileEvent, hasText bool) {
	if len(content) == 0 {
		return "", "", nil, nil, false
	}

	var str string
	if err := json.Unmarshal(content, &str); err == nil {
		return str, "", nil, nil, str != ""
	}

	var blocks []json.RawMessage
	if err := json.Unmarshal(content, &blocks); err != nil {
		return "", "", nil, nil, false
	}

	var textParts, thinkingParts []string
	for _, raw := range blocks {
		// Bare strings are tolerated alongside tagged blocks.
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			textParts = append(textParts, s)
			hasText = true
			continue
		}

		var block contentBlock
		if err := json.Unmarshal(raw, &block); err != nil {
			continue
		}

		switch block.Type {
		case "text":
			textParts = append(textParts, block.Text)
			hasText = true
		case "thinking":
			thinkingParts = append(thinkingParts, block.Thinking)
		case "tool_use":
			name := block.Name
			if name == "" {
				name = "unknown"
			}
			toolUses = append(toolUses, ToolUse{
				ID:      block.ID,
				Name:    name,
				Summary: toolSummary(name, block.Input),
			})
			if ev, ok := toolFileEvent(name, block.Input); ok {
				fileEvents = append(fileEvents, ev)
			}
		case "tool_result":
			// Tool results never contribute body text.
		}
	}

	return strings.Join(textParts, "\n"), strings.Join(thinkingParts, "\n"), toolUses, fileEvents, hasText
}
