package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cmericli/claude-remote/internal/domain"
)

const (
	DefaultSessionLimit = 30
	MaxSessionLimit     = 200
	DefaultSearchLimit  = 20
	MaxSearchLimit      = 200
	DefaultPageLimit    = 100
	MaxPageLimit        = 500
)

const sessionColumns = `
	session_id, slug, branch, working_dir, version, model, log_path,
	file_size_bytes, message_count, user_message_count, assistant_message_count,
	tool_use_count, input_tokens, output_tokens, cache_read_tokens, cache_create_tokens,
	total_duration_ms, first_message_at, last_message_at, last_role
`

// SessionFilter narrows the session list.
type SessionFilter struct {
	// Project keeps only sessions whose working directory matches exactly.
	Project string
	// ActiveSince keeps only sessions with activity at or after the instant.
	ActiveSince time.Time
}

// Sessions lists sessions ordered by most recent activity.
func (s *Store) Sessions(ctx context.Context, f SessionFilter, limit, offset int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = DefaultSessionLimit
	}
	if limit > MaxSessionLimit {
		limit = MaxSessionLimit
	}

	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE 1=1
	`
	args := []interface{}{}
	if f.Project != "" {
		query += " AND working_dir = ?"
		args = append(args, f.Project)
	}
	if !f.ActiveSince.IsZero() {
		query += " AND last_message_at >= ?"
		args = append(args, f.ActiveSince.UnixMilli())
	}
	query += " ORDER BY last_message_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		sum, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Session returns a single session by id.
func (s *Store) Session(ctx context.Context, sessionID string) (SessionSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions WHERE session_id = ?
	`, sessionID)

	sum, err := scanSession(row)
	if err == sql.ErrNoRows {
		return SessionSummary{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return SessionSummary{}, fmt.Errorf("failed to load session: %w", err)
	}
	return sum, nil
}

// Conversation returns a session's messages in sequence order. beforeSeq
// pages backwards: 0 means from the end.
func (s *Store) Conversation(ctx context.Context, sessionID string, limit int, beforeSeq int64) ([]ConversationMessage, error) {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	query := `
		SELECT id, seq, uuid, role, body, thinking, model,
		       input_tokens, output_tokens, cache_read_tokens, cache_create_tokens, created_at
		FROM messages
		WHERE session_id = ?
	`
	args := []interface{}{sessionID}
	if beforeSeq > 0 {
		query += " AND seq < ?"
		args = append(args, beforeSeq)
	}
	query += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	defer rows.Close()

	var msgs []ConversationMessage
	ids := make(map[int64]int)
	for rows.Next() {
		var m ConversationMessage
		var id, createdAt int64
		if err := rows.Scan(&id, &m.Seq, &m.UUID, &m.Role, &m.Body, &m.Thinking, &m.Model,
			&m.Tokens.Input, &m.Tokens.Output, &m.Tokens.CacheRead, &m.Tokens.CacheCreate,
			&createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = millisToTime(createdAt)
		msgs = append(msgs, m)
		ids[id] = len(msgs) - 1
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into ascending sequence order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	for id, idx := range ids {
		ids[id] = len(msgs) - 1 - idx
	}

	if err := s.attachToolUses(ctx, ids, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *Store) attachToolUses(ctx context.Context, ids map[int64]int, msgs []ConversationMessage) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(ids))
	args := make([]interface{}, 0, len(ids))
	for id := range ids {
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, tool_use_id, name, summary
		FROM tool_uses
		WHERE message_id IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY id
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to query tool uses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var messageID int64
		var tu ToolUseRecord
		if err := rows.Scan(&messageID, &tu.ToolUseID, &tu.Name, &tu.Summary); err != nil {
			return err
		}
		if idx, ok := ids[messageID]; ok {
			msgs[idx].ToolUses = append(msgs[idx].ToolUses, tu)
		}
	}
	return rows.Err()
}

// SearchFilter narrows full-text results.
type SearchFilter struct {
	// Project keeps only hits from sessions whose working directory matches.
	Project string
	// After and Before bound the hit's message timestamp, inclusive.
	After  time.Time
	Before time.Time
}

// Search runs a full-text query over message bodies and thinking text.
func (s *Store) Search(ctx context.Context, query string, f SearchFilter, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	ftsQuery := buildFTSQuery(query)
	if ftsQuery == "" {
		return nil, domain.ErrInvalidQuery
	}

	sqlQuery := `
		SELECT m.uuid, m.session_id, s.slug, s.working_dir, m.seq, m.role,
		       snippet(messages_fts, 0, '<mark>', '</mark>', '…', 16),
		       m.created_at
		FROM messages m
		JOIN messages_fts fts ON m.id = fts.rowid
		JOIN sessions s ON s.session_id = m.session_id
		WHERE messages_fts MATCH ?
	`
	args := []interface{}{ftsQuery}
	if f.Project != "" {
		sqlQuery += " AND s.working_dir = ?"
		args = append(args, f.Project)
	}
	if !f.After.IsZero() {
		sqlQuery += " AND m.created_at >= ?"
		args = append(args, f.After.UnixMilli())
	}
	if !f.Before.IsZero() {
		sqlQuery += " AND m.created_at <= ?"
		args = append(args, f.Before.UnixMilli())
	}
	sqlQuery += " ORDER BY bm25(messages_fts) LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		var createdAt int64
		if err := rows.Scan(&h.MessageUUID, &h.SessionID, &h.Slug, &h.Project,
			&h.Seq, &h.Role, &h.Snippet, &createdAt); err != nil {
			return nil, err
		}
		h.CreatedAt = millisToTime(createdAt)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Stats computes dashboard aggregates across all sessions.
func (s *Store) Stats(ctx context.Context) (AggregateStats, error) {
	var stats AggregateStats

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(message_count), 0),
		       COALESCE(SUM(tool_use_count), 0),
		       COALESCE(SUM(input_tokens), 0),
		       COALESCE(SUM(output_tokens), 0),
		       COALESCE(SUM(cache_read_tokens), 0),
		       COALESCE(SUM(cache_create_tokens), 0)
		FROM sessions
	`).Scan(&stats.TotalSessions, &stats.TotalMessages, &stats.TotalToolUses,
		&stats.Tokens.Input, &stats.Tokens.Output, &stats.Tokens.CacheRead, &stats.Tokens.CacheCreate)
	if err != nil {
		return AggregateStats{}, fmt.Errorf("failed to compute stats: %w", err)
	}

	now := s.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN last_message_at >= ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN last_message_at >= ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN last_message_at >= ? THEN 1 ELSE 0 END), 0)
		FROM sessions
	`, now.Add(-24*time.Hour).UnixMilli(), dayStart.UnixMilli(), now.AddDate(0, 0, -7).UnixMilli(),
	).Scan(&stats.SessionsActive, &stats.SessionsToday, &stats.SessionsWeek)
	if err != nil {
		return AggregateStats{}, err
	}
	return stats, nil
}

// TokenUsageByDay returns daily token totals per model for the last n days.
func (s *Store) TokenUsageByDay(ctx context.Context, days int) ([]TokenBucket, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := s.now().AddDate(0, 0, -days).UnixMilli()

	rows, err := s.db.QueryContext(ctx, `
		SELECT date(created_at / 1000, 'unixepoch') AS day,
		       model,
		       COALESCE(SUM(input_tokens), 0),
		       COALESCE(SUM(output_tokens), 0),
		       COALESCE(SUM(cache_read_tokens), 0),
		       COALESCE(SUM(cache_create_tokens), 0)
		FROM messages
		WHERE created_at >= ? AND role = 'assistant'
		GROUP BY day, model
		ORDER BY day
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query token usage: %w", err)
	}
	defer rows.Close()

	var out []TokenBucket
	for rows.Next() {
		var b TokenBucket
		if err := rows.Scan(&b.Day, &b.Model,
			&b.Tokens.Input, &b.Tokens.Output, &b.Tokens.CacheRead, &b.Tokens.CacheCreate); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// TokenUsageByProject returns token totals per project working directory
// for the last n days.
func (s *Store) TokenUsageByProject(ctx context.Context, days int) ([]TokenBucket, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := s.now().AddDate(0, 0, -days).UnixMilli()

	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(se.working_dir, '') AS project,
		       COALESCE(SUM(m.input_tokens), 0),
		       COALESCE(SUM(m.output_tokens), 0),
		       COALESCE(SUM(m.cache_read_tokens), 0),
		       COALESCE(SUM(m.cache_create_tokens), 0)
		FROM messages m
		LEFT JOIN sessions se ON se.session_id = m.session_id
		WHERE m.created_at >= ? AND m.role = 'assistant'
		GROUP BY project
		ORDER BY SUM(m.output_tokens) DESC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query token usage by project: %w", err)
	}
	defer rows.Close()

	var out []TokenBucket
	for rows.Next() {
		var b TokenBucket
		if err := rows.Scan(&b.Project,
			&b.Tokens.Input, &b.Tokens.Output, &b.Tokens.CacheRead, &b.Tokens.CacheCreate); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ToolUsage returns per-tool invocation counts for the last n days.
func (s *Store) ToolUsage(ctx context.Context, days int) ([]ToolCount, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := s.now().AddDate(0, 0, -days).UnixMilli()

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, COUNT(*), MAX(created_at)
		FROM tool_uses
		WHERE created_at >= ?
		GROUP BY name
		ORDER BY COUNT(*) DESC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool usage: %w", err)
	}
	defer rows.Close()

	var out []ToolCount
	for rows.Next() {
		var tc ToolCount
		var lastUsed int64
		if err := rows.Scan(&tc.Name, &tc.Count, &lastUsed); err != nil {
			return nil, err
		}
		tc.LastUsedAt = millisToTime(lastUsed)
		out = append(out, tc)
	}
	return out, rows.Err()
}

// RecentMessages returns the newest messages across all sessions, newest
// first. Bodies are truncated to a preview in SQL to keep the feed cheap.
func (s *Store) RecentMessages(ctx context.Context, limit int) ([]RecentMessage, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.session_id, COALESCE(se.slug, ''), m.seq, m.role,
		       substr(m.body, 1, 200), m.created_at
		FROM messages m
		LEFT JOIN sessions se ON se.session_id = m.session_id
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	defer rows.Close()

	var out []RecentMessage
	for rows.Next() {
		var rm RecentMessage
		var createdAt int64
		if err := rows.Scan(&rm.SessionID, &rm.Slug, &rm.Seq, &rm.Role, &rm.Preview, &createdAt); err != nil {
			return nil, err
		}
		rm.CreatedAt = millisToTime(createdAt)
		out = append(out, rm)
	}
	return out, rows.Err()
}

// FilesTouched returns a session's file activity de-duplicated by path.
func (s *Store) FilesTouched(ctx context.Context, sessionID string) ([]FileTouch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, COUNT(*), MAX(created_at)
		FROM file_events
		WHERE session_id = ?
		GROUP BY path
		ORDER BY COUNT(*) DESC, path
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query files touched: %w", err)
	}
	defer rows.Close()

	var out []FileTouch
	for rows.Next() {
		var ft FileTouch
		var lastAt int64
		if err := rows.Scan(&ft.Path, &ft.Count, &lastAt); err != nil {
			return nil, err
		}
		ft.LastTouched = millisToTime(lastAt)
		out = append(out, ft)
	}
	return out, rows.Err()
}

// ToolSummary returns a session's tool invocation counts by name.
func (s *Store) ToolSummary(ctx context.Context, sessionID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, COUNT(*)
		FROM tool_uses
		WHERE session_id = ?
		GROUP BY name
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool summary: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		out[name] = count
	}
	return out, rows.Err()
}

// FileEvents returns a session's most recent file activity.
func (s *Store) FileEvents(ctx context.Context, sessionID string, limit int) ([]FileEventRecord, error) {
	if limit <= 0 {
		limit = DefaultPageLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT path, kind, created_at
		FROM file_events
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query file events: %w", err)
	}
	defer rows.Close()

	var out []FileEventRecord
	for rows.Next() {
		var fe FileEventRecord
		var createdAt int64
		if err := rows.Scan(&fe.Path, &fe.Kind, &createdAt); err != nil {
			return nil, err
		}
		fe.CreatedAt = millisToTime(createdAt)
		out = append(out, fe)
	}
	return out, rows.Err()
}

// IdleCandidates returns sessions whose last message came from the
// assistant within [windowStart, silentSince]. The caller applies its own
// cooldown on top.
func (s *Store) IdleCandidates(ctx context.Context, windowStart, silentSince time.Time) ([]IdleCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.session_id, s.slug, s.last_message_at,
		       COALESCE((SELECT body FROM messages m
		                 WHERE m.session_id = s.session_id
		                 ORDER BY m.seq DESC LIMIT 1), '')
		FROM sessions s
		WHERE s.last_role = 'assistant'
		  AND s.last_message_at >= ?
		  AND s.last_message_at <= ?
	`, windowStart.UnixMilli(), silentSince.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query idle candidates: %w", err)
	}
	defer rows.Close()

	var out []IdleCandidate
	for rows.Next() {
		var c IdleCandidate
		var lastAt int64
		if err := rows.Scan(&c.SessionID, &c.Slug, &lastAt, &c.LastPreview); err != nil {
			return nil, err
		}
		c.LastMessageAt = millisToTime(lastAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanSession(row interface{ Scan(...interface{}) error }) (SessionSummary, error) {
	var sum SessionSummary
	var firstAt, lastAt int64
	err := row.Scan(
		&sum.SessionID, &sum.Slug, &sum.Branch, &sum.WorkingDir, &sum.Version, &sum.Model,
		&sum.LogPath, &sum.FileSizeBytes,
		&sum.MessageCount, &sum.UserMessageCount, &sum.AssistantMessageCount, &sum.ToolUseCount,
		&sum.Tokens.Input, &sum.Tokens.Output, &sum.Tokens.CacheRead, &sum.Tokens.CacheCreate,
		&sum.TotalDurationMS, &firstAt, &lastAt, &sum.LastRole,
	)
	if err != nil {
		return SessionSummary{}, err
	}
	sum.FirstMessageAt = millisToTime(firstAt)
	sum.LastMessageAt = millisToTime(lastAt)
	return sum, nil
}

var ftsSanitizer = strings.NewReplacer(
	"*", " ",
	"\"", " ",
	"(", " ",
	")", " ",
	":", " ",
	"^", " ",
	"-", " ",
)

// buildFTSQuery converts user input into an FTS5 MATCH expression. Bare
// tokens are AND-matched with a prefix wildcard on the last one; double
// quoted spans become exact phrase matches. Tokens shorter than two runes
// are dropped. Operators inside tokens are stripped so user input cannot
// break the expression.
func buildFTSQuery(query string) string {
	var parts []string

	rest := query
	for {
		start := strings.IndexByte(rest, '"')
		if start < 0 {
			break
		}
		end := strings.IndexByte(rest[start+1:], '"')
		if end < 0 {
			// Unbalanced quote; treat the remainder as bare tokens.
			rest = rest[:start] + " " + rest[start+1:]
			break
		}
		phrase := strings.TrimSpace(ftsSanitizer.Replace(rest[start+1 : start+1+end]))
		if phrase != "" {
			parts = append(parts, `"`+phrase+`"`)
		}
		rest = rest[:start] + " " + rest[start+1+end+1:]
	}

	tokens := strings.Fields(ftsSanitizer.Replace(rest))
	var kept []string
	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) >= 2 {
			kept = append(kept, tok)
		}
	}
	if len(kept) > 0 {
		kept[len(kept)-1] += "*"
		parts = append(parts, kept...)
	}
	return strings.Join(parts, " ")
}
