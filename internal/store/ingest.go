package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cmericli/claude-remote/internal/domain"
	"github.com/cmericli/claude-remote/internal/parser"
)

// Batch is one ingest unit: the parsed content of newly consumed bytes
// from a single session log, plus the offset those bytes end at.
type Batch struct {
	SessionID string
	LogPath   string
	FileSize  int64
	NewOffset int64
	Meta      *parser.SessionMeta
	Messages  []parser.Message
}

// IngestResult reports what a batch actually changed. Inserted holds only
// the messages that were new; replayed messages are absent, so event
// emission downstream stays idempotent too. ForeignCreated lists sessions
// other than the batch's file session that this batch brought into being.
type IngestResult struct {
	SessionCreated bool
	ForeignCreated []string
	Inserted       []parser.Message
}

// OffsetRecord seeds the indexer's in-memory offset table on startup.
type OffsetRecord struct {
	SessionID string
	LogPath   string
	Offset    int64
	FileSize  int64
}

// IngestBatch applies one parsed batch in a single transaction. Messages
// are deduplicated by uuid, sequence numbers continue from the session's
// current maximum, and session counters are recomputed from the messages
// table before commit. Replaying the same batch is a no-op.
func (s *Store) IngestBatch(ctx context.Context, batch Batch) (IngestResult, error) {
	if s.isClosed() {
		return IngestResult{}, domain.ErrStoreClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res := IngestResult{}

	res.SessionCreated, err = ensureSession(ctx, tx, batch.SessionID)
	if err != nil {
		return IngestResult{}, err
	}

	var currentOffset int64
	if err := tx.QueryRowContext(ctx,
		"SELECT ingest_offset FROM sessions WHERE session_id = ?", batch.SessionID,
	).Scan(&currentOffset); err != nil {
		return IngestResult{}, fmt.Errorf("failed to read ingest offset: %w", err)
	}
	if batch.NewOffset < currentOffset {
		return IngestResult{}, fmt.Errorf("offset %d behind %d for session %s: %w",
			batch.NewOffset, currentOffset, batch.SessionID, domain.ErrOffsetRegression)
	}

	// A line's own session id is authoritative, so a batch from one file
	// can carry messages for several sessions. Group by session id in
	// encounter order; each group gets its own row and sequence range.
	order := []string{batch.SessionID}
	groups := map[string][]parser.Message{batch.SessionID: nil}
	for _, msg := range batch.Messages {
		sid := msg.SessionID
		if sid == "" {
			sid = batch.SessionID
			msg.SessionID = sid
		}
		if _, ok := groups[sid]; !ok {
			order = append(order, sid)
		}
		groups[sid] = append(groups[sid], msg)
	}

	for _, sid := range order {
		if sid != batch.SessionID {
			created, err := ensureSession(ctx, tx, sid)
			if err != nil {
				return IngestResult{}, err
			}
			if created {
				res.ForeignCreated = append(res.ForeignCreated, sid)
			}
		}

		// Sequence numbers are zero-based and continue from the current max.
		var nextSeq int64
		if err := tx.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(seq), -1) FROM messages WHERE session_id = ?", sid,
		).Scan(&nextSeq); err != nil {
			return IngestResult{}, fmt.Errorf("failed to read max seq: %w", err)
		}

		for _, msg := range groups[sid] {
			inserted, err := insertMessage(ctx, tx, nextSeq+1, msg)
			if err != nil {
				return IngestResult{}, err
			}
			if inserted {
				nextSeq++
				res.Inserted = append(res.Inserted, msg)
			}
		}
	}

	if err := applyMeta(ctx, tx, batch); err != nil {
		return IngestResult{}, err
	}
	for _, sid := range order {
		if err := recomputeCounters(ctx, tx, sid); err != nil {
			return IngestResult{}, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET ingest_offset = ?, file_size_bytes = ?, log_path = ?
		WHERE session_id = ?
	`, batch.NewOffset, batch.FileSize, batch.LogPath, batch.SessionID); err != nil {
		return IngestResult{}, fmt.Errorf("failed to advance offset: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return IngestResult{}, fmt.Errorf("failed to commit batch: %w", err)
	}
	return res, nil
}

// ResetSession discards a session's derived rows and rewinds its ingest
// offset to zero. Used when a log file shrinks and must be re-ingested.
func (s *Store) ResetSession(ctx context.Context, sessionID string) error {
	if s.isClosed() {
		return domain.ErrStoreClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// tool_uses and file_events cascade off messages.
	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET
			ingest_offset = 0, file_size_bytes = 0,
			message_count = 0, user_message_count = 0, assistant_message_count = 0,
			tool_use_count = 0,
			input_tokens = 0, output_tokens = 0, cache_read_tokens = 0, cache_create_tokens = 0,
			total_duration_ms = 0,
			first_message_at = 0, last_message_at = 0, last_role = ''
		WHERE session_id = ?
	`, sessionID); err != nil {
		return fmt.Errorf("failed to reset session: %w", err)
	}

	return tx.Commit()
}

// IngestOffsets returns the persisted offset for every known session.
func (s *Store) IngestOffsets(ctx context.Context) ([]OffsetRecord, error) {
	if s.isClosed() {
		return nil, domain.ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT session_id, log_path, ingest_offset, file_size_bytes FROM sessions")
	if err != nil {
		return nil, fmt.Errorf("failed to query offsets: %w", err)
	}
	defer rows.Close()

	var out []OffsetRecord
	for rows.Next() {
		var rec OffsetRecord
		if err := rows.Scan(&rec.SessionID, &rec.LogPath, &rec.Offset, &rec.FileSize); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func ensureSession(ctx context.Context, tx *sql.Tx, sessionID string) (created bool, err error) {
	result, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO sessions (session_id) VALUES (?)", sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to ensure session: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, seq int64, msg parser.Message) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages
		(uuid, session_id, parent_uuid, seq, role, body, thinking, model,
		 input_tokens, output_tokens, cache_read_tokens, cache_create_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.UUID, msg.SessionID, msg.ParentUUID, seq, msg.Role, msg.Body, msg.Thinking, msg.Model,
		msg.Usage.Input, msg.Usage.Output, msg.Usage.CacheRead, msg.Usage.CacheCreate,
		msg.Timestamp.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to insert message %s: %w", msg.UUID, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return false, nil
	}

	messageID, err := result.LastInsertId()
	if err != nil {
		return false, err
	}

	for _, tu := range msg.ToolUses {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tool_uses (message_id, session_id, tool_use_id, name, summary, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, messageID, msg.SessionID, tu.ID, tu.Name, tu.Summary, msg.Timestamp.UnixMilli()); err != nil {
			return false, fmt.Errorf("failed to insert tool use: %w", err)
		}
	}
	for _, fe := range msg.FileEvents {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO file_events (message_id, session_id, path, kind, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, messageID, msg.SessionID, fe.Path, fe.Kind, msg.Timestamp.UnixMilli()); err != nil {
			return false, fmt.Errorf("failed to insert file event: %w", err)
		}
	}
	return true, nil
}

// applyMeta merges session metadata: string fields keep the first observed
// value, turn durations accumulate.
func applyMeta(ctx context.Context, tx *sql.Tx, batch Batch) error {
	meta := batch.Meta
	if meta == nil {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE sessions SET
			slug = CASE WHEN slug = '' THEN ? ELSE slug END,
			branch = CASE WHEN branch = '' THEN ? ELSE branch END,
			working_dir = CASE WHEN working_dir = '' THEN ? ELSE working_dir END,
			version = CASE WHEN version = '' THEN ? ELSE version END,
			model = CASE WHEN model = '' THEN ? ELSE model END,
			total_duration_ms = total_duration_ms + ?
		WHERE session_id = ?
	`, meta.Slug, meta.Branch, meta.WorkingDir, meta.Version, meta.Model,
		meta.DurationMS, batch.SessionID)
	if err != nil {
		return fmt.Errorf("failed to apply session meta: %w", err)
	}
	return nil
}

// recomputeCounters derives all session counters from the messages table so
// they stay exact under replays and partial batches.
func recomputeCounters(ctx context.Context, tx *sql.Tx, sessionID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE sessions SET
			message_count = (SELECT COUNT(*) FROM messages WHERE session_id = ?1),
			user_message_count = (SELECT COUNT(*) FROM messages WHERE session_id = ?1 AND role = 'user'),
			assistant_message_count = (SELECT COUNT(*) FROM messages WHERE session_id = ?1 AND role = 'assistant'),
			tool_use_count = (SELECT COUNT(*) FROM tool_uses WHERE session_id = ?1),
			input_tokens = (SELECT COALESCE(SUM(input_tokens), 0) FROM messages WHERE session_id = ?1),
			output_tokens = (SELECT COALESCE(SUM(output_tokens), 0) FROM messages WHERE session_id = ?1),
			cache_read_tokens = (SELECT COALESCE(SUM(cache_read_tokens), 0) FROM messages WHERE session_id = ?1),
			cache_create_tokens = (SELECT COALESCE(SUM(cache_create_tokens), 0) FROM messages WHERE session_id = ?1),
			first_message_at = (SELECT COALESCE(MIN(created_at), 0) FROM messages WHERE session_id = ?1),
			last_message_at = (SELECT COALESCE(MAX(created_at), 0) FROM messages WHERE session_id = ?1),
			last_role = COALESCE((SELECT role FROM messages WHERE session_id = ?1 ORDER BY seq DESC LIMIT 1), '')
		WHERE session_id = ?1
	`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to recompute counters: %w", err)
	}
	return nil
}
