// Package store persists indexed session data in SQLite with FTS5 search.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/cmericli/claude-remote/internal/domain"
	"github.com/cmericli/claude-remote/internal/domain/ports"
)

const schemaVersion = 1

// Store is the SQLite-backed session index. All writes are serialized
// through a single mutex; SQLite handles concurrent readers via WAL.
type Store struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// SetClock replaces the time source used by recency-windowed queries.
func (s *Store) SetClock(clock ports.Clock) {
	s.now = clock.Now
}

// Open opens (creating if necessary) the index database at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-32000",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			log.Warn().Err(err).Str("pragma", pragma).Msg("failed to set pragma")
		}
	}

	s := &Store{db: db, dbPath: dbPath, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	log.Info().Str("db", dbPath).Msg("session index opened")
	return s, nil
}

// Close closes the database. Further calls return ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrStoreClosed
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// initSchema creates or upgrades the database schema. Timestamps are
// stored as unix milliseconds.
func (s *Store) initSchema() error {
	var currentVersion int
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&currentVersion)
	if err != nil && err != sql.ErrNoRows {
		currentVersion = 0
	}

	if currentVersion >= schemaVersion {
		return nil
	}

	log.Info().Int("current", currentVersion).Int("target", schemaVersion).Msg("updating index schema")

	if currentVersion > 0 {
		tables := []string{
			"messages_fts",
			"file_events",
			"tool_uses",
			"messages",
			"sessions",
			"push_subscriptions",
			"metadata",
		}
		for _, table := range tables {
			s.db.Exec("DROP TABLE IF EXISTS " + table)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT
		);

		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			slug TEXT NOT NULL DEFAULT '',
			branch TEXT NOT NULL DEFAULT '',
			working_dir TEXT NOT NULL DEFAULT '',
			version TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			log_path TEXT NOT NULL DEFAULT '',
			file_size_bytes INTEGER NOT NULL DEFAULT 0,
			ingest_offset INTEGER NOT NULL DEFAULT 0,
			message_count INTEGER NOT NULL DEFAULT 0,
			user_message_count INTEGER NOT NULL DEFAULT 0,
			assistant_message_count INTEGER NOT NULL DEFAULT 0,
			tool_use_count INTEGER NOT NULL DEFAULT 0,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			cache_read_tokens INTEGER NOT NULL DEFAULT 0,
			cache_create_tokens INTEGER NOT NULL DEFAULT 0,
			total_duration_ms INTEGER NOT NULL DEFAULT 0,
			first_message_at INTEGER NOT NULL DEFAULT 0,
			last_message_at INTEGER NOT NULL DEFAULT 0,
			last_role TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			parent_uuid TEXT NOT NULL DEFAULT '',
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			thinking TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			cache_read_tokens INTEGER NOT NULL DEFAULT 0,
			cache_create_tokens INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			UNIQUE(session_id, seq)
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
			body,
			thinking,
			content='messages',
			content_rowid='id',
			tokenize='porter unicode61'
		);

		CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
			INSERT INTO messages_fts(rowid, body, thinking)
			VALUES (new.id, new.body, new.thinking);
		END;

		CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
			INSERT INTO messages_fts(messages_fts, rowid, body, thinking)
			VALUES ('delete', old.id, old.body, old.thinking);
		END;

		CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
			INSERT INTO messages_fts(messages_fts, rowid, body, thinking)
			VALUES ('delete', old.id, old.body, old.thinking);
			INSERT INTO messages_fts(rowid, body, thinking)
			VALUES (new.id, new.body, new.thinking);
		END;

		CREATE TABLE IF NOT EXISTS tool_uses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
			session_id TEXT NOT NULL,
			tool_use_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS file_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
			session_id TEXT NOT NULL,
			path TEXT NOT NULL,
			kind TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS push_subscriptions (
			endpoint TEXT PRIMARY KEY,
			p256dh TEXT NOT NULL,
			auth TEXT NOT NULL,
			user_agent TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
		CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_tool_uses_session ON tool_uses(session_id);
		CREATE INDEX IF NOT EXISTS idx_tool_uses_name ON tool_uses(name);
		CREATE INDEX IF NOT EXISTS idx_tool_uses_created ON tool_uses(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_file_events_session ON file_events(session_id);
		CREATE INDEX IF NOT EXISTS idx_sessions_last ON sessions(last_message_at DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	_, err = s.db.Exec("INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)", schemaVersion)
	return err
}
