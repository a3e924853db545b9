// Package indexer tails session log files into the store and emits live
// events for newly indexed messages.
//
// Polling is the source of truth: file watch notifications are treated as
// a best-effort fast path only, since notification delivery on network
// and containerized filesystems is unreliable.
package indexer

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cmericli/claude-remote/internal/domain/events"
	"github.com/cmericli/claude-remote/internal/domain/ports"
	"github.com/cmericli/claude-remote/internal/jsonl"
	"github.com/cmericli/claude-remote/internal/parser"
	"github.com/cmericli/claude-remote/internal/store"
)

const (
	defaultMaxLineBytes = 2 * 1024 * 1024
	previewMaxLen       = 120
)

// Options tunes the indexer loops. Zero values fall back to defaults.
type Options struct {
	PollInterval      time.Duration
	ReconcileInterval time.Duration
	CoalesceWindow    time.Duration
	MaxLineBytes      int
	NotifyFastPath    bool
}

func (o *Options) fill() {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.ReconcileInterval <= 0 {
		o.ReconcileInterval = time.Minute
	}
	if o.CoalesceWindow <= 0 {
		o.CoalesceWindow = 500 * time.Millisecond
	}
	if o.MaxLineBytes <= 0 {
		o.MaxLineBytes = defaultMaxLineBytes
	}
}

// fileState is the in-memory tail position for one log file path.
type fileState struct {
	sessionID string
	offset    int64
	size      int64
}

// Indexer drives ingestion: poll passes over known files, periodic
// reconciliation to discover new ones, and event emission via a coalescer.
type Indexer struct {
	root  string
	store *store.Store
	bus   ports.EventBus
	clock ports.Clock
	opts  Options

	coalescer *coalescer

	mu    sync.Mutex
	files map[string]*fileState
	// sessionOffsets carries persisted offsets for sessions whose file has
	// moved; a renamed file resumes from its session's watermark.
	sessionOffsets map[string]int64

	skippedLines uint64
}

// New creates an indexer over the log root. Offsets are seeded from the
// store so restarts do not re-emit events for already indexed messages.
func New(root string, st *store.Store, bus ports.EventBus, clock ports.Clock, opts Options) (*Indexer, error) {
	opts.fill()

	idx := &Indexer{
		root:           root,
		store:          st,
		bus:            bus,
		clock:          clock,
		opts:           opts,
		files:          make(map[string]*fileState),
		sessionOffsets: make(map[string]int64),
	}
	idx.coalescer = newCoalescer(bus, clock, opts.CoalesceWindow)

	records, err := st.IngestOffsets(context.Background())
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		idx.sessionOffsets[rec.SessionID] = rec.Offset
		if rec.LogPath != "" {
			idx.files[rec.LogPath] = &fileState{
				sessionID: rec.SessionID,
				offset:    rec.Offset,
				size:      rec.FileSize,
			}
		}
	}

	log.Info().Str("root", root).Int("known_files", len(idx.files)).Msg("indexer initialized")
	return idx, nil
}

// Run blocks until ctx is cancelled. It performs an initial reconciliation
// immediately so existing logs are indexed at startup.
func (idx *Indexer) Run(ctx context.Context) error {
	go idx.coalescer.run(ctx)

	wake := make(chan string, 64)
	if idx.opts.NotifyFastPath {
		stop, err := idx.watchFilesystem(ctx, wake)
		if err != nil {
			log.Warn().Err(err).Msg("filesystem notifications unavailable, polling only")
		} else {
			defer stop()
		}
	}

	idx.reconcile(ctx)
	idx.pollPass(ctx)

	poll := idx.clock.NewTicker(idx.opts.PollInterval)
	defer poll.Stop()
	reconcile := idx.clock.NewTicker(idx.opts.ReconcileInterval)
	defer reconcile.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-poll.C():
			idx.pollPass(ctx)
		case <-reconcile.C():
			idx.reconcile(ctx)
			idx.pollPass(ctx)
		case path := <-wake:
			idx.checkFile(ctx, path)
		}
	}
}

// RunOnce performs a single reconcile and ingest pass and returns. Used by
// the one-shot index command; no events are coalesced or emitted beyond
// what a normal pass publishes.
func (idx *Indexer) RunOnce(ctx context.Context) error {
	idx.reconcile(ctx)
	idx.pollPass(ctx)
	return ctx.Err()
}

// TrackedFiles reports how many log files the indexer currently follows.
func (idx *Indexer) TrackedFiles() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.files)
}

// SkippedLines reports how many oversized lines were discarded.
func (idx *Indexer) SkippedLines() uint64 {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.skippedLines
}

// reconcile re-enumerates the log root, registering files not yet tracked.
func (idx *Indexer) reconcile(ctx context.Context) {
	err := filepath.WalkDir(idx.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".jsonl") {
			return nil
		}
		idx.track(path)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Str("root", idx.root).Msg("log root enumeration failed")
	}
}

// track registers a path, resuming from the session's persisted offset if
// the session is already known (covers renames: remove+create).
func (idx *Indexer) track(path string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.files[path]; ok {
		return
	}
	sessionID := strings.TrimSuffix(filepath.Base(path), ".jsonl")
	idx.files[path] = &fileState{
		sessionID: sessionID,
		offset:    idx.sessionOffsets[sessionID],
	}
	log.Debug().Str("path", path).Str("session", sessionID).Msg("tracking session log")
}

// pollPass stats every tracked file and ingests those that grew or shrank.
func (idx *Indexer) pollPass(ctx context.Context) {
	idx.mu.Lock()
	paths := make([]string, 0, len(idx.files))
	for path := range idx.files {
		paths = append(paths, path)
	}
	idx.mu.Unlock()

	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		idx.checkFile(ctx, path)
	}
}

func (idx *Indexer) checkFile(ctx context.Context, path string) {
	idx.mu.Lock()
	state, ok := idx.files[path]
	idx.mu.Unlock()
	if !ok {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Removal retains history; forget the path, keep the session.
			idx.mu.Lock()
			delete(idx.files, path)
			idx.mu.Unlock()
		}
		return
	}

	size := info.Size()
	switch {
	case size < state.offset:
		idx.handleTruncation(ctx, path, state)
	case size > state.offset:
		idx.ingestTail(ctx, path, state, size)
	default:
		state.size = size
	}
}

// handleTruncation rewinds a shrunk file to offset zero and re-ingests.
func (idx *Indexer) handleTruncation(ctx context.Context, path string, state *fileState) {
	log.Info().Str("path", path).Str("session", state.sessionID).
		Int64("offset", state.offset).Msg("log file shrank, re-ingesting from start")

	if err := idx.store.ResetSession(ctx, state.sessionID); err != nil {
		log.Error().Err(err).Str("session", state.sessionID).Msg("failed to reset session")
		return
	}
	state.offset = 0
	state.size = 0
	idx.mu.Lock()
	idx.sessionOffsets[state.sessionID] = 0
	idx.mu.Unlock()

	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		idx.ingestTail(ctx, path, state, info.Size())
	}
}

// ingestTail reads newly appended bytes, parses the complete lines and
// applies them in one store transaction. Only bytes up to the last
// terminated line are consumed; a partial tail waits for the next pass.
func (idx *Indexer) ingestTail(ctx context.Context, path string, state *fileState, size int64) {
	f, err := os.Open(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to open session log")
		return
	}
	defer f.Close()

	if _, err := f.Seek(state.offset, io.SeekStart); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to seek session log")
		return
	}

	var (
		lines    [][]byte
		consumed int64
		skipped  int
	)
	reader := jsonl.NewReader(f, idx.opts.MaxLineBytes)
	for {
		line, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("read error on session log")
			return
		}
		if !line.Terminated {
			break
		}
		consumed += int64(line.BytesRead)
		if line.TooLong {
			skipped++
			continue
		}
		lines = append(lines, line.Data)
	}

	if skipped > 0 {
		idx.mu.Lock()
		idx.skippedLines += uint64(skipped)
		idx.mu.Unlock()
		log.Warn().Int("count", skipped).Str("path", path).Msg("skipped oversized log lines")
	}
	if consumed == 0 {
		return
	}

	newOffset := state.offset + consumed
	result := parser.Parse(state.sessionID, lines, idx.clock.Now())
	if result.Malformed > 0 || result.UnknownType > 0 {
		log.Debug().Int("malformed", result.Malformed).Int("unknown", result.UnknownType).
			Str("path", path).Msg("parser skipped lines")
	}

	batch := store.Batch{
		SessionID: state.sessionID,
		LogPath:   path,
		FileSize:  size,
		NewOffset: newOffset,
		Meta:      result.Meta[state.sessionID],
		Messages:  result.Messages,
	}
	ingested, err := idx.store.IngestBatch(ctx, batch)
	if err != nil {
		log.Error().Err(err).Str("session", state.sessionID).Msg("batch ingest failed")
		return
	}

	state.offset = newOffset
	state.size = size
	idx.mu.Lock()
	idx.sessionOffsets[state.sessionID] = newOffset
	idx.mu.Unlock()

	idx.emit(state.sessionID, ingested)
}

// emit hands events for newly indexed messages to the coalescer.
func (idx *Indexer) emit(sessionID string, result store.IngestResult) {
	if result.SessionCreated {
		idx.coalescer.add(sessionID, events.NewSessionStartedEvent(sessionID))
	}
	for _, sid := range result.ForeignCreated {
		idx.coalescer.add(sid, events.NewSessionStartedEvent(sid))
	}
	for _, msg := range result.Inserted {
		idx.coalescer.add(msg.SessionID,
			events.NewNewMessageEvent(msg.SessionID, msg.Role, preview(msg.Body), msg.Timestamp))
		for _, tu := range msg.ToolUses {
			idx.coalescer.add(msg.SessionID,
				events.NewToolUseEvent(msg.SessionID, tu.Name, tu.Summary, msg.Timestamp))
		}
	}
}

func preview(body string) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= previewMaxLen {
		return body
	}
	return string(runes[:previewMaxLen])
}
