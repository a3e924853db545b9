package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cmericli/claude-remote/internal/domain"
	"github.com/cmericli/claude-remote/internal/domain/ports"
	"github.com/cmericli/claude-remote/internal/parser"
	"github.com/cmericli/claude-remote/internal/testutil"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func msgAt(uuid, role, body string, minute int) parser.Message {
	return parser.Message{
		UUID:      uuid,
		SessionID: "sess-1",
		Role:      role,
		Body:      body,
		Usage:     parser.TokenUsage{Input: 10, Output: 5},
		Timestamp: time.Date(2026, 3, 1, 10, minute, 0, 0, time.UTC),
	}
}

func TestIngestBatch_AssignsSequenceAndCounters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	res, err := s.IngestBatch(ctx, Batch{
		SessionID: "sess-1",
		LogPath:   "/logs/sess-1.jsonl",
		FileSize:  512,
		NewOffset: 512,
		Meta:      &parser.SessionMeta{SessionID: "sess-1", Slug: "fix-auth", DurationMS: 1500},
		Messages: []parser.Message{
			msgAt("u1", "user", "hello", 0),
			msgAt("a1", "assistant", "hi there", 1),
		},
	})
	if err != nil {
		t.Fatalf("IngestBatch() error = %v", err)
	}
	if !res.SessionCreated {
		t.Error("first batch should create the session")
	}
	if len(res.Inserted) != 2 {
		t.Fatalf("inserted = %d, want 2", len(res.Inserted))
	}

	sum, err := s.Session(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if sum.MessageCount != 2 || sum.UserMessageCount != 1 || sum.AssistantMessageCount != 1 {
		t.Errorf("counts = %d/%d/%d", sum.MessageCount, sum.UserMessageCount, sum.AssistantMessageCount)
	}
	if sum.Tokens.Input != 20 || sum.Tokens.Output != 10 {
		t.Errorf("tokens = %+v", sum.Tokens)
	}
	if sum.Slug != "fix-auth" || sum.TotalDurationMS != 1500 {
		t.Errorf("slug/duration = %q/%d", sum.Slug, sum.TotalDurationMS)
	}
	if sum.LastRole != "assistant" {
		t.Errorf("last role = %q", sum.LastRole)
	}

	msgs, err := s.Conversation(ctx, "sess-1", 0, 0)
	if err != nil {
		t.Fatalf("Conversation() error = %v", err)
	}
	if len(msgs) != 2 || msgs[0].Seq != 0 || msgs[1].Seq != 1 {
		t.Errorf("sequence = %+v", msgs)
	}
}

func TestIngestBatch_ReplayIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	batch := Batch{
		SessionID: "sess-1",
		NewOffset: 256,
		FileSize:  256,
		Messages:  []parser.Message{msgAt("u1", "user", "hello", 0)},
	}
	if _, err := s.IngestBatch(ctx, batch); err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	res, err := s.IngestBatch(ctx, batch)
	if err != nil {
		t.Fatalf("replay ingest: %v", err)
	}
	if res.SessionCreated {
		t.Error("replay must not report session creation")
	}
	if len(res.Inserted) != 0 {
		t.Errorf("replay inserted %d messages, want 0", len(res.Inserted))
	}

	sum, _ := s.Session(ctx, "sess-1")
	if sum.MessageCount != 1 {
		t.Errorf("message count after replay = %d, want 1", sum.MessageCount)
	}
}

func TestIngestBatch_SequenceContinuesAcrossBatches(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.IngestBatch(ctx, Batch{SessionID: "sess-1", NewOffset: 100, Messages: []parser.Message{
		msgAt("u1", "user", "one", 0),
	}})
	s.IngestBatch(ctx, Batch{SessionID: "sess-1", NewOffset: 200, Messages: []parser.Message{
		msgAt("u1", "user", "one", 0), // replayed
		msgAt("a1", "assistant", "two", 1),
	}})

	msgs, err := s.Conversation(ctx, "sess-1", 0, 0)
	if err != nil {
		t.Fatalf("Conversation() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[1].UUID != "a1" || msgs[1].Seq != 1 {
		t.Errorf("second message = %+v, want a1 at seq 1", msgs[1])
	}
}

func TestIngestBatch_CrossSessionLinesGetOwnSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	foreign := msgAt("u2", "user", "spawned elsewhere", 1)
	foreign.SessionID = "sess-2"
	res, err := s.IngestBatch(ctx, Batch{
		SessionID: "sess-1",
		NewOffset: 300,
		Messages: []parser.Message{
			msgAt("u1", "user", "hello", 0),
			foreign,
		},
	})
	if err != nil {
		t.Fatalf("IngestBatch() error = %v", err)
	}
	if len(res.ForeignCreated) != 1 || res.ForeignCreated[0] != "sess-2" {
		t.Errorf("foreign created = %v, want [sess-2]", res.ForeignCreated)
	}

	sum, err := s.Session(ctx, "sess-2")
	if err != nil {
		t.Fatalf("foreign session row missing: %v", err)
	}
	if sum.MessageCount != 1 || sum.UserMessageCount != 1 {
		t.Errorf("foreign counts = %d/%d, want 1/1", sum.MessageCount, sum.UserMessageCount)
	}

	msgs, err := s.Conversation(ctx, "sess-2", 0, 0)
	if err != nil {
		t.Fatalf("Conversation() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].Seq != 0 {
		t.Fatalf("foreign messages = %+v, want one message at seq 0", msgs)
	}

	// A later batch with another line for the foreign session must land at
	// the next sequence number, not collide and vanish.
	foreign2 := msgAt("u3", "user", "follow-up", 2)
	foreign2.SessionID = "sess-2"
	if _, err := s.IngestBatch(ctx, Batch{
		SessionID: "sess-1",
		NewOffset: 400,
		Messages:  []parser.Message{foreign2},
	}); err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	msgs, _ = s.Conversation(ctx, "sess-2", 0, 0)
	if len(msgs) != 2 || msgs[1].UUID != "u3" || msgs[1].Seq != 1 {
		t.Errorf("foreign messages after second batch = %+v", msgs)
	}
}

func TestIngestBatch_OffsetRegressionRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.IngestBatch(ctx, Batch{SessionID: "sess-1", NewOffset: 500}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	_, err := s.IngestBatch(ctx, Batch{SessionID: "sess-1", NewOffset: 100})
	if !errors.Is(err, domain.ErrOffsetRegression) {
		t.Errorf("error = %v, want ErrOffsetRegression", err)
	}
}

func TestResetSession_AllowsReingest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.IngestBatch(ctx, Batch{SessionID: "sess-1", NewOffset: 500, Messages: []parser.Message{
		msgAt("u1", "user", "before truncation", 0),
	}})

	if err := s.ResetSession(ctx, "sess-1"); err != nil {
		t.Fatalf("ResetSession() error = %v", err)
	}

	sum, err := s.Session(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if sum.MessageCount != 0 || sum.Tokens.Input != 0 {
		t.Errorf("counters not reset: %+v", sum)
	}

	// Re-ingest from offset zero starts sequencing from scratch.
	if _, err := s.IngestBatch(ctx, Batch{SessionID: "sess-1", NewOffset: 120, Messages: []parser.Message{
		msgAt("u2", "user", "after truncation", 5),
	}}); err != nil {
		t.Fatalf("re-ingest: %v", err)
	}
	msgs, _ := s.Conversation(ctx, "sess-1", 0, 0)
	if len(msgs) != 1 || msgs[0].Seq != 0 {
		t.Errorf("messages after reset = %+v", msgs)
	}
}

func TestConversation_AttachesToolUses(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	msg := msgAt("a1", "assistant", "reading config", 0)
	msg.ToolUses = []parser.ToolUse{{ID: "t1", Name: "Read", Summary: "config.yaml"}}
	msg.FileEvents = []parser.FileEvent{{Path: "/proj/config.yaml", Kind: "read"}}
	s.IngestBatch(ctx, Batch{SessionID: "sess-1", NewOffset: 100, Messages: []parser.Message{msg}})

	msgs, err := s.Conversation(ctx, "sess-1", 0, 0)
	if err != nil {
		t.Fatalf("Conversation() error = %v", err)
	}
	if len(msgs) != 1 || len(msgs[0].ToolUses) != 1 {
		t.Fatalf("tool uses = %+v", msgs)
	}
	if msgs[0].ToolUses[0].Name != "Read" || msgs[0].ToolUses[0].Summary != "config.yaml" {
		t.Errorf("tool use = %+v", msgs[0].ToolUses[0])
	}

	events, err := s.FileEvents(ctx, "sess-1", 0)
	if err != nil {
		t.Fatalf("FileEvents() error = %v", err)
	}
	if len(events) != 1 || events[0].Kind != "read" {
		t.Errorf("file events = %+v", events)
	}
}

func TestSearch_FindsMessageWithSnippet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.IngestBatch(ctx, Batch{SessionID: "sess-1", NewOffset: 100,
		Meta: &parser.SessionMeta{SessionID: "sess-1", Slug: "auth-work"},
		Messages: []parser.Message{
			msgAt("u1", "user", "the login handler panics on empty password", 0),
			msgAt("a1", "assistant", "unrelated chatter", 1),
		}})

	hits, err := s.Search(ctx, "login panic", SearchFilter{}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(hits))
	}
	if hits[0].SessionID != "sess-1" || hits[0].Slug != "auth-work" {
		t.Errorf("hit = %+v", hits[0])
	}
	if hits[0].MessageUUID != "u1" {
		t.Errorf("message uuid = %q, want u1", hits[0].MessageUUID)
	}
	if !strings.Contains(hits[0].Snippet, "<mark>") {
		t.Errorf("snippet %q has no highlight", hits[0].Snippet)
	}
}

func TestSearch_EmptyQueryRejected(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Search(context.Background(), "  *() ", SearchFilter{}, 10); !errors.Is(err, domain.ErrInvalidQuery) {
		t.Errorf("error = %v, want ErrInvalidQuery", err)
	}
}

func TestSearch_DeletedMessagesDropOut(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.IngestBatch(ctx, Batch{SessionID: "sess-1", NewOffset: 100, Messages: []parser.Message{
		msgAt("u1", "user", "zanzibar appears once", 0),
	}})
	s.ResetSession(ctx, "sess-1")

	hits, err := s.Search(ctx, "zanzibar", SearchFilter{}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("stale hits after reset: %+v", hits)
	}
}

func TestMeta_FirstWinsAndDurationAccumulates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.IngestBatch(ctx, Batch{SessionID: "sess-1", NewOffset: 100,
		Meta: &parser.SessionMeta{SessionID: "sess-1", Branch: "main", DurationMS: 1000}})
	s.IngestBatch(ctx, Batch{SessionID: "sess-1", NewOffset: 200,
		Meta: &parser.SessionMeta{SessionID: "sess-1", Branch: "feature/x", DurationMS: 2000}})

	sum, _ := s.Session(ctx, "sess-1")
	if sum.Branch != "main" {
		t.Errorf("branch = %q, want first observation", sum.Branch)
	}
	if sum.TotalDurationMS != 3000 {
		t.Errorf("duration = %d, want 3000", sum.TotalDurationMS)
	}
}

func TestSessionNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Session(context.Background(), "nope"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("error = %v, want ErrSessionNotFound", err)
	}
}

func TestIngestOffsets_SeedsFromPersistedState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.IngestBatch(ctx, Batch{SessionID: "sess-1", LogPath: "/logs/a.jsonl", NewOffset: 300, FileSize: 300})
	s.IngestBatch(ctx, Batch{SessionID: "sess-2", LogPath: "/logs/b.jsonl", NewOffset: 700, FileSize: 700})

	offsets, err := s.IngestOffsets(ctx)
	if err != nil {
		t.Fatalf("IngestOffsets() error = %v", err)
	}
	byID := make(map[string]OffsetRecord)
	for _, rec := range offsets {
		byID[rec.SessionID] = rec
	}
	if byID["sess-1"].Offset != 300 || byID["sess-2"].Offset != 700 {
		t.Errorf("offsets = %+v", byID)
	}
	if byID["sess-2"].LogPath != "/logs/b.jsonl" {
		t.Errorf("log path = %q", byID["sess-2"].LogPath)
	}
}

func TestIdleCandidates_FiltersByRoleAndWindow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// Last role assistant, recent.
	s.IngestBatch(ctx, Batch{SessionID: "sess-1", NewOffset: 100, Messages: []parser.Message{
		{UUID: "a1", SessionID: "sess-1", Role: "assistant", Body: "done, what next?", Timestamp: base},
	}})
	// Last role user: not a candidate.
	s.IngestBatch(ctx, Batch{SessionID: "sess-2", NewOffset: 100, Messages: []parser.Message{
		{UUID: "a2", SessionID: "sess-2", Role: "assistant", Body: "ok", Timestamp: base},
		{UUID: "u2", SessionID: "sess-2", Role: "user", Body: "thanks", Timestamp: base.Add(time.Minute)},
	}})
	// Assistant but outside the window.
	s.IngestBatch(ctx, Batch{SessionID: "sess-3", NewOffset: 100, Messages: []parser.Message{
		{UUID: "a3", SessionID: "sess-3", Role: "assistant", Body: "old", Timestamp: base.Add(-48 * time.Hour)},
	}})

	cands, err := s.IdleCandidates(ctx, base.Add(-24*time.Hour), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("IdleCandidates() error = %v", err)
	}
	if len(cands) != 1 || cands[0].SessionID != "sess-1" {
		t.Fatalf("candidates = %+v, want only sess-1", cands)
	}
	if cands[0].LastPreview != "done, what next?" {
		t.Errorf("preview = %q", cands[0].LastPreview)
	}
}

func TestPushSubscriptions_CRUD(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sub := ports.PushSubscription{Endpoint: "https://push.example/abc", P256DH: "key", Auth: "auth", UserAgent: "phone"}
	if err := s.SavePushSubscription(ctx, sub); err != nil {
		t.Fatalf("SavePushSubscription() error = %v", err)
	}
	// Saving again refreshes keys instead of failing.
	sub.P256DH = "key2"
	if err := s.SavePushSubscription(ctx, sub); err != nil {
		t.Fatalf("resave: %v", err)
	}

	subs, err := s.PushSubscriptions(ctx)
	if err != nil {
		t.Fatalf("PushSubscriptions() error = %v", err)
	}
	if len(subs) != 1 || subs[0].P256DH != "key2" {
		t.Errorf("subs = %+v", subs)
	}

	if err := s.DeletePushSubscription(ctx, sub.Endpoint); err != nil {
		t.Fatalf("DeletePushSubscription() error = %v", err)
	}
	subs, _ = s.PushSubscriptions(ctx)
	if len(subs) != 0 {
		t.Errorf("subs after delete = %+v", subs)
	}
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	s.Close()

	if _, err := s.IngestBatch(context.Background(), Batch{SessionID: "x"}); !errors.Is(err, domain.ErrStoreClosed) {
		t.Errorf("error = %v, want ErrStoreClosed", err)
	}
}

func TestStats_RecencyBuckets(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(testutil.NewFakeClock(now))
	_, err := s.IngestBatch(ctx, Batch{
		SessionID: "sess-fresh",
		NewOffset: 10,
		Messages: []parser.Message{{
			UUID: "f1", SessionID: "sess-fresh", Role: "assistant", Body: "x",
			Timestamp: now,
		}},
	})
	if err != nil {
		t.Fatalf("ingest fresh: %v", err)
	}
	_, err = s.IngestBatch(ctx, Batch{
		SessionID: "sess-stale",
		NewOffset: 10,
		Messages: []parser.Message{{
			UUID: "s1", SessionID: "sess-stale", Role: "assistant", Body: "y",
			Timestamp: now.AddDate(0, 0, -30),
		}},
	})
	if err != nil {
		t.Fatalf("ingest stale: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalSessions != 2 {
		t.Errorf("total = %d", stats.TotalSessions)
	}
	if stats.SessionsToday != 1 || stats.SessionsWeek != 1 || stats.SessionsActive != 1 {
		t.Errorf("stats = %+v, want 1/1/1 recency buckets", stats)
	}
}

func TestSearch_PhraseAndFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	early := msgAt("u1", "user", "the cache layer drops writes", 0)
	late := msgAt("u2", "user", "cache drops nothing anymore", 30)
	if _, err := s.IngestBatch(ctx, Batch{
		SessionID: "sess-1",
		NewOffset: 100,
		Meta:      &parser.SessionMeta{SessionID: "sess-1", WorkingDir: "/home/dev/api"},
		Messages:  []parser.Message{early, late},
	}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	// An exact phrase matches only the message containing it verbatim.
	hits, err := s.Search(ctx, `"drops writes"`, SearchFilter{}, 10)
	if err != nil {
		t.Fatalf("phrase search: %v", err)
	}
	if len(hits) != 1 || hits[0].MessageUUID != "u1" {
		t.Fatalf("phrase hits = %+v, want only u1", hits)
	}
	if hits[0].Project != "/home/dev/api" {
		t.Errorf("project = %q", hits[0].Project)
	}

	// Time range excludes the early message.
	hits, err = s.Search(ctx, "cache", SearchFilter{
		After: time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC),
	}, 10)
	if err != nil {
		t.Fatalf("after filter: %v", err)
	}
	if len(hits) != 1 || hits[0].MessageUUID != "u2" {
		t.Errorf("after hits = %+v, want only u2", hits)
	}

	// Project equality excludes sessions from other directories.
	hits, err = s.Search(ctx, "cache", SearchFilter{Project: "/somewhere/else"}, 10)
	if err != nil {
		t.Fatalf("project filter: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("foreign project hits = %+v, want none", hits)
	}
}

func TestBuildFTSQuery(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"login panic", "login panic*"},
		{`"exact phrase" token`, `"exact phrase" token*`},
		{`"only phrase"`, `"only phrase"`},
		{"a bc", "bc*"},
		{`unbalanced "quote`, "unbalanced quote*"},
		{"  *() ", ""},
	}
	for _, tc := range cases {
		if got := buildFTSQuery(tc.in); got != tc.want {
			t.Errorf("buildFTSQuery(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSessions_StatusAndProjectFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	fresh := msgAt("f1", "user", "recent work", 0)
	fresh.SessionID = "sess-fresh"
	fresh.Timestamp = now.Add(-time.Hour)
	stale := msgAt("s1", "user", "ancient work", 0)
	stale.SessionID = "sess-stale"
	stale.Timestamp = now.AddDate(0, 0, -10)

	s.IngestBatch(ctx, Batch{SessionID: "sess-fresh", NewOffset: 10,
		Meta:     &parser.SessionMeta{SessionID: "sess-fresh", WorkingDir: "/home/dev/api"},
		Messages: []parser.Message{fresh}})
	s.IngestBatch(ctx, Batch{SessionID: "sess-stale", NewOffset: 10,
		Meta:     &parser.SessionMeta{SessionID: "sess-stale", WorkingDir: "/home/dev/web"},
		Messages: []parser.Message{stale}})

	sums, err := s.Sessions(ctx, SessionFilter{ActiveSince: now.Add(-24 * time.Hour)}, 0, 0)
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(sums) != 1 || sums[0].SessionID != "sess-fresh" {
		t.Errorf("active sessions = %+v, want only sess-fresh", sums)
	}

	sums, err = s.Sessions(ctx, SessionFilter{Project: "/home/dev/web"}, 0, 0)
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(sums) != 1 || sums[0].SessionID != "sess-stale" {
		t.Errorf("project sessions = %+v, want only sess-stale", sums)
	}
}

func TestTokenUsageByProject(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(testutil.NewFakeClock(now))

	a := parser.Message{UUID: "a1", SessionID: "sess-a", Role: "assistant", Body: "x",
		Usage: parser.TokenUsage{Input: 100, Output: 50}, Timestamp: now.Add(-time.Hour)}
	b := parser.Message{UUID: "b1", SessionID: "sess-b", Role: "assistant", Body: "y",
		Usage: parser.TokenUsage{Input: 10, Output: 5}, Timestamp: now.Add(-time.Hour)}

	s.IngestBatch(ctx, Batch{SessionID: "sess-a", NewOffset: 10,
		Meta:     &parser.SessionMeta{SessionID: "sess-a", WorkingDir: "/home/dev/api"},
		Messages: []parser.Message{a}})
	s.IngestBatch(ctx, Batch{SessionID: "sess-b", NewOffset: 10,
		Meta:     &parser.SessionMeta{SessionID: "sess-b", WorkingDir: "/home/dev/web"},
		Messages: []parser.Message{b}})

	buckets, err := s.TokenUsageByProject(ctx, 7)
	if err != nil {
		t.Fatalf("TokenUsageByProject() error = %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("buckets = %+v, want 2", buckets)
	}
	if buckets[0].Project != "/home/dev/api" || buckets[0].Tokens.Output != 50 {
		t.Errorf("top bucket = %+v", buckets[0])
	}
	if buckets[0].Day != "" {
		t.Errorf("project bucket carries a day: %+v", buckets[0])
	}
}
