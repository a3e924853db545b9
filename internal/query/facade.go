// Package query composes read models for the HTTP surface from the store
// and the process registry.
package query

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cmericli/claude-remote/internal/domain"
	"github.com/cmericli/claude-remote/internal/domain/ports"
	"github.com/cmericli/claude-remote/internal/store"
)

// SessionView is a session summary enriched with live process state.
type SessionView struct {
	store.SessionSummary
	Running         bool    `json:"running"`
	InMux           bool    `json:"in_tmux"`
	MuxName         string  `json:"mux_name,omitempty"`
	PID             int32   `json:"pid,omitempty"`
	FileSizeMB      float64 `json:"file_size_mb"`
	DurationMinutes float64 `json:"duration_minutes"`
	CacheHitRate    float64 `json:"cache_hit_rate"`
	EstimatedCost   float64 `json:"estimated_cost_usd"`
}

// Dashboard is the aggregate landing view.
type Dashboard struct {
	Stats          store.AggregateStats  `json:"stats"`
	ActiveSessions []SessionView         `json:"active_sessions"`
	RecentSessions []SessionView         `json:"recent_sessions"`
	RecentActivity []store.RecentMessage `json:"recent_activity"`
	TotalCost      float64               `json:"estimated_total_cost_usd"`
}

// TokenBucketView adds a cost estimate to a daily token bucket.
type TokenBucketView struct {
	store.TokenBucket
	EstimatedCost float64 `json:"estimated_cost_usd"`
}

// SessionDetail is a single session with its file and tool aggregates.
type SessionDetail struct {
	SessionView
	FilesTouched []store.FileTouch       `json:"files_touched"`
	ToolSummary  map[string]int          `json:"tool_summary"`
	FileEvents   []store.FileEventRecord `json:"file_events"`
}

// ToolCountView adds a share-of-total percentage to a tool count.
type ToolCountView struct {
	store.ToolCount
	Percent float64 `json:"percent"`
}

// Facade serves all read paths. It holds no state of its own.
type Facade struct {
	store    *store.Store
	registry ports.ProcessRegistry
}

// New creates a facade.
func New(st *store.Store, registry ports.ProcessRegistry) *Facade {
	return &Facade{store: st, registry: registry}
}

// Dashboard assembles the landing view: aggregate stats, live sessions,
// and recent history.
func (f *Facade) Dashboard(ctx context.Context) (Dashboard, error) {
	stats, err := f.store.Stats(ctx)
	if err != nil {
		return Dashboard{}, err
	}

	recent, err := f.Sessions(ctx, SessionQuery{Limit: 10})
	if err != nil {
		return Dashboard{}, err
	}

	activity, err := f.store.RecentMessages(ctx, 50)
	if err != nil {
		return Dashboard{}, err
	}

	var active []SessionView
	var totalCost float64
	seen := map[string]bool{}
	for _, view := range recent {
		totalCost += view.EstimatedCost
		seen[view.SessionID] = true
		if view.Running {
			active = append(active, view)
		}
	}

	// A long-running session can fall out of the recent page while its
	// process is still alive; the registry is authoritative for "active".
	if f.registry != nil {
		infos, err := f.registry.ActiveSessions()
		if err != nil {
			log.Debug().Err(err).Msg("process scan failed, dashboard shows indexed sessions only")
		}
		for _, info := range infos {
			if seen[info.SessionID] {
				continue
			}
			view, err := f.Session(ctx, info.SessionID)
			if err != nil {
				// Running process whose log has not been indexed yet.
				continue
			}
			if view.Running {
				active = append(active, view)
			}
		}
	}

	return Dashboard{
		Stats:          stats,
		ActiveSessions: active,
		RecentSessions: recent,
		RecentActivity: activity,
		TotalCost:      totalCost,
	}, nil
}

// SessionQuery filters the session list. Status is one of "", "all",
// "active" (indexed activity in the last 24 hours) or "running" (a live
// process according to the registry).
type SessionQuery struct {
	Status  string
	Project string
	Limit   int
	Offset  int
}

// activeWindow is how far back "active" status reaches.
const activeWindow = 24 * time.Hour

// Sessions lists sessions enriched with process state.
func (f *Facade) Sessions(ctx context.Context, q SessionQuery) ([]SessionView, error) {
	filter := store.SessionFilter{Project: q.Project}
	switch q.Status {
	case "", "all", "running":
	case "active":
		filter.ActiveSince = time.Now().Add(-activeWindow)
	default:
		return nil, domain.ErrInvalidQuery
	}

	sums, err := f.store.Sessions(ctx, filter, q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	views := f.enrich(sums)

	if q.Status == "running" {
		kept := views[:0]
		for _, view := range views {
			if view.Running {
				kept = append(kept, view)
			}
		}
		views = kept
	}
	return views, nil
}

// Session returns one enriched session.
func (f *Facade) Session(ctx context.Context, sessionID string) (SessionView, error) {
	sum, err := f.store.Session(ctx, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	return f.enrich([]store.SessionSummary{sum})[0], nil
}

// Detail returns one session with its file and tool aggregates.
func (f *Facade) Detail(ctx context.Context, sessionID string) (SessionDetail, error) {
	view, err := f.Session(ctx, sessionID)
	if err != nil {
		return SessionDetail{}, err
	}
	touched, err := f.store.FilesTouched(ctx, sessionID)
	if err != nil {
		return SessionDetail{}, err
	}
	toolSummary, err := f.store.ToolSummary(ctx, sessionID)
	if err != nil {
		return SessionDetail{}, err
	}
	events, err := f.store.FileEvents(ctx, sessionID, 100)
	if err != nil {
		return SessionDetail{}, err
	}
	return SessionDetail{
		SessionView:  view,
		FilesTouched: touched,
		ToolSummary:  toolSummary,
		FileEvents:   events,
	}, nil
}

// Conversation pages a session's messages.
func (f *Facade) Conversation(ctx context.Context, sessionID string, limit int, beforeSeq int64) ([]store.ConversationMessage, error) {
	if _, err := f.store.Session(ctx, sessionID); err != nil {
		return nil, err
	}
	return f.store.Conversation(ctx, sessionID, limit, beforeSeq)
}

// Search runs a full-text query across all sessions.
func (f *Facade) Search(ctx context.Context, q string, filter store.SearchFilter, limit int) ([]store.SearchHit, error) {
	return f.store.Search(ctx, q, filter, limit)
}

// TokenAnalytics returns token usage with cost estimates, grouped by day
// unless groupBy is "project".
func (f *Facade) TokenAnalytics(ctx context.Context, days int, groupBy string) ([]TokenBucketView, error) {
	var buckets []store.TokenBucket
	var err error
	switch groupBy {
	case "project":
		buckets, err = f.store.TokenUsageByProject(ctx, days)
	case "", "day":
		buckets, err = f.store.TokenUsageByDay(ctx, days)
	default:
		return nil, domain.ErrInvalidQuery
	}
	if err != nil {
		return nil, err
	}
	out := make([]TokenBucketView, len(buckets))
	for i, b := range buckets {
		out[i] = TokenBucketView{TokenBucket: b, EstimatedCost: EstimateCost(b.Model, b.Tokens)}
	}
	return out, nil
}

// ToolAnalytics returns per-tool usage counts with share-of-total
// percentages.
func (f *Facade) ToolAnalytics(ctx context.Context, days int) ([]ToolCountView, error) {
	counts, err := f.store.ToolUsage(ctx, days)
	if err != nil {
		return nil, err
	}

	var total int
	for _, tc := range counts {
		total += tc.Count
	}
	out := make([]ToolCountView, len(counts))
	for i, tc := range counts {
		view := ToolCountView{ToolCount: tc}
		if total > 0 {
			view.Percent = float64(tc.Count) / float64(total) * 100
		}
		out[i] = view
	}
	return out, nil
}

// enrich joins summaries against the live process table.
func (f *Facade) enrich(sums []store.SessionSummary) []SessionView {
	running := map[string]ports.ProcessInfo{}
	if f.registry != nil {
		infos, err := f.registry.ActiveSessions()
		if err != nil {
			log.Debug().Err(err).Msg("process scan failed, serving index-only view")
		}
		for _, info := range infos {
			running[info.SessionID] = info
		}
	}

	views := make([]SessionView, len(sums))
	for i, sum := range sums {
		view := SessionView{
			SessionSummary:  sum,
			FileSizeMB:      float64(sum.FileSizeBytes) / (1024 * 1024),
			DurationMinutes: float64(sum.TotalDurationMS) / 60000,
			CacheHitRate:    cacheHitRate(sum.Tokens),
			EstimatedCost:   EstimateCost(sum.Model, sum.Tokens),
		}
		if view.WorkingDir == "" {
			view.WorkingDir = decodeProjectDir(sum.LogPath)
		}
		if view.Slug == "" && view.WorkingDir != "" {
			view.Slug = filepath.Base(view.WorkingDir)
		}
		if info, ok := running[sum.SessionID]; ok {
			view.Running = true
			view.PID = info.PID
			view.InMux = info.InMux
			view.MuxName = info.MuxName
		}
		views[i] = view
	}
	return views
}

// decodeProjectDir reverses the log layout's project directory encoding
// ("-Users-x-y" → "/Users/x/y"). The encoding is lossy, so the decoded
// path is a display fallback only, used when no cwd was ever logged.
func decodeProjectDir(logPath string) string {
	if logPath == "" {
		return ""
	}
	dir := filepath.Base(filepath.Dir(logPath))
	if !strings.HasPrefix(dir, "-") {
		return ""
	}
	return strings.ReplaceAll(dir, "-", "/")
}

// cacheHitRate is the share of context tokens served from prompt cache.
func cacheHitRate(t store.TokenTotals) float64 {
	total := t.Input + t.CacheRead + t.CacheCreate
	if total == 0 {
		return 0
	}
	return float64(t.CacheRead) / float64(total)
}
