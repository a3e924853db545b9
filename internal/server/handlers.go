package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/cmericli/claude-remote/internal/domain/ports"
	"github.com/cmericli/claude-remote/internal/query"
	"github.com/cmericli/claude-remote/internal/store"
)

// healthResponse is the health check body.
type healthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := s.queries.Dashboard(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	q := query.SessionQuery{
		Status:  r.URL.Query().Get("status"),
		Project: r.URL.Query().Get("project"),
		Limit:   queryInt(r, "limit", 0),
		Offset:  queryInt(r, "offset", 0),
	}
	views, err := s.queries.Sessions(r.Context(), q)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": views})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	detail, err := s.queries.Detail(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	beforeSeq := int64(queryInt(r, "before_seq", 0))
	msgs, err := s.queries.Conversation(r.Context(), mux.Vars(r)["id"], limit, beforeSeq)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	result, err := s.muxCtl.Join(mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// injectRequest carries text to append to a session's terminal input.
type injectRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	var req injectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text must not be empty")
		return
	}

	muxName := s.muxCtl.MuxName(mux.Vars(r)["id"])
	if err := s.muxCtl.Inject(muxName, req.Text); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "injected", "mux_name": muxName})
}

func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	muxName := s.muxCtl.MuxName(mux.Vars(r)["id"])
	if err := s.muxCtl.Terminate(muxName); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "terminated", "mux_name": muxName})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := queryInt(r, "limit", 0)

	filter := store.SearchFilter{Project: r.URL.Query().Get("project")}
	var ok bool
	if filter.After, ok = queryTime(r, "after"); !ok {
		writeError(w, http.StatusBadRequest, "after must be RFC 3339")
		return
	}
	if filter.Before, ok = queryTime(r, "before"); !ok {
		writeError(w, http.StatusBadRequest, "before must be RFC 3339")
		return
	}

	hits, err := s.queries.Search(r.Context(), q, filter, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"query": q, "results": hits})
}

func (s *Server) handleTokenAnalytics(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	groupBy := r.URL.Query().Get("group")
	buckets, err := s.queries.TokenAnalytics(r.Context(), days, groupBy)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"days": days, "usage": buckets})
}

func (s *Server) handleToolAnalytics(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	counts, err := s.queries.ToolAnalytics(r.Context(), days)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"days": days, "tools": counts})
}

// pushSubscribeRequest mirrors the browser PushSubscription shape.
type pushSubscribeRequest struct {
	Endpoint  string `json:"endpoint"`
	P256DH    string `json:"p256dh"`
	Auth      string `json:"auth"`
	UserAgent string `json:"user_agent"`
}

func (s *Server) handlePushSubscribe(w http.ResponseWriter, r *http.Request) {
	var req pushSubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint must not be empty")
		return
	}

	err := s.subs.SavePushSubscription(r.Context(), ports.PushSubscription{
		Endpoint:  req.Endpoint,
		P256DH:    req.P256DH,
		Auth:      req.Auth,
		UserAgent: req.UserAgent,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "subscribed"})
}

func (s *Server) handlePushUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req pushSubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint must not be empty")
		return
	}

	if err := s.subs.DeletePushSubscription(r.Context(), req.Endpoint); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}

// queryInt parses an integer query parameter, falling back on absence or
// garbage.
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// queryTime parses an RFC 3339 query parameter. Absence is the zero time;
// a malformed value reports !ok.
func queryTime(r *http.Request, key string) (time.Time, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
