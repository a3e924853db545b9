package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cmericli/claude-remote/internal/bus"
	"github.com/cmericli/claude-remote/internal/domain"
	"github.com/cmericli/claude-remote/internal/domain/events"
	"github.com/cmericli/claude-remote/internal/domain/ports"
	"github.com/cmericli/claude-remote/internal/parser"
	"github.com/cmericli/claude-remote/internal/query"
	"github.com/cmericli/claude-remote/internal/store"
)

type fakeMux struct {
	mu          sync.Mutex
	joinResult  ports.JoinResult
	joinErr     error
	injectErr   error
	injects     []string
	terminated  []string
	terminatErr error
	attachPipe  ports.TerminalPipe
	attachErr   error
}

func (m *fakeMux) MuxName(sessionID string) string {
	if len(sessionID) > 8 {
		sessionID = sessionID[:8]
	}
	return "claude-remote-" + sessionID
}

func (m *fakeMux) Create(string, string, string, ports.TerminalSize) error { return nil }

func (m *fakeMux) List() ([]string, error) { return nil, nil }

func (m *fakeMux) Join(sessionID string) (ports.JoinResult, error) {
	if m.joinErr != nil {
		return ports.JoinResult{}, m.joinErr
	}
	return m.joinResult, nil
}

func (m *fakeMux) Attach(name string, _ ports.TerminalSize) (ports.TerminalPipe, error) {
	if m.attachErr != nil {
		return nil, m.attachErr
	}
	return m.attachPipe, nil
}

func (m *fakeMux) Inject(muxName, text string) error {
	if m.injectErr != nil {
		return m.injectErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.injects = append(m.injects, muxName+":"+text)
	return nil
}

func (m *fakeMux) Terminate(muxName string) error {
	if m.terminatErr != nil {
		return m.terminatErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminated = append(m.terminated, muxName)
	return nil
}

type testEnv struct {
	srv    *httptest.Server
	store  *store.Store
	bus    *bus.Bus
	muxCtl *fakeMux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	b := bus.New()
	t.Cleanup(b.Close)

	muxCtl := &fakeMux{}
	s := New("127.0.0.1:0", query.New(st, nil), muxCtl, st, b,
		Options{HeartbeatInterval: 50 * time.Millisecond})

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, store: st, bus: b, muxCtl: muxCtl}
}

func (e *testEnv) seed(t *testing.T, sessionID string) {
	t.Helper()
	_, err := e.store.IngestBatch(context.Background(), store.Batch{
		SessionID: sessionID,
		NewOffset: 100,
		Meta:      &parser.SessionMeta{SessionID: sessionID, Slug: "proj"},
		Messages: []parser.Message{
			{UUID: sessionID + "-u1", SessionID: sessionID, Role: "user",
				Body: "please refactor the parser", Timestamp: time.Now().UTC().Add(-time.Minute)},
			{UUID: sessionID + "-a1", SessionID: sessionID, Role: "assistant",
				Body: "done, the parser is refactored", Model: "claude-opus-4",
				Timestamp: time.Now().UTC()},
		},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func getJSON(t *testing.T, url string, wantStatus int, out interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s status = %d, want %d (body %s)", url, resp.StatusCode, wantStatus, body)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
}

func doJSON(t *testing.T, method, url string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	var body healthResponse
	getJSON(t, env.srv.URL+"/health", http.StatusOK, &body)
	if body.Status != "ok" {
		t.Errorf("status = %q", body.Status)
	}
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "sess-1")
	env.seed(t, "sess-2")

	var dash query.Dashboard
	getJSON(t, env.srv.URL+"/api/dashboard", http.StatusOK, &dash)
	if dash.Stats.TotalSessions != 2 || dash.Stats.TotalMessages != 4 {
		t.Errorf("stats = %+v", dash.Stats)
	}
	if len(dash.RecentSessions) != 2 {
		t.Errorf("recent = %d", len(dash.RecentSessions))
	}
}

func TestSessionNotFound(t *testing.T) {
	env := newTestEnv(t)
	var body errorResponse
	getJSON(t, env.srv.URL+"/api/sessions/missing", http.StatusNotFound, &body)
	if body.Error != "session not found" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestConversation(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "sess-1")

	var body struct {
		Messages []store.ConversationMessage `json:"messages"`
	}
	getJSON(t, env.srv.URL+"/api/sessions/sess-1/conversation", http.StatusOK, &body)
	if len(body.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(body.Messages))
	}
	if body.Messages[0].Role != "user" || body.Messages[1].Role != "assistant" {
		t.Errorf("order = %s, %s", body.Messages[0].Role, body.Messages[1].Role)
	}
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "sess-1")

	var body struct {
		Results []store.SearchHit `json:"results"`
	}
	getJSON(t, env.srv.URL+"/api/search?q=refactor", http.StatusOK, &body)
	if len(body.Results) == 0 {
		t.Fatal("no search results")
	}

	getJSON(t, env.srv.URL+"/api/search?q=", http.StatusBadRequest, nil)
}

func TestSearchFilterParams(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "sess-1")

	var body struct {
		Results []store.SearchHit `json:"results"`
	}
	getJSON(t, env.srv.URL+"/api/search?q=refactor&before=2000-01-01T00:00:00Z",
		http.StatusOK, &body)
	if len(body.Results) != 0 {
		t.Errorf("results before 2000 = %+v", body.Results)
	}

	getJSON(t, env.srv.URL+"/api/search?q=refactor&project=/nowhere", http.StatusOK, &body)
	if len(body.Results) != 0 {
		t.Errorf("results for unknown project = %+v", body.Results)
	}

	getJSON(t, env.srv.URL+"/api/search?q=refactor&after=yesterday", http.StatusBadRequest, nil)
}

func TestSessionsInvalidStatus(t *testing.T) {
	env := newTestEnv(t)
	getJSON(t, env.srv.URL+"/api/sessions?status=bogus", http.StatusBadRequest, nil)
}

func TestTokenAnalyticsInvalidGroup(t *testing.T) {
	env := newTestEnv(t)
	getJSON(t, env.srv.URL+"/api/analytics/tokens?group=bogus", http.StatusBadRequest, nil)
}

func TestJoin(t *testing.T) {
	env := newTestEnv(t)
	env.muxCtl.joinResult = ports.JoinResult{Status: ports.JoinCreated, MuxName: "claude-remote-sess-1"}

	resp := doJSON(t, http.MethodPost, env.srv.URL+"/api/sessions/sess-1/join", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var result ports.JoinResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Status != ports.JoinCreated {
		t.Errorf("result = %+v", result)
	}
}

func TestJoinUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	env.muxCtl.joinErr = domain.ErrSessionNotFound

	resp := doJSON(t, http.MethodPost, env.srv.URL+"/api/sessions/missing/join", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestInject(t *testing.T) {
	env := newTestEnv(t)

	resp := doJSON(t, http.MethodPost, env.srv.URL+"/api/sessions/sess-12345678/inject",
		injectRequest{Text: "continue\n"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	env.muxCtl.mu.Lock()
	defer env.muxCtl.mu.Unlock()
	if len(env.muxCtl.injects) != 1 || env.muxCtl.injects[0] != "claude-remote-sess-123:continue\n" {
		t.Errorf("injects = %v", env.muxCtl.injects)
	}
}

func TestInjectEmptyText(t *testing.T) {
	env := newTestEnv(t)
	resp := doJSON(t, http.MethodPost, env.srv.URL+"/api/sessions/sess-1/inject", injectRequest{})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestTerminate(t *testing.T) {
	env := newTestEnv(t)
	resp := doJSON(t, http.MethodDelete, env.srv.URL+"/api/sessions/sess-1/mux", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(env.muxCtl.terminated) != 1 || env.muxCtl.terminated[0] != "claude-remote-sess-1" {
		t.Errorf("terminated = %v", env.muxCtl.terminated)
	}
}

func TestTerminateMissingMux(t *testing.T) {
	env := newTestEnv(t)
	env.muxCtl.terminatErr = domain.ErrMuxSessionNotFound

	resp := doJSON(t, http.MethodDelete, env.srv.URL+"/api/sessions/sess-1/mux", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestTerminateMuxFailure(t *testing.T) {
	env := newTestEnv(t)
	env.muxCtl.terminatErr = domain.NewMuxError("kill-session", "server exited", errors.New("exit status 1"))

	resp := doJSON(t, http.MethodDelete, env.srv.URL+"/api/sessions/sess-1/mux", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(body.Error, "server exited") {
		t.Errorf("error = %q, want tmux stderr", body.Error)
	}
}

func TestPushSubscriptionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp := doJSON(t, http.MethodPost, env.srv.URL+"/api/push/subscriptions",
		pushSubscribeRequest{Endpoint: "https://push.example/ep1", P256DH: "key", Auth: "auth"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("subscribe status = %d", resp.StatusCode)
	}

	subs, err := env.store.PushSubscriptions(context.Background())
	if err != nil {
		t.Fatalf("PushSubscriptions() error = %v", err)
	}
	if len(subs) != 1 || subs[0].Endpoint != "https://push.example/ep1" {
		t.Fatalf("subs = %+v", subs)
	}

	resp = doJSON(t, http.MethodDelete, env.srv.URL+"/api/push/subscriptions",
		pushSubscribeRequest{Endpoint: "https://push.example/ep1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unsubscribe status = %d", resp.StatusCode)
	}

	subs, err = env.store.PushSubscriptions(context.Background())
	if err != nil {
		t.Fatalf("PushSubscriptions() error = %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("subs after delete = %+v", subs)
	}
}

func TestPushSubscribeMissingEndpoint(t *testing.T) {
	env := newTestEnv(t)
	resp := doJSON(t, http.MethodPost, env.srv.URL+"/api/push/subscriptions", pushSubscribeRequest{})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

// readSSEEvent scans an SSE stream for the next event/data pair.
func readSSEEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read SSE stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
}

func waitForSubscriber(t *testing.T, b *bus.Bus, topic string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.SubscriberCount(topic) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no subscriber appeared on topic %q", topic)
}

func TestEventsStreamDeliversBusEvents(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, env.srv.URL+"/api/events?topic=sess-1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	waitForSubscriber(t, env.bus, "sess-1")
	env.bus.Publish("sess-1", events.NewNewMessageEvent("sess-1", "assistant", "hello", time.Now().UTC()))

	reader := bufio.NewReader(resp.Body)
	for {
		event, data := readSSEEvent(t, reader)
		if event == string(events.EventTypeHeartbeat) {
			continue
		}
		if event != string(events.EventTypeNewMessage) {
			t.Fatalf("event = %q", event)
		}
		if !strings.Contains(data, `"preview":"hello"`) {
			t.Errorf("data = %s", data)
		}
		return
	}
}

func TestEventsStreamHeartbeat(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, env.srv.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	event, _ := readSSEEvent(t, bufio.NewReader(resp.Body))
	if event != string(events.EventTypeHeartbeat) {
		t.Errorf("event = %q, want heartbeat", event)
	}
}

type fakePipe struct {
	mu      sync.Mutex
	wrote   []byte
	resizes []ports.TerminalSize
	out     chan []byte
	done    chan struct{}
	once    sync.Once
}

func newFakePipe() *fakePipe {
	return &fakePipe{out: make(chan []byte, 8), done: make(chan struct{})}
}

func (p *fakePipe) Read(b []byte) (int, error) {
	select {
	case data := <-p.out:
		return copy(b, data), nil
	case <-p.done:
		return 0, io.EOF
	}
}

func (p *fakePipe) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wrote = append(p.wrote, b...)
	return len(b), nil
}

func (p *fakePipe) Resize(size ports.TerminalSize) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resizes = append(p.resizes, size)
	return nil
}

func (p *fakePipe) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

func wsURL(httpURL, path string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + path
}

func TestTerminalWebSocketBridge(t *testing.T) {
	env := newTestEnv(t)
	pipe := newFakePipe()
	env.muxCtl.attachPipe = pipe

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env.srv.URL, "/ws/terminal/claude-remote-sess-1"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Keystrokes travel as binary frames.
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("ls\r")); err != nil {
		t.Fatalf("write input: %v", err)
	}

	// Resize travels as a JSON text frame.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"resize","rows":40,"cols":100}`)); err != nil {
		t.Fatalf("write resize: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		pipe.mu.Lock()
		ok := bytes.Equal(pipe.wrote, []byte("ls\r")) && len(pipe.resizes) == 1
		pipe.mu.Unlock()
		if ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	pipe.mu.Lock()
	if !bytes.Equal(pipe.wrote, []byte("ls\r")) {
		t.Errorf("pipe input = %q", pipe.wrote)
	}
	if len(pipe.resizes) != 1 || pipe.resizes[0].Rows != 40 || pipe.resizes[0].Cols != 100 {
		t.Errorf("resizes = %+v", pipe.resizes)
	}
	pipe.mu.Unlock()

	// Terminal output arrives as binary frames.
	pipe.out <- []byte("total 0\r\n")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if msgType != websocket.BinaryMessage || string(data) != "total 0\r\n" {
		t.Errorf("frame = %d %q", msgType, data)
	}
}

func TestTerminalAttachFailureIsHTTPError(t *testing.T) {
	env := newTestEnv(t)
	env.muxCtl.attachErr = domain.ErrMuxSessionNotFound

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(env.srv.URL, "/ws/terminal/gone"), nil)
	if err == nil {
		t.Fatal("dial succeeded, want handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("resp = %+v", resp)
	}
}
