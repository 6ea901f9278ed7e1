package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eleven-am/voice-widget/internal/connection"
	"github.com/eleven-am/voice-widget/internal/conversation"
	"github.com/eleven-am/voice-widget/internal/shared"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

type fakeController struct {
	mu        sync.Mutex
	openErr   error
	retryErr  error
	listening bool
	calls     []string
	snap      conversation.Snapshot
}

func (f *fakeController) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeController) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeController) Open(context.Context) error {
	f.record("open")
	return f.openErr
}

func (f *fakeController) Retry(context.Context) error {
	f.record("retry")
	return f.retryErr
}

func (f *fakeController) Close() { f.record("close") }

func (f *fakeController) StartListening() bool {
	f.record("listen")
	return f.listening
}

func (f *fakeController) Snapshot() conversation.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, ctrl *fakeController) (*httptest.Server, *Hub) {
	t.Helper()
	hub := NewHub(testLogger())
	h := NewHandler(ctrl, hub, testLogger())

	e := echo.New()
	h.RegisterRoutes(e.Group("/v1"))
	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv, hub
}

func TestHandler_RegisterRoutes(t *testing.T) {
	e := echo.New()
	NewHandler(&fakeController{}, NewHub(testLogger()), testLogger()).RegisterRoutes(e.Group("/v1"))

	routes := make(map[string]bool)
	for _, r := range e.Routes() {
		routes[r.Method+" "+r.Path] = true
	}
	expected := []string{
		"GET /v1/session",
		"POST /v1/session/open",
		"POST /v1/session/close",
		"POST /v1/session/retry",
		"POST /v1/session/listen",
		"GET /v1/events",
	}
	for _, route := range expected {
		if !routes[route] {
			t.Errorf("expected route %s to be registered", route)
		}
	}
}

func TestHandler_GetSession(t *testing.T) {
	ctrl := &fakeController{snap: conversation.Snapshot{State: connection.StateOpen, Mode: conversation.ModeListening}}
	h := NewHandler(ctrl, NewHub(testLogger()), testLogger())

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)
	rec := httptest.NewRecorder()
	if err := h.GetSession(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := rec.Body.String()
	if !strings.Contains(body, `"state":"open"`) || !strings.Contains(body, `"mode":"listening"`) {
		t.Errorf("unexpected body %s", body)
	}
}

func TestHandler_Open(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"ok", nil, http.StatusOK, ""},
		{"permission denied", shared.ErrPermissionDenied, http.StatusForbidden, "permission_denied"},
		{"device unavailable", fmt.Errorf("open mic: %w", shared.ErrDeviceUnavailable), http.StatusServiceUnavailable, "device_unavailable"},
		{"failed permanently", shared.ErrFailedPermanently, http.StatusConflict, "transport_error"},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError, "open_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &fakeController{openErr: tt.err}
			h := NewHandler(ctrl, NewHub(testLogger()), testLogger())

			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/v1/session/open", nil)
			rec := httptest.NewRecorder()
			err := h.Open(e.NewContext(req, rec))

			if tt.err == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if rec.Code != tt.wantStatus {
					t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
				}
				return
			}

			httpErr, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected *echo.HTTPError, got %v", err)
			}
			if httpErr.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, httpErr.Code)
			}
			if apiErr := httpErr.Message.(*shared.APIError); apiErr.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, apiErr.Code)
			}
		})
	}
}

func TestHandler_CommandsReachController(t *testing.T) {
	ctrl := &fakeController{listening: true}
	srv, _ := newTestServer(t, ctrl)

	for _, path := range []string{"/v1/session/retry", "/v1/session/listen", "/v1/session/close"} {
		resp, err := http.Post(srv.URL+path, "application/json", nil)
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("POST %s: expected 200, got %d", path, resp.StatusCode)
		}
		if path == "/v1/session/listen" {
			var lr ListenResponse
			_ = json.NewDecoder(resp.Body).Decode(&lr)
			if !lr.Listening {
				t.Error("expected listening=true")
			}
		}
		resp.Body.Close()
	}

	calls := ctrl.callList()
	want := []string{"retry", "listen", "close"}
	if fmt.Sprint(calls) != fmt.Sprint(want) {
		t.Errorf("expected calls %v, got %v", want, calls)
	}
}

func dialEvents(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/events", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readSignal(t *testing.T, ws *websocket.Conn) Signal {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var s Signal
	if err := ws.ReadJSON(&s); err != nil {
		t.Fatalf("read signal: %v", err)
	}
	return s
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestEvents_SnapshotThenSignals(t *testing.T) {
	ctrl := &fakeController{snap: conversation.Snapshot{State: connection.StateConnecting, Mode: conversation.ModeIdle}}
	srv, hub := newTestServer(t, ctrl)

	ws := dialEvents(t, srv)
	first := readSignal(t, ws)
	if first.Type != SignalSnapshot || first.Snapshot == nil {
		t.Fatalf("expected snapshot first, got %+v", first)
	}
	if first.Snapshot.State != connection.StateConnecting {
		t.Errorf("expected connecting, got %v", first.Snapshot.State)
	}

	waitFor(t, func() bool { return hub.Count() == 1 }, "subscriber registration")

	cb := hub.Callbacks()
	cb.OnConnectionState(connection.StateOpen)
	cb.OnMode(conversation.ModeListening)
	cb.OnMessage(conversation.Message{Role: conversation.RoleAgent, Text: "hello"})
	cb.OnError(shared.ErrRetriesExhausted)
	cb.OnLevel(0.25)

	state := readSignal(t, ws)
	if state.Type != SignalState || state.State != "open" {
		t.Errorf("unexpected state signal %+v", state)
	}
	mode := readSignal(t, ws)
	if mode.Type != SignalMode || mode.Mode != conversation.ModeListening {
		t.Errorf("unexpected mode signal %+v", mode)
	}
	msg := readSignal(t, ws)
	if msg.Type != SignalMessage || msg.Message == nil || msg.Message.Text != "hello" {
		t.Errorf("unexpected message signal %+v", msg)
	}
	errSig := readSignal(t, ws)
	if errSig.Type != SignalError || errSig.Error == nil || errSig.Error.Kind != shared.KindTransport {
		t.Errorf("unexpected error signal %+v", errSig)
	}
	level := readSignal(t, ws)
	if level.Type != SignalLevel || level.Level == nil || *level.Level != 0.25 {
		t.Errorf("unexpected level signal %+v", level)
	}
}

func TestEvents_UnregisterOnDisconnect(t *testing.T) {
	srv, hub := newTestServer(t, &fakeController{})

	ws := dialEvents(t, srv)
	readSignal(t, ws)
	waitFor(t, func() bool { return hub.Count() == 1 }, "subscriber registration")

	ws.Close()
	waitFor(t, func() bool { return hub.Count() == 0 }, "subscriber removal")
}

func TestClient_DropsWhenFull(t *testing.T) {
	c := &Client{logger: testLogger(), send: make(chan *Signal, 1)}

	if !c.Send(&Signal{Type: SignalMode}) {
		t.Fatal("first send should be queued")
	}
	if c.Send(&Signal{Type: SignalMode}) {
		t.Error("second send should be dropped")
	}

	_ = c.Close()
	if c.Send(&Signal{Type: SignalMode}) {
		t.Error("send after close should be rejected")
	}
	if err := c.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
}

func TestHub_BroadcastSkipsSlowSubscriber(t *testing.T) {
	hub := NewHub(testLogger())
	slow := &Client{logger: testLogger(), send: make(chan *Signal, 1)}
	fast := &Client{logger: testLogger(), send: make(chan *Signal, 4)}
	hub.Register(slow)
	hub.Register(fast)

	for i := 0; i < 3; i++ {
		hub.Broadcast(&Signal{Type: SignalLevel})
	}

	if len(slow.send) != 1 {
		t.Errorf("expected slow subscriber to hold 1 signal, got %d", len(slow.send))
	}
	if len(fast.send) != 3 {
		t.Errorf("expected fast subscriber to hold 3 signals, got %d", len(fast.send))
	}

	hub.Close()
	if hub.Count() != 0 {
		t.Errorf("expected no subscribers after close, got %d", hub.Count())
	}
}
