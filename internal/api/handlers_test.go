package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gymbrocolombia/gymbot/internal/lifecycle"
	"github.com/gymbrocolombia/gymbot/internal/logbuf"
	"github.com/gymbrocolombia/gymbot/internal/models"
	"github.com/gymbrocolombia/gymbot/internal/session"
	"github.com/gymbrocolombia/gymbot/internal/store"
)

// stubService implements messaging.Service for handler tests.
type stubService struct {
	sent      []string
	responses chan models.Response
	events    chan models.ConnectionEvent
}

func newStubService() *stubService {
	return &stubService{
		responses: make(chan models.Response, 1),
		events:    make(chan models.ConnectionEvent, 1),
	}
}

func (s *stubService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if len(recipient) < 6 {
		return "", models.ErrInvalidRecipient
	}
	return recipient, nil
}

func (s *stubService) SendMessage(_ context.Context, to, body string) error {
	s.sent = append(s.sent, to)
	return nil
}

func (s *stubService) SendMedia(context.Context, string, string, string) error { return nil }
func (s *stubService) Start(context.Context) error                             { return nil }
func (s *stubService) Stop() error                                             { return nil }
func (s *stubService) Responses() <-chan models.Response                       { return s.responses }
func (s *stubService) Events() <-chan models.ConnectionEvent                   { return s.events }

type testServer struct {
	*Server
	svc      *stubService
	sessions *session.Store
	manager  *lifecycle.Manager
	logs     *logbuf.Handler
	exits    chan int
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	svc := newStubService()
	sessions := session.NewStore()
	st := store.NewInMemoryStore()
	logs := logbuf.NewHandler(slog.NewTextHandler(io.Discard, nil), 50)
	manager := lifecycle.NewManager(svc, nil, sessions, st,
		lifecycle.WithSweepPacing(0),
		lifecycle.WithExitFunc(func(int) {}),
	)
	srv := NewServer(svc, sessions, manager, st, logs)
	exits := make(chan int, 1)
	srv.exit = func(code int) { exits <- code }
	return &testServer{Server: srv, svc: svc, sessions: sessions, manager: manager, logs: logs, exits: exits}
}

func (ts *testServer) markReady() {
	ts.manager.HandleEvent(context.Background(), models.ConnectionEvent{Kind: models.ConnectionEventConnected})
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	result, _ := resp.Result.(map[string]interface{})
	return result
}

func TestHealthHandler(t *testing.T) {
	ts := newTestServer(t)

	rec := doRequest(t, ts.Server, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	result := decodeResult(t, rec)
	if result["ready"] != false {
		t.Error("transport should not be ready before a connected event")
	}

	ts.markReady()
	result = decodeResult(t, doRequest(t, ts.Server, http.MethodGet, "/health", ""))
	if result["ready"] != true {
		t.Error("transport should be ready after a connected event")
	}

	if rec := doRequest(t, ts.Server, http.MethodPost, "/health", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /health = %d, want 405", rec.Code)
	}
}

func TestStatsHandler(t *testing.T) {
	ts := newTestServer(t)
	ts.sessions.Do("573001112233", func(st *models.ConversationState, _ bool) session.Outcome {
		st.Location = models.LocationVenecia
		st.Plan = "flash"
		st.PaymentFlow = models.PaymentAwaitingMethod
		return session.Keep
	})
	ts.sessions.Do("573009998877", func(st *models.ConversationState, _ bool) session.Outcome {
		st.HandoffToHuman = true
		return session.Keep
	})

	rec := doRequest(t, ts.Server, http.MethodGet, "/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	result := decodeResult(t, rec)
	if result["active_sessions"] != float64(2) {
		t.Errorf("active_sessions = %v", result["active_sessions"])
	}
	if result["awaiting_payment"] != float64(1) {
		t.Errorf("awaiting_payment = %v", result["awaiting_payment"])
	}
	if result["handed_off"] != float64(1) {
		t.Errorf("handed_off = %v", result["handed_off"])
	}
	byPlan, _ := result["by_plan"].(map[string]interface{})
	if byPlan["flash"] != float64(1) {
		t.Errorf("by_plan = %v", byPlan)
	}
}

func TestStatusHandler(t *testing.T) {
	ts := newTestServer(t)
	ts.markReady()
	slog.New(ts.logs).Info("transport ready")

	rec := doRequest(t, ts.Server, http.MethodGet, "/admin/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	result := decodeResult(t, rec)
	if result["ready"] != true {
		t.Error("ready should be true")
	}
	if result["reconnect_attempts"] != float64(0) {
		t.Errorf("reconnect_attempts = %v", result["reconnect_attempts"])
	}
	logs, _ := result["recent_logs"].([]interface{})
	if len(logs) == 0 {
		t.Error("recent_logs missing")
	}
	if _, ok := result["qr_code"]; ok {
		t.Error("qr_code should be absent when no pairing is pending")
	}
}

func TestStatusHandler_PendingQR(t *testing.T) {
	ts := newTestServer(t)
	ts.manager.HandleEvent(context.Background(), models.ConnectionEvent{
		Kind: models.ConnectionEventQR, QRCode: "pair-me", Time: time.Now(),
	})

	result := decodeResult(t, doRequest(t, ts.Server, http.MethodGet, "/admin/api/status", ""))
	if result["qr_code"] != "pair-me" {
		t.Errorf("qr_code = %v", result["qr_code"])
	}
}

func TestTestMessageHandler(t *testing.T) {
	ts := newTestServer(t)

	rec := doRequest(t, ts.Server, http.MethodPost, "/admin/api/test-message", `{"phone":"573001112233"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("not-ready status = %d, want 400", rec.Code)
	}

	ts.markReady()
	rec = doRequest(t, ts.Server, http.MethodPost, "/admin/api/test-message", `{"phone":"573001112233"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(ts.svc.sent) != 1 || ts.svc.sent[0] != "573001112233" {
		t.Errorf("sent = %v", ts.svc.sent)
	}

	rec = doRequest(t, ts.Server, http.MethodPost, "/admin/api/test-message", `{"phone":"123"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid phone status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, ts.Server, http.MethodPost, "/admin/api/test-message", `{bad json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json status = %d, want 400", rec.Code)
	}
}

func TestCleanupHandler(t *testing.T) {
	ts := newTestServer(t)
	ts.sessions.Do("573001112233", func(st *models.ConversationState, _ bool) session.Outcome {
		st.LastActivity = time.Now().Add(-time.Hour)
		return session.Keep
	})

	rec := doRequest(t, ts.Server, http.MethodPost, "/admin/api/cleanup", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	result := decodeResult(t, rec)
	if result["removed"] != float64(1) {
		t.Errorf("removed = %v", result["removed"])
	}
	if ts.sessions.Len() != 0 {
		t.Error("stale session should have been removed")
	}
}

func TestRestartHandler(t *testing.T) {
	ts := newTestServer(t)

	rec := doRequest(t, ts.Server, http.MethodPost, "/admin/api/restart", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	select {
	case code := <-ts.exits:
		if code != 0 {
			t.Errorf("exit code = %d, want 0", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("restart never exited")
	}

	if rec := doRequest(t, ts.Server, http.MethodGet, "/admin/api/restart", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET restart = %d, want 405", rec.Code)
	}
}

func TestLogsDownloadHandler(t *testing.T) {
	ts := newTestServer(t)
	slog.New(ts.logs).Info("bot started")

	rec := doRequest(t, ts.Server, http.MethodGet, "/admin/api/logs/download", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "gymbot-logs-") {
		t.Errorf("content disposition = %q", cd)
	}
	if !strings.Contains(rec.Body.String(), "bot started") {
		t.Errorf("body = %q", rec.Body.String())
	}
}
