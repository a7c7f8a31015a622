package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/duetvoice/bridge/internal/adapter"
	"github.com/duetvoice/bridge/internal/config"
	"github.com/duetvoice/bridge/internal/observability"
	"github.com/duetvoice/bridge/internal/session"
)

func testServer(t *testing.T) (*Server, *session.Manager) {
	t.Helper()
	cfg := config.Config{
		SessionInactivityTimeout: time.Minute,
	}
	mgr := session.NewManager(cfg.SessionInactivityTimeout)
	sessionCfg := session.Config{
		Adapters: adapter.Set{
			STT:        adapter.NewMockSTT(),
			LLM:        adapter.NewMockLLM(),
			TTS:        adapter.NewMockTTS(),
			Moderation: adapter.NewMockModeration(),
		},
		VoiceBob:           "alloy",
		VoiceAlice:         "shimmer",
		RetryPolicy:        adapter.DefaultRetryPolicy(),
		BreakerThreshold:   3,
		BreakerCooldown:    30 * time.Second,
		InactivityNudge:    time.Hour,
		DeafnessWindow:     50 * time.Millisecond,
		MinSpeechMS:        250,
		VADSpeechThreshold: 0.5,
		VADSilenceMS:       500,
	}
	return New(cfg, mgr, sessionCfg, observability.NewMetrics("voicebridge_test")), mgr
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := testServer(t)
	r := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz status = %d", rec.Code)
	}
}

func TestCreateAndEndSession(t *testing.T) {
	srv, mgr := testServer(t)
	r := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/v1/voice/session", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var created session.CreateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal create response: %v", err)
	}
	if created.SessionID == "" {
		t.Fatalf("expected non-empty session id")
	}
	if created.AgentID != "bob" {
		t.Fatalf("AgentID = %q, want bob", created.AgentID)
	}

	if _, err := mgr.Get(created.SessionID); err != nil {
		t.Fatalf("session not registered: %v", err)
	}

	endReq := httptest.NewRequest(http.MethodPost, "/v1/voice/session/"+created.SessionID+"/end", nil)
	endRec := httptest.NewRecorder()
	r.ServeHTTP(endRec, endReq)
	if endRec.Code != http.StatusOK {
		t.Fatalf("end status = %d, body = %s", endRec.Code, endRec.Body.String())
	}
}

func TestEndSessionUnknownReturnsNotFound(t *testing.T) {
	srv, _ := testServer(t)
	r := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/v1/voice/session/does-not-exist/end", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSessionWSMissingSessionIDRejected(t *testing.T) {
	srv, _ := testServer(t)
	r := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/v1/voice/session/ws", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "session_id") {
		t.Fatalf("expected session_id error detail, got %s", rec.Body.String())
	}
}

func TestSessionWSUnknownSessionRejected(t *testing.T) {
	srv, _ := testServer(t)
	r := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/v1/voice/session/ws?session_id=does-not-exist", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
