package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"callkit-core/internal/calls"
	"callkit-core/internal/dispatch"
	"callkit-core/internal/event"
	"callkit-core/internal/journal"
	"callkit-core/internal/provider"
	"callkit-core/internal/registry"

	"github.com/gin-gonic/gin"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	reg := registry.New(registry.NewMemoryStore(), nil)
	svc := calls.NewService(
		event.NewValidator(nil),
		reg,
		dispatch.New(nil),
		provider.NewNoop(nil),
		journal.NewService(journal.NewMemoryRepo()),
		nil,
	)
	h := Handlers{Calls: svc}

	r := gin.New()
	r.POST("/webhooks/push/call", h.Ingest)
	r.GET("/v1/calls/current", h.GetCurrent)
	r.GET("/v1/calls/last", h.GetLastCallID)
	r.GET("/v1/calls/:session_id", h.GetCall)
	r.GET("/v1/calls/:session_id/history", h.GetHistory)
	r.DELETE("/v1/calls/:session_id", h.DeleteCall)
	r.DELETE("/v1/calls", h.ClearAll)
	r.GET("/v1/stats", h.GetStats)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const incomingBody = `{"event":"incomingCall","args":{"session_id":"a-1","call_type":1,"caller_id":42,"caller_name":"Alice","call_opponents":"7,8"}}`

func TestIngest_AcceptsValidEnvelope(t *testing.T) {
	r := newTestRouter()

	w := doJSON(t, r, http.MethodPost, "/webhooks/push/call", []byte(incomingBody))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, "/v1/calls/a-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var rec recordResponse
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.State != "pending" {
		t.Fatalf("expected pending record, got %+v", rec)
	}
	if rec.Data[event.FieldCallerName] != "Alice" {
		t.Fatalf("record data missing fields: %+v", rec.Data)
	}
}

func TestIngest_BadEnvelopeIs400(t *testing.T) {
	r := newTestRouter()

	for _, body := range []string{
		`not json`,
		`[]`,
		`{"args":{}}`,
		`{"event":"incomingCall"}`,
	} {
		w := doJSON(t, r, http.MethodPost, "/webhooks/push/call", []byte(body))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, w.Code)
		}
	}
}

func TestIngest_RejectedFieldIs400WithDiagnostics(t *testing.T) {
	r := newTestRouter()

	body := `{"event":"incomingCall","args":{"call_type":1,"caller_id":42,"caller_name":"Alice","call_opponents":"7"}}`
	w := doJSON(t, r, http.MethodPost, "/webhooks/push/call", []byte(body))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["field"] != event.FieldSessionID {
		t.Fatalf("expected session_id diagnostics, got %v", resp)
	}
}

func TestIngest_OversizedEnvelopeIs413(t *testing.T) {
	r := newTestRouter()

	big := make([]byte, maxEnvelopeBytes+10)
	for i := range big {
		big[i] = 'a'
	}
	w := doJSON(t, r, http.MethodPost, "/webhooks/push/call", big)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}

func TestGetCurrent(t *testing.T) {
	r := newTestRouter()

	if w := doJSON(t, r, http.MethodGet, "/v1/calls/current", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a current call, got %d", w.Code)
	}

	doJSON(t, r, http.MethodPost, "/webhooks/push/call", []byte(incomingBody))

	w := doJSON(t, r, http.MethodGet, "/v1/calls/current", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var rec recordResponse
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.SessionID != "a-1" {
		t.Fatalf("expected a-1 current, got %+v", rec)
	}

	w = doJSON(t, r, http.MethodGet, "/v1/calls/last", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for last call id, got %d", w.Code)
	}
}

func TestGetCall_UnknownSessionReportsUnknownState(t *testing.T) {
	r := newTestRouter()

	w := doJSON(t, r, http.MethodGet, "/v1/calls/never-seen", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["state"] != "unknown" {
		t.Fatalf("expected unknown state, got %v", resp)
	}
}

func TestDeleteAndClear(t *testing.T) {
	r := newTestRouter()

	doJSON(t, r, http.MethodPost, "/webhooks/push/call", []byte(incomingBody))

	if w := doJSON(t, r, http.MethodDelete, "/v1/calls/a-1", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	w := doJSON(t, r, http.MethodGet, "/v1/calls/a-1", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["state"] != "unknown" {
		t.Fatalf("expected record gone, got %v", resp)
	}

	doJSON(t, r, http.MethodPost, "/webhooks/push/call", []byte(incomingBody))
	if w := doJSON(t, r, http.MethodDelete, "/v1/calls", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodGet, "/v1/calls/current", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected current cleared, got %d", w.Code)
	}
}

func TestGetHistory(t *testing.T) {
	r := newTestRouter()

	doJSON(t, r, http.MethodPost, "/webhooks/push/call", []byte(incomingBody))
	doJSON(t, r, http.MethodPost, "/webhooks/push/call", []byte(`{"event":"answerCall","args":{"session_id":"a-1"}}`))

	w := doJSON(t, r, http.MethodGet, "/v1/calls/a-1/history", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Entries []journal.Entry `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Entries) != 2 {
		t.Fatalf("expected 2 transitions, got %d: %+v", len(resp.Entries), resp.Entries)
	}
	if resp.Entries[1].ToState != "accepted" {
		t.Fatalf("unexpected history: %+v", resp.Entries)
	}
}

func TestGetStats(t *testing.T) {
	r := newTestRouter()

	doJSON(t, r, http.MethodPost, "/webhooks/push/call", []byte(incomingBody))

	w := doJSON(t, r, http.MethodGet, "/v1/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var stats registry.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Records != 1 {
		t.Fatalf("expected 1 record, got %+v", stats)
	}
}
