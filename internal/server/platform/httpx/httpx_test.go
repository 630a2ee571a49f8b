package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/seibukan/gasshuku/internal/server/platform/apperrors"
)

func TestRequireMethodRejectsOthers(t *testing.T) {
	handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), RequireMethod(http.MethodPost))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/register", nil))
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", recorder.Code)
	}
	if recorder.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("Allow = %q", recorder.Header().Get("Allow"))
	}

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/register", nil))
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", recorder.Code)
	}
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("expected request id on inbound request")
		}
		w.WriteHeader(http.StatusOK)
	}), RequestID())

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/pricing", nil))
	if recorder.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id echoed on response")
	}
}

func TestRequestIDPreservesInbound(t *testing.T) {
	handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), RequestID())

	req := httptest.NewRequest(http.MethodGet, "/api/pricing", nil)
	req.Header.Set("X-Request-ID", "client-42")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if got := recorder.Header().Get("X-Request-ID"); got != "client-42" {
		t.Fatalf("X-Request-ID = %q, want client-42", got)
	}
}

func TestRecoverPanicWrites500(t *testing.T) {
	handler := Chain(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("boom")
	}), RecoverPanic())

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", recorder.Code)
	}
}

func TestWriteErrorUsesTypedMapping(t *testing.T) {
	recorder := httptest.NewRecorder()
	WriteError(recorder, apperrors.E(apperrors.KindUnavailable, "database busy"))
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", recorder.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "database busy" {
		t.Fatalf("error = %v", body["error"])
	}
}
