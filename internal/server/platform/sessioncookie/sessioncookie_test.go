package sessioncookie

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWriteSetsHardenedCookie(t *testing.T) {
	recorder := httptest.NewRecorder()
	Write(recorder, httptest.NewRequest(http.MethodPost, "/api/admin/login", nil), "token-value", 12*time.Hour)

	cookies := recorder.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d, want 1", len(cookies))
	}
	cookie := cookies[0]
	if cookie.Name != Name {
		t.Fatalf("name = %q", cookie.Name)
	}
	if cookie.Value != "token-value" {
		t.Fatalf("value = %q", cookie.Value)
	}
	if !cookie.HttpOnly {
		t.Fatal("expected HttpOnly")
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("samesite = %v", cookie.SameSite)
	}
	if cookie.Path != "/" {
		t.Fatalf("path = %q", cookie.Path)
	}
	if cookie.MaxAge != int((12 * time.Hour).Seconds()) {
		t.Fatalf("max age = %d", cookie.MaxAge)
	}
	if cookie.Secure {
		t.Fatal("plain HTTP request must not set Secure")
	}
}

func TestWriteMarksSecureBehindProxy(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/admin/login", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	recorder := httptest.NewRecorder()
	Write(recorder, req, "token-value", time.Hour)
	if !recorder.Result().Cookies()[0].Secure {
		t.Fatal("expected Secure cookie for forwarded https")
	}
}

func TestClearExpiresCookie(t *testing.T) {
	recorder := httptest.NewRecorder()
	Clear(recorder, httptest.NewRequest(http.MethodPost, "/api/admin/logout", nil))
	cookie := recorder.Result().Cookies()[0]
	if cookie.MaxAge != -1 {
		t.Fatalf("max age = %d, want -1", cookie.MaxAge)
	}
	if cookie.Value != "" {
		t.Fatalf("value = %q, want empty", cookie.Value)
	}
}

func TestReadTrimsAndRejectsEmpty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/admin/session", nil)
	req.AddCookie(&http.Cookie{Name: Name, Value: "  token  "})
	value, ok := Read(req)
	if !ok || value != "token" {
		t.Fatalf("Read = %q, %v", value, ok)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/admin/session", nil)
	if _, ok := Read(req); ok {
		t.Fatal("expected no cookie to read as absent")
	}
}
