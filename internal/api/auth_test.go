package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func bearerProtected(token string) (http.Handler, *bool) {
	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})
	return RequireBearer(token)(next), &reached
}

// TestRequireBearerMissingHeader challenges with 401.
func TestRequireBearerMissingHeader(t *testing.T) {
	handler, reached := bearerProtected("secret")

	req := httptest.NewRequest("POST", "/api/admin/spawn", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", rec.Code)
	}
	if got := rec.Header().Get("WWW-Authenticate"); got != `Bearer realm="admin"` {
		t.Errorf("Expected WWW-Authenticate challenge, got %q", got)
	}
	if *reached {
		t.Error("Expected handler to be blocked")
	}
}

// TestRequireBearerWrongToken rejects with 403.
func TestRequireBearerWrongToken(t *testing.T) {
	handler, reached := bearerProtected("secret")

	req := httptest.NewRequest("POST", "/api/admin/spawn", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("Expected status 403, got %d", rec.Code)
	}
	if *reached {
		t.Error("Expected handler to be blocked")
	}
}

// TestRequireBearerCorrectToken passes the request through.
func TestRequireBearerCorrectToken(t *testing.T) {
	handler, reached := bearerProtected("secret")

	req := httptest.NewRequest("POST", "/api/admin/spawn", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if !*reached {
		t.Error("Expected handler to run")
	}
}

// TestRequireBearerEmptyToken refuses everything, even a blank match.
func TestRequireBearerEmptyToken(t *testing.T) {
	handler, reached := bearerProtected("")

	req := httptest.NewRequest("POST", "/api/admin/spawn", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("Expected status 403, got %d", rec.Code)
	}
	if *reached {
		t.Error("Expected handler to be blocked")
	}
}

// TestBearerTokenExtraction covers header parsing edge cases.
func TestBearerTokenExtraction(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc123", "abc123"},
		{"bearer abc123", "abc123"},
		{"BEARER abc123", "abc123"},
		{"Bearer  padded  ", "padded"},
		{"Token abc123", ""},
		{"Bearer", ""},
		{"", ""},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		if got := bearerToken(req); got != tt.want {
			t.Errorf("Header %q: expected token %q, got %q", tt.header, tt.want, got)
		}
	}
}
