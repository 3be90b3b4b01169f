package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireInternalKey(t *testing.T) {
	handler := RequireInternalKey("secret-key")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		provided   string
		wantStatus int
	}{
		{"matching key passes", "secret-key", http.StatusNoContent},
		{"wrong key is forbidden", "wrong", http.StatusForbidden},
		{"missing key is forbidden", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/payouts/earnings/calculate", nil)
			if tt.provided != "" {
				req.Header.Set("X-Internal-Api-Key", tt.provided)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestRequireInternalKey_EmptyConfiguredKeyRejectsEverything(t *testing.T) {
	handler := RequireInternalKey("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/payouts/earnings/calculate", nil)
	req.Header.Set("X-Internal-Api-Key", "")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("an unconfigured key must reject all callers, got %d", rec.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	handler := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	adminReq := httptest.NewRequest(http.MethodGet, "/payouts/settings", nil)
	adminReq = adminReq.WithContext(context.WithValue(adminReq.Context(), roleKey, "admin"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, adminReq)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected admin to pass, got %d", rec.Code)
	}

	userReq := httptest.NewRequest(http.MethodGet, "/payouts/settings", nil)
	userReq = userReq.WithContext(context.WithValue(userReq.Context(), roleKey, "producer"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, userReq)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected non-admin to be rejected, got %d", rec.Code)
	}
}

func TestGetAuthSubject(t *testing.T) {
	ctx := context.WithValue(context.Background(), subjectKey, "user-123")
	subject, ok := GetAuthSubject(ctx)
	if !ok || subject != "user-123" {
		t.Fatalf("expected subject from context, got %q ok=%t", subject, ok)
	}
	if _, ok := GetAuthSubject(context.Background()); ok {
		t.Fatal("expected missing subject to report not ok")
	}
}
