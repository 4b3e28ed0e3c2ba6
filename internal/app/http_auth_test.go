package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"resumekit/api/internal/authpw"
)

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var payload map[string]any
	if rr.Body.Len() > 0 {
		_ = json.Unmarshal(rr.Body.Bytes(), &payload)
	}
	return rr.Code, payload
}

func TestPasswordAuthLifecycle(t *testing.T) {
	fs := newFakeStore()
	handler := NewHTTPServer(newTestService(fs), "*", nil).Handler()

	status, payload := doJSON(t, handler, http.MethodPost, "/api/auth/signup", "", map[string]any{
		"email":       "Grace@Example.com",
		"password":    "correct-horse",
		"displayName": "Grace",
	})
	if status != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d %v", status, payload)
	}
	verifyToken, _ := payload["devVerificationToken"].(string)
	if verifyToken == "" {
		t.Fatalf("expected dev verification token without a mailer: %v", payload)
	}

	status, payload = doJSON(t, handler, http.MethodPost, "/api/auth/signin", "", map[string]any{
		"email": "grace@example.com", "password": "correct-horse",
	})
	if status != http.StatusForbidden || payload["code"] != CodeEmailNotVerified {
		t.Fatalf("signin before verify: expected 403 EMAIL_NOT_VERIFIED, got %d %v", status, payload)
	}

	status, _ = doJSON(t, handler, http.MethodPost, "/api/auth/verify-email", "", map[string]any{"token": verifyToken})
	if status != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d", status)
	}

	status, payload = doJSON(t, handler, http.MethodPost, "/api/auth/signin", "", map[string]any{
		"email": "grace@example.com", "password": "wrong-password",
	})
	if status != http.StatusUnauthorized || payload["code"] != "INVALID_CREDENTIALS" {
		t.Fatalf("bad password: expected 401, got %d %v", status, payload)
	}

	status, payload = doJSON(t, handler, http.MethodPost, "/api/auth/signin", "", map[string]any{
		"email": "grace@example.com", "password": "correct-horse",
	})
	if status != http.StatusOK {
		t.Fatalf("signin: expected 200, got %d %v", status, payload)
	}
	accessToken, _ := payload["accessToken"].(string)
	refreshToken, _ := payload["refreshToken"].(string)
	if accessToken == "" || refreshToken == "" || payload["plan"] != "free" {
		t.Fatalf("unexpected signin payload %v", payload)
	}

	status, payload = doJSON(t, handler, http.MethodGet, "/api/session", accessToken, nil)
	if status != http.StatusOK || payload["authenticated"] != true || payload["userName"] != "Grace" {
		t.Fatalf("session: unexpected %d %v", status, payload)
	}

	status, payload = doJSON(t, handler, http.MethodPost, "/api/session/refresh", "", map[string]any{"refreshToken": refreshToken})
	if status != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d %v", status, payload)
	}
	rotatedAccess, _ := payload["accessToken"].(string)
	rotatedRefresh, _ := payload["refreshToken"].(string)
	if rotatedRefresh == "" || rotatedRefresh == refreshToken {
		t.Fatalf("refresh token should rotate, got %q", rotatedRefresh)
	}

	status, _ = doJSON(t, handler, http.MethodPost, "/api/session/refresh", "", map[string]any{"refreshToken": refreshToken})
	if status != http.StatusUnauthorized {
		t.Fatalf("reused refresh token: expected 401, got %d", status)
	}

	status, _ = doJSON(t, handler, http.MethodPost, "/api/session/logout", rotatedAccess, map[string]any{"refreshToken": rotatedRefresh})
	if status != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", status)
	}
	_, payload = doJSON(t, handler, http.MethodGet, "/api/session", rotatedAccess, nil)
	if payload["authenticated"] != false {
		t.Fatalf("revoked token should not authenticate: %v", payload)
	}
	status, _ = doJSON(t, handler, http.MethodGet, "/api/collections/resumes", rotatedAccess, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("revoked token: expected 401 on collections, got %d", status)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	handler := NewHTTPServer(svc, "*", nil).Handler()

	if _, err := svc.SignUp(t.Context(), "ada@example.com", "first-password", "Ada"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	status, payload := doJSON(t, handler, http.MethodPost, "/api/auth/reset-password/request", "", map[string]any{"email": "nobody@example.com"})
	if status != http.StatusOK || payload["devResetToken"] != nil {
		t.Fatalf("unknown email must look like success without a token: %d %v", status, payload)
	}

	_, payload = doJSON(t, handler, http.MethodPost, "/api/auth/reset-password/request", "", map[string]any{"email": "ada@example.com"})
	resetToken, _ := payload["devResetToken"].(string)
	if resetToken == "" {
		t.Fatalf("expected dev reset token, got %v", payload)
	}

	status, payload = doJSON(t, handler, http.MethodPost, "/api/auth/reset-password", "", map[string]any{"token": resetToken, "newPassword": "short"})
	if status != http.StatusBadRequest || payload["code"] != "RESET_FAILED" {
		t.Fatalf("weak password: expected 400 RESET_FAILED, got %d %v", status, payload)
	}
	status, _ = doJSON(t, handler, http.MethodPost, "/api/auth/reset-password", "", map[string]any{"token": resetToken, "newPassword": "second-password"})
	if status != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d", status)
	}
	if _, err := svc.auth.SignIn(t.Context(), authpw.SignInRequest{Email: "ada@example.com", Password: "second-password"}); err != nil {
		t.Fatalf("new password should work: %v", err)
	}
}

func TestCollectionsRequireBearer(t *testing.T) {
	handler := NewHTTPServer(newTestService(newFakeStore()), "*", nil).Handler()
	status, payload := doJSON(t, handler, http.MethodGet, "/api/collections/resumes", "", nil)
	if status != http.StatusUnauthorized || payload["code"] != CodeUnauthorized {
		t.Fatalf("expected 401 UNAUTHORIZED, got %d %v", status, payload)
	}
	status, _ = doJSON(t, handler, http.MethodGet, "/api/collections/resumes", "not-a-token", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a malformed token, got %d", status)
	}
}

func TestAuthRoutesRejectWrongMethodAndPath(t *testing.T) {
	handler := NewHTTPServer(newTestService(newFakeStore()), "*", nil).Handler()

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/auth/signin", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/auth/unknown", http.StatusNotFound},
		{http.MethodPost, "/api/auth/signin", http.StatusBadRequest},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, bytes.NewReader([]byte("{not json")))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != tt.want {
			t.Fatalf("%s %s: expected %d, got %d", tt.method, tt.path, tt.want, rr.Code)
		}
	}
}
