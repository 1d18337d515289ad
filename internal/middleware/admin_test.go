package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testAdminSecret = "test-admin-secret-32bytes-long!!!"

// mintToken は指定されたroleクレームを持つHS256署名済みJWTを返す。
func mintToken(t *testing.T, secret, role string, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": role,
		"sub":  "user-1",
		"exp":  expiresAt.Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func newAdminProtectedHandler() http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return NewAdminAuthMiddleware(testAdminSecret)(inner)
}

// 有効な管理者トークンでリクエストが通過することを確認する
func TestAdminAuth_ValidAdminToken_PassesThrough(t *testing.T) {
	handler := newAdminProtectedHandler()

	req := httptest.NewRequest(http.MethodPost, "/secure/sync/run", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, testAdminSecret, "admin", time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

// Authorizationヘッダーなしは401になることを確認する
func TestAdminAuth_MissingHeader_Returns401(t *testing.T) {
	handler := newAdminProtectedHandler()

	req := httptest.NewRequest(http.MethodPost, "/secure/sync/run", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if body["code"] != "UNAUTHORIZED" {
		t.Errorf("code = %q, want UNAUTHORIZED", body["code"])
	}
}

// 署名が不正なトークンは401になることを確認する
func TestAdminAuth_WrongSecret_Returns401(t *testing.T) {
	handler := newAdminProtectedHandler()

	req := httptest.NewRequest(http.MethodPost, "/secure/sync/run", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "wrong-secret", "admin", time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

// 期限切れトークンは401になることを確認する
func TestAdminAuth_ExpiredToken_Returns401(t *testing.T) {
	handler := newAdminProtectedHandler()

	req := httptest.NewRequest(http.MethodPost, "/secure/sync/run", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, testAdminSecret, "admin", time.Now().Add(-time.Hour)))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

// 管理者以外のroleは403になることを確認する
func TestAdminAuth_NonAdminRole_Returns403(t *testing.T) {
	handler := newAdminProtectedHandler()

	req := httptest.NewRequest(http.MethodPost, "/secure/sync/run", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, testAdminSecret, "teacher", time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if body["code"] != "FORBIDDEN" {
		t.Errorf("code = %q, want FORBIDDEN", body["code"])
	}
}

// Bearer以外のスキームは401になることを確認する
func TestAdminAuth_NonBearerScheme_Returns401(t *testing.T) {
	handler := newAdminProtectedHandler()

	req := httptest.NewRequest(http.MethodPost, "/secure/sync/run", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
