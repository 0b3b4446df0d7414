package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testRateLimiter(generalBurst, confirmBurst int) *RateLimiter {
	cfg := RateLimiterConfig{
		GeneralRate:     rate.Limit(1.0 / 60.0),
		GeneralBurst:    generalBurst,
		ConfirmRate:     rate.Limit(1.0 / 60.0),
		ConfirmBurst:    confirmBurst,
		CleanupInterval: time.Hour,
	}
	return NewRateLimiter(cfg)
}

// バースト超過で429とRetry-Afterが返ることを検証
func TestGeneralMiddleware_Exceeded(t *testing.T) {
	rl := testRateLimiter(2, 2)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
		req = req.WithContext(ContextWithUserID(req.Context(), "user-1"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)

		if rec.Code == http.StatusTooManyRequests && rec.Header().Get("Retry-After") == "" {
			t.Error("429 response should carry Retry-After")
		}
	}

	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Errorf("first requests within burst should pass: %v", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Errorf("third request should be limited: %v", statuses)
	}
}

// ユーザーごとに独立したリミッターが使われることを検証
func TestGeneralMiddleware_PerUser(t *testing.T) {
	rl := testRateLimiter(1, 1)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, userID := range []string{"user-1", "user-2"} {
		req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
		req = req.WithContext(ContextWithUserID(req.Context(), userID))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("user %s first request should pass, got %d", userID, rec.Code)
		}
	}

	if n := rl.GeneralLimiterCount(); n != 2 {
		t.Errorf("limiter count = %d, want 2", n)
	}
}

// 認証コンテキストなしのリクエストが401になることを検証
func TestGeneralMiddleware_NoUser(t *testing.T) {
	rl := testRateLimiter(1, 1)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

// 確認エンドポイントのリミッターがIPキーで動作することを検証
func TestConfirmMiddleware_PerIP(t *testing.T) {
	rl := testRateLimiter(1, 1)
	defer rl.Stop()

	handler := rl.ConfirmMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req1 := httptest.NewRequest(http.MethodGet, "/confirm-tweet/tok", nil)
	req1.RemoteAddr = "10.0.0.1:1234"
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Errorf("first request should pass, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/confirm-tweet/tok", nil)
	req2.RemoteAddr = "10.0.0.1:5678"
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Errorf("second request from same IP should be limited, got %d", rec2.Code)
	}

	// 別IPは独立
	req3 := httptest.NewRequest(http.MethodGet, "/confirm-tweet/tok", nil)
	req3.RemoteAddr = "10.0.0.2:1234"
	rec3 := httptest.NewRecorder()
	handler.ServeHTTP(rec3, req3)
	if rec3.Code != http.StatusOK {
		t.Errorf("request from another IP should pass, got %d", rec3.Code)
	}
}

// クリーンアップで期限切れエントリが削除されることを検証
func TestKeyedLimiters_Cleanup(t *testing.T) {
	kl := newKeyedLimiters(rate.Limit(1), 1)
	kl.allow("a")
	kl.allow("b")

	if n := kl.count(); n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}

	kl.cleanup(-time.Second)

	if n := kl.count(); n != 0 {
		t.Errorf("count after cleanup = %d, want 0", n)
	}
}
