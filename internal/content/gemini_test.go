package content

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// 正常系: プロンプトが送信され、候補のテキストが返ることを検証
func TestGeminiProvider_GenerateText(t *testing.T) {
	var gotPath string
	var gotBody geminiRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("key = %q, want %q", r.URL.Query().Get("key"), "test-key")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{
					"parts": []map[string]string{{"text": "生成されたテキスト"}},
				}},
			},
		})
	}))
	defer server.Close()

	provider := NewGeminiProvider(GeminiConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	}, server.Client())

	text, err := provider.GenerateText(context.Background(), "テストプロンプト")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if text != "生成されたテキスト" {
		t.Errorf("text = %q, want %q", text, "生成されたテキスト")
	}
	if !strings.Contains(gotPath, "gemini-1.5-flash:generateContent") {
		t.Errorf("unexpected path: %q", gotPath)
	}
	if len(gotBody.Contents) != 1 || gotBody.Contents[0].Parts[0].Text != "テストプロンプト" {
		t.Errorf("unexpected request body: %+v", gotBody)
	}
}

// 非200レスポンスはエラーになることを検証
func TestGeminiProvider_GenerateText_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	provider := NewGeminiProvider(GeminiConfig{APIKey: "k", BaseURL: server.URL}, server.Client())

	_, err := provider.GenerateText(context.Background(), "p")
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error should include status code: %v", err)
	}
}

// 候補が空のレスポンスはエラーになることを検証
func TestGeminiProvider_GenerateText_EmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates": []}`))
	}))
	defer server.Close()

	provider := NewGeminiProvider(GeminiConfig{APIKey: "k", BaseURL: server.URL}, server.Client())

	_, err := provider.GenerateText(context.Background(), "p")
	if err == nil {
		t.Fatal("expected error for empty candidates")
	}
}

// コンテキストキャンセルでリクエストが中断されることを検証
func TestGeminiProvider_GenerateText_ContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	provider := NewGeminiProvider(GeminiConfig{APIKey: "k", BaseURL: server.URL}, server.Client())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.GenerateText(ctx, "p")
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
