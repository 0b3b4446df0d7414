// Package twitter はTwitter APIクライアントを提供する。
// リクエスト署名はOAuth 1.0aライブラリに委譲する。
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
)

const defaultAPIBaseURL = "https://api.twitter.com"

// Publisher はユーザー代理での投稿実行インターフェース。
type Publisher interface {
	// PostStatus は指定ユーザーのトークンペアで投稿を実行する。
	PostStatus(ctx context.Context, text, token, tokenSecret string) error
}

// ClientConfig はTwitter APIクライアントの設定。
type ClientConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	Timeout        time.Duration

	// テスト用にオーバーライド可能なURL
	APIBaseURL string
}

// Client はTwitter APIのHTTPクライアント。
// ユーザーごとのトークンペアで署名したリクエストを送信する。
type Client struct {
	config      ClientConfig
	oauthConfig *oauth1.Config
}

// NewClient はClientを生成する。
// Timeoutが0以下の場合はデフォルト値30秒を使用する。
func NewClient(config ClientConfig) *Client {
	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultAPIBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Client{
		config: config,
		oauthConfig: &oauth1.Config{
			ConsumerKey:    config.ConsumerKey,
			ConsumerSecret: config.ConsumerSecret,
		},
	}
}

// postRequest は投稿エンドポイントのリクエストボディ。
type postRequest struct {
	Text string `json:"text"`
}

// postResponse は投稿エンドポイントのレスポンス。
type postResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// PostStatus は指定ユーザーのトークンペアで投稿を実行する。
// タイムアウトを超えた呼び出しは通常の失敗経路として扱われる。
func (c *Client) PostStatus(ctx context.Context, text, token, tokenSecret string) error {
	reqBody, err := json.Marshal(postRequest{Text: text})
	if err != nil {
		return fmt.Errorf("failed to encode post request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		c.config.APIBaseURL+"/2/tweets", bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create post request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.oauthConfig.Client(callCtx, oauth1.NewToken(token, tokenSecret))

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read post response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post failed with status %d %s: %s",
			resp.StatusCode, http.StatusText(resp.StatusCode), strings.TrimSpace(string(body)))
	}

	var postResp postResponse
	if err := json.Unmarshal(body, &postResp); err != nil {
		return fmt.Errorf("failed to parse post response: %w", err)
	}
	if postResp.Data.ID == "" {
		return fmt.Errorf("empty post ID in response")
	}

	return nil
}

// UserProfile はverify_credentialsで取得するユーザー情報。
type UserProfile struct {
	IDStr      string `json:"id_str"`
	ScreenName string `json:"screen_name"`
}

// VerifyCredentials はトークンペアの持ち主のプロフィールを取得する。
// OAuthコールバック処理でアカウントIDとスクリーン名の解決に使用する。
func (c *Client) VerifyCredentials(ctx context.Context, token, tokenSecret string) (*UserProfile, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet,
		c.config.APIBaseURL+"/1.1/account/verify_credentials.json", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create verify request: %w", err)
	}

	httpClient := c.oauthConfig.Client(callCtx, oauth1.NewToken(token, tokenSecret))

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read verify response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verify failed with status %d: %s", resp.StatusCode, string(body))
	}

	var profile UserProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse verify response: %w", err)
	}
	if profile.IDStr == "" || profile.ScreenName == "" {
		return nil, fmt.Errorf("incomplete profile in verify response")
	}

	return &profile, nil
}

// IsPermissionError は投稿失敗が権限・認可の問題に起因するかを判定する。
// 既知のエラーメッセージパターンとの照合で行う。
func IsPermissionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "403 Forbidden") ||
		strings.Contains(msg, "not permitted to perform this action")
}

// compile-time interface check
var _ Publisher = (*Client)(nil)
