package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiConfig はGeminiプロバイダーの設定。
type GeminiConfig struct {
	APIKey string
	Model  string

	// テスト用にオーバーライド可能なURL
	BaseURL string
}

// GeminiProvider はGoogle Gemini APIによるテキスト生成を提供する。
type GeminiProvider struct {
	config GeminiConfig
	client *http.Client
}

// NewGeminiProvider はGeminiProviderを生成する。
// clientがnilの場合はhttp.DefaultClientを使用する。
func NewGeminiProvider(config GeminiConfig, client *http.Client) *GeminiProvider {
	if config.BaseURL == "" {
		config.BaseURL = defaultGeminiBaseURL
	}
	if config.Model == "" {
		config.Model = "gemini-1.5-flash"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &GeminiProvider{config: config, client: client}
}

// geminiRequest はgenerateContentエンドポイントのリクエストボディ。
type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

// geminiResponse はgenerateContentエンドポイントのレスポンス。
type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// GenerateText はプロンプトをGemini APIに送り、生成テキストを返す。
// TextProviderインターフェースを実装する。
func (p *GeminiProvider) GenerateText(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: prompt}}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		p.config.BaseURL, p.config.Model, p.config.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read generation response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generation failed with status %d: %s", resp.StatusCode, string(body))
	}

	var genResp geminiResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("failed to parse generation response: %w", err)
	}

	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty candidates in generation response")
	}

	return genResp.Candidates[0].Content.Parts[0].Text, nil
}

// compile-time interface check
var _ TextProvider = (*GeminiProvider)(nil)
