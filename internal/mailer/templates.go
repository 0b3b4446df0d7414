package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

//go:embed templates/*.html.tmpl
var templatesFS embed.FS

// Renderer は通知メール本文のレンダリングを行う。
// 生成プロバイダーの出力にマークアップが混入している可能性があるため、
// 埋め込み前にbluemondayのStrictPolicyでタグを除去する。
type Renderer struct {
	confirm   *template.Template
	posted    *template.Template
	sanitizer *bluemonday.Policy
	baseURL   string
}

// NewRenderer はRendererを生成する。
// baseURLは確認リンクとダッシュボードリンクの構築に使用する。
func NewRenderer(baseURL string) (*Renderer, error) {
	confirm, err := template.ParseFS(templatesFS, "templates/confirm.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse confirm template: %w", err)
	}
	posted, err := template.ParseFS(templatesFS, "templates/posted.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse posted template: %w", err)
	}
	return &Renderer{
		confirm:   confirm,
		posted:    posted,
		sanitizer: bluemonday.StrictPolicy(),
		baseURL:   strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// templateData はメールテンプレートに渡す値。
type templateData struct {
	ScreenName   string
	Content      string
	Topics       string
	ConfirmURL   string
	DashboardURL string
	Year         int
}

// RenderConfirmation は確認メール本文をレンダリングする。
// ドラフト本文・確認リンク（トークン入りディープリンク）・トピック一覧を埋め込む。
func (r *Renderer) RenderConfirmation(screenName, content, token string, topics []string) (string, error) {
	data := templateData{
		ScreenName:   screenName,
		Content:      r.sanitizer.Sanitize(content),
		Topics:       strings.Join(topics, ", "),
		ConfirmURL:   fmt.Sprintf("%s/confirm-tweet/%s", r.baseURL, token),
		DashboardURL: r.baseURL + "/",
		Year:         time.Now().UTC().Year(),
	}

	var buf bytes.Buffer
	if err := r.confirm.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render confirm mail: %w", err)
	}
	return buf.String(), nil
}

// RenderPosted は投稿完了通知メール本文をレンダリングする。
func (r *Renderer) RenderPosted(screenName, content string) (string, error) {
	data := templateData{
		ScreenName:   screenName,
		Content:      r.sanitizer.Sanitize(content),
		DashboardURL: r.baseURL + "/",
		Year:         time.Now().UTC().Year(),
	}

	var buf bytes.Buffer
	if err := r.posted.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render posted mail: %w", err)
	}
	return buf.String(), nil
}
