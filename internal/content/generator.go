// Package content はトピックからの投稿文生成を提供する。
// 外部の生成プロバイダーと決定的なテンプレートフォールバックを組み合わせ、
// 生成は常に成功する全域関数として振る舞う。
package content

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"
)

const (
	// MaxPostLength は投稿文の上限（コードポイント数）。
	MaxPostLength = 280
	// truncationMarker は切り詰め時に末尾へ付加するマーカー。
	truncationMarker = "..."
)

// fallbackTemplates はプロバイダー利用不可時のテンプレート群。
// %s には先頭3トピックを", "で結合した文字列が入る。
var fallbackTemplates = []string{
	"Exploring new ideas in %s today. The pace of change keeps things interesting.",
	"Been thinking a lot about %s lately. There is always more to learn than expected.",
	"The latest developments in %s are worth keeping an eye on this week.",
	"Every day brings something new in %s. Staying curious is half the work.",
	"If you follow %s, now is a great time to pay attention to where things are heading.",
}

// genericFallback はトピック未設定時の固定文。プロバイダー呼び出しは行わない。
const genericFallback = "Sharing a quick thought today. Staying curious and learning something new every day."

// Result は生成結果を表す。
// Fallbackはプロバイダーを使わずテンプレート生成にフォールバックしたことを示す。
type Result struct {
	Text     string
	Fallback bool
}

// TextProvider は外部テキスト生成プロバイダーのインターフェース。
type TextProvider interface {
	// GenerateText はプロンプトに対する生成テキストを返す。
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Generator はトピックリストから投稿文を生成する。
// プロバイダーエラー時はテンプレートにフォールバックするため、外向きには失敗しない。
// 長さ・形式の制約はプロバイダーを信用せずローカルで強制する。
type Generator struct {
	provider TextProvider // nilの場合はフォールバックのみで動作する
	logger   *slog.Logger
	timeout  time.Duration
}

// NewGenerator はGeneratorを生成する。providerはnilでもよい。
// timeoutが0以下の場合はデフォルト値30秒を使用する。
func NewGenerator(provider TextProvider, logger *slog.Logger, timeout time.Duration) *Generator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Generator{
		provider: provider,
		logger:   logger,
		timeout:  timeout,
	}
}

// Generate はトピックリストから投稿文を生成する。
// いかなる入力・プロバイダー状態でも空でないMaxPostLength以下のテキストを返す。
func (g *Generator) Generate(ctx context.Context, topics []string) Result {
	if len(topics) == 0 {
		return Result{Text: Truncate(genericFallback), Fallback: true}
	}

	if g.provider != nil {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		text, err := g.provider.GenerateText(callCtx, buildPrompt(topics))
		if err == nil && strings.TrimSpace(text) != "" {
			return Result{Text: Truncate(strings.TrimSpace(text)), Fallback: false}
		}
		if err != nil {
			g.logger.Warn("生成プロバイダーの呼び出しに失敗したためテンプレートにフォールバックします",
				slog.String("error", err.Error()),
			)
		} else {
			g.logger.Warn("生成プロバイダーが空のテキストを返したためテンプレートにフォールバックします")
		}
	}

	return Result{Text: g.fallbackText(topics), Fallback: true}
}

// buildPrompt はトピックから生成プロンプトを構築する。
// 形式制約はローカルでも強制するが、プロバイダーにも明示する。
func buildPrompt(topics []string) string {
	return fmt.Sprintf(
		"Write exactly one short promotional or informational statement about: %s. "+
			"Keep it under 280 characters. Use a conversational tone. "+
			"Do not use hashtags. Return only the statement itself.",
		strings.Join(topics, ", "),
	)
}

// fallbackText はテンプレート群から一様ランダムに1つ選び、
// 先頭3トピックをパラメータとして埋め込んだ文を返す。
func (g *Generator) fallbackText(topics []string) string {
	subject := topics
	if len(subject) > 3 {
		subject = subject[:3]
	}
	template := fallbackTemplates[rand.Intn(len(fallbackTemplates))]
	return Truncate(fmt.Sprintf(template, strings.Join(subject, ", ")))
}

// Truncate はテキストをMaxPostLengthコードポイント以内に切り詰める。
// 切り詰めが発生した場合は先頭277コードポイント + 3文字のマーカーで
// ちょうどMaxPostLengthの長さになる。
func Truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxPostLength {
		return text
	}
	return string(runes[:MaxPostLength-len(truncationMarker)]) + truncationMarker
}
