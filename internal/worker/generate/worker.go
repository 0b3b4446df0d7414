// Package generate はコンテンツ生成バッチを提供する。
// 対象ユーザーごとにドラフトを1件生成して確認待ち状態で保存し、
// 確認メールを送信する。1回のパスで完結し、スケジューリングは
// 外部（cronまたはトリガーエンドポイント）に委ねる。
package generate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/autopost/internal/content"
	"github.com/hitoshi/autopost/internal/lifecycle"
	"github.com/hitoshi/autopost/internal/mailer"
	"github.com/hitoshi/autopost/internal/metrics"
	"github.com/hitoshi/autopost/internal/model"
	"github.com/hitoshi/autopost/internal/repository"
)

// BatchSummary はバッチ1回分の実行結果を表す。
type BatchSummary struct {
	EligibleUsers int           `json:"eligible_users"`
	DraftsCreated int           `json:"drafts_created"`
	MailsSent     int           `json:"mails_sent"`
	Failures      int           `json:"failures"`
	Duration      time.Duration `json:"-"`
	DurationMS    int64         `json:"duration_ms"`
}

// Runner はコンテンツ生成バッチの実行を行う。
// 1ユーザーの失敗は記録して次のユーザーへ進み、パス全体は止めない。
type Runner struct {
	userRepo       repository.UserRepository
	draftRepo      repository.DraftRepository
	generator      *content.Generator
	tokens         lifecycle.TokenIssuer
	mail           mailer.Mailer
	renderer       *mailer.Renderer
	collector      metrics.MetricsCollector
	logger         *slog.Logger
	maxConcurrency int
}

// NewRunner はRunnerを生成する。
// mailとrendererはnil可（メール未設定の構成では確認メールをスキップする）。
// maxConcurrencyが0以下の場合はデフォルト値5を使用する。
func NewRunner(
	userRepo repository.UserRepository,
	draftRepo repository.DraftRepository,
	generator *content.Generator,
	tokens lifecycle.TokenIssuer,
	mail mailer.Mailer,
	renderer *mailer.Renderer,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	maxConcurrency int,
) *Runner {
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	return &Runner{
		userRepo:       userRepo,
		draftRepo:      draftRepo,
		generator:      generator,
		tokens:         tokens,
		mail:           mail,
		renderer:       renderer,
		collector:      collector,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// RunOnce は生成バッチを1回実行する。
// 対象はアクティブかつトピック設定済みのユーザーのみ。
// semaphoreパターンで最大並列数を制御する。
func (r *Runner) RunOnce(ctx context.Context) (*BatchSummary, error) {
	start := time.Now()

	users, err := r.userRepo.ListEligible(ctx)
	if err != nil {
		return nil, err
	}

	summary := &BatchSummary{EligibleUsers: len(users)}
	if len(users) == 0 {
		r.logger.Info("生成対象のユーザーはいません")
		summary.Duration = time.Since(start)
		summary.DurationMS = summary.Duration.Milliseconds()
		r.collector.RecordBatchDuration(summary.Duration)
		return summary, nil
	}

	r.logger.Info("生成バッチを開始します",
		slog.Int("user_count", len(users)),
	)

	var mu sync.Mutex
	sem := make(chan struct{}, r.maxConcurrency)
	var wg sync.WaitGroup

	for _, user := range users {
		wg.Add(1)
		sem <- struct{}{}

		go func(u *model.User) {
			defer wg.Done()
			defer func() { <-sem }()

			created, mailed, err := r.processUser(ctx, u)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failures++
				return
			}
			if created {
				summary.DraftsCreated++
			}
			if mailed {
				summary.MailsSent++
			}
		}(user)
	}

	wg.Wait()

	summary.Duration = time.Since(start)
	summary.DurationMS = summary.Duration.Milliseconds()
	r.collector.RecordBatchDuration(summary.Duration)

	r.logger.Info("生成バッチが完了しました",
		slog.Int("user_count", len(users)),
		slog.Int("drafts_created", summary.DraftsCreated),
		slog.Int("mails_sent", summary.MailsSent),
		slog.Int("failures", summary.Failures),
		slog.Float64("duration_ms", float64(summary.DurationMS)),
	)

	return summary, nil
}

// processUser は1ユーザー分の生成・保存・通知を行う。
// ドラフトの保存が完了してからメールを送信する。メール失敗は
// ドラフトを無効化しない（確認リンクは履歴から辿れる想定）。
func (r *Runner) processUser(ctx context.Context, user *model.User) (created, mailed bool, err error) {
	// 対象抽出後にトピックが消されている場合に備えた防御
	if len(user.Topics) == 0 {
		r.logger.Warn("トピック未設定のユーザーをスキップします",
			slog.String("user_id", user.ID),
		)
		return false, false, nil
	}

	result := r.generator.Generate(ctx, user.Topics)
	if result.Text == "" {
		r.logger.Warn("空の生成結果をスキップします",
			slog.String("user_id", user.ID),
		)
		return false, false, nil
	}
	if result.Fallback {
		r.collector.RecordFallbackGeneration()
	}

	token := r.tokens.Issue()
	draft := &model.Draft{
		ID:                uuid.New().String(),
		UserID:            user.ID,
		GeneratedContent:  result.Text,
		Status:            model.StatusPendingConfirmation,
		ConfirmationToken: token,
		CreatedAt:         time.Now(),
	}

	if err := r.draftRepo.Create(ctx, draft); err != nil {
		r.logger.Error("ドラフトの保存に失敗しました",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return false, false, err
	}
	r.collector.RecordDraftCreated()

	r.logger.Info("ドラフトを作成しました",
		slog.String("draft_id", draft.ID),
		slog.String("user_id", user.ID),
		slog.Bool("fallback", result.Fallback),
	)

	mailed = r.sendConfirmation(user, draft)
	return true, mailed, nil
}

// sendConfirmation は確認メールを送信する。送信の成否を返す。
func (r *Runner) sendConfirmation(user *model.User, draft *model.Draft) bool {
	if r.mail == nil || r.renderer == nil {
		return false
	}
	if !user.HasEmail() {
		r.logger.Info("メールアドレス未設定のため確認メールをスキップします",
			slog.String("user_id", user.ID),
		)
		return false
	}

	body, err := r.renderer.RenderConfirmation(user.ScreenName, draft.GeneratedContent, draft.ConfirmationToken, user.Topics)
	if err != nil {
		r.logger.Error("確認メールのレンダリングに失敗しました",
			slog.String("draft_id", draft.ID),
			slog.String("error", err.Error()),
		)
		r.collector.RecordMailFailure("confirm")
		return false
	}

	if err := r.mail.Send(user.Email, "新しい投稿の確認", body); err != nil {
		r.logger.Error("確認メールの送信に失敗しました",
			slog.String("draft_id", draft.ID),
			slog.String("error", err.Error()),
		)
		r.collector.RecordMailFailure("confirm")
		return false
	}

	r.collector.RecordMailSent("confirm")
	return true
}
