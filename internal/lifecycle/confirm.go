// Package lifecycle はドラフトの状態遷移を管理する。
// pending_confirmationのみが非終端状態であり、確認リクエストの処理は
// ちょうど1つの終端状態（posted / failed_to_post / failed_user_inactive）
// への遷移で終わる。終端状態からの再遷移は許可しない。
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/autopost/internal/mailer"
	"github.com/hitoshi/autopost/internal/metrics"
	"github.com/hitoshi/autopost/internal/model"
	"github.com/hitoshi/autopost/internal/repository"
	"github.com/hitoshi/autopost/internal/twitter"
)

// ConfirmService は確認トークンによる投稿実行を処理する。
type ConfirmService struct {
	draftRepo repository.DraftRepository
	publisher twitter.Publisher
	mail      mailer.Mailer
	renderer  *mailer.Renderer
	collector metrics.MetricsCollector
	logger    *slog.Logger
}

// NewConfirmService はConfirmServiceを生成する。
// mailとrendererはnil可（投稿完了通知を送らない構成）。
func NewConfirmService(
	draftRepo repository.DraftRepository,
	publisher twitter.Publisher,
	mail mailer.Mailer,
	renderer *mailer.Renderer,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *ConfirmService {
	return &ConfirmService{
		draftRepo: draftRepo,
		publisher: publisher,
		mail:      mail,
		renderer:  renderer,
		collector: collector,
		logger:    logger,
	}
}

// Confirm は確認トークンを検証し、投稿を実行して終端状態へ遷移させる。
// 成功時は遷移後のドラフトを返す。業務上の失敗はすべて*model.APIErrorとして返す。
//
// 同一トークンへの並行リクエストは条件付きUPDATEで調停される。
// 遷移に成功した1リクエストだけが投稿結果を反映し、
// 敗者は処理済みの通知を受け取る。トークンは状態遷移後も
// レコードに残るが、二度と遷移を引き起こさない。
func (s *ConfirmService) Confirm(ctx context.Context, token string) (*model.Draft, error) {
	if token == "" {
		return nil, model.NewInvalidTokenError()
	}

	target, err := s.draftRepo.FindByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to find draft by token: %w", err)
	}
	if target == nil {
		return nil, model.NewInvalidTokenError()
	}

	if target.Status.IsTerminal() {
		s.logger.Info("confirmation replayed for processed draft",
			slog.String("draft_id", target.ID),
			slog.String("status", string(target.Status)),
		)
		return nil, model.NewAlreadyProcessedError(target.Status)
	}

	if !target.UserIsActive {
		ok, err := s.draftRepo.TransitionFromPending(ctx, target.ID, model.StatusFailedUserInactive, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to transition draft: %w", err)
		}
		if !ok {
			return nil, s.alreadyProcessed(ctx, token, target)
		}
		s.logger.Info("confirmation rejected for inactive user",
			slog.String("draft_id", target.ID),
			slog.String("user_id", target.UserID),
		)
		return nil, model.NewUserInactiveError()
	}

	if err := s.publisher.PostStatus(ctx, target.GeneratedContent, target.OAuthToken, target.OAuthTokenSecret); err != nil {
		return nil, s.handlePublishFailure(ctx, target, err)
	}

	now := time.Now()
	ok, err := s.draftRepo.TransitionFromPending(ctx, target.ID, model.StatusPosted, &now)
	if err != nil {
		return nil, fmt.Errorf("failed to transition draft: %w", err)
	}
	if !ok {
		// 並行リクエストが先に遷移を完了させた。投稿自体は成功している。
		s.logger.Warn("lost confirmation race after publish",
			slog.String("draft_id", target.ID),
		)
		return nil, s.alreadyProcessed(ctx, token, target)
	}

	s.collector.RecordPublishSuccess()
	s.logger.Info("draft posted",
		slog.String("draft_id", target.ID),
		slog.String("user_id", target.UserID),
		slog.String("screen_name", target.ScreenName),
	)

	s.sendPostedNotice(target)

	draft := target.Draft
	draft.Status = model.StatusPosted
	draft.PostedAt = &now
	return &draft, nil
}

// handlePublishFailure は投稿失敗をfailed_to_postへ反映し、業務エラーへ変換する。
func (s *ConfirmService) handlePublishFailure(ctx context.Context, target *model.ConfirmationTarget, publishErr error) error {
	forbidden := twitter.IsPermissionError(publishErr)

	reason := "error"
	if forbidden {
		reason = "forbidden"
	}
	s.collector.RecordPublishFailure(reason)
	s.logger.Error("publish failed",
		slog.String("draft_id", target.ID),
		slog.String("user_id", target.UserID),
		slog.Bool("forbidden", forbidden),
		slog.String("error", publishErr.Error()),
	)

	ok, err := s.draftRepo.TransitionFromPending(ctx, target.ID, model.StatusFailedToPost, nil)
	if err != nil {
		return fmt.Errorf("failed to transition draft: %w", err)
	}
	if !ok {
		s.logger.Warn("lost confirmation race after publish failure",
			slog.String("draft_id", target.ID),
		)
	}

	// 失敗理由はそのままユーザーに提示する（原文の方が対処の手掛かりになる）
	if forbidden {
		return model.NewPostForbiddenError(publishErr.Error())
	}
	return model.NewPostFailedError(publishErr.Error())
}

// alreadyProcessed は遷移の敗者向けに現在の終端状態を読み直して通知エラーを作る。
// 読み直しに失敗した場合は状態不明として扱う。
func (s *ConfirmService) alreadyProcessed(ctx context.Context, token string, target *model.ConfirmationTarget) *model.APIError {
	current, err := s.draftRepo.FindByToken(ctx, token)
	if err != nil || current == nil {
		return model.NewAlreadyProcessedError(target.Status)
	}
	return model.NewAlreadyProcessedError(current.Status)
}

// sendPostedNotice は投稿完了通知メールを送信する。
// 送信失敗は遷移済みの状態に影響しない（ログのみ）。
func (s *ConfirmService) sendPostedNotice(target *model.ConfirmationTarget) {
	if s.mail == nil || s.renderer == nil || target.UserEmail == "" {
		return
	}

	body, err := s.renderer.RenderPosted(target.ScreenName, target.GeneratedContent)
	if err != nil {
		s.logger.Error("failed to render posted mail",
			slog.String("draft_id", target.ID),
			slog.String("error", err.Error()),
		)
		s.collector.RecordMailFailure("posted")
		return
	}

	if err := s.mail.Send(target.UserEmail, "投稿が完了しました", body); err != nil {
		s.logger.Error("failed to send posted mail",
			slog.String("draft_id", target.ID),
			slog.String("error", err.Error()),
		)
		s.collector.RecordMailFailure("posted")
		return
	}
	s.collector.RecordMailSent("posted")
}
