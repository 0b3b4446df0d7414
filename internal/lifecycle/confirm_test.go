package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/autopost/internal/mailer"
	"github.com/hitoshi/autopost/internal/model"
	"github.com/hitoshi/autopost/internal/repository"
)

// --- モック定義 ---

type mockDraftRepo struct {
	createFn     func(ctx context.Context, draft *model.Draft) error
	findFn       func(ctx context.Context, token string) (*model.ConfirmationTarget, error)
	transitionFn func(ctx context.Context, draftID string, status model.DraftStatus, postedAt *time.Time) (bool, error)
	listFn       func(ctx context.Context, userID string, limit int) ([]*model.Draft, error)
}

func (m *mockDraftRepo) Create(ctx context.Context, draft *model.Draft) error {
	if m.createFn != nil {
		return m.createFn(ctx, draft)
	}
	return nil
}

func (m *mockDraftRepo) FindByToken(ctx context.Context, token string) (*model.ConfirmationTarget, error) {
	if m.findFn != nil {
		return m.findFn(ctx, token)
	}
	return nil, nil
}

func (m *mockDraftRepo) TransitionFromPending(ctx context.Context, draftID string, status model.DraftStatus, postedAt *time.Time) (bool, error) {
	if m.transitionFn != nil {
		return m.transitionFn(ctx, draftID, status, postedAt)
	}
	return true, nil
}

func (m *mockDraftRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Draft, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, limit)
	}
	return nil, nil
}

var _ repository.DraftRepository = (*mockDraftRepo)(nil)

type mockPublisher struct {
	postFn    func(ctx context.Context, text, token, tokenSecret string) error
	postCalls int
}

func (m *mockPublisher) PostStatus(ctx context.Context, text, token, tokenSecret string) error {
	m.postCalls++
	if m.postFn != nil {
		return m.postFn(ctx, text, token, tokenSecret)
	}
	return nil
}

type mockMailer struct {
	sendFn    func(recipientEmail, subject, bodyHTML string) error
	sendCalls int
}

func (m *mockMailer) Send(recipientEmail, subject, bodyHTML string) error {
	m.sendCalls++
	if m.sendFn != nil {
		return m.sendFn(recipientEmail, subject, bodyHTML)
	}
	return nil
}

type mockCollector struct {
	publishOK   int
	publishFail map[string]int
	mailSent    map[string]int
	mailFail    map[string]int
}

func newMockCollector() *mockCollector {
	return &mockCollector{
		publishFail: map[string]int{},
		mailSent:    map[string]int{},
		mailFail:    map[string]int{},
	}
}

func (m *mockCollector) RecordDraftCreated()                       {}
func (m *mockCollector) RecordFallbackGeneration()                 {}
func (m *mockCollector) RecordPublishSuccess()                     { m.publishOK++ }
func (m *mockCollector) RecordPublishFailure(reason string)        { m.publishFail[reason]++ }
func (m *mockCollector) RecordMailSent(kind string)                { m.mailSent[kind]++ }
func (m *mockCollector) RecordMailFailure(kind string)             { m.mailFail[kind]++ }
func (m *mockCollector) RecordBatchDuration(duration time.Duration) {}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testRenderer(t *testing.T) *mailer.Renderer {
	t.Helper()
	r, err := mailer.NewRenderer("http://example.com")
	if err != nil {
		t.Fatalf("failed to build renderer: %v", err)
	}
	return r
}

func pendingTarget() *model.ConfirmationTarget {
	return &model.ConfirmationTarget{
		Draft: model.Draft{
			ID:                "draft-1",
			UserID:            "user-1",
			GeneratedContent:  "生成されたコンテンツ",
			Status:            model.StatusPendingConfirmation,
			ConfirmationToken: "token-1",
			CreatedAt:         time.Now(),
		},
		ScreenName:       "testuser",
		UserEmail:        "user@example.com",
		UserIsActive:     true,
		OAuthToken:       "oauth-token",
		OAuthTokenSecret: "oauth-secret",
	}
}

// --- テスト ---

// 空トークンは無効トークンエラーになることを検証
func TestConfirm_EmptyToken(t *testing.T) {
	svc := NewConfirmService(&mockDraftRepo{}, &mockPublisher{}, nil, nil, newMockCollector(), testLogger())

	_, err := svc.Confirm(context.Background(), "")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidToken {
		t.Fatalf("expected INVALID_TOKEN error, got %v", err)
	}
}

// 存在しないトークンは無効トークンエラーになることを検証
func TestConfirm_UnknownToken(t *testing.T) {
	repo := &mockDraftRepo{
		findFn: func(ctx context.Context, token string) (*model.ConfirmationTarget, error) {
			return nil, nil
		},
	}
	pub := &mockPublisher{}
	svc := NewConfirmService(repo, pub, nil, nil, newMockCollector(), testLogger())

	_, err := svc.Confirm(context.Background(), "no-such-token")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidToken {
		t.Fatalf("expected INVALID_TOKEN error, got %v", err)
	}
	if pub.postCalls != 0 {
		t.Errorf("publisher should not be called, got %d calls", pub.postCalls)
	}
}

// 処理済みドラフトへの再確認は遷移せず通知のみ返すことを検証
func TestConfirm_AlreadyProcessed(t *testing.T) {
	for _, status := range []model.DraftStatus{
		model.StatusPosted,
		model.StatusFailedToPost,
		model.StatusFailedUserInactive,
	} {
		t.Run(string(status), func(t *testing.T) {
			target := pendingTarget()
			target.Status = status

			transitions := 0
			repo := &mockDraftRepo{
				findFn: func(ctx context.Context, token string) (*model.ConfirmationTarget, error) {
					return target, nil
				},
				transitionFn: func(ctx context.Context, draftID string, s model.DraftStatus, postedAt *time.Time) (bool, error) {
					transitions++
					return true, nil
				},
			}
			pub := &mockPublisher{}
			svc := NewConfirmService(repo, pub, nil, nil, newMockCollector(), testLogger())

			_, err := svc.Confirm(context.Background(), "token-1")

			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeAlreadyProcessed {
				t.Fatalf("expected ALREADY_PROCESSED error, got %v", err)
			}
			if !strings.Contains(apiErr.Message, string(status)) {
				t.Errorf("message should include current status %q: %q", status, apiErr.Message)
			}
			if transitions != 0 {
				t.Errorf("terminal state must not transition, got %d transitions", transitions)
			}
			if pub.postCalls != 0 {
				t.Errorf("publisher should not be called, got %d calls", pub.postCalls)
			}
		})
	}
}

// 非アクティブユーザーのドラフトはfailed_user_inactiveへ遷移し投稿しないことを検証
func TestConfirm_InactiveUser(t *testing.T) {
	target := pendingTarget()
	target.UserIsActive = false

	var gotStatus model.DraftStatus
	repo := &mockDraftRepo{
		findFn: func(ctx context.Context, token string) (*model.ConfirmationTarget, error) {
			return target, nil
		},
		transitionFn: func(ctx context.Context, draftID string, s model.DraftStatus, postedAt *time.Time) (bool, error) {
			gotStatus = s
			if postedAt != nil {
				t.Error("postedAt must be nil for failure transition")
			}
			return true, nil
		},
	}
	pub := &mockPublisher{}
	svc := NewConfirmService(repo, pub, nil, nil, newMockCollector(), testLogger())

	_, err := svc.Confirm(context.Background(), "token-1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserInactive {
		t.Fatalf("expected USER_INACTIVE error, got %v", err)
	}
	if gotStatus != model.StatusFailedUserInactive {
		t.Errorf("transition status = %q, want %q", gotStatus, model.StatusFailedUserInactive)
	}
	if pub.postCalls != 0 {
		t.Errorf("publisher should not be called for inactive user, got %d calls", pub.postCalls)
	}
}

// 投稿成功でposted遷移・成功メトリクス・完了メールを検証
func TestConfirm_Success(t *testing.T) {
	target := pendingTarget()

	var gotStatus model.DraftStatus
	var gotPostedAt *time.Time
	repo := &mockDraftRepo{
		findFn: func(ctx context.Context, token string) (*model.ConfirmationTarget, error) {
			return target, nil
		},
		transitionFn: func(ctx context.Context, draftID string, s model.DraftStatus, postedAt *time.Time) (bool, error) {
			gotStatus = s
			gotPostedAt = postedAt
			return true, nil
		},
	}
	pub := &mockPublisher{
		postFn: func(ctx context.Context, text, token, tokenSecret string) error {
			if text != target.GeneratedContent {
				t.Errorf("posted text = %q, want %q", text, target.GeneratedContent)
			}
			if token != "oauth-token" || tokenSecret != "oauth-secret" {
				t.Errorf("unexpected credentials: %q / %q", token, tokenSecret)
			}
			return nil
		},
	}
	mail := &mockMailer{}
	collector := newMockCollector()
	svc := NewConfirmService(repo, pub, mail, testRenderer(t), collector, testLogger())

	draft, err := svc.Confirm(context.Background(), "token-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if draft.Status != model.StatusPosted {
		t.Errorf("draft.Status = %q, want %q", draft.Status, model.StatusPosted)
	}
	if draft.PostedAt == nil {
		t.Error("draft.PostedAt should be set")
	}
	if gotStatus != model.StatusPosted {
		t.Errorf("transition status = %q, want %q", gotStatus, model.StatusPosted)
	}
	if gotPostedAt == nil {
		t.Error("transition postedAt should be set")
	}
	if collector.publishOK != 1 {
		t.Errorf("publish success count = %d, want 1", collector.publishOK)
	}
	if mail.sendCalls != 1 {
		t.Errorf("posted mail should be sent once, got %d", mail.sendCalls)
	}
}

// 完了メールの失敗がposted遷移を覆さないことを検証
func TestConfirm_Success_MailFailureIsNonFatal(t *testing.T) {
	target := pendingTarget()
	repo := &mockDraftRepo{
		findFn: func(ctx context.Context, token string) (*model.ConfirmationTarget, error) {
			return target, nil
		},
	}
	mail := &mockMailer{
		sendFn: func(recipientEmail, subject, bodyHTML string) error {
			return fmt.Errorf("smtp unavailable")
		},
	}
	collector := newMockCollector()
	svc := NewConfirmService(repo, &mockPublisher{}, mail, testRenderer(t), collector, testLogger())

	draft, err := svc.Confirm(context.Background(), "token-1")
	if err != nil {
		t.Fatalf("mail failure must not fail confirmation: %v", err)
	}
	if draft.Status != model.StatusPosted {
		t.Errorf("draft.Status = %q, want %q", draft.Status, model.StatusPosted)
	}
	if collector.mailFail["posted"] != 1 {
		t.Errorf("mail failure count = %d, want 1", collector.mailFail["posted"])
	}
}

// 投稿失敗でfailed_to_post遷移とPOST_FAILEDエラーを検証
func TestConfirm_PublishFailure(t *testing.T) {
	target := pendingTarget()

	var gotStatus model.DraftStatus
	repo := &mockDraftRepo{
		findFn: func(ctx context.Context, token string) (*model.ConfirmationTarget, error) {
			return target, nil
		},
		transitionFn: func(ctx context.Context, draftID string, s model.DraftStatus, postedAt *time.Time) (bool, error) {
			gotStatus = s
			return true, nil
		},
	}
	pub := &mockPublisher{
		postFn: func(ctx context.Context, text, token, tokenSecret string) error {
			return fmt.Errorf("post failed with status 503 Service Unavailable: upstream maintenance window")
		},
	}
	collector := newMockCollector()
	svc := NewConfirmService(repo, pub, nil, nil, collector, testLogger())

	_, err := svc.Confirm(context.Background(), "token-1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodePostFailed {
		t.Fatalf("expected POST_FAILED error, got %v", err)
	}
	// 失敗理由の原文がそのままメッセージに含まれること
	if !strings.Contains(apiErr.Message, "503 Service Unavailable: upstream maintenance window") {
		t.Errorf("message should surface the raw publish error: %q", apiErr.Message)
	}
	if gotStatus != model.StatusFailedToPost {
		t.Errorf("transition status = %q, want %q", gotStatus, model.StatusFailedToPost)
	}
	if collector.publishFail["error"] != 1 {
		t.Errorf("publish failure count = %d, want 1", collector.publishFail["error"])
	}
}

// 権限起因の投稿失敗はPOST_FORBIDDENに分類されることを検証
func TestConfirm_PublishForbidden(t *testing.T) {
	target := pendingTarget()
	repo := &mockDraftRepo{
		findFn: func(ctx context.Context, token string) (*model.ConfirmationTarget, error) {
			return target, nil
		},
	}
	pub := &mockPublisher{
		postFn: func(ctx context.Context, text, token, tokenSecret string) error {
			return fmt.Errorf("post failed with status 403 Forbidden: You are not permitted to perform this action")
		},
	}
	collector := newMockCollector()
	svc := NewConfirmService(repo, pub, nil, nil, collector, testLogger())

	_, err := svc.Confirm(context.Background(), "token-1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodePostForbidden {
		t.Fatalf("expected POST_FORBIDDEN error, got %v", err)
	}
	if !strings.Contains(apiErr.Message, "not permitted to perform this action") {
		t.Errorf("message should surface the raw publish error: %q", apiErr.Message)
	}
	if !strings.Contains(apiErr.Action, "Read and Write") {
		t.Errorf("action should mention app permissions: %q", apiErr.Action)
	}
	if collector.publishFail["forbidden"] != 1 {
		t.Errorf("forbidden failure count = %d, want 1", collector.publishFail["forbidden"])
	}
}

// 遷移の敗者は処理済み通知を受け取ることを検証
func TestConfirm_LostRaceAfterPublish(t *testing.T) {
	target := pendingTarget()

	calls := 0
	repo := &mockDraftRepo{
		findFn: func(ctx context.Context, token string) (*model.ConfirmationTarget, error) {
			calls++
			if calls == 1 {
				return target, nil
			}
			// 再読み込みでは勝者が遷移済み
			posted := *target
			posted.Status = model.StatusPosted
			return &posted, nil
		},
		transitionFn: func(ctx context.Context, draftID string, s model.DraftStatus, postedAt *time.Time) (bool, error) {
			return false, nil
		},
	}
	collector := newMockCollector()
	svc := NewConfirmService(repo, &mockPublisher{}, nil, nil, collector, testLogger())

	_, err := svc.Confirm(context.Background(), "token-1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeAlreadyProcessed {
		t.Fatalf("expected ALREADY_PROCESSED error, got %v", err)
	}
	if !strings.Contains(apiErr.Message, string(model.StatusPosted)) {
		t.Errorf("message should report the winner's state: %q", apiErr.Message)
	}
	if collector.publishOK != 0 {
		t.Errorf("loser must not record publish success, got %d", collector.publishOK)
	}
}

// リポジトリエラーはAPIErrorではなく内部エラーとして返ることを検証
func TestConfirm_RepositoryError(t *testing.T) {
	repo := &mockDraftRepo{
		findFn: func(ctx context.Context, token string) (*model.ConfirmationTarget, error) {
			return nil, fmt.Errorf("connection refused")
		},
	}
	svc := NewConfirmService(repo, &mockPublisher{}, nil, nil, newMockCollector(), testLogger())

	_, err := svc.Confirm(context.Background(), "token-1")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Fatalf("infrastructure error must not be an APIError: %v", err)
	}
}
