package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/autopost/internal/model"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn     func(ctx context.Context, id string) (*model.User, error)
	updateEmailFn  func(ctx context.Context, userID, email string) error
	updateTopicsFn func(ctx context.Context, userID string, topics []string) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return &model.User{ID: id, ScreenName: "testuser", IsActive: true}, nil
}

func (m *mockUserRepo) FindByTwitterID(_ context.Context, _ string) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) Upsert(_ context.Context, user *model.User) (*model.User, error) {
	return user, nil
}

func (m *mockUserRepo) UpdateEmail(ctx context.Context, userID, email string) error {
	if m.updateEmailFn != nil {
		return m.updateEmailFn(ctx, userID, email)
	}
	return nil
}

func (m *mockUserRepo) UpdateTopics(ctx context.Context, userID string, topics []string) error {
	if m.updateTopicsFn != nil {
		return m.updateTopicsFn(ctx, userID, topics)
	}
	return nil
}

func (m *mockUserRepo) SetActive(_ context.Context, _ string, _ bool) error { return nil }

func (m *mockUserRepo) ListEligible(_ context.Context) ([]*model.User, error) { return nil, nil }

type mockDraftRepo struct {
	listFn func(ctx context.Context, userID string, limit int) ([]*model.Draft, error)
}

func (m *mockDraftRepo) Create(_ context.Context, _ *model.Draft) error { return nil }

func (m *mockDraftRepo) FindByToken(_ context.Context, _ string) (*model.ConfirmationTarget, error) {
	return nil, nil
}

func (m *mockDraftRepo) TransitionFromPending(_ context.Context, _ string, _ model.DraftStatus, _ *time.Time) (bool, error) {
	return true, nil
}

func (m *mockDraftRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Draft, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, limit)
	}
	return nil, nil
}

func strPtr(s string) *string { return &s }

func topicsPtr(topics []string) *[]string { return &topics }

// --- テスト ---

// メールアドレスとトピックが同時に更新されることを検証
func TestUpdateSettings_UpdatesBoth(t *testing.T) {
	var gotEmail string
	var gotTopics []string

	repo := &mockUserRepo{
		updateEmailFn: func(ctx context.Context, userID, email string) error {
			gotEmail = email
			return nil
		},
		updateTopicsFn: func(ctx context.Context, userID string, topics []string) error {
			gotTopics = topics
			return nil
		},
	}
	svc := NewService(repo, &mockDraftRepo{})

	updated, err := svc.UpdateSettings(context.Background(), "user-1", Settings{
		Email:  strPtr("user@example.com"),
		Topics: topicsPtr([]string{"Go", "分散システム"}),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotEmail != "user@example.com" {
		t.Errorf("email = %q, want %q", gotEmail, "user@example.com")
	}
	if len(gotTopics) != 2 {
		t.Errorf("topics = %v", gotTopics)
	}
	if updated.Email != "user@example.com" {
		t.Errorf("returned user email = %q", updated.Email)
	}
}

// 無効なメールアドレス形式が拒否されることを検証
func TestUpdateSettings_InvalidEmail(t *testing.T) {
	invalid := []string{
		"not-an-email",
		"missing@domain",
		"@example.com",
		"spaces in@example.com",
		"user@ example.com",
	}

	for _, email := range invalid {
		t.Run(email, func(t *testing.T) {
			repo := &mockUserRepo{
				updateEmailFn: func(ctx context.Context, userID, e string) error {
					t.Errorf("invalid email must not be persisted: %q", e)
					return nil
				},
			}
			svc := NewService(repo, &mockDraftRepo{})

			_, err := svc.UpdateSettings(context.Background(), "user-1", Settings{Email: strPtr(email)})

			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidEmail {
				t.Fatalf("expected INVALID_EMAIL error, got %v", err)
			}
		})
	}
}

// 空文字のメールは通知解除として許可されることを検証
func TestUpdateSettings_EmptyEmailClears(t *testing.T) {
	var gotEmail string
	called := false
	repo := &mockUserRepo{
		updateEmailFn: func(ctx context.Context, userID, email string) error {
			called = true
			gotEmail = email
			return nil
		},
	}
	svc := NewService(repo, &mockDraftRepo{})

	if _, err := svc.UpdateSettings(context.Background(), "user-1", Settings{Email: strPtr("")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called || gotEmail != "" {
		t.Errorf("empty email should be persisted as clear, called=%v email=%q", called, gotEmail)
	}
}

// トピックの正規化（空白除去、空要素除去）を検証
func TestUpdateSettings_NormalizesTopics(t *testing.T) {
	var gotTopics []string
	repo := &mockUserRepo{
		updateTopicsFn: func(ctx context.Context, userID string, topics []string) error {
			gotTopics = topics
			return nil
		},
	}
	svc := NewService(repo, &mockDraftRepo{})

	_, err := svc.UpdateSettings(context.Background(), "user-1", Settings{
		Topics: topicsPtr([]string{"  Go  ", "", "   ", "Rust"}),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(gotTopics) != 2 || gotTopics[0] != "Go" || gotTopics[1] != "Rust" {
		t.Errorf("topics = %v, want [Go Rust]", gotTopics)
	}
}

// トピック数の上限超過が拒否されることを検証
func TestUpdateSettings_TooManyTopics(t *testing.T) {
	topics := make([]string, maxTopics+1)
	for i := range topics {
		topics[i] = fmt.Sprintf("topic-%d", i)
	}
	svc := NewService(&mockUserRepo{}, &mockDraftRepo{})

	_, err := svc.UpdateSettings(context.Background(), "user-1", Settings{Topics: topicsPtr(topics)})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidRequest {
		t.Fatalf("expected INVALID_REQUEST error, got %v", err)
	}
}

// 長すぎるトピックが拒否されることを検証
func TestUpdateSettings_TopicTooLong(t *testing.T) {
	svc := NewService(&mockUserRepo{}, &mockDraftRepo{})

	_, err := svc.UpdateSettings(context.Background(), "user-1", Settings{
		Topics: topicsPtr([]string{strings.Repeat("あ", maxTopicLength+1)}),
	})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidRequest {
		t.Fatalf("expected INVALID_REQUEST error, got %v", err)
	}
}

// 存在しないユーザーへの更新がUSER_NOT_FOUNDになることを検証
func TestUpdateSettings_UserNotFound(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return nil, nil
		},
	}
	svc := NewService(repo, &mockDraftRepo{})

	_, err := svc.UpdateSettings(context.Background(), "missing", Settings{Email: strPtr("a@b.co")})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Fatalf("expected USER_NOT_FOUND error, got %v", err)
	}
}

// 履歴取得がリポジトリへ委譲されることを検証
func TestHistory(t *testing.T) {
	repo := &mockDraftRepo{
		listFn: func(ctx context.Context, userID string, limit int) ([]*model.Draft, error) {
			if userID != "user-1" || limit != 10 {
				t.Errorf("unexpected args: %q %d", userID, limit)
			}
			return []*model.Draft{{ID: "d1"}, {ID: "d2"}}, nil
		},
	}
	svc := NewService(&mockUserRepo{}, repo)

	drafts, err := svc.History(context.Background(), "user-1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(drafts) != 2 {
		t.Errorf("drafts = %d, want 2", len(drafts))
	}
}
