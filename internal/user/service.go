// Package user はユーザー設定と履歴参照のビジネスロジックを提供する。
package user

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hitoshi/autopost/internal/model"
	"github.com/hitoshi/autopost/internal/repository"
)

// emailPattern は通知先メールアドレスの形式チェック。
// 厳密なRFC準拠は狙わず、明らかな入力ミスだけを弾く。
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// maxTopics は1ユーザーが設定できるトピック数の上限。
const maxTopics = 10

// maxTopicLength は1トピックの最大文字数。
const maxTopicLength = 100

// Service はユーザー設定に関するビジネスロジックを提供する。
type Service struct {
	userRepo  repository.UserRepository
	draftRepo repository.DraftRepository
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, draftRepo repository.DraftRepository) *Service {
	return &Service{
		userRepo:  userRepo,
		draftRepo: draftRepo,
	}
}

// Settings は更新リクエストの内容を表す。
// nilのフィールドは変更しない。
type Settings struct {
	Email  *string
	Topics *[]string
}

// UpdateSettings はメールアドレスとトピックリストを更新する。
// 検証に失敗した場合は何も変更せず*model.APIErrorを返す。
func (s *Service) UpdateSettings(ctx context.Context, userID string, settings Settings) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	var email string
	if settings.Email != nil {
		email = strings.TrimSpace(*settings.Email)
		if email != "" && !emailPattern.MatchString(email) {
			return nil, model.NewInvalidEmailError()
		}
	}

	var topics []string
	if settings.Topics != nil {
		topics, err = normalizeTopics(*settings.Topics)
		if err != nil {
			return nil, err
		}
	}

	if settings.Email != nil {
		if err := s.userRepo.UpdateEmail(ctx, userID, email); err != nil {
			return nil, fmt.Errorf("failed to update email: %w", err)
		}
		user.Email = email
	}

	if settings.Topics != nil {
		if err := s.userRepo.UpdateTopics(ctx, userID, topics); err != nil {
			return nil, fmt.Errorf("failed to update topics: %w", err)
		}
		user.Topics = topics
	}

	return user, nil
}

// History はユーザーの生成コンテンツ履歴を取得する。
func (s *Service) History(ctx context.Context, userID string, limit int) ([]*model.Draft, error) {
	drafts, err := s.draftRepo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	return drafts, nil
}

// normalizeTopics はトピックリストを検証・正規化する。
// 空白のみの要素は除去し、残りは前後の空白を落とす。
func normalizeTopics(topics []string) ([]string, error) {
	normalized := make([]string, 0, len(topics))
	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		if len([]rune(topic)) > maxTopicLength {
			return nil, model.NewInvalidRequestError("トピックが長すぎます")
		}
		normalized = append(normalized, topic)
	}
	if len(normalized) > maxTopics {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("トピックは%d件までです", maxTopics))
	}
	return normalized, nil
}
