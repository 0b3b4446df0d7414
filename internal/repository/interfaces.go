// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/autopost/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByTwitterID はTwitterアカウントIDでユーザーを検索する。見つからない場合はnilを返す。
	FindByTwitterID(ctx context.Context, twitterID string) (*model.User, error)

	// Upsert はOAuth完了時のユーザー作成・更新を行う。
	// 既存ユーザーの場合は認証情報とscreen_nameを更新しis_activeをtrueに戻す。
	// トピックとメールは明示的に変更されない限り保持する。
	// 作成・更新後のユーザーを返す。
	Upsert(ctx context.Context, user *model.User) (*model.User, error)

	// UpdateEmail は通知メールアドレスを更新する。空文字はNULLとして保存する。
	UpdateEmail(ctx context.Context, userID, email string) error

	// UpdateTopics はトピックリストを更新する。
	UpdateTopics(ctx context.Context, userID string, topics []string) error

	// SetActive はアクティブフラグを更新する（連携解除時のソフトデリート）。
	SetActive(ctx context.Context, userID string, isActive bool) error

	// ListEligible はバッチ対象ユーザーを取得する。
	// アクティブかつトピックリストが空でないユーザーのみを返す。順序は不定。
	ListEligible(ctx context.Context) ([]*model.User, error)
}

// DraftRepository は生成コンテンツ履歴の永続化インターフェース。
type DraftRepository interface {
	// Create はドラフトを1回のINSERTで作成する。
	Create(ctx context.Context, draft *model.Draft) error

	// FindByToken は確認トークンでドラフトを検索する。
	// 確認ハンドラーが1回の読み取りで判断できるよう、所有ユーザーの
	// アクティブフラグ・メール・認証情報をJOINして返す。
	// 見つからない場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.ConfirmationTarget, error)

	// TransitionFromPending はpending_confirmation状態からの条件付き遷移を行う。
	// 書き込み時点でpending_confirmationでなくなっていた場合はfalseを返し、
	// 状態を変更しない。同一トークンへの並行確認リクエストのうち
	// 勝者のみがtrueを受け取る。
	TransitionFromPending(ctx context.Context, draftID string, status model.DraftStatus, postedAt *time.Time) (bool, error)

	// ListByUser はユーザーのドラフト履歴を作成日時降順で取得する。
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.Draft, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}
