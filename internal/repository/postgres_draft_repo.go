package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/autopost/internal/model"
)

// PostgresDraftRepo はPostgreSQLを使用した生成コンテンツ履歴リポジトリ。
type PostgresDraftRepo struct {
	db *sql.DB
}

// NewPostgresDraftRepo はPostgresDraftRepoを生成する。
func NewPostgresDraftRepo(db *sql.DB) *PostgresDraftRepo {
	return &PostgresDraftRepo{db: db}
}

// Create はドラフトを1回のINSERTで作成する。
func (r *PostgresDraftRepo) Create(ctx context.Context, draft *model.Draft) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO content_history (id, user_id, generated_content, status, confirmation_token, created_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)`,
		draft.ID, draft.UserID, draft.GeneratedContent,
		string(draft.Status), draft.ConfirmationToken, draft.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert draft: %w", err)
	}
	return nil
}

// FindByToken は確認トークンでドラフトを検索する。
// 所有ユーザーのアクティブフラグ・メール・認証情報をJOINして返す。
// 見つからない場合はnilを返す。
func (r *PostgresDraftRepo) FindByToken(ctx context.Context, token string) (*model.ConfirmationTarget, error) {
	target := &model.ConfirmationTarget{}
	var status string
	var postedAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT h.id, h.user_id, h.generated_content, h.status,
		        COALESCE(h.confirmation_token, ''), h.created_at, h.posted_at,
		        u.screen_name, COALESCE(u.email, ''), u.is_active,
		        u.oauth_token, u.oauth_token_secret
		 FROM content_history h
		 JOIN users u ON h.user_id = u.id
		 WHERE h.confirmation_token = $1`,
		token,
	).Scan(
		&target.ID, &target.UserID, &target.GeneratedContent, &status,
		&target.ConfirmationToken, &target.CreatedAt, &postedAt,
		&target.ScreenName, &target.UserEmail, &target.UserIsActive,
		&target.OAuthToken, &target.OAuthTokenSecret,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find draft by token: %w", err)
	}

	target.Status = model.DraftStatus(status)
	if postedAt.Valid {
		target.PostedAt = &postedAt.Time
	}
	return target, nil
}

// TransitionFromPending はpending_confirmation状態からの条件付き遷移を行う。
// WHERE句で現在の状態を検証するため、並行する確認リクエストのうち
// 1つだけが遷移に成功する。敗者はfalseを受け取り状態は変化しない。
func (r *PostgresDraftRepo) TransitionFromPending(ctx context.Context, draftID string, status model.DraftStatus, postedAt *time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE content_history SET status = $2, posted_at = $3
		 WHERE id = $1 AND status = $4`,
		draftID, string(status), postedAt, string(model.StatusPendingConfirmation),
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition draft: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// ListByUser はユーザーのドラフト履歴を作成日時降順で取得する。
func (r *PostgresDraftRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Draft, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, generated_content, status,
		        COALESCE(confirmation_token, ''), created_at, posted_at
		 FROM content_history
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	defer rows.Close()

	var drafts []*model.Draft
	for rows.Next() {
		draft := &model.Draft{}
		var status string
		var postedAt sql.NullTime
		if err := rows.Scan(
			&draft.ID, &draft.UserID, &draft.GeneratedContent, &status,
			&draft.ConfirmationToken, &draft.CreatedAt, &postedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan draft: %w", err)
		}
		draft.Status = model.DraftStatus(status)
		if postedAt.Valid {
			draft.PostedAt = &postedAt.Time
		}
		drafts = append(drafts, draft)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate drafts: %w", err)
	}
	return drafts, nil
}

// compile-time interface check
var _ DraftRepository = (*PostgresDraftRepo)(nil)
