package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/autopost/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, twitter_id, screen_name, oauth_token, oauth_token_secret,
	COALESCE(email, ''), topics, is_active, created_at, updated_at`

// scanUser は1行をmodel.Userに読み込む。
func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	user := &model.User{}
	var topicsJSON string
	err := row.Scan(
		&user.ID, &user.TwitterID, &user.ScreenName,
		&user.OAuthToken, &user.OAuthTokenSecret,
		&user.Email, &topicsJSON, &user.IsActive,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(topicsJSON), &user.Topics); err != nil {
		return nil, fmt.Errorf("failed to decode topics: %w", err)
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByTwitterID はTwitterアカウントIDでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByTwitterID(ctx context.Context, twitterID string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE twitter_id = $1`, twitterID)

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by twitter ID: %w", err)
	}
	return user, nil
}

// Upsert はOAuth完了時のユーザー作成・更新を行う。
// 既存ユーザーの場合は認証情報とscreen_nameを更新しis_activeをtrueに戻す。
// トピックとメールは保持する（メールはuser.Emailが非空の場合のみ上書き）。
func (r *PostgresUserRepo) Upsert(ctx context.Context, user *model.User) (*model.User, error) {
	topicsJSON, err := json.Marshal(user.Topics)
	if err != nil {
		return nil, fmt.Errorf("failed to encode topics: %w", err)
	}
	if user.Topics == nil {
		topicsJSON = []byte("[]")
	}

	now := time.Now()
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, twitter_id, screen_name, oauth_token, oauth_token_secret, email, topics, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, TRUE, $8, $8)
		 ON CONFLICT (twitter_id) DO UPDATE SET
		   screen_name = EXCLUDED.screen_name,
		   oauth_token = EXCLUDED.oauth_token,
		   oauth_token_secret = EXCLUDED.oauth_token_secret,
		   email = COALESCE(EXCLUDED.email, users.email),
		   is_active = TRUE,
		   updated_at = EXCLUDED.updated_at
		 RETURNING `+userColumns,
		user.ID, user.TwitterID, user.ScreenName,
		user.OAuthToken, user.OAuthTokenSecret,
		user.Email, string(topicsJSON), now,
	)

	saved, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return saved, nil
}

// UpdateEmail は通知メールアドレスを更新する。空文字はNULLとして保存する。
func (r *PostgresUserRepo) UpdateEmail(ctx context.Context, userID, email string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET email = NULLIF($2, ''), updated_at = now() WHERE id = $1`,
		userID, email,
	)
	if err != nil {
		return fmt.Errorf("failed to update email: %w", err)
	}
	return nil
}

// UpdateTopics はトピックリストを更新する。
func (r *PostgresUserRepo) UpdateTopics(ctx context.Context, userID string, topics []string) error {
	if topics == nil {
		topics = []string{}
	}
	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		return fmt.Errorf("failed to encode topics: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE users SET topics = $2, updated_at = now() WHERE id = $1`,
		userID, string(topicsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to update topics: %w", err)
	}
	return nil
}

// SetActive はアクティブフラグを更新する（連携解除時のソフトデリート）。
func (r *PostgresUserRepo) SetActive(ctx context.Context, userID string, isActive bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_active = $2, updated_at = now() WHERE id = $1`,
		userID, isActive,
	)
	if err != nil {
		return fmt.Errorf("failed to set active flag: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", userID)
	}
	return nil
}

// ListEligible はバッチ対象ユーザーを取得する。
// アクティブかつトピックリストが空でないユーザーのみを返す。
func (r *PostgresUserRepo) ListEligible(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE is_active = TRUE AND topics <> '' AND topics <> '[]'`)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan eligible user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate eligible users: %w", err)
	}
	return users, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
