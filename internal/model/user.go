// Package model はドメインモデルを定義する。
package model

import "time"

// User はTwitter連携済みのサービス利用ユーザーを表す。
// OAuth完了時に作成され、切断時はIsActiveをfalseにするソフトデリートを行う
// （行は投稿履歴のために保持する）。
type User struct {
	ID               string
	TwitterID        string // Twitter側の安定したアカウントID
	ScreenName       string
	OAuthToken       string // ユーザー代理投稿用のアクセストークン
	OAuthTokenSecret string
	Email            string   // 通知メールアドレス（未設定の場合は空文字）
	Topics           []string // 興味トピック（順序保持）
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasEmail は通知メールアドレスが設定されているかを返す。
func (u *User) HasEmail() bool {
	return u.Email != ""
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
