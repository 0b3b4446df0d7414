// Package model はドメインモデルを定義する。
package model

import "time"

// Draft は生成済みコンテンツの1レコードを表す。
// バッチステップがpending_confirmation状態で作成し、確認ステップが
// ちょうど1つの終端状態へ遷移させる。削除は行わず追記専用の履歴となる。
type Draft struct {
	ID                string
	UserID            string
	GeneratedContent  string
	Status            DraftStatus
	ConfirmationToken string // 発行後は履歴として永続保持。有効なのはpending_confirmationの間のみ
	CreatedAt         time.Time
	PostedAt          *time.Time
}

// DraftStatus はドラフトの状態を表す。
type DraftStatus string

const (
	// StatusPendingConfirmation はユーザーの確認待ち状態。唯一の非終端状態。
	StatusPendingConfirmation DraftStatus = "pending_confirmation"
	// StatusPosted は投稿成功の終端状態。
	StatusPosted DraftStatus = "posted"
	// StatusFailedToPost は投稿失敗の終端状態。
	StatusFailedToPost DraftStatus = "failed_to_post"
	// StatusFailedUserInactive は所有ユーザーが非アクティブだったことによる終端状態。
	StatusFailedUserInactive DraftStatus = "failed_user_inactive"
)

// IsTerminal は終端状態（これ以上の遷移が許されない状態）かどうかを返す。
func (s DraftStatus) IsTerminal() bool {
	switch s {
	case StatusPosted, StatusFailedToPost, StatusFailedUserInactive:
		return true
	}
	return false
}

// ConfirmationTarget は確認トークンによるドラフト検索の結果を表す。
// 確認ハンドラーが1回の読み取りで判断・実行できるよう、
// 所有ユーザーのアクティブフラグ・メール・認証情報をJOINして保持する。
type ConfirmationTarget struct {
	Draft
	ScreenName       string
	UserEmail        string
	UserIsActive     bool
	OAuthToken       string
	OAuthTokenSecret string
}
