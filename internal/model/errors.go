// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, publish, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidToken     = "INVALID_TOKEN"
	ErrCodeAlreadyProcessed = "ALREADY_PROCESSED"
	ErrCodeUserInactive     = "USER_INACTIVE"
	ErrCodePostFailed       = "POST_FAILED"
	ErrCodePostForbidden    = "POST_FORBIDDEN"
	ErrCodeInvalidEmail     = "INVALID_EMAIL"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeUserNotFound     = "USER_NOT_FOUND"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
)

// NewInvalidTokenError は無効または期限切れの確認トークンエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "無効または期限切れの確認リンクです。",
		Category: "validation",
		Action:   "最新の確認メールに記載されたリンクを使用してください。",
	}
}

// NewAlreadyProcessedError は処理済みドラフトへの再確認を通知するエラーを生成する。
// エラー扱いではなく情報提供であり、状態遷移は発生しない。
func NewAlreadyProcessedError(status DraftStatus) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyProcessed,
		Message:  fmt.Sprintf("このコンテンツは既に処理済みです（状態: %s）。", status),
		Category: "publish",
		Action:   "新しいコンテンツの確認メールをお待ちください。",
	}
}

// NewUserInactiveError は所有ユーザーが非アクティブな場合のエラーを生成する。
func NewUserInactiveError() *APIError {
	return &APIError{
		Code:     ErrCodeUserInactive,
		Message:  "関連付けられたTwitterアカウントは連携解除されています。",
		Category: "auth",
		Action:   "Twitterアカウントを再連携してから、新しい確認メールをお待ちください。",
	}
}

// NewPostForbiddenError は投稿権限エラーを生成する。
// Twitter App側の権限設定に起因することが多いため、対処方法を具体的に示す。
func NewPostForbiddenError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodePostForbidden,
		Message:  fmt.Sprintf("投稿に失敗しました: %s", reason),
		Category: "publish",
		Action: "Twitter Developer PortalでアプリのRead and Write権限を確認してください。" +
			"権限を変更した場合はアクセストークンの再発行と再連携が必要です。",
	}
}

// NewPostFailedError は一般的な投稿失敗エラーを生成する。
func NewPostFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodePostFailed,
		Message:  fmt.Sprintf("投稿に失敗しました: %s", reason),
		Category: "publish",
		Action:   "しばらく待ってから、次の確認メールで再度お試しください。",
	}
}

// NewInvalidEmailError は無効なメールアドレス形式エラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  "無効なメールアドレス形式です。",
		Category: "validation",
		Action:   "name@example.com の形式でメールアドレスを入力してください。",
	}
}

// NewInvalidRequestError は不正なリクエストエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("不正なリクエストです: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewUnauthorizedError は未認証リクエストのエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}
