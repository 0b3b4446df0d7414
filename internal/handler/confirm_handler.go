package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/autopost/internal/middleware"
	"github.com/hitoshi/autopost/internal/model"
)

// ConfirmServiceInterface は確認ハンドラーが必要とするサービスインターフェース。
type ConfirmServiceInterface interface {
	Confirm(ctx context.Context, token string) (*model.Draft, error)
}

// ConfirmHandler は確認リンクのHTTPハンドラー。
// メールのリンクから直接開かれるため、結果はJSONではなく
// フロントエンドへのリダイレクトにメッセージを載せて返す。
type ConfirmHandler struct {
	service ConfirmServiceInterface
	baseURL string
}

// NewConfirmHandler はConfirmHandlerを生成する。
func NewConfirmHandler(service ConfirmServiceInterface, baseURL string) *ConfirmHandler {
	return &ConfirmHandler{
		service: service,
		baseURL: baseURL,
	}
}

// Confirm は確認トークンを処理し、結果メッセージ付きでリダイレクトする。
// GET /confirm-tweet/{token}
func (h *ConfirmHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	_, err := h.service.Confirm(r.Context(), token)
	if err == nil {
		redirectWithFlash(w, r, h.baseURL, "投稿が完了しました。", "success")
		return
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		slog.Error("confirmation failed", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	message := apiErr.Message
	if apiErr.Code == model.ErrCodePostForbidden && apiErr.Action != "" {
		// 権限エラーは原因だけでは対処できないため、対処方法まで表示する
		message = message + " " + apiErr.Action
	}
	redirectWithFlash(w, r, h.baseURL, message, flashCategory(apiErr.Code))
}

// flashCategory はエラーコードをフロントエンドの表示カテゴリに対応付ける。
func flashCategory(code string) string {
	switch code {
	case model.ErrCodeAlreadyProcessed:
		return "info"
	case model.ErrCodeUserInactive:
		return "warning"
	default:
		return "danger"
	}
}

// redirectWithFlash はメッセージとカテゴリをクエリパラメータに載せてリダイレクトする。
func redirectWithFlash(w http.ResponseWriter, r *http.Request, baseURL, message, category string) {
	params := url.Values{
		"message":  {message},
		"category": {category},
	}
	http.Redirect(w, r, baseURL+"/?"+params.Encode(), http.StatusSeeOther)
}
