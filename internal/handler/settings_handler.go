package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/autopost/internal/middleware"
	"github.com/hitoshi/autopost/internal/model"
	"github.com/hitoshi/autopost/internal/user"
)

// SettingsServiceInterface は設定ハンドラーが必要とするサービスインターフェース。
type SettingsServiceInterface interface {
	UpdateSettings(ctx context.Context, userID string, settings user.Settings) (*model.User, error)
	History(ctx context.Context, userID string, limit int) ([]*model.Draft, error)
}

// SettingsHandler はユーザー設定と履歴参照のHTTPハンドラー。
type SettingsHandler struct {
	service SettingsServiceInterface
}

// NewSettingsHandler はSettingsHandlerを生成する。
func NewSettingsHandler(service SettingsServiceInterface) *SettingsHandler {
	return &SettingsHandler{service: service}
}

// updateSettingsRequest は設定更新リクエストのボディ。
// 省略されたフィールドは変更しない。
type updateSettingsRequest struct {
	Email  *string   `json:"email"`
	Topics *[]string `json:"topics"`
}

// UpdateSettings はメールアドレスとトピックリストを更新する。
// PUT /api/settings
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("JSONのパースに失敗しました"))
		return
	}
	if req.Email == nil && req.Topics == nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("更新するフィールドがありません"))
		return
	}

	updated, err := h.service.UpdateSettings(r.Context(), userID, user.Settings{
		Email:  req.Email,
		Topics: req.Topics,
	})
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			status := http.StatusBadRequest
			if apiErr.Code == model.ErrCodeUserNotFound {
				status = http.StatusNotFound
			}
			middleware.WriteErrorResponse(w, status, apiErr)
			return
		}
		slog.Error("failed to update settings", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"email":  updated.Email,
		"topics": updated.Topics,
	})
}

// historyItem は履歴レスポンスの1件を表す。
type historyItem struct {
	ID               string  `json:"id"`
	GeneratedContent string  `json:"generated_content"`
	Status           string  `json:"status"`
	CreatedAt        string  `json:"created_at"`
	PostedAt         *string `json:"posted_at"`
}

// History はユーザーの生成コンテンツ履歴を返す。
// GET /api/history?limit=20
func (h *SettingsHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			middleware.WriteErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidRequestError("limitは0以上の整数で指定してください"))
			return
		}
	}

	drafts, err := h.service.History(r.Context(), userID, limit)
	if err != nil {
		slog.Error("failed to list history", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	items := make([]historyItem, 0, len(drafts))
	for _, d := range drafts {
		item := historyItem{
			ID:               d.ID,
			GeneratedContent: d.GeneratedContent,
			Status:           string(d.Status),
			CreatedAt:        d.CreatedAt.Format(timeFormat),
		}
		if d.PostedAt != nil {
			posted := d.PostedAt.Format(timeFormat)
			item.PostedAt = &posted
		}
		items = append(items, item)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"history": items})
}

// timeFormat はAPIレスポンスの日時フォーマット。
const timeFormat = "2006-01-02T15:04:05Z07:00"
