package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/autopost/internal/middleware"
	"github.com/hitoshi/autopost/internal/model"
	"github.com/hitoshi/autopost/internal/worker/generate"
)

// BatchRunnerInterface はバッチハンドラーが必要とするインターフェース。
type BatchRunnerInterface interface {
	RunOnce(ctx context.Context) (*generate.BatchSummary, error)
}

// BatchHandler は生成バッチの外部トリガーを処理する。
// スケジューリングは外部cronに委ね、このエンドポイントは1パスを同期実行する。
type BatchHandler struct {
	runner BatchRunnerInterface
	secret string // 空の場合は認証なしで受け付ける
}

// NewBatchHandler はBatchHandlerを生成する。
// secretが設定されている場合、Authorization: Bearerヘッダーの一致を要求する。
func NewBatchHandler(runner BatchRunnerInterface, secret string) *BatchHandler {
	return &BatchHandler{
		runner: runner,
		secret: secret,
	}
}

// batchRunResponse はトリガーエンドポイントのレスポンス。
// 外部cronが成否と実行時刻を記録できるよう、サマリに成否フラグと
// タイムスタンプを付けて返す。
type batchRunResponse struct {
	Success   bool   `json:"success"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
	*generate.BatchSummary
}

// Run は生成バッチを1回実行し、実行サマリを返す。
// POST /api/batch/run
func (h *BatchHandler) Run(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	timestamp := time.Now().Format(time.RFC3339)
	summary, err := h.runner.RunOnce(r.Context())
	if err != nil {
		slog.Error("batch run failed", slog.String("error", err.Error()))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(batchRunResponse{
			Success:   false,
			Timestamp: timestamp,
			Error:     "batch run failed",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(batchRunResponse{
		Success:   true,
		Timestamp: timestamp,
		BatchSummary: summary,
	})
}

// authorized はトリガーシークレットを検証する。タイミング攻撃を避けるため定数時間比較を使う。
func (h *BatchHandler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return true
	}
	const prefix = "Bearer "
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, prefix) {
		return false
	}
	token := strings.TrimPrefix(authz, prefix)
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) == 1
}
