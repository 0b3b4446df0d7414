package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/autopost/internal/metrics"
	"github.com/hitoshi/autopost/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 確認
	ConfirmService ConfirmServiceInterface

	// バッチトリガー
	BatchRunner        BatchRunnerInterface
	BatchTriggerSecret string

	// 設定・履歴
	SettingsService SettingsServiceInterface

	// ヘルスチェックとメトリクス
	DB                 Pinger
	PrometheusGatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → (Session → RateLimit)
//
// 確認エンドポイントはメールのリンクから認証なしで開かれるため、
// セッションミドルウェアの外に置き、IPベースのレート制限だけを掛ける。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	confirmHandler := NewConfirmHandler(deps.ConfirmService, deps.AuthConfig.BaseURL)
	batchHandler := NewBatchHandler(deps.BatchRunner, deps.BatchTriggerSecret)
	settingsHandler := NewSettingsHandler(deps.SettingsService)
	healthHandler := NewHealthHandler(deps.DB)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler.Health)
	if deps.PrometheusGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.PrometheusGatherer))
	}

	r.Route("/auth", func(r chi.Router) {
		r.Get("/twitter/login", authHandler.Login)
		r.Get("/twitter/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// 確認リンク（IPベースのレート制限のみ）
	r.With(deps.RateLimiter.ConfirmMiddleware()).
		Get("/confirm-tweet/{token}", confirmHandler.Confirm)

	// バッチトリガー（Bearerシークレットで保護。外部cronから呼ばれる）
	r.Post("/api/batch/run", batchHandler.Run)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Put("/api/settings", settingsHandler.UpdateSettings)
		r.Get("/api/history", settingsHandler.History)
		r.Post("/auth/disconnect", authHandler.Disconnect)
	})

	return r
}
