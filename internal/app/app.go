// Package app はアプリケーションの起動と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/autopost/internal/auth"
	"github.com/hitoshi/autopost/internal/config"
	"github.com/hitoshi/autopost/internal/content"
	"github.com/hitoshi/autopost/internal/database"
	"github.com/hitoshi/autopost/internal/handler"
	"github.com/hitoshi/autopost/internal/lifecycle"
	"github.com/hitoshi/autopost/internal/logger"
	"github.com/hitoshi/autopost/internal/mailer"
	"github.com/hitoshi/autopost/internal/metrics"
	"github.com/hitoshi/autopost/internal/middleware"
	"github.com/hitoshi/autopost/internal/repository"
	"github.com/hitoshi/autopost/internal/twitter"
	"github.com/hitoshi/autopost/internal/user"
	"github.com/hitoshi/autopost/internal/worker/generate"
	"golang.org/x/time/rate"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandBatch:
		return runBatch(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// components はserve/batchの両モードで共有する依存関係の束。
type components struct {
	userRepo  *repository.PostgresUserRepo
	draftRepo *repository.PostgresDraftRepo
	collector *metrics.Collector
	registry  *prometheus.Registry
	generator *content.Generator
	mail      mailer.Mailer
	renderer  *mailer.Renderer
	runner    *generate.Runner
}

// buildComponents は生成バッチ周辺の依存関係をワイヤリングする。
// GEMINI_API_KEYが未設定の場合はフォールバック生成のみで動作し、
// SMTP設定が無い場合はメール通知をスキップする。
func buildComponents(cfg *config.Config, db *sql.DB) (*components, error) {
	c := &components{
		userRepo:  repository.NewPostgresUserRepo(db),
		draftRepo: repository.NewPostgresDraftRepo(db),
		registry:  prometheus.NewRegistry(),
	}
	c.collector = metrics.NewCollector(c.registry)

	var provider content.TextProvider
	if cfg.GeminiAPIKey != "" {
		provider = content.NewGeminiProvider(content.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
		}, &http.Client{Timeout: cfg.GenerateTimeout})
	} else {
		slog.Warn("GEMINI_API_KEY not set, running with fallback generation only")
	}
	c.generator = content.NewGenerator(provider, slog.Default(), cfg.GenerateTimeout)

	if cfg.MailConfigured() {
		c.mail = mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Sender:   cfg.SMTPSender,
			Password: cfg.SMTPPassword,
		})
		renderer, err := mailer.NewRenderer(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to build mail renderer: %w", err)
		}
		c.renderer = renderer
	} else {
		slog.Warn("SMTP not configured, mail notifications are disabled")
	}

	c.runner = generate.NewRunner(
		c.userRepo, c.draftRepo, c.generator, lifecycle.UUIDTokenIssuer{},
		c.mail, c.renderer, c.collector, slog.Default(), 0,
	)

	return c, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. 共有コンポーネントとリポジトリの初期化
	c, err := buildComponents(cfg, db)
	if err != nil {
		return err
	}
	sessionRepo := repository.NewPostgresSessionRepo(db)

	// 3. ドメインサービスの初期化
	twitterClient := twitter.NewClient(twitter.ClientConfig{
		ConsumerKey:    cfg.TwitterAPIKey,
		ConsumerSecret: cfg.TwitterAPISecret,
		Timeout:        cfg.PublishTimeout,
	})
	oauthProvider := auth.NewTwitterOAuthProvider(auth.TwitterOAuthConfig{
		ConsumerKey:    cfg.TwitterAPIKey,
		ConsumerSecret: cfg.TwitterAPISecret,
		CallbackURL:    cfg.TwitterCallbackURL,
	})
	authService := auth.NewService(
		oauthProvider, twitterClient, c.userRepo, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	confirmService := lifecycle.NewConfirmService(
		c.draftRepo, twitterClient, c.mail, c.renderer, c.collector, slog.Default(),
	)

	settingsService := user.NewService(c.userRepo, c.draftRepo)

	// 4. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		// configのRateLimitGeneralはreq/min単位なのでreq/secに変換する
		rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		ConfirmService: confirmService,

		BatchRunner:        c.runner,
		BatchTriggerSecret: cfg.BatchTriggerSecret,

		SettingsService: settingsService,

		DB:                 db,
		PrometheusGatherer: c.registry,
	}

	router := handler.NewRouter(deps)

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // 確認処理は外部APIの応答を同期で待つ
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runBatch は生成バッチを1回実行して終了する。
// 常駐せず、スケジューリングは外部cronに委ねる。
// SIGINT/SIGTERMを受信した場合は進行中のパスをキャンセルする。
func runBatch(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (batch)")

	c, err := buildComponents(cfg, db)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		slog.Info("shutting down batch...")
		cancel()
	}()

	summary, err := c.runner.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("batch run failed: %w", err)
	}

	slog.Info("batch finished",
		slog.Int("eligible_users", summary.EligibleUsers),
		slog.Int("drafts_created", summary.DraftsCreated),
		slog.Int("mails_sent", summary.MailsSent),
		slog.Int("failures", summary.Failures),
	)
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
