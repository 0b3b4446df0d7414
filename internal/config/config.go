// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// 挙動を左右するトグルはすべて名前付きフィールドとしてここで解決する。
type Config struct {
	// Database
	DatabaseURL string

	// Twitter (アプリレベルのconsumer credentials)
	TwitterAPIKey      string
	TwitterAPISecret   string
	TwitterCallbackURL string

	// Generation provider
	GeminiAPIKey    string // 未設定の場合はフォールバック生成のみで動作する
	GenerateTimeout time.Duration

	// Publish
	PublishTimeout time.Duration

	// SMTP (未設定の場合はメール通知なしで動作する)
	SMTPHost     string
	SMTPPort     int
	SMTPSender   string
	SMTPPassword string

	// Batch
	BatchTriggerSecret string // 未設定の場合はトリガーエンドポイントを認証なしで公開する

	// Session
	SessionSecret string
	SessionMaxAge int

	// Rate Limit
	RateLimitGeneral int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.TwitterAPIKey = os.Getenv("TWITTER_API_KEY")
	if cfg.TwitterAPIKey == "" {
		missing = append(missing, "TWITTER_API_KEY")
	}

	cfg.TwitterAPISecret = os.Getenv("TWITTER_API_SECRET")
	if cfg.TwitterAPISecret == "" {
		missing = append(missing, "TWITTER_API_SECRET")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.TwitterCallbackURL = getEnvString("TWITTER_CALLBACK_URL", strings.TrimSuffix(cfg.BaseURL, "/")+"/auth/twitter/callback")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.GenerateTimeout = getEnvDuration("GENERATE_TIMEOUT", 30*time.Second)
	cfg.PublishTimeout = getEnvDuration("PUBLISH_TIMEOUT", 30*time.Second)
	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPSender = os.Getenv("SMTP_SENDER")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.BatchTriggerSecret = os.Getenv("BATCH_TRIGGER_SECRET")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// MailConfigured はSMTP設定が揃っているかを返す。
func (c *Config) MailConfigured() bool {
	return c.SMTPHost != "" && c.SMTPSender != "" && c.SMTPPassword != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
