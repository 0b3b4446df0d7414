// Package auth はTwitterアカウント連携フロー、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/autopost/internal/model"
	"github.com/hitoshi/autopost/internal/repository"
	"github.com/hitoshi/autopost/internal/twitter"
)

// OAuthProvider はOAuth 1.0a認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// RequestToken はリクエストトークンとそのシークレットを取得する。
	RequestToken() (requestToken, requestSecret string, err error)
	// AuthorizationURL はユーザーをリダイレクトする認可画面URLを生成する。
	AuthorizationURL(requestToken string) (string, error)
	// AccessToken はverifierでリクエストトークンをアクセストークンペアに交換する。
	AccessToken(requestToken, requestSecret, verifier string) (accessToken, accessSecret string, err error)
}

// ProfileFetcher はアクセストークンペアの持ち主のプロフィール取得インターフェース。
type ProfileFetcher interface {
	VerifyCredentials(ctx context.Context, token, tokenSecret string) (*twitter.UserProfile, error)
}

// requestTokenTTL はコールバック待ちリクエストトークンの保持期間。
// 認可画面で放置されたトークンはこの期間経過後に破棄される。
const requestTokenTTL = 15 * time.Minute

// pendingToken はコールバック待ちのリクエストトークン。
type pendingToken struct {
	secret    string
	expiresAt time.Time
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service はアカウント連携に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	profiles    ProfileFetcher
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig

	mu      sync.Mutex
	pending map[string]pendingToken
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	profiles ProfileFetcher,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		profiles:    profiles,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		config:      config,
		pending:     make(map[string]pendingToken),
	}
}

// StartLogin はOAuthフローを開始し、認可画面URLを返す。
// リクエストトークンのシークレットはコールバックまでサーバー側で保持する。
func (s *Service) StartLogin(ctx context.Context) (string, error) {
	requestToken, requestSecret, err := s.oauth.RequestToken()
	if err != nil {
		return "", fmt.Errorf("failed to start oauth flow: %w", err)
	}

	s.mu.Lock()
	s.evictExpiredLocked()
	s.pending[requestToken] = pendingToken{
		secret:    requestSecret,
		expiresAt: time.Now().Add(requestTokenTTL),
	}
	s.mu.Unlock()

	authURL, err := s.oauth.AuthorizationURL(requestToken)
	if err != nil {
		return "", err
	}
	return authURL, nil
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// アクセストークンペアの取得後にプロフィールを照会し、
// TwitterアカウントIDをキーにユーザーを作成・更新する。
// 再連携時は既存ユーザーの認証情報を上書きしアクティブ状態に戻す。
func (s *Service) HandleCallback(ctx context.Context, requestToken, verifier string) (*model.Session, error) {
	s.mu.Lock()
	pt, ok := s.pending[requestToken]
	if ok {
		delete(s.pending, requestToken)
	}
	s.mu.Unlock()

	if !ok || time.Now().After(pt.expiresAt) {
		return nil, fmt.Errorf("unknown or expired request token")
	}

	accessToken, accessSecret, err := s.oauth.AccessToken(requestToken, pt.secret, verifier)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange access token: %w", err)
	}

	profile, err := s.profiles.VerifyCredentials(ctx, accessToken, accessSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to verify credentials: %w", err)
	}

	now := time.Now()
	user, err := s.userRepo.Upsert(ctx, &model.User{
		ID:               uuid.New().String(),
		TwitterID:        profile.IDStr,
		ScreenName:       profile.ScreenName,
		OAuthToken:       accessToken,
		OAuthTokenSecret: accessSecret,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	slog.Info("user connected",
		slog.String("user_id", user.ID),
		slog.String("screen_name", user.ScreenName),
	)

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user not found")
	}

	return user, nil
}

// Disconnect は連携を解除する。
// レコードは削除せずアクティブフラグを落とし、全セッションを破棄する。
// 未確認のドラフトは残るが、確認時にユーザー非アクティブとして拒否される。
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	if err := s.userRepo.SetActive(ctx, userID, false); err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}

	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}

	slog.Info("user disconnected", slog.String("user_id", userID))
	return nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// evictExpiredLocked は期限切れのリクエストトークンを破棄する。要ロック。
func (s *Service) evictExpiredLocked() {
	now := time.Now()
	for token, pt := range s.pending {
		if now.After(pt.expiresAt) {
			delete(s.pending, token)
		}
	}
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
