package auth

import (
	"fmt"

	"github.com/dghubble/oauth1"
)

const defaultOAuthBaseURL = "https://api.twitter.com"

// TwitterOAuthConfig はTwitter OAuth 1.0aプロバイダーの設定。
type TwitterOAuthConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	CallbackURL    string

	// テスト用にオーバーライド可能なURL
	OAuthBaseURL string
}

// TwitterOAuthProvider はTwitter OAuth 1.0aの3-legged認証フローを提供する。
// 署名生成はoauth1ライブラリに委譲する。
type TwitterOAuthProvider struct {
	config      TwitterOAuthConfig
	oauthConfig *oauth1.Config
}

// NewTwitterOAuthProvider はTwitterOAuthProviderを生成する。
func NewTwitterOAuthProvider(config TwitterOAuthConfig) *TwitterOAuthProvider {
	if config.OAuthBaseURL == "" {
		config.OAuthBaseURL = defaultOAuthBaseURL
	}
	return &TwitterOAuthProvider{
		config: config,
		oauthConfig: &oauth1.Config{
			ConsumerKey:    config.ConsumerKey,
			ConsumerSecret: config.ConsumerSecret,
			CallbackURL:    config.CallbackURL,
			Endpoint: oauth1.Endpoint{
				RequestTokenURL: config.OAuthBaseURL + "/oauth/request_token",
				AuthorizeURL:    config.OAuthBaseURL + "/oauth/authenticate",
				AccessTokenURL:  config.OAuthBaseURL + "/oauth/access_token",
			},
		},
	}
}

// RequestToken はリクエストトークンを取得する。
func (p *TwitterOAuthProvider) RequestToken() (string, string, error) {
	requestToken, requestSecret, err := p.oauthConfig.RequestToken()
	if err != nil {
		return "", "", fmt.Errorf("failed to obtain request token: %w", err)
	}
	return requestToken, requestSecret, nil
}

// AuthorizationURL はユーザーをリダイレクトする認可画面URLを生成する。
func (p *TwitterOAuthProvider) AuthorizationURL(requestToken string) (string, error) {
	authURL, err := p.oauthConfig.AuthorizationURL(requestToken)
	if err != nil {
		return "", fmt.Errorf("failed to build authorization URL: %w", err)
	}
	return authURL.String(), nil
}

// AccessToken はverifierでリクエストトークンをアクセストークンペアに交換する。
func (p *TwitterOAuthProvider) AccessToken(requestToken, requestSecret, verifier string) (string, string, error) {
	accessToken, accessSecret, err := p.oauthConfig.AccessToken(requestToken, requestSecret, verifier)
	if err != nil {
		return "", "", fmt.Errorf("failed to exchange access token: %w", err)
	}
	return accessToken, accessSecret, nil
}

// compile-time interface check
var _ OAuthProvider = (*TwitterOAuthProvider)(nil)
