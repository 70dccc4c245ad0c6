package auth

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

const (
	defaultGoogleAuthURL     = "https://accounts.google.com/o/oauth2/auth"
	defaultGoogleTokenURL    = "https://oauth2.googleapis.com/token"
	defaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
type GoogleOAuthConfig struct {
	ProviderConfig

	// テスト用にオーバーライド可能なURL
	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

// GoogleOAuthProvider はGoogle OAuth 2.0による認証を提供する。
type GoogleOAuthProvider struct {
	oauth       *oauth2.Config
	userInfoURL string
	client      *http.Client
}

// NewGoogleOAuthProvider はGoogleOAuthProviderを生成する。
func NewGoogleOAuthProvider(config GoogleOAuthConfig) *GoogleOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultGoogleAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultGoogleTokenURL
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = defaultGoogleUserInfoURL
	}
	return &GoogleOAuthProvider{
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURI,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   config.AuthURL,
				TokenURL:  config.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: config.UserInfoURL,
		client:      config.httpClient(),
	}
}

// Name はプロバイダー名を返す。
func (p *GoogleOAuthProvider) Name() string { return "google" }

// DisplayName は表示名を返す。
func (p *GoogleOAuthProvider) DisplayName() string { return "Google" }

// AuthorizeURL はGoogle OAuthの認証URLを生成する。
// スコープにはopenid, email, profileを含む。
func (p *GoogleOAuthProvider) AuthorizeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// ExchangeCode は認可コードをアクセストークンに交換する。
func (p *GoogleOAuthProvider) ExchangeCode(ctx context.Context, code string) (string, error) {
	return exchangeWithConfig(ctx, p.oauth, p.client, code)
}

// googleUserInfo はGoogleのユーザー情報エンドポイントのレスポンス。
type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// FetchProfile はアクセストークンでGoogleのユーザー情報を取得する。
// 未検証のメールアドレスは採用しない。
func (p *GoogleOAuthProvider) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+accessToken)

	var info googleUserInfo
	if err := getJSON(ctx, p.client, p.userInfoURL, header, &info); err != nil {
		return nil, fmt.Errorf("failed to fetch google user info: %w", err)
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("%w: empty sub in user info response", ErrUpstream)
	}

	email := ""
	if info.EmailVerified {
		email = info.Email
	}

	return &Profile{
		ProviderUserID: info.Sub,
		Username:       info.Email,
		Email:          email,
		DisplayName:    info.Name,
	}, nil
}

// compile-time interface check
var _ Provider = (*GoogleOAuthProvider)(nil)
