package auth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
)

const (
	defaultGitHubBaseURI    = "https://github.com"
	defaultGitHubAPIBaseURI = "https://api.github.com"
	githubUserAgent         = "Glide/1.0"
)

// GitHubProvider はGitHub OAuthによる認証を提供する。
type GitHubProvider struct {
	oauth  *oauth2.Config
	apiURL string
	client *http.Client
}

// NewGitHubProvider はGitHubProviderを生成する。
func NewGitHubProvider(cfg ProviderConfig) *GitHubProvider {
	base := cfg.BaseURI
	if base == "" {
		base = defaultGitHubBaseURI
	}
	api := cfg.APIBaseURI
	if api == "" {
		api = defaultGitHubAPIBaseURI
	}
	return &GitHubProvider{
		oauth:  newOAuth2Config(cfg, base, "user:email"),
		apiURL: strings.TrimRight(api, "/"),
		client: cfg.httpClient(),
	}
}

// Name はプロバイダー名を返す。
func (p *GitHubProvider) Name() string { return "github" }

// DisplayName は表示名を返す。
func (p *GitHubProvider) DisplayName() string { return "GitHub" }

// AuthorizeURL はGitHubの認可URLを生成する。
func (p *GitHubProvider) AuthorizeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// ExchangeCode は認可コードをアクセストークンに交換する。
func (p *GitHubProvider) ExchangeCode(ctx context.Context, code string) (string, error) {
	return exchangeWithConfig(ctx, p.oauth, p.client, code)
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// FetchProfile はGitHubのユーザー情報を取得する。
// /user がメールアドレスを返さない場合は /user/emails にフォールバックする。
func (p *GitHubProvider) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	header := p.apiHeader(accessToken)

	var u githubUser
	if err := getJSON(ctx, p.client, p.apiURL+"/user", header, &u); err != nil {
		return nil, fmt.Errorf("failed to fetch github user: %w", err)
	}
	if u.ID == 0 {
		return nil, fmt.Errorf("%w: github user has no id", ErrUpstream)
	}

	email := u.Email
	if email == "" {
		// フォールバック失敗はメールなしの結果として扱う
		var emails []githubEmail
		if err := getJSON(ctx, p.client, p.apiURL+"/user/emails", header, &emails); err == nil {
			email = selectGitHubEmail(emails)
		}
	}

	displayName := u.Name
	if displayName == "" {
		displayName = u.Login
	}

	return &Profile{
		ProviderUserID: strconv.FormatInt(u.ID, 10),
		Username:       u.Login,
		Email:          email,
		DisplayName:    displayName,
	}, nil
}

func (p *GitHubProvider) apiHeader(accessToken string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+accessToken)
	h.Set("Accept", "application/vnd.github+json")
	h.Set("User-Agent", githubUserAgent)
	return h
}

// selectGitHubEmail はprimaryかつverifiedのアドレス、なければ任意のverifiedアドレスを返す。
func selectGitHubEmail(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email
		}
	}
	return ""
}

// compile-time interface check
var _ Provider = (*GitHubProvider)(nil)
