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
	defaultForgejoBaseURI = "https://codeberg.org"
	// forgejoScope は/api/v1/userの読み取りに必要なスコープ。
	forgejoScope = "read:user"
)

// ForgejoProvider はForgejo系インスタンス（既定はCodeberg）のOAuth認証を提供する。
type ForgejoProvider struct {
	oauth  *oauth2.Config
	apiURL string
	client *http.Client
}

// NewForgejoProvider はForgejoProviderを生成する。
// APIBaseURIが未指定の場合は BaseURI + "/api/v1" を使う。
func NewForgejoProvider(cfg ProviderConfig) *ForgejoProvider {
	base := cfg.BaseURI
	if base == "" {
		base = defaultForgejoBaseURI
	}
	api := cfg.APIBaseURI
	if api == "" {
		api = strings.TrimRight(base, "/") + "/api/v1"
	}
	return &ForgejoProvider{
		oauth:  newOAuth2Config(cfg, base, forgejoScope),
		apiURL: strings.TrimRight(api, "/"),
		client: cfg.httpClient(),
	}
}

// Name はプロバイダー名を返す。
func (p *ForgejoProvider) Name() string { return "forgejo" }

// DisplayName は表示名を返す。
func (p *ForgejoProvider) DisplayName() string { return "Codeberg" }

// AuthorizeURL はForgejoの認可URLを生成する。
func (p *ForgejoProvider) AuthorizeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// ExchangeCode は認可コードをアクセストークンに交換する。
func (p *ForgejoProvider) ExchangeCode(ctx context.Context, code string) (string, error) {
	return exchangeWithConfig(ctx, p.oauth, p.client, code)
}

type forgejoUser struct {
	ID       int64  `json:"id"`
	Login    string `json:"login"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// FetchProfile はForgejoのユーザー情報を取得する。
func (p *ForgejoProvider) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	header := http.Header{}
	header.Set("Authorization", "token "+accessToken)
	header.Set("Accept", "application/json")

	var u forgejoUser
	if err := getJSON(ctx, p.client, p.apiURL+"/user", header, &u); err != nil {
		return nil, fmt.Errorf("failed to fetch forgejo user: %w", err)
	}
	if u.ID == 0 {
		return nil, fmt.Errorf("%w: forgejo user has no id", ErrUpstream)
	}

	displayName := u.FullName
	if displayName == "" {
		displayName = u.Login
	}

	return &Profile{
		ProviderUserID: strconv.FormatInt(u.ID, 10),
		Username:       u.Login,
		Email:          u.Email,
		DisplayName:    displayName,
	}, nil
}

// compile-time interface check
var _ Provider = (*ForgejoProvider)(nil)
