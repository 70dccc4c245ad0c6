// Package auth はOAuthログイン、パスワード認証、アイデンティティ解決、セッション管理を提供する。
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// maxProfileBodySize はプロフィールAPIレスポンスの読み取り上限（1MB）。
const maxProfileBodySize = 1 << 20

// ErrUpstream は上流プロバイダーとの通信失敗を表す。
// 呼び出し元はこのエラーを受け取った場合、ログイン試行を拒否しなければならない。
var ErrUpstream = errors.New("oauth provider request failed")

// Profile はプロバイダー固有のプロフィールを正規化したもの。
// Emailはフォールバック後も取得できなかった場合は空文字列になる。
type Profile struct {
	ProviderUserID string
	Username       string
	Email          string
	DisplayName    string
}

// Provider は外部OAuthプロバイダーごとのプロトコルアダプター。
// クライアントID、シークレット、リダイレクトURIなどの設定は生成時に束縛される。
type Provider interface {
	// Name はレジストリのキーとして使われるプロバイダー名を返す。
	Name() string
	// DisplayName はログイン画面に表示する名前を返す。
	DisplayName() string
	// AuthorizeURL はstateをそのまま埋め込んだ認可エンドポイントURLを返す。
	AuthorizeURL(state string) string
	// ExchangeCode は認可コードをアクセストークンに交換する。
	ExchangeCode(ctx context.Context, code string) (string, error)
	// FetchProfile はアクセストークンでプロフィールを取得し正規化する。
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)
}

// ProviderConfig はプロバイダー1件分の設定。
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	// BaseURI は認可・トークンエンドポイントのベースURI。空の場合はプロバイダーの既定値を使う。
	BaseURI string
	// APIBaseURI はプロフィールAPIのベースURI。テスト時の差し替え用。
	APIBaseURI string
	// HTTPClient はプロバイダー通信に使うクライアント。nilの場合は10秒タイムアウトのクライアントを使う。
	HTTPClient *http.Client
}

func (c ProviderConfig) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// ProviderInfo はログイン画面向けのプロバイダー情報。
type ProviderInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// Registry は起動時に構築されるプロバイダー名からProviderへの対応表。
// 構築後は読み取り専用として扱う。
type Registry struct {
	providers map[string]Provider
}

// NewRegistry は指定されたプロバイダーからRegistryを生成する。
// 同名のプロバイダーが複数ある場合はエラーを返す。
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		name := strings.ToLower(p.Name())
		if _, dup := r.providers[name]; dup {
			return nil, fmt.Errorf("duplicate oauth provider: %s", name)
		}
		r.providers[name] = p
	}
	return r, nil
}

// Get は名前でプロバイダーを取得する。
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[strings.ToLower(name)]
	return p, ok
}

// List は登録済みプロバイダーを名前順で返す。
func (r *Registry) List() []ProviderInfo {
	infos := make([]ProviderInfo, 0, len(r.providers))
	for _, p := range r.providers {
		infos = append(infos, ProviderInfo{Name: p.Name(), DisplayName: p.DisplayName()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Len は登録済みプロバイダー数を返す。
func (r *Registry) Len() int {
	return len(r.providers)
}

// newOAuth2Config はベースURIからGitHub互換のエンドポイントを持つoauth2.Configを組み立てる。
// GitHubとForgejoは同じパス構成を共有する。
func newOAuth2Config(cfg ProviderConfig, baseURI string, scopes ...string) *oauth2.Config {
	base := strings.TrimRight(baseURI, "/")
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   base + "/login/oauth/authorize",
			TokenURL:  base + "/login/oauth/access_token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// exchangeWithConfig はoauth2.Configで認可コードを交換し、アクセストークンを返す。
// 非2xxレスポンスやaccess_token欠落はErrUpstreamとして扱う。
func exchangeWithConfig(ctx context.Context, oc *oauth2.Config, client *http.Client, code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("%w: empty authorization code", ErrUpstream)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	token, err := oc.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("%w: token exchange: %v", ErrUpstream, err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrUpstream)
	}
	return token.AccessToken, nil
}

// getJSON はGETリクエストを送り、200応答のJSONをoutにデコードする。
func getJSON(ctx context.Context, client *http.Client, url string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBodySize))
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d", ErrUpstream, url, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: malformed response: %v", ErrUpstream, err)
	}
	return nil
}
