package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`

	// Server
	ServerPort string `env:"SERVER_PORT, default=8080"`
	BaseURL    string `env:"BASE_URL, default=http://localhost:8080"`
	LogLevel   string `env:"LOG_LEVEL, default=info"`

	// Session
	SessionDurationHours int           `env:"SESSION_DURATION_HOURS, default=720"`
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL, default=1h"`
	Cookie               CookieConfig  `env:", prefix=COOKIE_"`

	// Login
	AdminEmail      string        `env:"ADMIN_EMAIL"`
	LandingPath     string        `env:"LANDING_PATH, default=/dashboard"`
	PublicPath      string        `env:"PUBLIC_PATH, default=/"`
	DefaultProvider string        `env:"DEFAULT_PROVIDER, default=forgejo"`
	PendingLoginTTL time.Duration `env:"PENDING_LOGIN_TTL, default=10m"`
	PendingStore    string        `env:"PENDING_STORE, default=memory"`
	RedisURL        string        `env:"REDIS_URL"`

	// OAuth providers
	GitHub  ProviderConfig `env:", prefix=GITHUB_"`
	Forgejo ProviderConfig `env:", prefix=FORGEJO_"`
	Google  ProviderConfig `env:", prefix=GOOGLE_"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN"`
}

// CookieConfig はセッションCookieの属性。
type CookieConfig struct {
	Name   string `env:"NAME, default=glide_session"`
	Domain string `env:"DOMAIN"`
	Secure bool   `env:"SECURE, default=true"`
}

// ProviderConfig はOAuthプロバイダー1件分の設定。
// ClientIDとClientSecretの両方が設定されたプロバイダーだけが有効になる。
type ProviderConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	BaseURI      string `env:"BASE_URI"`
	RedirectURI  string `env:"REDIRECT_URI, default=http://localhost:8080/auth/callback"`
}

// Enabled はプロバイダーが設定済みかを返す。
func (p ProviderConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// SessionDuration はセッションの有効期間を返す。
func (c *Config) SessionDuration() time.Duration {
	return time.Duration(c.SessionDurationHours) * time.Hour
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合や値が不正な場合はエラーを返す。
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith は指定されたLookuperからConfigを読み込む。
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv は.envファイルの値を環境変数に読み込む。
// 既に設定済みの環境変数は上書きしない。ファイルが存在しない場合は何もしない。
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	// Required fields
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.PendingStore == "redis" && c.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if c.SessionDurationHours <= 0 {
		return fmt.Errorf("SESSION_DURATION_HOURS must be positive: %d", c.SessionDurationHours)
	}
	if c.PendingLoginTTL <= 0 {
		return fmt.Errorf("PENDING_LOGIN_TTL must be positive: %s", c.PendingLoginTTL)
	}
	if c.PendingStore != "memory" && c.PendingStore != "redis" {
		return fmt.Errorf("PENDING_STORE must be memory or redis: %q", c.PendingStore)
	}

	// リダイレクト先は同一オリジンのパスに限る
	for name, path := range map[string]string{"LANDING_PATH": c.LandingPath, "PUBLIC_PATH": c.PublicPath} {
		if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
			return fmt.Errorf("%s must be an absolute path: %q", name, path)
		}
	}

	if !c.Cookie.Secure && strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("COOKIE_SECURE must not be false when BASE_URL is https")
	}
	return nil
}
