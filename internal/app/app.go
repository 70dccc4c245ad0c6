package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hotpath/glide/internal/auth"
	"github.com/hotpath/glide/internal/config"
	"github.com/hotpath/glide/internal/database"
	"github.com/hotpath/glide/internal/handler"
	"github.com/hotpath/glide/internal/logger"
	"github.com/hotpath/glide/internal/metrics"
	"github.com/hotpath/glide/internal/middleware"
	"github.com/hotpath/glide/internal/repository"
	"github.com/hotpath/glide/internal/security"
	"github.com/hotpath/glide/internal/user"
	"github.com/hotpath/glide/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// pendingJanitorInterval は期限切れpending loginを掃除する間隔。
const pendingJanitorInterval = time.Minute

var (
	_ auth.Recorder         = (*metrics.Collector)(nil)
	_ cleanup.SweepRecorder = (*metrics.Collector)(nil)
	_ handler.HealthChecker = (*sql.DB)(nil)
)

// Init はアプリケーションの初期化を行う。
// .envファイルと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(ctx context.Context, w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. .envファイルを読み込む（既存の環境変数が優先）
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 4. 設定されたログレベルで再初期化する
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	logger.SetupDefault(w, level)

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := Init(ctx, w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	linkRepo := repository.NewPostgresProviderLinkRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	settingRepo := repository.NewPostgresSiteSettingRepo(db)

	// 3. メトリクスの初期化
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 4. OAuthプロバイダーとpending loginストアの初期化
	providers, err := auth.NewRegistry(buildProviders(cfg)...)
	if err != nil {
		return fmt.Errorf("failed to build provider registry: %w", err)
	}
	if providers.Len() == 0 {
		slog.Warn("no oauth provider is configured; only password login is available")
	}

	pending, closePending, err := newPendingStore(cfg)
	if err != nil {
		return err
	}
	defer closePending()

	// 5. 認証サービスの初期化
	resolver := auth.NewIdentityResolver(
		userRepo, linkRepo, settingRepo,
		auth.NewPasswordHasher(),
		security.NewDisplayNameSanitizer(),
		collector,
		auth.ResolverConfig{AdminEmail: cfg.AdminEmail},
	)
	sessions := auth.NewSessionManager(sessionRepo, collector)
	authService := auth.NewService(providers, pending, resolver, sessions, collector,
		auth.ServiceConfig{SessionDuration: cfg.SessionDuration()},
	)

	userService := user.NewService(userRepo, sessionRepo)
	settingsService := user.NewSettingsService(settingRepo)

	// 6. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Principals:        sessions,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.Cookie.Secure,
			CookieDomain: cfg.Cookie.Domain,
		},
		HealthChecker: db,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieName:      cfg.Cookie.Name,
			CookieDomain:    cfg.Cookie.Domain,
			CookieSecure:    cfg.Cookie.Secure,
			LandingPath:     cfg.LandingPath,
			PublicPath:      cfg.PublicPath,
			DefaultProvider: cfg.DefaultProvider,
		},

		UserService:     userService,
		SettingsService: settingsService,
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           newHTTPHandler(router, reg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.Any("providers", providers.List()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// newHTTPHandler は/metricsとアプリケーションルーターを束ねたトップレベルのハンドラーを返す。
// アプリケーションルーターはOpenTelemetryで計装する。
func newHTTPHandler(router http.Handler, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.SetupMetricsRoute(gatherer))
	mux.Handle("/", otelhttp.NewHandler(router, "glide",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health"
		}),
	))
	return mux
}

// buildProviders は設定済みのOAuthプロバイダーを生成する。
func buildProviders(cfg *config.Config) []auth.Provider {
	var providers []auth.Provider

	if cfg.GitHub.Enabled() {
		providers = append(providers, auth.NewGitHubProvider(providerConfig(cfg.GitHub)))
	}
	if cfg.Forgejo.Enabled() {
		providers = append(providers, auth.NewForgejoProvider(providerConfig(cfg.Forgejo)))
	}
	if cfg.Google.Enabled() {
		providers = append(providers, auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ProviderConfig: providerConfig(cfg.Google),
		}))
	}

	return providers
}

func providerConfig(p config.ProviderConfig) auth.ProviderConfig {
	return auth.ProviderConfig{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURI:  p.RedirectURI,
		BaseURI:      p.BaseURI,
	}
}

// newPendingStore はPENDING_STOREに応じたpending loginストアと、その後始末関数を返す。
func newPendingStore(cfg *config.Config) (auth.PendingStore, func(), error) {
	switch cfg.PendingStore {
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		slog.Info("using redis pending login store", slog.String("addr", opts.Addr))
		return auth.NewRedisPendingStore(client, cfg.PendingLoginTTL), func() { client.Close() }, nil
	default:
		store := auth.NewMemoryPendingStore(cfg.PendingLoginTTL)
		store.StartJanitor(pendingJanitorInterval)
		return store, store.Stop, nil
	}
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れセッションの削除ジョブを定期実行する。
// ctxがキャンセルされるとシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. メトリクスの初期化（ワーカーはスクレイプされないため記録のみ）
	collector := metrics.NewCollector(prometheus.NewRegistry())

	// 3. セッション削除ジョブの起動
	job := cleanup.NewSessionSweepJob(db, slog.Default(), collector)

	slog.Info("worker starting",
		slog.Duration("sweep_interval", cfg.SessionSweepInterval),
	)

	// ctxがキャンセルされるまでブロックする
	job.Start(ctx, cfg.SessionSweepInterval)

	slog.Info("worker stopped gracefully")
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

	version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// 解析できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
