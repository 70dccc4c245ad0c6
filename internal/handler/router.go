package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hotpath/glide/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Principals        middleware.PrincipalLookup
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger

	// ヘルスチェック
	HealthChecker HealthChecker

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ユーザー
	UserService UserServiceInterface

	// サイト設定
	SettingsService SettingsServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → SecurityHeaders → CORS(設定時のみ) → RequestAuthenticator → Logging → CSRF
//
// RequestAuthenticatorは匿名リクエストも通すため、認証が必要なルートはRequireAuthで保護する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.AuthConfig.CookieSecure))
	if deps.CORSAllowedOrigin != "" {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	}
	r.Use(middleware.NewRequestAuthenticator(deps.Principals, deps.AuthConfig.CookieName))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig)
	settingsHandler := NewSettingsHandler(deps.SettingsService)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/providers", authHandler.Providers)

		// OAuthフロー
		r.Get("/login", authHandler.Login)
		r.Get("/callback", authHandler.Callback)

		// パスワード認証
		r.Post("/register", authHandler.Register)
		r.Post("/login-password", authHandler.PasswordLogin)

		// セッション管理（未ログインでもCookieのクリアは行う）
		r.Post("/logout", authHandler.Logout)
		r.With(middleware.RequireAuth).Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)

		r.Route("/api/users", func(r chi.Router) {
			r.Delete("/me", userHandler.Withdraw)
		})
	})

	// --- 管理者のみのルート ---
	r.Route("/settings", func(r chi.Router) {
		r.Use(middleware.RequireAdmin)

		r.Get("/registration", settingsHandler.GetRegistration)
		r.Post("/registration", settingsHandler.UpdateRegistration)
	})

	return r
}
