// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hotpath/glide/internal/auth"
	"github.com/hotpath/glide/internal/middleware"
	"github.com/hotpath/glide/internal/model"
)

// maxFormBytes はフォーム送信の最大サイズ。CSRFミドルウェアと同じ上限を使う。
const maxFormBytes = middleware.MaxFormBytes

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
// auth.Serviceが満たす。
type AuthServiceInterface interface {
	Providers() []auth.ProviderInfo
	SessionDuration() time.Duration
	BeginLogin(ctx context.Context, providerName string) (auth.Result[string], error)
	CompleteLogin(ctx context.Context, state, code string) (auth.Result[*model.Session], error)
	Register(ctx context.Context, email, password, displayName string) (auth.Result[*model.Session], error)
	LoginWithPassword(ctx context.Context, email, password string) (auth.Result[*model.Session], error)
	Logout(ctx context.Context, sessionID string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieName      string
	CookieDomain    string
	CookieSecure    bool
	LandingPath     string // ログイン成功後のリダイレクト先
	PublicPath      string // ログアウト後のリダイレクト先
	DefaultProvider string // providerパラメータ省略時のプロバイダー
}

// AuthHandler はログイン・登録・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	if config.CookieName == "" {
		config.CookieName = middleware.DefaultSessionCookieName
	}
	if config.LandingPath == "" {
		config.LandingPath = "/dashboard"
	}
	if config.PublicPath == "" {
		config.PublicPath = "/"
	}
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// Login はOAuthフローを開始する。
// GET /auth/login?provider=github
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	providerName := r.URL.Query().Get("provider")
	if providerName == "" {
		providerName = h.config.DefaultProvider
	}

	res, err := h.service.BeginLogin(r.Context(), providerName)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	authorizeURL, ok := res.Value()
	if !ok {
		writeFailure(w, res.Failure())
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, authorizeURL, http.StatusFound)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/callback?code=xxx&state=yyy
// stateの不一致や上流の失敗ではCookieを設定せず403を返す。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		// 利用者がプロバイダー側で拒否した場合もstateは消費させる
		slog.Info("oauth provider returned an error",
			slog.String("error", providerErr),
		)
	}

	res, err := h.service.CompleteLogin(r.Context(), query.Get("state"), query.Get("code"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.finishLogin(w, r, res, http.StatusFound)
}

// Register はメールアドレスとパスワードで新規登録し、ログイン状態にする。
// POST /auth/register (form: email, password, display_name)
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}

	res, err := h.service.Register(r.Context(),
		r.PostForm.Get("email"),
		r.PostForm.Get("password"),
		r.PostForm.Get("display_name"),
	)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.finishLogin(w, r, res, http.StatusSeeOther)
}

// PasswordLogin はメールアドレスとパスワードでログインする。
// POST /auth/login-password (form: email, password)
func (h *AuthHandler) PasswordLogin(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}

	res, err := h.service.LoginWithPassword(r.Context(),
		r.PostForm.Get("email"),
		r.PostForm.Get("password"),
	)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.finishLogin(w, r, res, http.StatusSeeOther)
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(h.config.CookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	h.clearSessionCookie(w)
	http.Redirect(w, r, h.config.PublicPath, http.StatusSeeOther)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           principal.UserID,
		"email":        principal.Email,
		"display_name": principal.DisplayName,
		"is_admin":     principal.IsAdmin,
		"expires_at":   principal.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Providers はログイン可能なプロバイダーの一覧を返す。
// GET /auth/providers
func (h *AuthHandler) Providers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"providers":        h.service.Providers(),
		"default_provider": h.config.DefaultProvider,
	})
}

// finishLogin は成功時にセッションCookieを設定してランディングページへリダイレクトし、
// 失敗時は推奨ステータスでエラーを返す。
func (h *AuthHandler) finishLogin(w http.ResponseWriter, r *http.Request, res auth.Result[*model.Session], redirectStatus int) {
	session, ok := res.Value()
	if !ok {
		writeFailure(w, res.Failure())
		return
	}

	h.setSessionCookie(w, session.ID)
	http.Redirect(w, r, h.config.LandingPath, redirectStatus)
}

// setSessionCookie はHTTP Only・SameSite=LaxのセッションCookieを設定する。
// Max-Ageはセッションの有効期間と一致させる。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.CookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   int(h.service.SessionDuration().Seconds()),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie はセッションCookieを削除する。
func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// parseForm はサイズ上限付きでフォームを解析する。失敗時は400を書き込みfalseを返す。
func parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Request body could not be parsed"))
		return false
	}
	return true
}
