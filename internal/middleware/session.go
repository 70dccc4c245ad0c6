// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hotpath/glide/internal/model"
)

// DefaultSessionCookieName はセッションCookieの既定名。
const DefaultSessionCookieName = "glide_session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// principalContextKey はリクエストコンテキストに認証済み主体を格納するためのキー。
var principalContextKey = contextKey("principal")

// PrincipalLookup はセッションIDから認証済み主体を引くためのインターフェース。
// auth.SessionManagerが満たす。失効済み・未登録のセッションには nil, nil を返す。
type PrincipalLookup interface {
	Lookup(ctx context.Context, sessionID string) (*model.SessionPrincipal, error)
}

// NewRequestAuthenticator はCookieからセッションを読み取り、
// 有効であれば認証済み主体をリクエストコンテキストに注入するミドルウェアを返す。
// Cookieがない場合、セッションが無効な場合、検索に失敗した場合はいずれも匿名のまま次へ渡す。
// 認証が必要なルートではRequireAuthを併用する。
func NewRequestAuthenticator(lookup PrincipalLookup, cookieName string) func(next http.Handler) http.Handler {
	if cookieName == "" {
		cookieName = DefaultSessionCookieName
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. CookieからセッションIDを取得
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			// 2. セッションの有効性を検証
			principal, err := lookup.Lookup(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to look up session",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if principal == nil {
				next.ServeHTTP(w, r)
				return
			}

			// 3. 認証済み主体をコンテキストに注入
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireAuth は認証済み主体のないリクエストに401を返すミドルウェア。
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin は管理者以外のリクエストを拒否するミドルウェア。
// 匿名には401、一般ユーザーには403を返す。
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			return
		}
		if !principal.IsAdmin {
			slog.Warn("admin route rejected",
				slog.String("user_id", principal.UserID),
				slog.String("path", r.URL.Path),
			)
			WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PrincipalFromContext はリクエストコンテキストから認証済み主体を取得する。
func PrincipalFromContext(ctx context.Context) (*model.SessionPrincipal, bool) {
	principal, ok := ctx.Value(principalContextKey).(*model.SessionPrincipal)
	if !ok || principal == nil {
		return nil, false
	}
	return principal, true
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// RequestAuthenticatorで認証されたリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	principal, ok := PrincipalFromContext(ctx)
	if !ok || principal.UserID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return principal.UserID, nil
}

// ContextWithPrincipal はコンテキストに認証済み主体を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, principal *model.SessionPrincipal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}
