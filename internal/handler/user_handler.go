package handler

import (
	"context"
	"net/http"

	"github.com/hotpath/glide/internal/middleware"
	"github.com/hotpath/glide/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Withdraw はユーザーの退会処理を実行する。
	// sessionsを削除した後にuserを削除する（user_oauth_providersはCASCADE削除）。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	cookies AuthHandlerConfig
}

// NewUserHandler はUserHandlerを生成する。
// 退会後にセッションCookieを削除するため、認証ハンドラーと同じCookie設定を受け取る。
func NewUserHandler(service UserServiceInterface, cookies AuthHandlerConfig) *UserHandler {
	if cookies.CookieName == "" {
		cookies.CookieName = middleware.DefaultSessionCookieName
	}
	return &UserHandler{
		service: service,
		cookies: cookies,
	}
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookies.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.cookies.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
