package middleware

import (
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hotpath/glide/internal/auth"
	"github.com/hotpath/glide/internal/model"
)

const (
	// csrfCookieName はCSRFトークンを保持するCookieの名前。
	// フロントエンドからJavaScriptで読み取れるよう、HttpOnlyではない。
	csrfCookieName = "csrf_token"

	// csrfHeaderName はリクエストヘッダーからCSRFトークンを読み取る際のヘッダー名。
	csrfHeaderName = "X-CSRF-Token"

	// csrfFormField はHTMLフォーム送信時にCSRFトークンを読み取るフィールド名。
	csrfFormField = "csrf_token"

	// csrfCookieMaxAge はCSRFトークンCookieの有効期間（24時間）。
	csrfCookieMaxAge = 86400

	// MaxFormBytes はフォーム送信の最大サイズ。
	// トークンをフォーム値から読む場合、本文はこのミドルウェアで解析される。
	MaxFormBytes = 64 << 10
)

// CSRFConfig はCSRFミドルウェアの設定。
type CSRFConfig struct {
	CookieSecure bool
	CookieDomain string
}

// NewCSRFMiddleware はCSRFトークンの生成・検証ミドルウェアを返す。
// 安全なメソッド（GET, HEAD, OPTIONS）はトークン検証をスキップし、
// CSRFトークンCookieを設定する。
// 状態変更メソッド（POST, PUT, PATCH, DELETE）はCookieのトークンと、
// X-CSRF-Tokenヘッダーまたはcsrf_tokenフォーム値の一致を必須とする。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 安全なメソッドはトークン検証をスキップ
			if isSafeMethod(r.Method) {
				ensureCSRFCookie(w, r, config)
				next.ServeHTTP(w, r)
				return
			}

			cookieToken, err := r.Cookie(csrfCookieName)
			if err != nil || cookieToken.Value == "" {
				rejectCSRF(w, r, "missing cookie token")
				return
			}

			submitted := r.Header.Get(csrfHeaderName)
			if submitted == "" {
				r.Body = http.MaxBytesReader(w, r.Body, MaxFormBytes)
				if err := r.ParseForm(); err != nil {
					WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Request body could not be parsed"))
					return
				}
				submitted = r.PostForm.Get(csrfFormField)
			}
			if submitted == "" {
				rejectCSRF(w, r, "missing submitted token")
				return
			}

			if !auth.CompareState(cookieToken.Value, submitted) {
				rejectCSRF(w, r, "token mismatch")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// NewCSRFTokenHandler はCSRFトークン取得エンドポイントのハンドラーを返す。
// GET /api/csrf-token
// 正しい形式のCSRFトークンCookieがある場合はそれを返し、なければ新規生成する。
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string

		if cookie, err := r.Cookie(csrfCookieName); err == nil && isWellFormedToken(cookie.Value) {
			token = cookie.Value
		} else {
			generated, err := auth.GenerateState()
			if err != nil {
				slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
				WriteInternalServerError(w)
				return
			}
			token = generated
			setCSRFCookie(w, token, config)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		json.NewEncoder(w).Encode(map[string]string{
			"token": token,
		})
	})
}

// rejectCSRF は検証失敗をログに記録し、403を返す。
func rejectCSRF(w http.ResponseWriter, r *http.Request, reason string) {
	slog.Warn("CSRF validation failed: "+reason,
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
	WriteErrorResponse(w, http.StatusForbidden, &model.APIError{
		Code:     "CSRF_TOKEN_INVALID",
		Message:  "CSRF token validation failed",
		Category: "auth",
		Action:   "Reload the page and try again.",
	})
}

// isSafeMethod はHTTPメソッドが安全（読み取り専用）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// ensureCSRFCookie はCSRFトークンCookieが未設定か不正な形式の場合に設定し直す。
func ensureCSRFCookie(w http.ResponseWriter, r *http.Request, config CSRFConfig) {
	if cookie, err := r.Cookie(csrfCookieName); err == nil && isWellFormedToken(cookie.Value) {
		return
	}

	token, err := auth.GenerateState()
	if err != nil {
		slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
		return
	}
	setCSRFCookie(w, token, config)
}

// isWellFormedToken はauth.GenerateStateが生成する形式（32バイトの16進表現）かを判定する。
func isWellFormedToken(token string) bool {
	if len(token) != 64 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}

func setCSRFCookie(w http.ResponseWriter, token string, config CSRFConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   csrfCookieMaxAge,
		HttpOnly: false, // フロントエンドから読み取り可能
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
