package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// corsMaxAge はプリフライト結果のキャッシュ秒数。
const corsMaxAge = 86400

// NewCORSMiddleware は指定されたオリジンに対するCORSミドルウェアを返す。
// セッションCookieを送信させるため、ワイルドカード(*)は使用しない。
// 許可していないオリジンからのリクエストにはCORSヘッダーを付与しない。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{allowedOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", csrfHeaderName},
		AllowCredentials: true,
		MaxAge:           corsMaxAge,
	})
}
