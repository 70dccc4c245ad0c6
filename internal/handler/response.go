package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hotpath/glide/internal/auth"
	"github.com/hotpath/glide/internal/middleware"
	"github.com/hotpath/glide/internal/model"
)

// writeJSON は値をJSONとしてレスポンスに書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeFailure は認証処理の失敗を推奨ステータスと統一エラーフォーマットで書き込む。
func writeFailure(w http.ResponseWriter, f *auth.Failure) {
	middleware.WriteErrorResponse(w, f.Status, f.Err)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// APIError以外は内部エラーとして扱い、詳細はログのみに残す。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation, model.ErrCodeUnknownProvider:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredentials, model.ErrCodeOAuthOnlyAccount:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden, model.ErrCodeAccessDenied, model.ErrCodeEmailUnavailable, model.ErrCodeRegistrationClosed:
		return http.StatusForbidden
	case model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeEmailTaken, model.ErrCodeLoginConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
