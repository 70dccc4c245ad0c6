package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hotpath/glide/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスのJSON表現。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

func newErrorResponseBody(apiErr *model.APIError) ErrorResponseBody {
	return ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}
}

// WriteErrorResponse はAPIErrorをJSONで書き込む。
// 認証結果を含むためキャッシュさせない。apiErrがnilの場合は内部エラーとして扱う。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	if apiErr == nil {
		statusCode = http.StatusInternalServerError
		apiErr = model.NewInternalError()
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(newErrorResponseBody(apiErr)); err != nil {
		slog.Warn("failed to write error response", slog.String("error", err.Error()))
	}
}

// WriteInternalServerError は詳細を伏せた500レスポンスを書き込む。詳細は呼び出し側でログに残す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
