package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/hotpath/glide/internal/middleware"
	"github.com/hotpath/glide/internal/model"
)

// SettingsServiceInterface はサイト設定ハンドラーが必要とするサービスインターフェース。
type SettingsServiceInterface interface {
	RegistrationOpen(ctx context.Context) (bool, error)
	SetRegistrationOpen(ctx context.Context, actorID string, open bool) error
}

// SettingsHandler は管理者向けサイト設定のHTTPハンドラー。
type SettingsHandler struct {
	service SettingsServiceInterface
}

// NewSettingsHandler はSettingsHandlerを生成する。
func NewSettingsHandler(service SettingsServiceInterface) *SettingsHandler {
	return &SettingsHandler{service: service}
}

type registrationSettingBody struct {
	Open *bool `json:"open"`
}

// GetRegistration は新規登録の受付状態を返す。
// GET /settings/registration
func (h *SettingsHandler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	open, err := h.service.RegistrationOpen(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"open": open})
}

// UpdateRegistration は新規登録の受付可否を切り替える。
// POST /settings/registration (JSON: {"open": true} または form: open=true)
func (h *SettingsHandler) UpdateRegistration(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	open, ok := readOpenFlag(w, r)
	if !ok {
		return
	}

	if err := h.service.SetRegistrationOpen(r.Context(), principal.UserID, open); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"open": open})
}

// readOpenFlag はJSONまたはフォームからopenの値を読み取る。失敗時は400を書き込む。
func readOpenFlag(w http.ResponseWriter, r *http.Request) (bool, bool) {
	invalid := func() (bool, bool) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(`"open" must be true or false`))
		return false, false
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body registrationSettingBody
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormBytes)).Decode(&body); err != nil || body.Open == nil {
			return invalid()
		}
		return *body.Open, true
	}

	if !parseForm(w, r) {
		return false, false
	}
	open, err := strconv.ParseBool(r.PostForm.Get("open"))
	if err != nil {
		return invalid()
	}
	return open, true
}
