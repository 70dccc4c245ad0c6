package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeOAuthOnlyAccount   = "OAUTH_ONLY_ACCOUNT"
	ErrCodeEmailTaken         = "EMAIL_TAKEN"
	ErrCodeLoginConflict      = "LOGIN_CONFLICT"
	ErrCodeAccessDenied       = "ACCESS_DENIED"
	ErrCodeEmailUnavailable   = "EMAIL_UNAVAILABLE"
	ErrCodeRegistrationClosed = "REGISTRATION_CLOSED"
	ErrCodeUnknownProvider    = "UNKNOWN_PROVIDER"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewValidationError は入力検証エラーを生成する。
// メッセージはアカウントの存在有無に依存しないため、具体的に返してよい。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "Check the highlighted field and submit again.",
	}
}

// NewInvalidCredentialsError はパスワードログイン失敗時の共通エラーを生成する。
// 未登録メールとパスワード不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password",
		Category: "auth",
		Action:   "Check your email and password and try again.",
	}
}

// NewOAuthOnlyAccountError はパスワード未設定アカウントへのパスワードログイン時のエラーを生成する。
func NewOAuthOnlyAccountError() *APIError {
	return &APIError{
		Code:     ErrCodeOAuthOnlyAccount,
		Message:  "This account uses OAuth login. Please use the OAuth buttons to log in.",
		Category: "auth",
		Action:   "Sign in with the provider you used to create the account.",
	}
}

// NewEmailTakenError は登録済みメールアドレスでの新規登録エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "An account with this email already exists",
		Category: "validation",
		Action:   "Log in instead, or use a different email address.",
	}
}

// NewLoginConflictError は同一アイデンティティの同時ログインが競合した場合のエラーを生成する。
func NewLoginConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeLoginConflict,
		Message:  "Another login for this account was in progress. Please retry.",
		Category: "auth",
		Action:   "Retry the login.",
	}
}

// NewAccessDeniedError はCSRF state不正や上流プロバイダー失敗時の汎用拒否エラーを生成する。
// 拒否理由は呼び出し元に開示しない。
func NewAccessDeniedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccessDenied,
		Message:  "Access denied",
		Category: "auth",
		Action:   "Start the login again from the login page.",
	}
}

// NewEmailUnavailableError はプロバイダーからメールアドレスを取得できなかった場合のエラーを生成する。
func NewEmailUnavailableError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeEmailUnavailable,
		Message:  fmt.Sprintf("Your %s account has no verified email address we can use", provider),
		Category: "auth",
		Action:   "Add or verify an email address with the provider, then try again.",
	}
}

// NewRegistrationClosedError は新規登録停止中のエラーを生成する。
func NewRegistrationClosedError() *APIError {
	return &APIError{
		Code:     ErrCodeRegistrationClosed,
		Message:  "Registration is currently closed",
		Category: "auth",
		Action:   "Ask an administrator to open registration.",
	}
}

// NewUnknownProviderError は未設定のプロバイダーが指定された場合のエラーを生成する。
func NewUnknownProviderError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownProvider,
		Message:  fmt.Sprintf("Unknown login provider: %s", provider),
		Category: "validation",
		Action:   "Choose one of the listed login providers.",
	}
}

// NewUnauthorizedError は未認証リクエストのエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required",
		Category: "auth",
		Action:   "Log in and try again.",
	}
}

// NewForbiddenError は権限不足のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "You do not have permission to perform this action",
		Category: "auth",
		Action:   "Ask an administrator for access.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: "auth",
		Action:   "Log in again.",
	}
}

// NewInternalError は内部エラーの汎用レスポンスを生成する。
// 詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "An internal error occurred",
		Category: "system",
		Action:   "Wait a moment and try again.",
	}
}
