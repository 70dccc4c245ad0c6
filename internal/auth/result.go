package auth

import (
	"net/http"

	"github.com/hotpath/glide/internal/model"
)

// FailureKind は利用者に返す失敗の種別。
type FailureKind int

const (
	// FailureValidation は入力値の不備。アカウントの存在に依存しないため具体的に返す。
	FailureValidation FailureKind = iota + 1
	// FailureCredentials はメールアドレスまたはパスワードの不一致。
	FailureCredentials
	// FailureOAuthOnly はパスワード未設定のアカウントへのパスワードログイン。
	FailureOAuthOnly
	// FailureEmailTaken は登録済みメールアドレスでの新規登録。
	FailureEmailTaken
	// FailureConflict は同時ログインによる一意制約違反。再試行で解消する。
	FailureConflict
	// FailureForbidden はstateの偽造・再利用や上流プロバイダーの失敗。
	FailureForbidden
	// FailureEmailUnavailable はプロバイダーから利用可能なメールアドレスを得られなかった。
	FailureEmailUnavailable
	// FailureRegistrationClosed は新規登録が停止されている。
	FailureRegistrationClosed
)

// String はログ出力用の種別名を返す。
func (k FailureKind) String() string {
	switch k {
	case FailureValidation:
		return "validation"
	case FailureCredentials:
		return "credentials"
	case FailureOAuthOnly:
		return "oauth_only"
	case FailureEmailTaken:
		return "email_taken"
	case FailureConflict:
		return "conflict"
	case FailureForbidden:
		return "forbidden"
	case FailureEmailUnavailable:
		return "email_unavailable"
	case FailureRegistrationClosed:
		return "registration_closed"
	default:
		return "unknown"
	}
}

// Failure は利用者に返すべき失敗と、推奨HTTPステータスを表す。
type Failure struct {
	Kind   FailureKind
	Status int
	Err    *model.APIError
}

// Result は成功値か失敗のどちらか一方を保持する。
// ストレージ到達不能などの想定外の障害はResultではなくerrorとして返す。
type Result[T any] struct {
	value   T
	failure *Failure
}

// Ok は成功のResultを生成する。
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Fail は失敗のResultを生成する。
func Fail[T any](f *Failure) Result[T] {
	return Result[T]{failure: f}
}

// Value は成功値を返す。失敗の場合はokがfalseになる。
func (r Result[T]) Value() (T, bool) {
	return r.value, r.failure == nil
}

// Failure は失敗を返す。成功の場合はnil。
func (r Result[T]) Failure() *Failure {
	return r.failure
}

// failWith はFailureKindから推奨ステータスを決めてFailureを組み立てる。
func failWith[T any](kind FailureKind, apiErr *model.APIError) Result[T] {
	return Fail[T](&Failure{Kind: kind, Status: statusFor(kind), Err: apiErr})
}

func statusFor(kind FailureKind) int {
	switch kind {
	case FailureValidation:
		return http.StatusBadRequest
	case FailureCredentials, FailureOAuthOnly:
		return http.StatusUnauthorized
	case FailureEmailTaken, FailureConflict:
		return http.StatusConflict
	case FailureForbidden, FailureEmailUnavailable, FailureRegistrationClosed:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

// convertFailure は失敗を別の値型のResultへ載せ替える。
func convertFailure[T, U any](r Result[T]) Result[U] {
	return Fail[U](r.failure)
}
