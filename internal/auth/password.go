package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/pbkdf2"
)

const (
	passwordSaltSize   = 16
	passwordKeySize    = 32
	passwordIterations = 100000

	// MinPasswordLength はパスワードの最小文字数。
	MinPasswordLength = 8
	// MaxPasswordLength はパスワードの最大文字数。
	MaxPasswordLength = 128
)

// PasswordHasher はPBKDF2-HMAC-SHA256によるパスワードハッシュと検証を提供する。
// エンコード形式は base64(salt || derivedKey) で、反復回数は固定値を用いる。
type PasswordHasher struct {
	iterations int
}

// NewPasswordHasher はPasswordHasherを生成する。
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{iterations: passwordIterations}
}

// Hash はランダムなソルトを生成し、パスワードのハッシュ文字列を返す。
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, passwordSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := pbkdf2.Key([]byte(password), salt, h.iterations, passwordKeySize, sha256.New)

	packed := make([]byte, 0, passwordSaltSize+passwordKeySize)
	packed = append(packed, salt...)
	packed = append(packed, key...)
	return base64.StdEncoding.EncodeToString(packed), nil
}

// Verify は保存済みハッシュに対してパスワードを検証する。
// ハッシュの形式が不正な場合はエラーにせずfalseを返す。
func (h *PasswordHasher) Verify(password, encoded string) bool {
	packed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(packed) != passwordSaltSize+passwordKeySize {
		return false
	}

	salt := packed[:passwordSaltSize]
	stored := packed[passwordSaltSize:]
	derived := pbkdf2.Key([]byte(password), salt, h.iterations, passwordKeySize, sha256.New)

	return subtle.ConstantTimeCompare(derived, stored) == 1
}

// ValidatePasswordStrength は新規登録時のパスワード要件を検証する。
// 問題がなければ空文字列を、違反があればユーザー向けのメッセージを返す。
func ValidatePasswordStrength(password string) string {
	n := utf8.RuneCountInString(password)
	switch {
	case password == "":
		return "Password is required"
	case n < MinPasswordLength:
		return fmt.Sprintf("Password must be at least %d characters long", MinPasswordLength)
	case n > MaxPasswordLength:
		return fmt.Sprintf("Password must not exceed %d characters", MaxPasswordLength)
	}
	return ""
}
