package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// stateBytes はstate値の乱数バイト数（256ビット）。
const stateBytes = 32

// GenerateState は推測不可能なワンタイムstate値を生成する。
// 32バイトの暗号論的乱数を16進エンコードした64文字の文字列を返す。
func GenerateState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// CompareState は2つのstate値を定数時間で比較する。
// どちらかが16進として不正な場合や長さが異なる場合はfalseを返す。
func CompareState(expected, actual string) bool {
	want, err := hex.DecodeString(expected)
	if err != nil || len(want) == 0 {
		return false
	}
	got, err := hex.DecodeString(actual)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(want, got) == 1
}
