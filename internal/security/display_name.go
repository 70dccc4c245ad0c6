// Package security はアプリケーションのセキュリティ機能を提供する。
//
// DisplayNameSanitizer は外部プロバイダーや登録フォームから受け取った表示名から
// HTMLタグを取り除き、画面にそのまま表示できるプレーンテキストに整える。
package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// MaxDisplayNameLength は表示名として保存する最大文字数（rune単位）。
// usersテーブルのdisplay_name列（VARCHAR(255)）に収まる長さ。
const MaxDisplayNameLength = 100

// DisplayNameSanitizer は表示名のサニタイズを行う。
// bluemondayのポリシーはスレッドセーフなため、1つのインスタンスを共有してよい。
type DisplayNameSanitizer struct {
	policy *bluemonday.Policy
}

// NewDisplayNameSanitizer はすべてのタグを除去するStrictPolicyでDisplayNameSanitizerを生成する。
func NewDisplayNameSanitizer() *DisplayNameSanitizer {
	return &DisplayNameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeDisplayName は表示名をプレーンテキストに変換する。
// 処理内容:
//   - HTMLタグをすべて除去（script等は中身ごと除去される）
//   - bluemondayがエスケープした文字参照を元に戻す（出力時にテンプレート側でエスケープする）
//   - 制御文字を除去し、連続する空白を1つにまとめる
//   - MaxDisplayNameLength文字で切り詰める
//
// 結果が空になった場合は空文字列を返す。呼び出し元が既定値を決める。
func (s *DisplayNameSanitizer) SanitizeDisplayName(name string) string {
	if name == "" {
		return ""
	}

	stripped := html.UnescapeString(s.policy.Sanitize(name))

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, stripped)
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	runes := []rune(cleaned)
	if len(runes) > MaxDisplayNameLength {
		cleaned = strings.TrimSpace(string(runes[:MaxDisplayNameLength]))
	}

	return cleaned
}
