// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHashが空のユーザーはプロバイダー連携経由でのみ認証できる。
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword はパスワードログインが可能かどうかを返す。
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// ProviderLink は外部OAuthプロバイダーのアカウントとユーザーの紐付けを表す。
// (Provider, ProviderUserID) の組はストレージ上で一意。
type ProviderLink struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	ProviderEmail  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired は指定時刻においてセッションが失効しているかを返す。
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionPrincipal はセッションとその所有ユーザーを結合した認証済み主体。
// リクエストコンテキストに格納され、下流のハンドラーが参照する。
type SessionPrincipal struct {
	SessionID   string
	UserID      string
	Email       string
	DisplayName string
	IsAdmin     bool
	ExpiresAt   time.Time
}

// SiteSetting はサイト全体の設定値を表す。
type SiteSetting struct {
	Key       string
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SettingRegistrationOpen は新規登録の受付可否を保持する設定キー。
const SettingRegistrationOpen = "registration_open"
