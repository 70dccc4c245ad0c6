// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hotpath/glide/internal/model"
)

// ErrConflict は一意制約違反を表す。
// 同一アイデンティティの同時ログインなど、再試行で解消できる競合で返される。
var ErrConflict = errors.New("unique constraint violation")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレス重複時はErrConflictを返す。
	Create(ctx context.Context, user *model.User) error

	// CreateWithProviderLink はユーザーとプロバイダー連携を同一トランザクションで作成する。
	// いずれかの一意制約に違反した場合はErrConflictを返し、どちらも作成しない。
	CreateWithProviderLink(ctx context.Context, user *model.User, link *model.ProviderLink) error

	// LinkProviderAndSync は既存ユーザーへの連携作成と、userの表示名・管理者フラグの書き戻しを
	// 同一トランザクションで行う。管理者フラグは昇格のみ反映する。
	// 連携が重複した場合はErrConflictを返し、ユーザーは更新しない。
	LinkProviderAndSync(ctx context.Context, user *model.User, link *model.ProviderLink) error

	// UpdateDisplayName はユーザーの表示名を更新する。
	UpdateDisplayName(ctx context.Context, id, displayName string, updatedAt time.Time) error

	// PromoteToAdmin はユーザーを管理者に昇格する。
	PromoteToAdmin(ctx context.Context, id string, updatedAt time.Time) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するuser_oauth_providers、sessionsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// ProviderLinkRepository は外部プロバイダー連携情報の永続化インターフェース。
type ProviderLinkRepository interface {
	// FindByProvider はproviderとprovider_user_idで連携を検索する。
	// 見つからない場合はnilを返す。
	FindByProvider(ctx context.Context, provider, providerUserID string) (*model.ProviderLink, error)

	// Create は連携を作成する。(provider, provider_user_id) 重複時はErrConflictを返す。
	Create(ctx context.Context, link *model.ProviderLink) error

	// DeleteByID は指定IDの連携を削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindPrincipal はセッションと所有ユーザーを結合して取得する。
	// 存在しない場合、またはexpires_atがnow以前の場合はnilを返す。
	FindPrincipal(ctx context.Context, id string, now time.Time) (*model.SessionPrincipal, error)
	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// SiteSettingRepository はサイト設定の永続化インターフェース。
type SiteSettingRepository interface {
	// FindByKey はキーで設定を取得する。見つからない場合はnilを返す。
	FindByKey(ctx context.Context, key string) (*model.SiteSetting, error)
	// Upsert は設定値を作成または更新する。
	Upsert(ctx context.Context, key, value string, updatedAt time.Time) error
}
