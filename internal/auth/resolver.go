package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hotpath/glide/internal/model"
	"github.com/hotpath/glide/internal/repository"
)

// maxResolveAttempts は一意制約違反時に解決処理をやり直す最大回数。
const maxResolveAttempts = 3

// dummyPasswordHash は未登録メールでのログイン時にも検証処理を走らせるためのハッシュ。
// 応答時間からアカウントの存在が推測されないようにする。
var dummyPasswordHash = func() string {
	h, err := NewPasswordHasher().Hash("glide-dummy-password")
	if err != nil {
		panic(fmt.Sprintf("failed to build dummy password hash: %v", err))
	}
	return h
}()

// DisplayNameSanitizer は表示名から危険な文字列を除去する。
type DisplayNameSanitizer interface {
	SanitizeDisplayName(name string) string
}

// ResolverConfig はIdentityResolverの設定。
type ResolverConfig struct {
	// AdminEmail と一致するメールアドレスのユーザーは管理者に昇格する。空の場合は昇格しない。
	AdminEmail string
}

// IdentityResolver は外部アイデンティティやパスワード資格情報をローカルユーザーに解決する。
type IdentityResolver struct {
	users     repository.UserRepository
	links     repository.ProviderLinkRepository
	settings  repository.SiteSettingRepository
	hasher    *PasswordHasher
	sanitizer DisplayNameSanitizer
	recorder  Recorder
	config    ResolverConfig
	now       func() time.Time
	newID     func() (string, error)
}

// NewIdentityResolver はIdentityResolverを生成する。
// settingsがnilの場合、新規登録は常に受け付ける。
func NewIdentityResolver(
	users repository.UserRepository,
	links repository.ProviderLinkRepository,
	settings repository.SiteSettingRepository,
	hasher *PasswordHasher,
	sanitizer DisplayNameSanitizer,
	recorder Recorder,
	config ResolverConfig,
) *IdentityResolver {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &IdentityResolver{
		users:     users,
		links:     links,
		settings:  settings,
		hasher:    hasher,
		sanitizer: sanitizer,
		recorder:  recorder,
		config:    config,
		now:       time.Now,
		newID:     newUUIDv7,
	}
}

// ResolveOAuth はプロバイダーのプロフィールをローカルユーザーに解決する。
// 同時ログインによる一意制約違反は再試行し、解消しなければFailureConflictを返す。
func (r *IdentityResolver) ResolveOAuth(ctx context.Context, provider string, profile *Profile) (Result[*model.User], error) {
	if profile == nil || profile.ProviderUserID == "" {
		return failWith[*model.User](FailureForbidden, model.NewAccessDeniedError()), nil
	}

	for attempt := 1; attempt <= maxResolveAttempts; attempt++ {
		res, err := r.resolveOAuthOnce(ctx, provider, profile)
		if errors.Is(err, repository.ErrConflict) {
			slog.Warn("identity resolution conflicted, retrying",
				slog.String("provider", provider),
				slog.Int("attempt", attempt),
			)
			continue
		}
		return res, err
	}

	return failWith[*model.User](FailureConflict, model.NewLoginConflictError()), nil
}

func (r *IdentityResolver) resolveOAuthOnce(ctx context.Context, provider string, profile *Profile) (Result[*model.User], error) {
	email := normalizeEmail(profile.Email)
	displayName := r.cleanDisplayName(profile.DisplayName)

	// 1. 既存の連携を検索
	link, err := r.links.FindByProvider(ctx, provider, profile.ProviderUserID)
	if err != nil {
		return Result[*model.User]{}, fmt.Errorf("failed to find provider link: %w", err)
	}
	if link != nil {
		user, err := r.users.FindByID(ctx, link.UserID)
		if err != nil {
			return Result[*model.User]{}, fmt.Errorf("failed to find linked user: %w", err)
		}
		if user != nil {
			if err := r.syncUser(ctx, user, displayName, email); err != nil {
				return Result[*model.User]{}, err
			}
			return Ok(user), nil
		}

		// 所有ユーザーが消えた連携は削除し、連携なしとして続行する
		if err := r.links.DeleteByID(ctx, link.ID); err != nil {
			return Result[*model.User]{}, fmt.Errorf("failed to delete orphaned provider link: %w", err)
		}
		r.recorder.RecordOrphanRepaired()
		slog.Warn("orphaned provider link removed",
			slog.String("link_id", link.ID),
			slog.String("user_id", link.UserID),
			slog.String("provider", provider),
		)
	}

	// メールアドレスなしではアカウント作成も既存アカウントへの連携も行わない
	if email == "" {
		slog.Warn("oauth profile has no usable email",
			slog.String("provider", provider),
		)
		return failWith[*model.User](FailureEmailUnavailable, model.NewEmailUnavailableError(provider)), nil
	}

	now := r.now()
	linkID, err := r.newID()
	if err != nil {
		return Result[*model.User]{}, err
	}
	newLink := &model.ProviderLink{
		ID:             linkID,
		Provider:       provider,
		ProviderUserID: profile.ProviderUserID,
		ProviderEmail:  email,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// 2. メールアドレスで既存ユーザーを検索し、連携を追加
	existing, err := r.users.FindByEmail(ctx, email)
	if err != nil {
		return Result[*model.User]{}, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		newLink.UserID = existing.ID
		promoted := r.applyProfile(existing, displayName, email, now)
		if err := r.users.LinkProviderAndSync(ctx, existing, newLink); err != nil {
			return Result[*model.User]{}, fmt.Errorf("failed to link provider to existing user: %w", err)
		}
		if promoted {
			slog.Info("user promoted to admin", slog.String("user_id", existing.ID))
		}
		slog.Info("provider linked to existing user",
			slog.String("user_id", existing.ID),
			slog.String("provider", provider),
		)
		return Ok(existing), nil
	}

	// 3. ユーザーと連携を新規作成
	userID, err := r.newID()
	if err != nil {
		return Result[*model.User]{}, err
	}
	if displayName == "" {
		displayName = emailLocalPart(email)
	}
	user := &model.User{
		ID:          userID,
		Email:       email,
		DisplayName: displayName,
		IsAdmin:     r.isAdminEmail(email),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	newLink.UserID = userID

	if err := r.users.CreateWithProviderLink(ctx, user, newLink); err != nil {
		return Result[*model.User]{}, fmt.Errorf("failed to create user with provider link: %w", err)
	}
	slog.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("provider", provider),
		slog.Bool("is_admin", user.IsAdmin),
	)
	return Ok(user), nil
}

// syncUser はプロフィールの表示名と管理者メールをユーザーに書き戻す。
func (r *IdentityResolver) syncUser(ctx context.Context, user *model.User, displayName, email string) error {
	now := r.now()

	if displayName != "" && displayName != user.DisplayName {
		if err := r.users.UpdateDisplayName(ctx, user.ID, displayName, now); err != nil {
			return fmt.Errorf("failed to update display name: %w", err)
		}
		user.DisplayName = displayName
		user.UpdatedAt = now
	}

	if !user.IsAdmin && r.isAdminEmail(email) {
		if err := r.users.PromoteToAdmin(ctx, user.ID, now); err != nil {
			return fmt.Errorf("failed to promote user to admin: %w", err)
		}
		user.IsAdmin = true
		user.UpdatedAt = now
		slog.Info("user promoted to admin", slog.String("user_id", user.ID))
	}

	return nil
}

// applyProfile はプロフィールの表示名と管理者メールをuserに反映する。保存は呼び出し側が行う。
// 管理者に昇格した場合はtrueを返す。
func (r *IdentityResolver) applyProfile(user *model.User, displayName, email string, now time.Time) bool {
	if displayName != "" && displayName != user.DisplayName {
		user.DisplayName = displayName
		user.UpdatedAt = now
	}
	if !user.IsAdmin && r.isAdminEmail(email) {
		user.IsAdmin = true
		user.UpdatedAt = now
		return true
	}
	return false
}

// Register はメールアドレスとパスワードで新規ユーザーを作成する。
func (r *IdentityResolver) Register(ctx context.Context, email, password, displayName string) (Result[*model.User], error) {
	email = normalizeEmail(email)
	if email == "" {
		return failWith[*model.User](FailureValidation, model.NewValidationError("Email is required")), nil
	}
	if !isValidEmail(email) {
		return failWith[*model.User](FailureValidation, model.NewValidationError("Email address is not valid")), nil
	}
	if msg := ValidatePasswordStrength(password); msg != "" {
		return failWith[*model.User](FailureValidation, model.NewValidationError(msg)), nil
	}

	open, err := r.registrationOpen(ctx)
	if err != nil {
		return Result[*model.User]{}, err
	}
	if !open {
		return failWith[*model.User](FailureRegistrationClosed, model.NewRegistrationClosedError()), nil
	}

	existing, err := r.users.FindByEmail(ctx, email)
	if err != nil {
		return Result[*model.User]{}, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return failWith[*model.User](FailureEmailTaken, model.NewEmailTakenError()), nil
	}

	hash, err := r.hasher.Hash(password)
	if err != nil {
		return Result[*model.User]{}, fmt.Errorf("failed to hash password: %w", err)
	}

	id, err := r.newID()
	if err != nil {
		return Result[*model.User]{}, err
	}
	displayName = r.cleanDisplayName(displayName)
	if displayName == "" {
		displayName = emailLocalPart(email)
	}

	now := r.now()
	user := &model.User{
		ID:           id,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		IsAdmin:      r.isAdminEmail(email),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return failWith[*model.User](FailureEmailTaken, model.NewEmailTakenError()), nil
		}
		return Result[*model.User]{}, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user registered", slog.String("user_id", user.ID))
	return Ok(user), nil
}

// LoginWithPassword はメールアドレスとパスワードでユーザーを認証する。
// 未登録メールとパスワード不一致は同一の失敗として返す。
func (r *IdentityResolver) LoginWithPassword(ctx context.Context, email, password string) (Result[*model.User], error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return failWith[*model.User](FailureValidation, model.NewValidationError("Email and password are required")), nil
	}

	user, err := r.users.FindByEmail(ctx, email)
	if err != nil {
		return Result[*model.User]{}, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		r.hasher.Verify(password, dummyPasswordHash)
		return failWith[*model.User](FailureCredentials, model.NewInvalidCredentialsError()), nil
	}
	if !user.HasPassword() {
		return failWith[*model.User](FailureOAuthOnly, model.NewOAuthOnlyAccountError()), nil
	}
	if !r.hasher.Verify(password, user.PasswordHash) {
		return failWith[*model.User](FailureCredentials, model.NewInvalidCredentialsError()), nil
	}

	return Ok(user), nil
}

// registrationOpen はサイト設定から新規登録の受付可否を返す。
// 設定が存在しない場合は受け付ける。
func (r *IdentityResolver) registrationOpen(ctx context.Context) (bool, error) {
	if r.settings == nil {
		return true, nil
	}
	setting, err := r.settings.FindByKey(ctx, model.SettingRegistrationOpen)
	if err != nil {
		return false, fmt.Errorf("failed to read registration setting: %w", err)
	}
	if setting == nil {
		return true, nil
	}
	return setting.Value == "true", nil
}

func (r *IdentityResolver) isAdminEmail(email string) bool {
	admin := normalizeEmail(r.config.AdminEmail)
	return admin != "" && email == admin
}

func (r *IdentityResolver) cleanDisplayName(name string) string {
	if r.sanitizer != nil {
		return r.sanitizer.SanitizeDisplayName(name)
	}
	return strings.TrimSpace(name)
}

// normalizeEmail は前後の空白を除き小文字化する。
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// isValidEmail はアドレスが表示名なしの単一のメールアドレスかを判定する。
func isValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// emailLocalPart はメールアドレスの@より前の部分を返す。
func emailLocalPart(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

// newUUIDv7 は時刻順にソート可能なUUIDv7を生成する。
func newUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return id.String(), nil
}
