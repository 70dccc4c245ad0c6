package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hotpath/glide/internal/model"
)

// DefaultSessionDuration はセッション有効期間の既定値（30日）。
const DefaultSessionDuration = 720 * time.Hour

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionDuration time.Duration
}

// Service はログインフロー全体を調停する。
// stateの発行と消費、プロバイダーとの通信、アイデンティティ解決、セッション発行を順に行う。
type Service struct {
	providers *Registry
	pending   PendingStore
	resolver  *IdentityResolver
	sessions  *SessionManager
	recorder  Recorder
	config    ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	providers *Registry,
	pending PendingStore,
	resolver *IdentityResolver,
	sessions *SessionManager,
	recorder Recorder,
	config ServiceConfig,
) *Service {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if config.SessionDuration <= 0 {
		config.SessionDuration = DefaultSessionDuration
	}
	return &Service{
		providers: providers,
		pending:   pending,
		resolver:  resolver,
		sessions:  sessions,
		recorder:  recorder,
		config:    config,
	}
}

// SessionDuration はセッションの有効期間を返す。Cookieの Max-Age に使う。
func (s *Service) SessionDuration() time.Duration {
	return s.config.SessionDuration
}

// Providers はログイン可能なプロバイダーの一覧を返す。
func (s *Service) Providers() []ProviderInfo {
	return s.providers.List()
}

// BeginLogin は進行中ログインを登録し、プロバイダーの認可URLを返す。
func (s *Service) BeginLogin(ctx context.Context, providerName string) (Result[string], error) {
	provider, ok := s.providers.Get(providerName)
	if !ok {
		return failWith[string](FailureValidation, model.NewUnknownProviderError(providerName)), nil
	}

	state, err := s.pending.Begin(ctx, provider.Name())
	if err != nil {
		return Result[string]{}, fmt.Errorf("failed to begin pending login: %w", err)
	}

	return Ok(provider.AuthorizeURL(state)), nil
}

// CompleteLogin はOAuthコールバックを処理し、セッションを発行する。
// stateの不一致・再利用、トークン交換失敗、プロフィール取得失敗はいずれもFailureForbiddenになる。
// ユーザーの作成や更新は上流との通信がすべて成功した後にのみ行う。
func (s *Service) CompleteLogin(ctx context.Context, state, code string) (Result[*model.Session], error) {
	// 1. stateを消費（成功・失敗に関わらず再利用不可）
	providerName, ok, err := s.pending.Consume(ctx, state)
	if err != nil {
		return Result[*model.Session]{}, fmt.Errorf("failed to consume pending login: %w", err)
	}
	if !ok {
		s.recorder.RecordPendingRejected()
		slog.Warn("oauth callback rejected: unknown or reused state")
		return s.denied("unknown"), nil
	}

	provider, ok := s.providers.Get(providerName)
	if !ok {
		slog.Warn("oauth callback rejected: provider no longer registered",
			slog.String("provider", providerName),
		)
		return s.denied(providerName), nil
	}

	// 2. 認可コードをアクセストークンに交換
	token, err := provider.ExchangeCode(ctx, code)
	if err != nil {
		slog.Warn("oauth token exchange failed",
			slog.String("provider", provider.Name()),
			slog.String("error", err.Error()),
		)
		return s.denied(provider.Name()), nil
	}

	// 3. プロフィールを取得
	profile, err := provider.FetchProfile(ctx, token)
	if err != nil {
		slog.Warn("oauth profile fetch failed",
			slog.String("provider", provider.Name()),
			slog.String("error", err.Error()),
		)
		return s.denied(provider.Name()), nil
	}

	// 4. ローカルユーザーに解決
	res, err := s.resolver.ResolveOAuth(ctx, provider.Name(), profile)
	if err != nil {
		return Result[*model.Session]{}, fmt.Errorf("failed to resolve oauth identity: %w", err)
	}

	// 5. セッションを発行
	return s.issueSession(ctx, provider.Name(), res)
}

// Register はパスワードで新規登録し、セッションを発行する。
func (s *Service) Register(ctx context.Context, email, password, displayName string) (Result[*model.Session], error) {
	res, err := s.resolver.Register(ctx, email, password, displayName)
	if err != nil {
		return Result[*model.Session]{}, fmt.Errorf("failed to register user: %w", err)
	}
	return s.issueSession(ctx, "register", res)
}

// LoginWithPassword はパスワードでログインし、セッションを発行する。
func (s *Service) LoginWithPassword(ctx context.Context, email, password string) (Result[*model.Session], error) {
	res, err := s.resolver.LoginWithPassword(ctx, email, password)
	if err != nil {
		return Result[*model.Session]{}, fmt.Errorf("failed to authenticate with password: %w", err)
	}
	return s.issueSession(ctx, "password", res)
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// issueSession は解決結果が成功ならセッションを発行し、失敗ならそのまま返す。
func (s *Service) issueSession(ctx context.Context, method string, res Result[*model.User]) (Result[*model.Session], error) {
	user, ok := res.Value()
	if !ok {
		f := res.Failure()
		s.recorder.RecordLogin(method, f.Kind.String())
		return convertFailure[*model.User, *model.Session](res), nil
	}

	session, err := s.sessions.Create(ctx, user.ID, s.config.SessionDuration)
	if err != nil {
		return Result[*model.Session]{}, fmt.Errorf("failed to create session: %w", err)
	}

	s.recorder.RecordLogin(method, "success")
	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("method", method),
	)
	return Ok(session), nil
}

func (s *Service) denied(method string) Result[*model.Session] {
	s.recorder.RecordLogin(method, FailureForbidden.String())
	return failWith[*model.Session](FailureForbidden, model.NewAccessDeniedError())
}
