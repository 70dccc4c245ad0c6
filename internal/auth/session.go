package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/hotpath/glide/internal/model"
	"github.com/hotpath/glide/internal/repository"
)

// SessionManager はサーバーサイドセッションの発行、検索、破棄を行う。
type SessionManager struct {
	repo     repository.SessionRepository
	recorder Recorder
	now      func() time.Time
}

// NewSessionManager はSessionManagerを生成する。
func NewSessionManager(repo repository.SessionRepository, recorder Recorder) *SessionManager {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &SessionManager{
		repo:     repo,
		recorder: recorder,
		now:      time.Now,
	}
}

// Create はユーザーの新しいセッションを発行し永続化する。
// セッションIDはstateと同じく256ビットの乱数から生成する。
func (m *SessionManager) Create(ctx context.Context, userID string, duration time.Duration) (*model.Session, error) {
	id, err := GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := m.now()
	session := &model.Session{
		ID:        id,
		UserID:    userID,
		ExpiresAt: now.Add(duration),
		CreatedAt: now,
	}

	if err := m.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	m.recorder.RecordSessionCreated()
	return session, nil
}

// Lookup はセッションIDから認証済み主体を取得する。
// セッションが存在しない、または期限切れの場合はnilを返す。期限切れの行は削除しない。
func (m *SessionManager) Lookup(ctx context.Context, sessionID string) (*model.SessionPrincipal, error) {
	if sessionID == "" {
		return nil, nil
	}

	now := m.now()
	principal, err := m.repo.FindPrincipal(ctx, sessionID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if principal == nil || !now.Before(principal.ExpiresAt) {
		return nil, nil
	}

	return principal, nil
}

// Revoke はセッションを削除する。存在しないIDを指定してもエラーにしない。
func (m *SessionManager) Revoke(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if err := m.repo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	m.recorder.RecordSessionRevoked()
	return nil
}
