package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hotpath/glide/internal/model"
	"github.com/hotpath/glide/internal/repository"
)

// memStore はテスト用のインメモリストア。
// emailと(provider, provider_user_id)の一意制約をストレージと同様に強制する。
type memStore struct {
	mu       sync.Mutex
	users    map[string]*model.User
	links    map[string]*model.ProviderLink
	sessions map[string]*model.Session
	settings map[string]*model.SiteSetting

	// beforeFindByEmail はFindByEmailの先頭で呼ばれるフック。
	beforeFindByEmail func()
	// linkSyncErr が設定されている場合、LinkProviderAndSyncは何も書き込まずにこれを返す。
	linkSyncErr error
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*model.User),
		links:    make(map[string]*model.ProviderLink),
		sessions: make(map[string]*model.Session),
		settings: make(map[string]*model.SiteSetting),
	}
}

func (s *memStore) userCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *memStore) linkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links)
}

func (s *memStore) emailTakenLocked(email string) bool {
	for _, u := range s.users {
		if u.Email == email {
			return true
		}
	}
	return false
}

func (s *memStore) linkTakenLocked(provider, providerUserID string) bool {
	for _, l := range s.links {
		if l.Provider == provider && l.ProviderUserID == providerUserID {
			return true
		}
	}
	return false
}

type memUsers struct{ *memStore }

func (r memUsers) FindByID(_ context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r memUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	if r.beforeFindByEmail != nil {
		r.beforeFindByEmail()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memUsers) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.emailTakenLocked(user.Email) {
		return fmt.Errorf("failed to insert user: %w", repository.ErrConflict)
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r memUsers) CreateWithProviderLink(_ context.Context, user *model.User, link *model.ProviderLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.emailTakenLocked(user.Email) || r.linkTakenLocked(link.Provider, link.ProviderUserID) {
		return fmt.Errorf("failed to insert user: %w", repository.ErrConflict)
	}
	u := *user
	l := *link
	r.users[user.ID] = &u
	r.links[link.ID] = &l
	return nil
}

func (r memUsers) LinkProviderAndSync(_ context.Context, user *model.User, link *model.ProviderLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.linkSyncErr != nil {
		return r.linkSyncErr
	}
	if r.linkTakenLocked(link.Provider, link.ProviderUserID) {
		return fmt.Errorf("failed to insert provider link: %w", repository.ErrConflict)
	}
	l := *link
	r.links[link.ID] = &l
	if u, ok := r.users[user.ID]; ok {
		u.DisplayName = user.DisplayName
		u.IsAdmin = u.IsAdmin || user.IsAdmin
		u.UpdatedAt = user.UpdatedAt
	}
	return nil
}

func (r memUsers) UpdateDisplayName(_ context.Context, id, displayName string, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.DisplayName = displayName
		u.UpdatedAt = updatedAt
	}
	return nil
}

func (r memUsers) PromoteToAdmin(_ context.Context, id string, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.IsAdmin = true
		u.UpdatedAt = updatedAt
	}
	return nil
}

// DeleteByID はユーザーを削除する。連携は残すため、孤立した連携を再現できる。
func (r memUsers) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
	return nil
}

type memLinks struct{ *memStore }

func (r memLinks) FindByProvider(_ context.Context, provider, providerUserID string) (*model.ProviderLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l.Provider == provider && l.ProviderUserID == providerUserID {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memLinks) Create(_ context.Context, link *model.ProviderLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.linkTakenLocked(link.Provider, link.ProviderUserID) {
		return fmt.Errorf("failed to insert provider link: %w", repository.ErrConflict)
	}
	cp := *link
	r.links[link.ID] = &cp
	return nil
}

func (r memLinks) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.links, id)
	return nil
}

type memSessions struct{ *memStore }

func (r memSessions) Create(_ context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *session
	r.sessions[session.ID] = &cp
	return nil
}

func (r memSessions) FindPrincipal(_ context.Context, id string, now time.Time) (*model.SessionPrincipal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || !now.Before(s.ExpiresAt) {
		return nil, nil
	}
	u, ok := r.users[s.UserID]
	if !ok {
		return nil, nil
	}
	return &model.SessionPrincipal{
		SessionID:   s.ID,
		UserID:      u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		IsAdmin:     u.IsAdmin,
		ExpiresAt:   s.ExpiresAt,
	}, nil
}

func (r memSessions) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r memSessions) DeleteByUserID(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
		}
	}
	return nil
}

type memSettings struct{ *memStore }

func (r memSettings) FindByKey(_ context.Context, key string) (*model.SiteSetting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[key]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r memSettings) Upsert(_ context.Context, key, value string, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[key] = &model.SiteSetting{Key: key, Value: value, CreatedAt: updatedAt, UpdatedAt: updatedAt}
	return nil
}

// countingRecorder は記録回数を数えるRecorder。
type countingRecorder struct {
	mu       sync.Mutex
	logins   map[string]int
	created  int
	revoked  int
	rejected int
	orphans  int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{logins: make(map[string]int)}
}

func (r *countingRecorder) RecordLogin(method, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logins[method+":"+outcome]++
}

func (r *countingRecorder) RecordSessionCreated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created++
}

func (r *countingRecorder) RecordSessionRevoked() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked++
}

func (r *countingRecorder) RecordPendingRejected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected++
}

func (r *countingRecorder) RecordOrphanRepaired() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orphans++
}

var (
	_ repository.UserRepository         = memUsers{}
	_ repository.ProviderLinkRepository = memLinks{}
	_ repository.SessionRepository      = memSessions{}
	_ repository.SiteSettingRepository  = memSettings{}
	_ Recorder                          = (*countingRecorder)(nil)
)
