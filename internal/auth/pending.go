package auth

import (
	"context"
	"sync"
	"time"
)

// DefaultPendingLoginTTL は進行中ログインの有効期間の既定値。
const DefaultPendingLoginTTL = 10 * time.Minute

// PendingStore はCSRF stateをキーとした進行中ログインの登録簿。
// stateは一度だけ消費でき、消費に成功すると開始時に選択されたプロバイダー名を返す。
type PendingStore interface {
	// Begin は新しいstateを生成してプロバイダー名と共に記録する。
	Begin(ctx context.Context, provider string) (string, error)
	// Consume はstateを取り除き、対応するプロバイダー名を返す。
	// 未登録、消費済み、期限切れのいずれの場合もokはfalseになる。
	Consume(ctx context.Context, state string) (provider string, ok bool, err error)
}

type pendingLogin struct {
	provider  string
	createdAt time.Time
}

// MemoryPendingStore はプロセス内メモリに進行中ログインを保持するPendingStore。
// すべての操作は単一のミューテックスの内側で完結する。
type MemoryPendingStore struct {
	mu      sync.Mutex
	pending map[string]pendingLogin
	ttl     time.Duration
	now     func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewMemoryPendingStore はMemoryPendingStoreを生成する。
// ttlが0以下の場合はDefaultPendingLoginTTLを使う。
func NewMemoryPendingStore(ttl time.Duration) *MemoryPendingStore {
	if ttl <= 0 {
		ttl = DefaultPendingLoginTTL
	}
	return &MemoryPendingStore{
		pending: make(map[string]pendingLogin),
		ttl:     ttl,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// Begin はstateを生成し、プロバイダー名と生成時刻を記録する。
func (s *MemoryPendingStore) Begin(_ context.Context, provider string) (string, error) {
	state, err := GenerateState()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.pending[state] = pendingLogin{provider: provider, createdAt: s.now()}
	s.mu.Unlock()

	return state, nil
}

// Consume はstateを削除し、対応するプロバイダー名を返す。
// 期限切れのエントリも削除した上で拒否する。
func (s *MemoryPendingStore) Consume(_ context.Context, state string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.pending[state]
	if !ok {
		return "", false, nil
	}
	delete(s.pending, state)

	if s.now().Sub(entry.createdAt) > s.ttl {
		return "", false, nil
	}
	return entry.provider, true, nil
}

// StartJanitor は期限切れエントリを定期的に削除するゴルーチンを起動する。
// 停止にはStopを呼ぶ。
func (s *MemoryPendingStore) StartJanitor(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.purgeExpired()
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop はStartJanitorで起動したゴルーチンを停止する。複数回呼んでもよい。
func (s *MemoryPendingStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// purgeExpired はttlを超えたエントリを削除し、削除件数を返す。
func (s *MemoryPendingStore) purgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	purged := 0
	for state, entry := range s.pending {
		if now.Sub(entry.createdAt) > s.ttl {
			delete(s.pending, state)
			purged++
		}
	}
	return purged
}

// compile-time interface check
var _ PendingStore = (*MemoryPendingStore)(nil)
