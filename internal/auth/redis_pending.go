package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingKeyPrefix = "pending_login:"

// RedisPendingStore はRedisに進行中ログインを保持するPendingStore。
// 複数インスタンスでログイン開始とコールバックが別プロセスに振り分けられる構成で使う。
type RedisPendingStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPendingStore はRedisPendingStoreを生成する。
// ttlが0以下の場合はDefaultPendingLoginTTLを使う。
func NewRedisPendingStore(client *redis.Client, ttl time.Duration) *RedisPendingStore {
	if ttl <= 0 {
		ttl = DefaultPendingLoginTTL
	}
	return &RedisPendingStore{client: client, ttl: ttl}
}

// Begin はstateを生成し、TTL付きでプロバイダー名を保存する。
func (s *RedisPendingStore) Begin(ctx context.Context, provider string) (string, error) {
	state, err := GenerateState()
	if err != nil {
		return "", err
	}

	stored, err := s.client.SetNX(ctx, pendingKeyPrefix+state, provider, s.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to store pending login: %w", err)
	}
	if !stored {
		return "", fmt.Errorf("pending login state collision")
	}
	return state, nil
}

// Consume はGETDELでstateを原子的に取り出して削除する。
// 期限切れのキーはRedisのTTLで消えているため拒否される。
func (s *RedisPendingStore) Consume(ctx context.Context, state string) (string, bool, error) {
	if state == "" {
		return "", false, nil
	}

	provider, err := s.client.GetDel(ctx, pendingKeyPrefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to consume pending login: %w", err)
	}
	return provider, true, nil
}

// compile-time interface check
var _ PendingStore = (*RedisPendingStore)(nil)
