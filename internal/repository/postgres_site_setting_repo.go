package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hotpath/glide/internal/model"
)

// PostgresSiteSettingRepo はPostgreSQLを使用したサイト設定リポジトリ。
type PostgresSiteSettingRepo struct {
	db *sql.DB
}

// NewPostgresSiteSettingRepo はPostgresSiteSettingRepoを生成する。
func NewPostgresSiteSettingRepo(db *sql.DB) *PostgresSiteSettingRepo {
	return &PostgresSiteSettingRepo{db: db}
}

// FindByKey はキーで設定を取得する。見つからない場合はnilを返す。
func (r *PostgresSiteSettingRepo) FindByKey(ctx context.Context, key string) (*model.SiteSetting, error) {
	s := &model.SiteSetting{}
	err := r.db.QueryRowContext(ctx,
		`SELECT key, value, created_at, updated_at FROM site_settings WHERE key = $1`,
		key,
	).Scan(&s.Key, &s.Value, &s.CreatedAt, &s.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find site setting: %w", err)
	}
	return s, nil
}

// Upsert は設定値を作成または更新する。
func (r *PostgresSiteSettingRepo) Upsert(ctx context.Context, key, value string, updatedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO site_settings (key, value, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert site setting: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SiteSettingRepository = (*PostgresSiteSettingRepo)(nil)
