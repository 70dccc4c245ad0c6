package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hotpath/glide/internal/model"
)

// PostgresProviderLinkRepo はPostgreSQLを使用したプロバイダー連携リポジトリ。
type PostgresProviderLinkRepo struct {
	db *sql.DB
}

// NewPostgresProviderLinkRepo はPostgresProviderLinkRepoを生成する。
func NewPostgresProviderLinkRepo(db *sql.DB) *PostgresProviderLinkRepo {
	return &PostgresProviderLinkRepo{db: db}
}

// FindByProvider はproviderとprovider_user_idで連携を検索する。
// 見つからない場合はnilを返す。
func (r *PostgresProviderLinkRepo) FindByProvider(ctx context.Context, provider, providerUserID string) (*model.ProviderLink, error) {
	link := &model.ProviderLink{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, provider, provider_user_id, provider_email, created_at, updated_at
		 FROM user_oauth_providers
		 WHERE provider = $1 AND provider_user_id = $2`,
		provider, providerUserID,
	).Scan(&link.ID, &link.UserID, &link.Provider, &link.ProviderUserID, &link.ProviderEmail, &link.CreatedAt, &link.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find provider link: %w", err)
	}

	return link, nil
}

// Create は連携を作成する。
func (r *PostgresProviderLinkRepo) Create(ctx context.Context, link *model.ProviderLink) error {
	if err := insertProviderLink(ctx, r.db, link); err != nil {
		return wrapWriteError("failed to insert provider link", err)
	}
	return nil
}

// DeleteByID は指定IDの連携を削除する。
func (r *PostgresProviderLinkRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM user_oauth_providers WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete provider link: %w", err)
	}
	return nil
}

func insertProviderLink(ctx context.Context, db execer, link *model.ProviderLink) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO user_oauth_providers (id, user_id, provider, provider_user_id, provider_email, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		link.ID, link.UserID, link.Provider, link.ProviderUserID, link.ProviderEmail, link.CreatedAt, link.UpdatedAt,
	)
	return err
}

// compile-time interface check
var _ ProviderLinkRepository = (*PostgresProviderLinkRepo)(nil)
