package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hotpath/glide/internal/model"
)

const userColumns = `id, email, COALESCE(display_name, ''), password_hash, is_admin, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
// emailは呼び出し側で正規化済みであること。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	if err := insertUser(ctx, r.db, user); err != nil {
		return wrapWriteError("failed to insert user", err)
	}
	return nil
}

// CreateWithProviderLink はユーザーとプロバイダー連携を同一トランザクションで作成する。
func (r *PostgresUserRepo) CreateWithProviderLink(ctx context.Context, user *model.User, link *model.ProviderLink) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertUser(ctx, tx, user); err != nil {
		return wrapWriteError("failed to insert user", err)
	}
	if err := insertProviderLink(ctx, tx, link); err != nil {
		return wrapWriteError("failed to insert provider link", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapWriteError("failed to commit transaction", err)
	}
	return nil
}

// LinkProviderAndSync は連携の作成とユーザー情報の更新を同一トランザクションで行う。
func (r *PostgresUserRepo) LinkProviderAndSync(ctx context.Context, user *model.User, link *model.ProviderLink) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertProviderLink(ctx, tx, link); err != nil {
		return wrapWriteError("failed to insert provider link", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET display_name = $2, is_admin = is_admin OR $3, updated_at = $4 WHERE id = $1`,
		user.ID, user.DisplayName, user.IsAdmin, user.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to sync user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapWriteError("failed to commit transaction", err)
	}
	return nil
}

// UpdateDisplayName はユーザーの表示名を更新する。
func (r *PostgresUserRepo) UpdateDisplayName(ctx context.Context, id, displayName string, updatedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET display_name = $2, updated_at = $3 WHERE id = $1`,
		id, displayName, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update display name: %w", err)
	}
	return nil
}

// PromoteToAdmin はユーザーを管理者に昇格する。
func (r *PostgresUserRepo) PromoteToAdmin(ctx context.Context, id string, updatedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_admin = true, updated_at = $2 WHERE id = $1 AND NOT is_admin`,
		id, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to promote user: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのユーザーを削除する。
// 関連するuser_oauth_providers、sessionsはCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// execer は*sql.DBと*sql.Txの共通部分。
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertUser(ctx context.Context, db execer, user *model.User) error {
	var passwordHash sql.NullString
	if user.PasswordHash != "" {
		passwordHash = sql.NullString{String: user.PasswordHash, Valid: true}
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, password_hash, is_admin, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Email, user.DisplayName, passwordHash, user.IsAdmin, user.CreatedAt, user.UpdatedAt,
	)
	return err
}

func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	var passwordHash sql.NullString
	err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &passwordHash, &user.IsAdmin, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user.PasswordHash = passwordHash.String
	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
