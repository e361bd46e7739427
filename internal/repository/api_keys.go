package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/jmoiron/sqlx"
)

type APIKeysRepository interface {
	Create(ctx context.Context, k model.APIKey) error
	ListByUser(ctx context.Context, userID string) ([]model.APIKey, error)
	Revoke(ctx context.Context, userID, id string) error
	GetByHash(ctx context.Context, hash string) (*model.APIKey, error)
	TouchLastUsed(ctx context.Context, id string) error
}

type APIKeysRepositoryImpl struct {
	db *sqlx.DB
}

func NewAPIKeysRepository(db *sqlx.DB) *APIKeysRepositoryImpl {
	return &APIKeysRepositoryImpl{db: db}
}

var _ APIKeysRepository = (*APIKeysRepositoryImpl)(nil)

func (r *APIKeysRepositoryImpl) Create(ctx context.Context, k model.APIKey) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, user_id, name, key_hash, prefix, created_at)
		VALUES (?, ?, ?, ?, ?, NOW())
	`, k.ID, k.UserID, k.Name, k.KeyHash, k.Prefix)
	return err
}

func (r *APIKeysRepositoryImpl) ListByUser(ctx context.Context, userID string) ([]model.APIKey, error) {
	rows := []model.APIKey{}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, name, key_hash, prefix, revoked_at, last_used_at, created_at
		FROM api_keys
		WHERE user_id = ?
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *APIKeysRepositoryImpl) Revoke(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE api_keys SET revoked_at = NOW()
		WHERE id = ? AND user_id = ? AND revoked_at IS NULL
	`, id, userID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (r *APIKeysRepositoryImpl) GetByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	var k model.APIKey
	err := r.db.GetContext(ctx, &k, `
		SELECT id, user_id, name, key_hash, prefix, revoked_at, last_used_at, created_at
		FROM api_keys
		WHERE key_hash = ?
		LIMIT 1
	`, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *APIKeysRepositoryImpl) TouchLastUsed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = NOW() WHERE id = ?`, id)
	return err
}
