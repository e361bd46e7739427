package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/jmoiron/sqlx"
)

// ConnectionsRepository persists data_connections and their integration_credentials.
type ConnectionsRepository interface {
	// Save upserts the connection (unique per user+provider+account) and its
	// credentials in one transaction. It returns the stored connection id.
	Save(ctx context.Context, conn model.DataConnection, cred model.IntegrationCredential) (string, error)
	ListByUser(ctx context.Context, userID string) ([]model.DataConnection, error)
	Get(ctx context.Context, userID, id string) (*model.DataConnection, error)
	Delete(ctx context.Context, userID, id string) error
	SetStatus(ctx context.Context, id string, status model.ConnectionStatus) error

	GetCredential(ctx context.Context, connectionID string) (*model.IntegrationCredential, error)
	UpdateCredential(ctx context.Context, cred model.IntegrationCredential) error
}

type ConnectionsRepositoryImpl struct {
	db *sqlx.DB
}

func NewConnectionsRepository(db *sqlx.DB) *ConnectionsRepositoryImpl {
	return &ConnectionsRepositoryImpl{db: db}
}

var _ ConnectionsRepository = (*ConnectionsRepositoryImpl)(nil)

func (r *ConnectionsRepositoryImpl) Save(ctx context.Context, conn model.DataConnection, cred model.IntegrationCredential) (string, error) {
	var id string
	err := withTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO data_connections (id, user_id, provider, account_id, label, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 'active', NOW(), NOW())
			ON DUPLICATE KEY UPDATE
			    label = VALUES(label),
			    status = 'active',
			    updated_at = NOW()
		`, conn.ID, conn.UserID, conn.Provider.String(), conn.AccountID, conn.Label)
		if err != nil {
			return err
		}

		// reconnecting keeps the original id
		if err := tx.GetContext(ctx, &id, `
			SELECT id FROM data_connections
			WHERE user_id = ? AND provider = ? AND account_id = ?
		`, conn.UserID, conn.Provider.String(), conn.AccountID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO integration_credentials
			    (connection_id, access_token, refresh_token, token_type, scope, expires_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, NOW())
			ON DUPLICATE KEY UPDATE
			    access_token = VALUES(access_token),
			    refresh_token = IF(VALUES(refresh_token) = '', refresh_token, VALUES(refresh_token)),
			    token_type = VALUES(token_type),
			    scope = VALUES(scope),
			    expires_at = VALUES(expires_at),
			    updated_at = NOW()
		`, id, cred.AccessToken, cred.RefreshToken, cred.TokenType, cred.Scope, cred.ExpiresAt)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *ConnectionsRepositoryImpl) ListByUser(ctx context.Context, userID string) ([]model.DataConnection, error) {
	rows := []model.DataConnection{}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, provider, account_id, label, status, created_at, updated_at
		FROM data_connections
		WHERE user_id = ?
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ConnectionsRepositoryImpl) Get(ctx context.Context, userID, id string) (*model.DataConnection, error) {
	var c model.DataConnection
	err := r.db.GetContext(ctx, &c, `
		SELECT id, user_id, provider, account_id, label, status, created_at, updated_at
		FROM data_connections
		WHERE id = ? AND user_id = ?
		LIMIT 1
	`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Delete removes the connection; credentials go with it (FK cascade).
func (r *ConnectionsRepositoryImpl) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM data_connections WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (r *ConnectionsRepositoryImpl) SetStatus(ctx context.Context, id string, status model.ConnectionStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE data_connections SET status = ?, updated_at = NOW() WHERE id = ?
	`, string(status), id)
	return err
}

func (r *ConnectionsRepositoryImpl) GetCredential(ctx context.Context, connectionID string) (*model.IntegrationCredential, error) {
	var c model.IntegrationCredential
	err := r.db.GetContext(ctx, &c, `
		SELECT connection_id, access_token, refresh_token, token_type, scope, expires_at, updated_at
		FROM integration_credentials
		WHERE connection_id = ?
		LIMIT 1
	`, connectionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ConnectionsRepositoryImpl) UpdateCredential(ctx context.Context, cred model.IntegrationCredential) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE integration_credentials
		SET access_token = ?,
		    refresh_token = IF(? = '', refresh_token, ?),
		    token_type = ?,
		    expires_at = ?,
		    updated_at = NOW()
		WHERE connection_id = ?
	`, cred.AccessToken, cred.RefreshToken, cred.RefreshToken, cred.TokenType, cred.ExpiresAt, cred.ConnectionID)
	return err
}
