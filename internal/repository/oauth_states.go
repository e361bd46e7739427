package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/jmoiron/sqlx"
)

type OAuthStatesRepository interface {
	Insert(ctx context.Context, st model.OAuthState) error
	// Consume loads and deletes the state in one transaction, so a state can
	// complete at most one callback.
	Consume(ctx context.Context, state string) (*model.OAuthState, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type OAuthStatesRepositoryImpl struct {
	db *sqlx.DB
}

func NewOAuthStatesRepository(db *sqlx.DB) *OAuthStatesRepositoryImpl {
	return &OAuthStatesRepositoryImpl{db: db}
}

var _ OAuthStatesRepository = (*OAuthStatesRepositoryImpl)(nil)

func (r *OAuthStatesRepositoryImpl) Insert(ctx context.Context, st model.OAuthState) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO oauth_states (state, user_id, provider, account, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, NOW())
	`, st.State, st.UserID, st.Provider.String(), st.Account, st.ExpiresAt)
	return err
}

func (r *OAuthStatesRepositoryImpl) Consume(ctx context.Context, state string) (*model.OAuthState, error) {
	var st model.OAuthState
	err := withTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &st, `
			SELECT state, user_id, provider, account, expires_at, created_at
			FROM oauth_states
			WHERE state = ?
			FOR UPDATE
		`, state)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM oauth_states WHERE state = ?`, state)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *OAuthStatesRepositoryImpl) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM oauth_states WHERE expires_at < ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
