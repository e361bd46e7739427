package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/jmoiron/sqlx"
)

type DataTablesRepository interface {
	InsertPending(ctx context.Context, tx *sqlx.Tx, t model.UserDataTable) error
	MarkReady(ctx context.Context, id string, data model.TableData) error
	MarkFailed(ctx context.Context, id, reason string) error
	// ListByUser omits the data payload.
	ListByUser(ctx context.Context, userID string) ([]model.UserDataTable, error)
	Get(ctx context.Context, userID, id string) (*model.UserDataTable, error)
	// GetMany returns the ready tables among ids owned by userID.
	GetMany(ctx context.Context, userID string, ids []string) ([]model.UserDataTable, error)
	Delete(ctx context.Context, userID, id string) error
}

type DataTablesRepositoryImpl struct {
	db *sqlx.DB
}

func NewDataTablesRepository(db *sqlx.DB) *DataTablesRepositoryImpl {
	return &DataTablesRepositoryImpl{db: db}
}

var _ DataTablesRepository = (*DataTablesRepositoryImpl)(nil)

// InsertPending inserts a new table row with status=pending and an empty payload.
func (r *DataTablesRepositoryImpl) InsertPending(ctx context.Context, tx *sqlx.Tx, t model.UserDataTable) error {
	const q = `
		INSERT INTO user_data_tables
		    (id, user_id, connection_id, name, source, resource, status, row_count, data, created_at, updated_at)
		VALUES
		    (?,  ?,       ?,             ?,    ?,      ?,        'pending', 0,   ?,    NOW(),      NOW())
	`
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			t.ID, t.UserID, t.ConnectionID, t.Name, t.Source, t.Resource, model.TableData{},
		)
		return err
	})
}

func (r *DataTablesRepositoryImpl) MarkReady(ctx context.Context, id string, data model.TableData) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_data_tables
		SET status = 'ready', error = NULL, data = ?, row_count = ?, updated_at = NOW()
		WHERE id = ?
	`, data, len(data.Rows), id)
	return err
}

func (r *DataTablesRepositoryImpl) MarkFailed(ctx context.Context, id, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_data_tables
		SET status = 'failed', error = ?, updated_at = NOW()
		WHERE id = ?
	`, reason, id)
	return err
}

func (r *DataTablesRepositoryImpl) ListByUser(ctx context.Context, userID string) ([]model.UserDataTable, error) {
	rows := []model.UserDataTable{}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, connection_id, name, source, resource, status, error, row_count,
		       '{}' AS data, created_at, updated_at
		FROM user_data_tables
		WHERE user_id = ?
		ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *DataTablesRepositoryImpl) Get(ctx context.Context, userID, id string) (*model.UserDataTable, error) {
	var t model.UserDataTable
	err := r.db.GetContext(ctx, &t, `
		SELECT id, user_id, connection_id, name, source, resource, status, error, row_count,
		       data, created_at, updated_at
		FROM user_data_tables
		WHERE id = ? AND user_id = ?
		LIMIT 1
	`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *DataTablesRepositoryImpl) GetMany(ctx context.Context, userID string, ids []string) ([]model.UserDataTable, error) {
	if len(ids) == 0 {
		return []model.UserDataTable{}, nil
	}
	const base = `
		SELECT id, user_id, connection_id, name, source, resource, status, error, row_count,
		       data, created_at, updated_at
		FROM user_data_tables
		WHERE user_id = ? AND status = 'ready' AND id IN (?)
	`
	query, args, err := sqlx.In(base, userID, ids)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	rows := []model.UserDataTable{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *DataTablesRepositoryImpl) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM user_data_tables WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}
