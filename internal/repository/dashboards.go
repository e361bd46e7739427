package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/jmoiron/sqlx"
)

// DashboardsRepository persists dashboards. Every call is scoped by owner.
type DashboardsRepository interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.DashboardSummary, error)
	Get(ctx context.Context, userID, id string) (*model.Dashboard, error)
	Create(ctx context.Context, d model.Dashboard) error
	Update(ctx context.Context, d model.Dashboard) error
	Delete(ctx context.Context, userID, id string) error
}

type DashboardsRepositoryImpl struct {
	db *sqlx.DB
}

func NewDashboardsRepository(db *sqlx.DB) *DashboardsRepositoryImpl {
	return &DashboardsRepositoryImpl{db: db}
}

var _ DashboardsRepository = (*DashboardsRepositoryImpl)(nil)

func (r *DashboardsRepositoryImpl) ListByUser(ctx context.Context, userID string, limit, offset int) ([]model.DashboardSummary, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows := []model.DashboardSummary{}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, name, COALESCE(JSON_LENGTH(canvas, '$.items'), 0) AS item_count, updated_at
		FROM dashboards
		WHERE user_id = ?
		ORDER BY updated_at DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *DashboardsRepositoryImpl) Get(ctx context.Context, userID, id string) (*model.Dashboard, error) {
	var d model.Dashboard
	err := r.db.GetContext(ctx, &d, `
		SELECT id, user_id, name, canvas, created_at, updated_at
		FROM dashboards
		WHERE id = ? AND user_id = ?
		LIMIT 1
	`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DashboardsRepositoryImpl) Create(ctx context.Context, d model.Dashboard) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dashboards (id, user_id, name, canvas, created_at, updated_at)
		VALUES (?, ?, ?, ?, NOW(), NOW())
	`, d.ID, d.UserID, d.Name, d.Canvas)
	return err
}

func (r *DashboardsRepositoryImpl) Update(ctx context.Context, d model.Dashboard) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE dashboards
		SET name = ?, canvas = ?, updated_at = NOW()
		WHERE id = ? AND user_id = ?
	`, d.Name, d.Canvas, d.ID, d.UserID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (r *DashboardsRepositoryImpl) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM dashboards WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// mustAffect maps "zero rows touched" to ErrNotFound.
func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
