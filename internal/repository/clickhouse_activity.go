package repository

import (
	"context"

	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/jmoiron/sqlx"
)

// CHActivityRepository reads the daily activity rollup from ClickHouse.
type CHActivityRepository interface {
	Daily(ctx context.Context, days int) ([]model.ActivityPoint, error)
}

type chActivityRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHActivityRepository(ch *sqlx.DB) CHActivityRepository {
	return &chActivityRepository{ch: ch}
}

func (r *chActivityRepository) Daily(ctx context.Context, days int) ([]model.ActivityPoint, error) {
	if days <= 0 || days > 90 {
		days = 14
	}

	const q = `
		SELECT day, active_users, ai_requests, images_generated, signups
		FROM moodboard.activity_daily
		WHERE day >= toString(today() - ?)
		ORDER BY day ASC
	`

	rows := []model.ActivityPoint{}
	if err := r.ch.SelectContext(ctx, &rows, q, days-1); err != nil {
		return nil, err
	}
	return rows, nil
}
