package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// ImageUsageRepository counts generated images per user per UTC day (ai_image_usage).
type ImageUsageRepository interface {
	// Increment atomically adds one and returns the new count.
	Increment(ctx context.Context, userID, day string) (int, error)
	// Decrement undoes one Increment; it never goes below zero.
	Decrement(ctx context.Context, userID, day string) error
	Get(ctx context.Context, userID, day string) (int, error)
}

type ImageUsageRepositoryImpl struct {
	db *sqlx.DB
}

func NewImageUsageRepository(db *sqlx.DB) *ImageUsageRepositoryImpl {
	return &ImageUsageRepositoryImpl{db: db}
}

var _ ImageUsageRepository = (*ImageUsageRepositoryImpl)(nil)

func (r *ImageUsageRepositoryImpl) Increment(ctx context.Context, userID, day string) (int, error) {
	var count int
	err := withTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ai_image_usage (user_id, usage_date, count, updated_at)
			VALUES (?, ?, 1, NOW())
			ON DUPLICATE KEY UPDATE count = count + 1, updated_at = NOW()
		`, userID, day); err != nil {
			return err
		}
		// the row lock taken by the upsert keeps this read consistent with our increment
		return tx.GetContext(ctx, &count, `
			SELECT count FROM ai_image_usage WHERE user_id = ? AND usage_date = ?
		`, userID, day)
	})
	return count, err
}

func (r *ImageUsageRepositoryImpl) Decrement(ctx context.Context, userID, day string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE ai_image_usage
		SET count = GREATEST(count - 1, 0), updated_at = NOW()
		WHERE user_id = ? AND usage_date = ?
	`, userID, day)
	return err
}

func (r *ImageUsageRepositoryImpl) Get(ctx context.Context, userID, day string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT count FROM ai_image_usage WHERE user_id = ? AND usage_date = ?
	`, userID, day)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return count, err
}
