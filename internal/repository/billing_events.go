package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// BillingEventsRepository records processed Stripe event ids (idempotency keys).
type BillingEventsRepository interface {
	// MarkProcessed returns false when the event was already recorded.
	MarkProcessed(ctx context.Context, tx *sqlx.Tx, eventID, eventType string) (bool, error)
}

type BillingEventsRepositoryImpl struct {
	db *sqlx.DB
}

func NewBillingEventsRepository(db *sqlx.DB) *BillingEventsRepositoryImpl {
	return &BillingEventsRepositoryImpl{db: db}
}

var _ BillingEventsRepository = (*BillingEventsRepositoryImpl)(nil)

func (r *BillingEventsRepositoryImpl) MarkProcessed(ctx context.Context, tx *sqlx.Tx, eventID, eventType string) (bool, error) {
	var inserted bool
	err := withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT IGNORE INTO billing_events (id, type, received_at) VALUES (?, ?, NOW())
		`, eventID, eventType)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n > 0
		return nil
	})
	return inserted, err
}
