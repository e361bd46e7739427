package repository

import (
	"context"

	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/jmoiron/sqlx"
)

// OutboxRepository appends events that the CDC connector (Debezium outbox
// router) publishes to Kafka, keyed by aggregate id, on the row's topic.
type OutboxRepository interface {
	// Insert writes ev in tx, or in its own transaction when tx is nil.
	Insert(ctx context.Context, tx *sqlx.Tx, ev model.OutboxEvent) error
}

type OutboxRepositoryImpl struct {
	db *sqlx.DB
}

func NewOutboxRepository(db *sqlx.DB) *OutboxRepositoryImpl {
	return &OutboxRepositoryImpl{db: db}
}

var _ OutboxRepository = (*OutboxRepositoryImpl)(nil)

func (r *OutboxRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, ev model.OutboxEvent) error {
	const q = `
		INSERT INTO outbox (aggregate, aggregate_id, topic, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, NOW(), NOW())
	`
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q, ev.Aggregate, ev.AggregateID, ev.Topic, ev.Payload)
		return err
	})
}
