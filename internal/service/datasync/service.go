// Package datasync queues data imports from connected providers.
package datasync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jmehdipour/data-moodboard/internal/metrics"
	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/jmehdipour/data-moodboard/internal/repository"
	"github.com/jmehdipour/data-moodboard/internal/util"
	"github.com/jmoiron/sqlx"
)

const (
	DefaultTopic   = "datasync.requests"
	maxNameLen     = 120
	maxResourceLen = 4000
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrConnectionExpired  = errors.New("connection expired, reconnect required")
	ErrResourceRequired   = errors.New("resource is required")
	ErrResourceTooLong    = errors.New("resource is too long")
)

// defaultResources applies to providers with a single importable resource.
var defaultResources = map[model.Provider]string{
	model.ProviderShopify: "orders",
	model.ProviderStripe:  "charges",
}

// Service writes the pending table row and its outbox event in one transaction.
type Service struct {
	db     *sqlx.DB
	conns  repository.ConnectionsRepository
	tables repository.DataTablesRepository
	outbox repository.OutboxRepository
	topic  string
}

func New(
	db *sqlx.DB,
	conns repository.ConnectionsRepository,
	tables repository.DataTablesRepository,
	outbox repository.OutboxRepository,
	topic string,
) *Service {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Service{db: db, conns: conns, tables: tables, outbox: outbox, topic: topic}
}

type SyncRequest struct {
	UserID       string
	ConnectionID string
	Resource     string
	Name         string
}

// Enqueue validates ownership and resource, then queues the import.
// It returns the id of the pending data table.
func (s *Service) Enqueue(ctx context.Context, req SyncRequest) (string, error) {
	conn, err := s.conns.Get(ctx, req.UserID, req.ConnectionID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrConnectionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load connection: %w", err)
	}
	if conn.Status == model.ConnectionExpired {
		return "", ErrConnectionExpired
	}

	resource := strings.TrimSpace(req.Resource)
	if resource == "" {
		resource = defaultResources[conn.Provider]
	}
	if resource == "" {
		return "", ErrResourceRequired
	}
	if len(resource) > maxResourceLen {
		return "", ErrResourceTooLong
	}

	tableID := util.New()
	table := model.UserDataTable{
		ID:           tableID,
		UserID:       req.UserID,
		ConnectionID: &conn.ID,
		Name:         tableName(req.Name, conn, resource),
		Source:       conn.Provider.String(),
		Resource:     resource,
		Status:       model.TablePending,
	}

	payload, err := json.Marshal(model.SyncEnvelope{
		TableID:      tableID,
		UserID:       req.UserID,
		ConnectionID: conn.ID,
		Provider:     conn.Provider,
		Resource:     resource,
	})
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.tables.InsertPending(ctx, tx, table); err != nil {
		return "", fmt.Errorf("insert pending table: %w", err)
	}
	if err := s.outbox.Insert(ctx, tx, model.OutboxEvent{
		Aggregate:   "data_table",
		AggregateID: tableID,
		Topic:       s.topic,
		Payload:     payload,
	}); err != nil {
		return "", fmt.Errorf("insert outbox: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}

	metrics.DataSyncTotal.WithLabelValues(conn.Provider.String(), "queued").Inc()
	return tableID, nil
}

func tableName(name string, conn *model.DataConnection, resource string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = conn.Label + ": " + resource
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		name = string([]rune(name)[:maxNameLen])
	}
	return name
}
