package datasync

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/jmehdipour/data-moodboard/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var connColumns = []string{"id", "user_id", "provider", "account_id", "label", "status", "created_at", "updated_at"}

func newService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })

	db := sqlx.NewDb(raw, "mysql")
	svc := New(db,
		repository.NewConnectionsRepository(db),
		repository.NewDataTablesRepository(db),
		repository.NewOutboxRepository(db),
		"",
	)
	return svc, mock
}

func expectConnection(mock sqlmock.Sqlmock, provider model.Provider, status model.ConnectionStatus) {
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM data_connections")).
		WithArgs("conn-1", "user-1").
		WillReturnRows(sqlmock.NewRows(connColumns).
			AddRow("conn-1", "user-1", string(provider), "", "Google Sheets", string(status), now, now))
}

func TestEnqueueWritesTableAndOutboxInOneTx(t *testing.T) {
	svc, mock := newService(t)
	expectConnection(mock, model.ProviderGoogleSheets, model.ConnectionActive)

	var payload []byte
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_data_tables")).
		WithArgs(sqlmock.AnyArg(), "user-1", "conn-1", "Q1 sales", "google_sheets", "abc!A1:C", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox")).
		WithArgs("data_table", sqlmock.AnyArg(), DefaultTopic, capture(&payload)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	id, err := svc.Enqueue(context.Background(), SyncRequest{
		UserID: "user-1", ConnectionID: "conn-1", Resource: " abc!A1:C ", Name: "Q1 sales",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	var env model.SyncEnvelope
	require.NoError(t, json.Unmarshal(payload, &env))
	assert.Equal(t, id, env.TableID)
	assert.Equal(t, model.ProviderGoogleSheets, env.Provider)
	assert.Equal(t, "abc!A1:C", env.Resource)
}

func TestEnqueueRollsBackOnOutboxFailure(t *testing.T) {
	svc, mock := newService(t)
	expectConnection(mock, model.ProviderShopify, model.ConnectionActive)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_data_tables")).
		WithArgs(sqlmock.AnyArg(), "user-1", "conn-1", "Google Sheets: orders", "shopify", "orders", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox")).WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	_, err := svc.Enqueue(context.Background(), SyncRequest{UserID: "user-1", ConnectionID: "conn-1"})
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueValidation(t *testing.T) {
	svc, mock := newService(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM data_connections")).
		WithArgs("conn-1", "user-1").
		WillReturnRows(sqlmock.NewRows(connColumns))
	_, err := svc.Enqueue(context.Background(), SyncRequest{UserID: "user-1", ConnectionID: "conn-1", Resource: "x"})
	assert.ErrorIs(t, err, ErrConnectionNotFound)

	expectConnection(mock, model.ProviderGoogleSheets, model.ConnectionExpired)
	_, err = svc.Enqueue(context.Background(), SyncRequest{UserID: "user-1", ConnectionID: "conn-1", Resource: "x"})
	assert.ErrorIs(t, err, ErrConnectionExpired)

	expectConnection(mock, model.ProviderBigQuery, model.ConnectionActive)
	_, err = svc.Enqueue(context.Background(), SyncRequest{UserID: "user-1", ConnectionID: "conn-1"})
	assert.ErrorIs(t, err, ErrResourceRequired)

	require.NoError(t, mock.ExpectationsWereMet())
}

// captureArg records the driver value it is matched against.
type captureArg struct{ dst *[]byte }

func capture(dst *[]byte) captureArg { return captureArg{dst: dst} }

func (c captureArg) Match(v driver.Value) bool {
	switch b := v.(type) {
	case []byte:
		*c.dst = append([]byte(nil), b...)
		return true
	case string:
		*c.dst = []byte(b)
		return true
	}
	return false
}
