package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jmehdipour/data-moodboard/internal/datasource"
	"github.com/jmehdipour/data-moodboard/internal/integrations"
	"github.com/jmehdipour/data-moodboard/internal/kafka"
	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/jmehdipour/data-moodboard/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type chanSource struct {
	ch        chan kafka.Message
	mu        sync.Mutex
	committed []int64
}

func (s *chanSource) Fetch(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-s.ch:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (s *chanSource) Commit(_ context.Context, m kafka.Message) error {
	s.mu.Lock()
	s.committed = append(s.committed, m.Offset)
	s.mu.Unlock()
	return nil
}

func (s *chanSource) commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.committed)
}

type stubConns struct {
	repository.ConnectionsRepository
	conns map[string]model.DataConnection
}

func (s stubConns) Get(_ context.Context, _ string, id string) (*model.DataConnection, error) {
	c, ok := s.conns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

type stubTables struct {
	repository.DataTablesRepository
	mu     sync.Mutex
	ready  map[string]model.TableData
	failed map[string]string
}

func (s *stubTables) MarkReady(_ context.Context, id string, data model.TableData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready[id] = data
	return nil
}

func (s *stubTables) MarkFailed(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[id] = reason
	return nil
}

type stubTokens struct{}

func (stubTokens) Token(_ context.Context, conn model.DataConnection) (*oauth2.Token, error) {
	if conn.Status == model.ConnectionExpired {
		return nil, integrations.ErrTokenExpired
	}
	return &oauth2.Token{AccessToken: "tok-" + conn.ID}, nil
}

type stubFetch struct{}

func (stubFetch) Fetch(_ context.Context, p model.Provider, req datasource.Request) (model.TableData, error) {
	if req.AccessToken != "tok-c1" {
		return model.TableData{}, &datasource.StatusError{Provider: p, Status: 403}
	}
	return model.TableData{
		Columns: []model.Column{{Name: "resource", Type: "string"}},
		Rows:    [][]any{{req.Resource}},
	}, nil
}

func envelope(t *testing.T, offset int64, env model.SyncEnvelope) kafka.Message {
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: b}
}

func TestDataSyncProcessesEnvelopes(t *testing.T) {
	src := &chanSource{ch: make(chan kafka.Message, 8)}
	tables := &stubTables{ready: map[string]model.TableData{}, failed: map[string]string{}}
	conns := stubConns{conns: map[string]model.DataConnection{
		"c1": {ID: "c1", Provider: model.ProviderGoogleSheets, Status: model.ConnectionActive},
		"c2": {ID: "c2", Provider: model.ProviderShopify, Status: model.ConnectionExpired},
		"c3": {ID: "c3", Provider: model.ProviderStripe, Status: model.ConnectionActive},
	}}
	w := NewDataSync(src, conns, tables, stubTokens{}, stubFetch{}, 2, time.Second)

	src.ch <- envelope(t, 1, model.SyncEnvelope{TableID: "t1", UserID: "u", ConnectionID: "c1", Resource: "abc!A:B"})
	src.ch <- envelope(t, 2, model.SyncEnvelope{TableID: "t2", UserID: "u", ConnectionID: "c2"})
	src.ch <- envelope(t, 3, model.SyncEnvelope{TableID: "t3", UserID: "u", ConnectionID: "c3"})
	src.ch <- envelope(t, 4, model.SyncEnvelope{TableID: "t4", UserID: "u", ConnectionID: "gone"})
	src.ch <- kafka.Message{Offset: 5, Value: []byte("{not json")}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return src.commits() == 5 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	tables.mu.Lock()
	defer tables.mu.Unlock()
	require.Contains(t, tables.ready, "t1")
	assert.Equal(t, "abc!A:B", tables.ready["t1"].Rows[0][0])
	assert.Equal(t, "connection expired, reconnect the integration", tables.failed["t2"])
	assert.Equal(t, "stripe returned HTTP 403: access was denied", tables.failed["t3"])
	assert.Equal(t, "connection no longer exists", tables.failed["t4"])
	assert.Len(t, tables.failed, 3)
}

func TestRunRequiresDependencies(t *testing.T) {
	err := (&DataSync{}).Run(context.Background())
	assert.Error(t, err)
}
