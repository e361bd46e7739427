package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/data-moodboard/internal/datasource"
	"github.com/jmehdipour/data-moodboard/internal/integrations"
	"github.com/jmehdipour/data-moodboard/internal/kafka"
	"github.com/jmehdipour/data-moodboard/internal/logger"
	"github.com/jmehdipour/data-moodboard/internal/metrics"
	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/jmehdipour/data-moodboard/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// MessageSource is the kafka consumer side used by the worker.
type MessageSource interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

type TokenSource interface {
	Token(ctx context.Context, conn model.DataConnection) (*oauth2.Token, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, p model.Provider, req datasource.Request) (model.TableData, error)
}

// DataSync:
// - fetches sync envelopes from Kafka,
// - resolves a fresh token for the connection,
// - imports the resource through the provider dispatcher,
// - stores the table as ready or failed, then commits.
type DataSync struct {
	Source      MessageSource
	Connections repository.ConnectionsRepository
	Tables      repository.DataTablesRepository
	Tokens      TokenSource
	Fetch       Fetcher

	Workers    int           // goroutines processing messages
	JobTimeout time.Duration // per import
}

func NewDataSync(
	source MessageSource,
	conns repository.ConnectionsRepository,
	tables repository.DataTablesRepository,
	tokens TokenSource,
	fetch Fetcher,
	workers int,
	jobTimeout time.Duration,
) *DataSync {
	return &DataSync{
		Source:      source,
		Connections: conns,
		Tables:      tables,
		Tokens:      tokens,
		Fetch:       fetch,
		Workers:     workers,
		JobTimeout:  jobTimeout,
	}
}

// Run starts the worker and blocks until ctx is cancelled.
func (w *DataSync) Run(ctx context.Context) error {
	if w.Source == nil || w.Fetch == nil || w.Tokens == nil {
		return errors.New("datasync: missing dependencies")
	}
	if w.Workers <= 0 {
		w.Workers = 4
	}
	if w.JobTimeout <= 0 {
		w.JobTimeout = 20 * time.Second
	}

	msgCh := make(chan kafka.Message, w.Workers*2)

	go func() {
		defer close(msgCh)
		for {
			m, err := w.Source.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Log.Warn("datasync: kafka fetch failed", zap.Error(err))
				time.Sleep(200 * time.Millisecond)
				continue
			}
			select {
			case msgCh <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	done := make(chan struct{}, w.Workers)
	for i := 0; i < w.Workers; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for m := range msgCh {
				w.processOne(ctx, m)
			}
		}()
	}

	for i := 0; i < w.Workers; i++ {
		<-done
	}
	return nil
}

func (w *DataSync) processOne(ctx context.Context, m kafka.Message) {
	var env model.SyncEnvelope
	if err := json.Unmarshal(m.Value, &env); err != nil || env.TableID == "" || env.ConnectionID == "" {
		// poison: commit and skip
		logger.Log.Warn("datasync: bad envelope", zap.Int64("offset", m.Offset), zap.Error(err))
		w.commit(ctx, m)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.JobTimeout)
	err := w.sync(jobCtx, env)
	cancel()

	if ctx.Err() != nil {
		// shutting down; leave uncommitted so the job is redelivered
		return
	}

	outcome := "ready"
	if err != nil {
		outcome = "failed"
		if errors.Is(err, datasource.ErrBreakerOpen) {
			outcome = "breaker_open"
		}
		logger.Log.Warn("datasync: import failed",
			zap.String("table_id", env.TableID), zap.String("provider", string(env.Provider)), zap.Error(err))
		if merr := w.Tables.MarkFailed(ctx, env.TableID, failureReason(err)); merr != nil {
			logger.Log.Error("datasync: mark failed", zap.String("table_id", env.TableID), zap.Error(merr))
		}
	}
	metrics.DataSyncTotal.WithLabelValues(string(env.Provider), outcome).Inc()

	// at-least-once; MarkReady/MarkFailed are idempotent
	w.commit(ctx, m)
}

func (w *DataSync) sync(ctx context.Context, env model.SyncEnvelope) error {
	conn, err := w.Connections.Get(ctx, env.UserID, env.ConnectionID)
	if err != nil {
		return fmt.Errorf("load connection: %w", err)
	}
	tok, err := w.Tokens.Token(ctx, *conn)
	if err != nil {
		return err
	}
	data, err := w.Fetch.Fetch(ctx, conn.Provider, datasource.Request{
		AccessToken: tok.AccessToken,
		AccountID:   conn.AccountID,
		Resource:    env.Resource,
	})
	if err != nil {
		return err
	}
	if err := w.Tables.MarkReady(ctx, env.TableID, data); err != nil {
		return fmt.Errorf("store table: %w", err)
	}
	logger.Log.Info("datasync: table ready",
		zap.String("table_id", env.TableID), zap.Int("rows", len(data.Rows)), zap.Int("columns", len(data.Columns)))
	return nil
}

func (w *DataSync) commit(ctx context.Context, m kafka.Message) {
	if err := w.Source.Commit(ctx, m); err != nil {
		logger.Log.Error("datasync: commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
	}
}

const maxReasonLen = 500

// failureReason is the message stored on the failed table and shown to the user.
func failureReason(err error) string {
	var se *datasource.StatusError
	var msg string
	switch {
	case errors.Is(err, repository.ErrNotFound):
		msg = "connection no longer exists"
	case errors.Is(err, integrations.ErrTokenExpired):
		msg = "connection expired, reconnect the integration"
	case errors.Is(err, datasource.ErrBreakerOpen):
		msg = "provider is temporarily unavailable, try again later"
	case errors.Is(err, context.DeadlineExceeded):
		msg = "import timed out"
	case errors.As(err, &se):
		msg = fmt.Sprintf("%s returned HTTP %d", se.Provider, se.Status)
		if se.Status == 401 || se.Status == 403 {
			msg += ": access was denied"
		}
	default:
		msg = err.Error()
	}
	if len(msg) > maxReasonLen {
		msg = msg[:maxReasonLen]
	}
	return msg
}
