// Package activity records product usage events for the admin dashboard.
package activity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmehdipour/data-moodboard/internal/logger"
	"go.uber.org/zap"
)

type Kind string

const (
	Signup         Kind = "signup"
	AIRequest      Kind = "ai_request"
	ImageGenerated Kind = "image_generated"
	DashboardSaved Kind = "dashboard_saved"
)

// Event is one JSONEachRow line for the clickhouse kafka engine table.
type Event struct {
	UserID    string `json:"user_id"`
	Kind      Kind   `json:"kind"`
	CreatedAt string `json:"created_at"`
}

const clickhouseTime = "2006-01-02 15:04:05"

type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Recorder is safe to use as a nil pointer; recording is then a no-op.
type Recorder struct {
	pub Publisher
	now func() time.Time
}

func NewRecorder(pub Publisher) *Recorder {
	return &Recorder{pub: pub, now: time.Now}
}

// Record never fails the caller.
func (r *Recorder) Record(ctx context.Context, userID string, kind Kind) {
	if r == nil || r.pub == nil || userID == "" {
		return
	}
	b, err := json.Marshal(Event{UserID: userID, Kind: kind, CreatedAt: r.now().UTC().Format(clickhouseTime)})
	if err != nil {
		return
	}
	if err := r.pub.Publish(ctx, userID, b); err != nil {
		logger.Log.Debug("activity: publish failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}
