package activity

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPublisher struct {
	keys   []string
	values [][]byte
	err    error
}

func (m *memPublisher) Publish(_ context.Context, key string, value []byte) error {
	m.keys = append(m.keys, key)
	m.values = append(m.values, value)
	return m.err
}

func TestRecordPublishesJSONEachRow(t *testing.T) {
	pub := &memPublisher{}
	r := NewRecorder(pub)
	r.now = func() time.Time { return time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC) }

	r.Record(context.Background(), "u1", AIRequest)

	require.Len(t, pub.values, 1)
	assert.Equal(t, "u1", pub.keys[0])
	var ev Event
	require.NoError(t, json.Unmarshal(pub.values[0], &ev))
	assert.Equal(t, Event{UserID: "u1", Kind: AIRequest, CreatedAt: "2024-06-01 12:30:00"}, ev)
}

func TestRecordIsNilSafeAndSwallowsErrors(t *testing.T) {
	var nilRecorder *Recorder
	nilRecorder.Record(context.Background(), "u1", Signup)

	NewRecorder(nil).Record(context.Background(), "u1", Signup)

	pub := &memPublisher{err: errors.New("broker down")}
	NewRecorder(pub).Record(context.Background(), "u1", Signup)
	assert.Len(t, pub.values, 1)

	NewRecorder(pub).Record(context.Background(), "", Signup)
	assert.Len(t, pub.values, 1)
}
