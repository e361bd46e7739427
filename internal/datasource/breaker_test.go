package datasource

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Minute)
	b.now = func() time.Time { return now }

	assert.True(t, b.TryAcquire())
	b.OnFailure()
	assert.False(t, b.Open())
	b.OnFailure()
	assert.True(t, b.Open())
	assert.False(t, b.TryAcquire())

	// one probe after the cool-down
	now = now.Add(time.Minute + time.Second)
	assert.True(t, b.TryAcquire())
	assert.False(t, b.TryAcquire())

	b.OnFailure()
	assert.True(t, b.Open())

	now = now.Add(2 * time.Minute)
	assert.True(t, b.TryAcquire())
	b.OnSuccess()
	assert.False(t, b.Open())
	assert.True(t, b.TryAcquire())
	assert.True(t, b.TryAcquire())
}

func TestBreakerReleaseFreesProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, time.Second)
	b.now = func() time.Time { return now }

	b.OnFailure()
	now = now.Add(2 * time.Second)
	assert.True(t, b.TryAcquire())
	b.Release()
	assert.True(t, b.TryAcquire())
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b := NewBreaker(2, time.Minute)
	b.OnFailure()
	b.OnSuccess()
	b.OnFailure()
	assert.False(t, b.Open())
}
