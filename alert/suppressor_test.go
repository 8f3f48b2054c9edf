package alert

import (
	"context"
	"testing"
	"time"

	"logwarden/core"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSuppressionKey_ScopePrecedence(t *testing.T) {
	assert.Equal(t, "7:corr-1", SuppressionKey(7, &core.LogEntry{
		CorrelationID: "corr-1",
		IPAddress:     "10.0.0.1",
	}), "correlation id wins over IP")

	assert.Equal(t, "7:10.0.0.1", SuppressionKey(7, &core.LogEntry{
		IPAddress: "10.0.0.1",
	}))

	assert.Equal(t, "7:global", SuppressionKey(7, &core.LogEntry{}))
	assert.Equal(t, "7:global", SuppressionKey(7, nil))
}

func TestMemorySuppressor_AllowsOncePerWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := NewMemorySuppressor(time.Minute, 100)
	s.now = func() time.Time { return now }

	ok, err := s.Allow(context.Background(), "1:corr")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = s.Allow(context.Background(), "1:corr")
	assert.False(t, ok, "second trigger inside the window is suppressed")

	now = now.Add(59 * time.Second)
	ok, _ = s.Allow(context.Background(), "1:corr")
	assert.False(t, ok)

	now = now.Add(2 * time.Second)
	ok, _ = s.Allow(context.Background(), "1:corr")
	assert.True(t, ok, "window has elapsed")
}

func TestMemorySuppressor_DistinctKeysDoNotInterfere(t *testing.T) {
	s := NewMemorySuppressor(time.Minute, 100)

	ok, _ := s.Allow(context.Background(), "1:corr-a")
	assert.True(t, ok)
	ok, _ = s.Allow(context.Background(), "1:corr-b")
	assert.True(t, ok, "different correlation scope has its own window")
	ok, _ = s.Allow(context.Background(), "2:corr-a")
	assert.True(t, ok, "different rule has its own window")
}

func TestMemorySuppressor_BoundedEntries(t *testing.T) {
	s := NewMemorySuppressor(time.Minute, 2)

	s.Allow(context.Background(), "a")
	s.Allow(context.Background(), "b")
	s.Allow(context.Background(), "c") // evicts "a"

	ok, _ := s.Allow(context.Background(), "a")
	assert.True(t, ok, "evicted key behaves as never seen")
	ok, _ = s.Allow(context.Background(), "c")
	assert.False(t, ok)
}

func TestRedisSuppressor_AllowsOncePerWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisSuppressor(client, time.Minute, zap.NewNop().Sugar())

	ok, err := s.Allow(context.Background(), "1:corr")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Allow(context.Background(), "1:corr")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(61 * time.Second)

	ok, err = s.Allow(context.Background(), "1:corr")
	require.NoError(t, err)
	assert.True(t, ok, "TTL expiry reopens the window")
}

func TestRedisSuppressor_FailsOpenWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisSuppressor(client, time.Minute, zap.NewNop().Sugar())

	mr.Close()

	ok, err := s.Allow(context.Background(), "1:corr")
	assert.Error(t, err)
	assert.True(t, ok, "a broken suppression backend must not silence alerting")
}
