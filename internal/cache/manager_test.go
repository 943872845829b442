package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/store"
)

func setupTestRedis(t *testing.T) *Manager {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	manager, err := NewManager(Config{
		Addr:       mr.Addr(),
		DefaultTTL: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	return manager
}

func TestManager_SetAndGet(t *testing.T) {
	manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k", "v", time.Minute))

	value, err := manager.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)
}

func TestManager_GetMiss(t *testing.T) {
	manager := setupTestRedis(t)

	_, err := manager.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestManager_JSONRoundTrip(t *testing.T) {
	manager := setupTestRedis(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	require.NoError(t, manager.SetJSON(ctx, "p", payload{Name: "x", Count: 3}, 0))

	var got payload
	require.NoError(t, manager.GetJSON(ctx, "p", &got))
	assert.Equal(t, payload{Name: "x", Count: 3}, got)
}

func TestManager_Delete(t *testing.T) {
	manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k", "v", 0))
	require.NoError(t, manager.Delete(ctx, "k"))

	_, err := manager.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestManager_ClosedRejectsCalls(t *testing.T) {
	manager := setupTestRedis(t)
	require.NoError(t, manager.Close())

	_, err := manager.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestHistoryCache(t *testing.T) {
	manager := setupTestRedis(t)
	hc := NewHistoryCache(manager, time.Minute, zap.NewNop())
	ctx := context.Background()

	_, ok := hc.Get(ctx, "s1")
	assert.False(t, ok)

	turns := []store.ConversationTurn{
		{TurnNumber: 0, UserQuery: "q0", AgentResponse: "a0", Provider: "openai", Model: "gpt-4o-mini"},
		{TurnNumber: 1, UserQuery: "q1", AgentResponse: "a1", Provider: "openai", Model: "gpt-4o-mini"},
	}
	hc.Put(ctx, "s1", turns)

	got, ok := hc.Get(ctx, "s1")
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "q1", got[1].UserQuery)

	hc.Invalidate(ctx, "s1")
	_, ok = hc.Get(ctx, "s1")
	assert.False(t, ok)
}

type fakeCacheRecorder struct {
	hits   int
	misses int
}

func (f *fakeCacheRecorder) RecordCacheHit(string)  { f.hits++ }
func (f *fakeCacheRecorder) RecordCacheMiss(string) { f.misses++ }

func TestHistoryCacheRecordsHitsAndMisses(t *testing.T) {
	manager := setupTestRedis(t)
	hc := NewHistoryCache(manager, time.Minute, zap.NewNop())
	recorder := &fakeCacheRecorder{}
	hc.SetMetrics(recorder)
	ctx := context.Background()

	_, ok := hc.Get(ctx, "s1")
	assert.False(t, ok)

	hc.Put(ctx, "s1", []store.ConversationTurn{{TurnNumber: 0, UserQuery: "q0"}})
	_, ok = hc.Get(ctx, "s1")
	assert.True(t, ok)

	assert.Equal(t, 1, recorder.hits)
	assert.Equal(t, 1, recorder.misses)
}
