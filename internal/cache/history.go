package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/store"
)

// MetricsRecorder receives hit/miss outcomes. A nil recorder disables
// recording.
type MetricsRecorder interface {
	RecordCacheHit(cache string)
	RecordCacheMiss(cache string)
}

// HistoryCache caches recent conversation turns so the prompt builder does
// not hit Postgres on every request. Entries are invalidated whenever a turn
// is saved; stale reads are otherwise bounded by the TTL.
type HistoryCache struct {
	manager *Manager
	ttl     time.Duration
	metrics MetricsRecorder
	logger  *zap.Logger
}

// NewHistoryCache wraps a cache manager for conversation history.
func NewHistoryCache(manager *Manager, ttl time.Duration, logger *zap.Logger) *HistoryCache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryCache{
		manager: manager,
		ttl:     ttl,
		logger:  logger.With(zap.String("component", "history_cache")),
	}
}

func historyKey(sessionID string) string {
	return fmt.Sprintf("paperflow:history:%s", sessionID)
}

// SetMetrics attaches a hit/miss recorder; call before serving traffic.
func (c *HistoryCache) SetMetrics(m MetricsRecorder) {
	c.metrics = m
}

// Get returns the cached turns and whether the entry was present. Cache
// errors degrade to a miss; history caching is never load-bearing.
func (c *HistoryCache) Get(ctx context.Context, sessionID string) ([]store.ConversationTurn, bool) {
	var turns []store.ConversationTurn
	err := c.manager.GetJSON(ctx, historyKey(sessionID), &turns)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn("history cache read failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		if c.metrics != nil {
			c.metrics.RecordCacheMiss("history")
		}
		return nil, false
	}
	if c.metrics != nil {
		c.metrics.RecordCacheHit("history")
	}
	return turns, true
}

// Put stores the turns for a session.
func (c *HistoryCache) Put(ctx context.Context, sessionID string, turns []store.ConversationTurn) {
	if err := c.manager.SetJSON(ctx, historyKey(sessionID), turns, c.ttl); err != nil {
		c.logger.Warn("history cache write failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// Invalidate drops the entry for a session. Called after every saved turn.
func (c *HistoryCache) Invalidate(ctx context.Context, sessionID string) {
	if err := c.manager.Delete(ctx, historyKey(sessionID)); err != nil {
		c.logger.Warn("history cache invalidation failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}
