// Package rediscache: кэш списков политик в Redis поверх основного хранилища.
//
// Схема cache-aside: List читает кэш, при промахе идет в хранилище и кладет
// результат с TTL. Любая мутация удаляет ключ пользователя и публикует событие
// в infra.RedisChanPolicyEvents. Каждый инстанс слушает канал и удаляет ключ
// повторно: так закрывается гонка, когда параллельный List успел положить в кэш
// список, прочитанный до мутации. Недоступность Redis не ломает запросы.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/ferrychris/policyweb-sub000/internal/infra"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Backend: основное хранилище политик (postgres или memory).
type Backend interface {
	Create(ctx context.Context, userID string, p domain.NewPolicy) (*domain.GeneratedPolicy, error)
	Get(ctx context.Context, id string) (*domain.GeneratedPolicy, error)
	List(ctx context.Context, userID string) ([]domain.GeneratedPolicy, error)
	Update(ctx context.Context, id string, patch domain.PolicyPatch) (*domain.GeneratedPolicy, error)
	Delete(ctx context.Context, id string) error
	CountByUser(ctx context.Context, userID string) (int, error)
	CountByType(ctx context.Context, userID string) (map[string]int, error)
}

// Действия в событиях канала политик
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

type PolicyCache struct {
	Backend
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewPolicyCache(backend Backend, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *PolicyCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &PolicyCache{Backend: backend, rdb: rdb, ttl: ttl, logger: logger.Named("policy-cache")}
}

func (c *PolicyCache) List(ctx context.Context, userID string) ([]domain.GeneratedPolicy, error) {
	key := infra.PolicyListKey(userID)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var out []domain.GeneratedPolicy
		if jsonErr := json.Unmarshal(raw, &out); jsonErr == nil {
			return out, nil
		}
		c.logger.Warn("corrupted cache entry, dropping", zap.String("key", key))
		c.rdb.Del(ctx, key)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("redis get failed, reading from store", zap.Error(err))
	}

	list, err := c.Backend.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(list); err == nil {
		if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Warn("redis set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return list, nil
}

func (c *PolicyCache) Create(ctx context.Context, userID string, p domain.NewPolicy) (*domain.GeneratedPolicy, error) {
	gp, err := c.Backend.Create(ctx, userID, p)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, EventCreated, userID, gp.ID)
	return gp, nil
}

func (c *PolicyCache) Update(ctx context.Context, id string, patch domain.PolicyPatch) (*domain.GeneratedPolicy, error) {
	gp, err := c.Backend.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, EventUpdated, gp.UserID, gp.ID)
	return gp, nil
}

// Delete сначала читает запись, чтобы знать чей кэш сбрасывать.
func (c *PolicyCache) Delete(ctx context.Context, id string) error {
	gp, err := c.Backend.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := c.Backend.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, EventDeleted, gp.UserID, id)
	return nil
}

func (c *PolicyCache) invalidate(ctx context.Context, action, userID, policyID string) {
	if err := c.rdb.Del(ctx, infra.PolicyListKey(userID)).Err(); err != nil {
		c.logger.Warn("cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
	}
	payload := fmt.Sprintf("%s:%s:%s", action, userID, policyID)
	if err := c.rdb.Publish(ctx, infra.RedisChanPolicyEvents, payload).Err(); err != nil {
		c.logger.Warn("policy event publish failed", zap.String("payload", payload), zap.Error(err))
	}
}

// StartListener слушает события политик до отмены ctx.
func (c *PolicyCache) StartListener(ctx context.Context) {
	infra.ListenResilient(ctx, c.rdb, c.logger, infra.RedisChanPolicyEvents,
		func() error { return nil }, // ключи живут с TTL, после разрыва догонять нечего
		func(payload string) {
			action, userID, ok := parseEvent(payload)
			if !ok {
				c.logger.Warn("malformed policy event", zap.String("payload", payload))
				return
			}
			if err := c.rdb.Del(ctx, infra.PolicyListKey(userID)).Err(); err != nil {
				c.logger.Warn("cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
				return
			}
			c.logger.Debug("policy list invalidated", zap.String("action", action), zap.String("user_id", userID))
		},
	)
}

// parseEvent разбирает "<action>:<user_id>:<policy_id>".
func parseEvent(payload string) (action, userID string, ok bool) {
	parts := strings.SplitN(payload, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
