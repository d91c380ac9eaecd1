package entitlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/ferrychris/policyweb-sub000/internal/infra"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SubscriptionSource — источник правды о подписках (Postgres или память).
type SubscriptionSource interface {
	GetSubscription(ctx context.Context, userID string) (*domain.Subscription, error)
}

type cachedPackage struct {
	key       domain.PackageKey
	expiresAt time.Time
}

// MemoCache — in-memory кэш "user_id -> действующий пакет".
// Горячий путь (каждый шаг мастера) читает только память, промах идет в источник.
// Между инстансами кэш синхронизируется сигналами Redis.
type MemoCache struct {
	mu      sync.RWMutex
	entries map[string]cachedPackage

	source SubscriptionSource
	rdb    *redis.Client // может быть nil в single-instance режиме
	logger *zap.Logger
	now    func() time.Time
}

func NewMemoCache(source SubscriptionSource, rdb *redis.Client, logger *zap.Logger) *MemoCache {
	return &MemoCache{
		entries: make(map[string]cachedPackage),
		source:  source,
		rdb:     rdb,
		logger:  logger.Named("entitlements"),
		now:     time.Now,
	}
}

// Resolve возвращает пакет, которым пользователь может пользоваться прямо сейчас.
// Оператор (scope admin) получает premium без подписки.
// Нет подписки или она истекла: "", domain.ErrNoSubscription.
func (c *MemoCache) Resolve(ctx context.Context, claims *domain.CustomClaims) (domain.PackageKey, error) {
	if claims.HasScope(domain.ScopeAdmin) {
		return domain.PackagePremium, nil
	}
	if claims == nil || claims.UserID == "" {
		return "", domain.ErrNoSubscription
	}
	return c.ResolveUser(ctx, claims.UserID)
}

// ResolveUser — то же для пользователя без claims (CLI, фоновые задачи).
func (c *MemoCache) ResolveUser(ctx context.Context, userID string) (domain.PackageKey, error) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[userID]
	c.mu.RUnlock()
	if ok && now.Before(e.expiresAt) {
		return e.key, nil
	}

	sub, err := c.source.GetSubscription(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("entitlements: load subscription: %w", err)
	}
	if !sub.ActiveAt(now) {
		c.Invalidate(userID)
		return "", domain.ErrNoSubscription
	}

	c.mu.Lock()
	c.entries[userID] = cachedPackage{key: sub.PackageKey, expiresAt: sub.ExpiresAt}
	c.mu.Unlock()
	return sub.PackageKey, nil
}

// Invalidate сбрасывает локальную запись пользователя.
func (c *MemoCache) Invalidate(userID string) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}

// Flush сбрасывает весь кэш.
func (c *MemoCache) Flush() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]cachedPackage)
	c.mu.Unlock()
	c.logger.Info("entitlement cache flushed", zap.Int("dropped", n))
}

// Notify сбрасывает локальную запись и рассылает сигнал остальным инстансам.
func (c *MemoCache) Notify(ctx context.Context, userID string) error {
	c.Invalidate(userID)
	if c.rdb == nil {
		return nil
	}
	if err := c.rdb.Publish(ctx, infra.RedisChanSubscriptionUpdate, userID).Err(); err != nil {
		return fmt.Errorf("entitlements: publish invalidation: %w", err)
	}
	return nil
}

// StartListener слушает сигналы инвалидации до отмены ctx.
func (c *MemoCache) StartListener(ctx context.Context) {
	if c.rdb == nil {
		return
	}
	infra.ListenResilient(ctx, c.rdb, c.logger, infra.RedisChanSubscriptionUpdate,
		func() error {
			// Сигналы за время разрыва потеряны, надежнее начать с пустого кэша
			c.Flush()
			return nil
		},
		func(userID string) {
			c.Invalidate(userID)
			c.logger.Debug("subscription changed", zap.String("user_id", userID))
		},
	)
}
