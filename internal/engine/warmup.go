package engine

import (
	"context"
	"time"

	"github.com/ferrychris/policyweb-sub000/internal/infra"
	"go.uber.org/zap"
)

// seedSuspended заливает типы из конфига в SET один раз за жизнь Redis.
// Маркер без TTL ставится через SetNX: кто его поставил, тот и сеет.
// Дальше SET принадлежит оператору, даже если он снял все остановки.
func (m *KillSwitchManager) seedSuspended(ctx context.Context, seed []string) error {
	if len(seed) == 0 {
		return nil
	}

	first, err := m.rdb.SetNX(ctx, infra.RedisKeySuspendedSeeded, time.Now().UTC().Format(time.RFC3339), 0).Result()
	if err != nil {
		m.logger.Warn("seed marker unavailable, skipping config seed", zap.Error(err))
		return nil
	}
	if !first {
		m.logger.Debug("suspended types already seeded, config seed ignored")
		return nil
	}

	// SET мог заполниться до появления маркера
	n, err := m.rdb.SCard(ctx, infra.RedisKeySuspendedTypes).Result()
	if err != nil {
		m.rdb.Del(context.WithoutCancel(ctx), infra.RedisKeySuspendedSeeded)
		return err
	}
	if n > 0 {
		m.logger.Info("suspended types already set by operator, config seed ignored", zap.Int64("current", n))
		return nil
	}

	members := make([]interface{}, len(seed))
	for i, id := range seed {
		members[i] = id
	}
	if err := m.rdb.SAdd(ctx, infra.RedisKeySuspendedTypes, members...).Err(); err != nil {
		// следующий старт попробует снова
		m.rdb.Del(context.WithoutCancel(ctx), infra.RedisKeySuspendedSeeded)
		return err
	}
	m.logger.Info("suspended types seeded from config", zap.Strings("types", seed))
	return nil
}
