package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ferrychris/policyweb-sub000/internal/infra"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrGenerationSuspended: оператор остановил генерацию для типа политики.
var ErrGenerationSuspended = errors.New("generation is suspended for this policy type")

const (
	signalSuspend = "suspend"
	signalResume  = "resume"
)

// KillSwitchManager: стоп-кран генерации по типам политик.
// L1: мапа в памяти (горячий путь Generate), L2 — SET в Redis.
// Без Redis состояние живет только в процессе.
type KillSwitchManager struct {
	mu        sync.RWMutex
	suspended map[string]struct{}
	rdb       *redis.Client
	logger    *zap.Logger
}

func NewKillSwitchManager(rdb *redis.Client, logger *zap.Logger) *KillSwitchManager {
	return &KillSwitchManager{
		suspended: make(map[string]struct{}),
		rdb:       rdb,
		logger:    logger.Named("kill-switch"),
	}
}

// Init загружает текущее состояние при старте. seed — типы из конфига,
// ими заливается пустой SET (см. seedSuspended).
func (m *KillSwitchManager) Init(ctx context.Context, seed []string) error {
	if m.rdb == nil {
		m.replace(seed)
		return nil
	}
	if err := m.seedSuspended(ctx, seed); err != nil {
		return fmt.Errorf("kill-switch: warm-up: %w", err)
	}
	return m.reload(ctx)
}

func (m *KillSwitchManager) reload(ctx context.Context) error {
	ids, err := m.rdb.SMembers(ctx, infra.RedisKeySuspendedTypes).Result()
	if err != nil {
		return fmt.Errorf("kill-switch: load suspended set: %w", err)
	}
	m.replace(ids)
	return nil
}

func (m *KillSwitchManager) replace(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}
	m.mu.Lock()
	m.suspended = next
	m.mu.Unlock()
}

// Suspend останавливает генерацию типа на всех инстансах.
func (m *KillSwitchManager) Suspend(ctx context.Context, typeID string) error {
	if m.rdb != nil {
		if err := m.rdb.SAdd(ctx, infra.RedisKeySuspendedTypes, typeID).Err(); err != nil {
			return fmt.Errorf("kill-switch: suspend %s: %w", typeID, err)
		}
		if err := m.rdb.Publish(ctx, infra.RedisChanKillSwitch, signalSuspend+":"+typeID).Err(); err != nil {
			m.logger.Warn("suspend signal not broadcast", zap.String("type", typeID), zap.Error(err))
		}
	}
	m.MarkAsBlocked(typeID)
	m.logger.Warn("generation suspended", zap.String("type", typeID))
	return nil
}

// Resume снимает остановку.
func (m *KillSwitchManager) Resume(ctx context.Context, typeID string) error {
	if m.rdb != nil {
		if err := m.rdb.SRem(ctx, infra.RedisKeySuspendedTypes, typeID).Err(); err != nil {
			return fmt.Errorf("kill-switch: resume %s: %w", typeID, err)
		}
		if err := m.rdb.Publish(ctx, infra.RedisChanKillSwitch, signalResume+":"+typeID).Err(); err != nil {
			m.logger.Warn("resume signal not broadcast", zap.String("type", typeID), zap.Error(err))
		}
	}
	m.MarkAsUnblocked(typeID)
	m.logger.Info("generation resumed", zap.String("type", typeID))
	return nil
}

// MarkAsBlocked: только локальная мапа.
func (m *KillSwitchManager) MarkAsBlocked(typeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspended[typeID] = struct{}{}
}

func (m *KillSwitchManager) MarkAsUnblocked(typeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.suspended, typeID)
}

func (m *KillSwitchManager) IsBlocked(typeID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, blocked := m.suspended[typeID]
	return blocked
}

// List: приостановленные типы по алфавиту.
func (m *KillSwitchManager) List() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.suspended))
	for id := range m.suspended {
		out = append(out, id)
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out
}
