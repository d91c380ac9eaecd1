package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ferrychris/policyweb-sub000/internal/audit"
	"github.com/ferrychris/policyweb-sub000/internal/domain"
)

type UserRepo struct {
	mu    sync.RWMutex
	users map[string]domain.User // username -> user
}

func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[string]domain.User)}
}

// GetUserByUsername: nil, nil если пользователя нет (как в postgres).
func (r *UserRepo) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[username]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *UserRepo) CreateUser(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.Username]; ok {
		return fmt.Errorf("memory: user %s: %w", u.Username, domain.ErrUserExists)
	}
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return fmt.Errorf("memory: email %s: %w", u.Email, domain.ErrUserExists)
		}
	}
	r.users[u.Username] = *u
	return nil
}

type SubscriptionRepo struct {
	mu   sync.RWMutex
	subs map[string]domain.Subscription
}

func NewSubscriptionRepo() *SubscriptionRepo {
	return &SubscriptionRepo{subs: make(map[string]domain.Subscription)}
}

func (r *SubscriptionRepo) GetSubscription(_ context.Context, userID string) (*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subs[userID]
	if !ok {
		return nil, fmt.Errorf("memory: subscription for %s: %w", userID, domain.ErrNotFound)
	}
	return &s, nil
}

// UpsertSubscription заменяет подписку пользователя целиком.
func (r *SubscriptionRepo) UpsertSubscription(_ context.Context, s *domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[s.UserID] = *s
	return nil
}

// AuditRepo хранит журнал активности в памяти, последние maxEvents событий.
type AuditRepo struct {
	mu        sync.RWMutex
	events    []audit.Event
	maxEvents int
}

func NewAuditRepo(maxEvents int) *AuditRepo {
	if maxEvents <= 0 {
		maxEvents = 10000
	}
	return &AuditRepo{maxEvents: maxEvents}
}

func (r *AuditRepo) WriteBatch(_ context.Context, events []audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	if over := len(r.events) - r.maxEvents; over > 0 {
		r.events = append([]audit.Event(nil), r.events[over:]...)
	}
	return nil
}

// FetchLogs: новые первыми.
func (r *AuditRepo) FetchLogs(_ context.Context, f audit.Filter) ([]audit.Event, error) {
	r.mu.RLock()
	out := make([]audit.Event, 0)
	for _, e := range r.events {
		if f.UserID != "" && e.UserID != f.UserID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Ping для единообразия с postgres в health-check.
func (r *AuditRepo) Ping(context.Context) error { return nil }
