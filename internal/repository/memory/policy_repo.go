// Package memory: хранилища в памяти процесса для локального запуска и тестов.
// Повторяют контракты репозиториев postgres.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/google/uuid"
)

type PolicyRepo struct {
	mu       sync.RWMutex
	policies map[string]domain.GeneratedPolicy
	now      func() time.Time
}

func NewPolicyRepo() *PolicyRepo {
	return &PolicyRepo{
		policies: make(map[string]domain.GeneratedPolicy),
		now:      time.Now,
	}
}

func (r *PolicyRepo) Create(_ context.Context, userID string, p domain.NewPolicy) (*domain.GeneratedPolicy, error) {
	created := p.CreatedAt
	if created.IsZero() {
		created = r.now()
	}
	gp := domain.GeneratedPolicy{
		ID:         uuid.New().String(),
		UserID:     userID,
		Title:      p.Title,
		Type:       p.Type,
		Content:    p.Content,
		Template:   p.Template,
		References: append([]string(nil), p.References...),
		CreatedAt:  created,
	}

	r.mu.Lock()
	r.policies[gp.ID] = gp
	r.mu.Unlock()
	return clonePolicy(gp), nil
}

func (r *PolicyRepo) Get(_ context.Context, id string) (*domain.GeneratedPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[id]
	if !ok {
		return nil, fmt.Errorf("memory: policy %s: %w", id, domain.ErrNotFound)
	}
	return clonePolicy(p), nil
}

// List: политики пользователя, новые первыми.
func (r *PolicyRepo) List(_ context.Context, userID string) ([]domain.GeneratedPolicy, error) {
	r.mu.RLock()
	out := make([]domain.GeneratedPolicy, 0)
	for _, p := range r.policies {
		if p.UserID == userID {
			out = append(out, *clonePolicy(p))
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *PolicyRepo) CountByUser(_ context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, p := range r.policies {
		if p.UserID == userID {
			n++
		}
	}
	return n, nil
}

// CountByType: разбивка для дашборда.
func (r *PolicyRepo) CountByType(_ context.Context, userID string) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int)
	for _, p := range r.policies {
		if p.UserID == userID {
			out[p.Type]++
		}
	}
	return out, nil
}

// Update применяет патч и ставит UpdatedAt. CreatedAt не меняется никогда.
func (r *PolicyRepo) Update(_ context.Context, id string, patch domain.PolicyPatch) (*domain.GeneratedPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.policies[id]
	if !ok {
		return nil, fmt.Errorf("memory: policy %s: %w", id, domain.ErrNotFound)
	}
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Content != nil {
		p.Content = *patch.Content
	}
	if patch.References != nil {
		p.References = append([]string(nil), (*patch.References)...)
	}
	now := r.now()
	if !now.After(p.CreatedAt) {
		now = p.CreatedAt.Add(time.Nanosecond)
	}
	p.UpdatedAt = &now
	r.policies[id] = p
	return clonePolicy(p), nil
}

func (r *PolicyRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.policies[id]; !ok {
		return fmt.Errorf("memory: policy %s: %w", id, domain.ErrNotFound)
	}
	delete(r.policies, id)
	return nil
}

func clonePolicy(p domain.GeneratedPolicy) *domain.GeneratedPolicy {
	cp := p
	cp.References = append([]string(nil), p.References...)
	if p.UpdatedAt != nil {
		t := *p.UpdatedAt
		cp.UpdatedAt = &t
	}
	return &cp
}
