package service

import (
	"context"
	"errors"
	"sort"

	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/ferrychris/policyweb-sub000/internal/entitlement"
)

// PackageResolver: действующий пакет пользователя (entitlement.MemoCache).
type PackageResolver interface {
	Resolve(ctx context.Context, claims *domain.CustomClaims) (domain.PackageKey, error)
}

// Entitlements: ответ GET /v1/entitlements.
type Entitlements struct {
	Package     domain.PackageKey   `json:"package,omitempty"`
	Active      bool                `json:"active"`
	PolicyTypes []domain.PolicyType `json:"policy_types"`
	Limit       int                 `json:"limit"`
}

// DashboardService собирает сводку личного кабинета.
type DashboardService struct {
	packages PackageResolver
	resolver *entitlement.Resolver
	types    interface {
		PolicyTypes() []domain.PolicyType
	}
	policies *PolicyService
	subs     SubscriptionStore
}

func NewDashboardService(packages PackageResolver, resolver *entitlement.Resolver,
	types interface{ PolicyTypes() []domain.PolicyType }, policies *PolicyService, subs SubscriptionStore) *DashboardService {
	return &DashboardService{packages: packages, resolver: resolver, types: types, policies: policies, subs: subs}
}

// Package: действующий пакет. Без подписки: "" и nil, решение принимает вызывающий.
func (s *DashboardService) Package(ctx context.Context, claims *domain.CustomClaims) (domain.PackageKey, error) {
	key, err := s.packages.Resolve(ctx, claims)
	if errors.Is(err, domain.ErrNoSubscription) {
		return "", nil
	}
	return key, err
}

func (s *DashboardService) Entitlements(ctx context.Context, claims *domain.CustomClaims) (*Entitlements, error) {
	key, err := s.Package(ctx, claims)
	if err != nil {
		return nil, err
	}
	out := &Entitlements{Package: key, Active: key != "", PolicyTypes: []domain.PolicyType{}}
	allowed := s.resolver.PolicyTypesForPackage(key)
	byID := make(map[string]bool, len(allowed))
	for _, id := range allowed {
		byID[id] = true
	}
	for _, t := range s.types.PolicyTypes() {
		if byID[t.ID] {
			out.PolicyTypes = append(out.PolicyTypes, t)
		}
	}
	if limit, ok := s.resolver.PolicyLimit(key); ok {
		out.Limit = limit
	}
	return out, nil
}

// QuickActions: первые count доступных типов.
func (s *DashboardService) QuickActions(ctx context.Context, claims *domain.CustomClaims, count int) ([]domain.PolicyType, error) {
	key, err := s.Package(ctx, claims)
	if err != nil {
		return nil, err
	}
	return s.resolver.QuickActions(key, count), nil
}

const recentLimit = 5

func (s *DashboardService) Get(ctx context.Context, claims *domain.CustomClaims) (*domain.Dashboard, error) {
	key, err := s.Package(ctx, claims)
	if err != nil {
		return nil, err
	}
	d := &domain.Dashboard{Package: key, QuickActions: s.resolver.QuickActions(key, 4), Recent: []domain.PolicyDigest{}}

	if sub, err := s.subs.GetSubscription(ctx, claims.UserID); err == nil {
		d.Subscription = sub
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	total, byType, err := s.policies.Usage(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	d.Usage = domain.UsageStats{Policies: total, ByType: byType}
	limit, ok := s.resolver.PolicyLimit(key)
	switch {
	case !ok:
		d.Usage.Limit, d.Usage.Remaining = 0, 0
	case limit == domain.Unlimited:
		d.Usage.Limit, d.Usage.Remaining = domain.Unlimited, domain.Unlimited
	default:
		d.Usage.Limit = limit
		d.Usage.Remaining = max(limit-total, 0)
	}

	list, err := s.policies.List(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	for i, p := range list {
		if i == recentLimit {
			break
		}
		d.Recent = append(d.Recent, domain.PolicyDigest{ID: p.ID, Title: p.Title, Type: p.Type, CreatedAt: p.CreatedAt})
	}
	return d, nil
}
