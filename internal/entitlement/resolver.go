// Package entitlement решает, какие типы политик доступны пакету.
// Все функции резолвера чистые: зависят только от статического каталога.
// Неизвестный или пустой ключ пакета никогда не приравнивается к basic (fail closed).
package entitlement

import (
	"fmt"

	"github.com/ferrychris/policyweb-sub000/internal/domain"
)

// PackageCatalog: то, что резолверу нужно от каталога.
type PackageCatalog interface {
	GetPackage(key domain.PackageKey) (*domain.Package, bool)
	PolicyTypes() []domain.PolicyType
}

type Resolver struct {
	catalog PackageCatalog
}

func NewResolver(c PackageCatalog) *Resolver {
	return &Resolver{catalog: c}
}

// PolicyTypesForPackage возвращает id разрешенных типов в порядке каталога.
func (r *Resolver) PolicyTypesForPackage(key domain.PackageKey) []string {
	pkg, ok := r.catalog.GetPackage(key)
	if !ok {
		return []string{}
	}

	ids := make([]string, 0)
	for _, t := range r.catalog.PolicyTypes() {
		if pkg.Allows(t.ID) {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// IsPolicyAllowed: false, если тип или пакет пустые либо неизвестные.
func (r *Resolver) IsPolicyAllowed(typeID string, key domain.PackageKey) bool {
	if typeID == "" || key == "" {
		return false
	}
	pkg, ok := r.catalog.GetPackage(key)
	if !ok {
		return false
	}
	return pkg.Allows(typeID)
}

// QuickActions: первые count разрешенных типов.
func (r *Resolver) QuickActions(key domain.PackageKey, count int) []domain.PolicyType {
	if count <= 0 {
		return []domain.PolicyType{}
	}
	pkg, ok := r.catalog.GetPackage(key)
	if !ok {
		return []domain.PolicyType{}
	}

	out := make([]domain.PolicyType, 0, count)
	for _, t := range r.catalog.PolicyTypes() {
		if len(out) == count {
			break
		}
		if pkg.Allows(t.ID) {
			out = append(out, t)
		}
	}
	return out
}

// PolicyLimit: лимит сохраненных политик. domain.Unlimited для premium.
func (r *Resolver) PolicyLimit(key domain.PackageKey) (int, bool) {
	pkg, ok := r.catalog.GetPackage(key)
	if !ok {
		return 0, false
	}
	return pkg.PolicyLimit, true
}

// Authorize: то же, что IsPolicyAllowed, но с ошибкой для ответа пользователю.
func (r *Resolver) Authorize(typeID string, key domain.PackageKey) error {
	if key == "" {
		return domain.ErrNoSubscription
	}
	if r.IsPolicyAllowed(typeID, key) {
		return nil
	}
	return fmt.Errorf("%w: %q is not available on %q", domain.ErrNotAllowed, typeID, key)
}

// CheckLimit проверяет, можно ли сохранить еще одну политику при current уже сохраненных.
func (r *Resolver) CheckLimit(key domain.PackageKey, current int) error {
	limit, ok := r.PolicyLimit(key)
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownPackage, key)
	}
	if limit == domain.Unlimited || current < limit {
		return nil
	}
	return fmt.Errorf("%w: %d of %d used", domain.ErrPolicyLimitReached, current, limit)
}
