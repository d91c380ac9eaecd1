package domain

// PackageKey: ключ тарифного пакета. Сравнение строгое (case-sensitive).
type PackageKey string

const (
	PackageBasic        PackageKey = "basic"
	PackageProfessional PackageKey = "professional"
	PackagePremium      PackageKey = "premium"
)

// Unlimited: сентинел для PolicyLimit без ограничения.
const Unlimited = -1

// Package описывает тарифный пакет. Неизменяемые данные каталога.
type Package struct {
	Key         PackageKey `json:"key"`
	Name        string     `json:"name"`
	Price       int        `json:"price"` // USD, целые единицы
	Features    []string   `json:"features"`
	PolicyLimit int        `json:"policy_limit"`

	// AllTypes разрешает весь каталог типов политик, AllowedTypes тогда игнорируется.
	AllTypes     bool     `json:"all_types"`
	AllowedTypes []string `json:"allowed_types,omitempty"`
}

// PriceCents: сумма для платежного процессора.
func (p *Package) PriceCents() int64 {
	return int64(p.Price) * 100
}

// Allows проверяет тип политики против списка пакета.
func (p *Package) Allows(typeID string) bool {
	if p == nil || typeID == "" {
		return false
	}
	if p.AllTypes {
		return true
	}
	for _, id := range p.AllowedTypes {
		if id == typeID {
			return true
		}
	}
	return false
}
