package domain

import "time"

// Subscription: текущая подписка пользователя. Одна на пользователя,
// покупка или апгрейд заменяет запись целиком.
type Subscription struct {
	UserID        string     `json:"user_id"`
	Active        bool       `json:"active"`
	PackageKey    PackageKey `json:"package"`
	StartedAt     time.Time  `json:"started_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	AutoRenew     bool       `json:"auto_renew"`
	PaymentMethod string     `json:"payment_method"`
}

// ActiveAt: подписка активна и не истекла на момент now.
func (s *Subscription) ActiveAt(now time.Time) bool {
	return s != nil && s.Active && now.Before(s.ExpiresAt)
}

// PaymentDetails: реквизиты карты для покупки пакета.
type PaymentDetails struct {
	CardNumber string `json:"card_number" validate:"required,credit_card"`
	CardHolder string `json:"card_holder" validate:"required"`
	ExpMonth   int    `json:"exp_month" validate:"required,min=1,max=12"`
	ExpYear    int    `json:"exp_year" validate:"required,min=2000"`
	CVC        string `json:"cvc" validate:"required,numeric,min=3,max=4"`
}

// PurchaseRequest: тело запроса покупки пакета.
type PurchaseRequest struct {
	Package   PackageKey     `json:"package" validate:"required"`
	AutoRenew bool           `json:"auto_renew"`
	Payment   PaymentDetails `json:"payment" validate:"required"`
}
