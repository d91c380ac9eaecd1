// Package payment: списание оплаты за пакет.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/ferrychris/policyweb-sub000/internal/validation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Тестовые карты песочницы
const (
	CardDecline           = "4000000000000002"
	CardInsufficientFunds = "4000000000009995"
)

var (
	ErrDeclined          = errors.New("payment declined")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Receipt: результат успешного списания.
type Receipt struct {
	TransactionID string    `json:"transaction_id"`
	AmountCents   int64     `json:"amount_cents"`
	Method        string    `json:"method"` // "visa •••• 4242"
	ChargedAt     time.Time `json:"charged_at"`
}

// Processor списывает сумму с карты.
type Processor interface {
	Charge(ctx context.Context, amountCents int64, card domain.PaymentDetails) (*Receipt, error)
}

// Sandbox: детерминированный процессор без внешних вызовов. Исход зависит
// только от номера карты.
type Sandbox struct {
	delay  time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewSandbox(delay time.Duration, logger *zap.Logger) *Sandbox {
	return &Sandbox{delay: delay, logger: logger.Named("payment"), now: time.Now}
}

func (s *Sandbox) Charge(ctx context.Context, amountCents int64, card domain.PaymentDetails) (*Receipt, error) {
	card.CardNumber = NormalizeCard(card.CardNumber)
	if err := validation.Struct(card); err != nil {
		return nil, err
	}
	if amountCents <= 0 {
		return nil, fmt.Errorf("payment: invalid amount %d", amountCents)
	}
	if expired(card, s.now()) {
		v := &domain.ValidationError{}
		v.Add("exp_year", "card is expired")
		return nil, v
	}

	// Имитация задержки процессинга
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}

	switch card.CardNumber {
	case CardDecline:
		s.logger.Info("payment declined", zap.String("card", Mask(card.CardNumber)))
		return nil, ErrDeclined
	case CardInsufficientFunds:
		s.logger.Info("payment declined: insufficient funds", zap.String("card", Mask(card.CardNumber)))
		return nil, ErrInsufficientFunds
	}

	r := &Receipt{
		TransactionID: "txn_" + strings.ReplaceAll(uuid.New().String(), "-", ""),
		AmountCents:   amountCents,
		Method:        Brand(card.CardNumber) + " " + Mask(card.CardNumber),
		ChargedAt:     s.now(),
	}
	s.logger.Info("payment captured", zap.String("txn", r.TransactionID), zap.Int64("amount_cents", amountCents))
	return r, nil
}

// NormalizeCard убирает пробелы и дефисы.
func NormalizeCard(n string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(n)
}

// Mask оставляет последние четыре цифры.
func Mask(n string) string {
	if len(n) < 4 {
		return "••••"
	}
	return "•••• " + n[len(n)-4:]
}

// Brand определяет платежную систему по префиксу номера.
func Brand(n string) string {
	switch {
	case strings.HasPrefix(n, "4"):
		return "visa"
	case strings.HasPrefix(n, "34"), strings.HasPrefix(n, "37"):
		return "amex"
	case len(n) >= 2 && n[0] == '5' && n[1] >= '1' && n[1] <= '5':
		return "mastercard"
	case strings.HasPrefix(n, "2"):
		return "mastercard"
	case strings.HasPrefix(n, "6"):
		return "discover"
	}
	return "card"
}

func expired(c domain.PaymentDetails, now time.Time) bool {
	y, m := now.Year(), int(now.Month())
	return c.ExpYear < y || (c.ExpYear == y && c.ExpMonth < m)
}
