package payment

import (
	"context"
	"testing"
	"time"

	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func card(number string) domain.PaymentDetails {
	return domain.PaymentDetails{
		CardNumber: number,
		CardHolder: "Jane Doe",
		ExpMonth:   12,
		ExpYear:    2099,
		CVC:        "123",
	}
}

func TestSandboxCharge(t *testing.T) {
	s := NewSandbox(0, zap.NewNop())

	tests := []struct {
		name    string
		card    domain.PaymentDetails
		wantErr error
		method  string
	}{
		{name: "visa ok", card: card("4242 4242 4242 4242"), method: "visa •••• 4242"},
		{name: "mastercard ok", card: card("5555-5555-5555-4444"), method: "mastercard •••• 4444"},
		{name: "declined", card: card(CardDecline), wantErr: ErrDeclined},
		{name: "insufficient funds", card: card(CardInsufficientFunds), wantErr: ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := s.Charge(context.Background(), 29900, tt.card)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, r)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.method, r.Method)
			assert.Equal(t, int64(29900), r.AmountCents)
			assert.NotEmpty(t, r.TransactionID)
		})
	}
}

func TestSandboxRejectsInvalidCards(t *testing.T) {
	s := NewSandbox(0, zap.NewNop())

	bad := card("4242424242424241") // не проходит Luhn
	_, err := s.Charge(context.Background(), 100, bad)
	vErr, ok := domain.IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "card_number", vErr.Fields[0].Field)

	c := card("4242424242424242")
	c.CVC = "12a"
	_, err = s.Charge(context.Background(), 100, c)
	_, ok = domain.IsValidation(err)
	assert.True(t, ok)

	c = card("4242424242424242")
	c.ExpYear = time.Now().Year() - 1
	_, err = s.Charge(context.Background(), 100, c)
	_, ok = domain.IsValidation(err)
	assert.True(t, ok)
}

func TestSandboxHonorsContext(t *testing.T) {
	s := NewSandbox(time.Minute, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Charge(ctx, 100, card("4242424242424242"))
	assert.ErrorIs(t, err, context.Canceled)
}
