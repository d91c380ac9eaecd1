package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ferrychris/policyweb-sub000/internal/domain"
)

type SubscriptionRepo struct {
	db *sql.DB
}

func NewSubscriptionRepo(db *sql.DB) *SubscriptionRepo {
	return &SubscriptionRepo{db: db}
}

func (r *SubscriptionRepo) GetSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	query := `
		SELECT user_id, active, package, started_at, expires_at, auto_renew, payment_method
		FROM subscriptions WHERE user_id = $1`

	var s domain.Subscription
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&s.UserID, &s.Active, &s.PackageKey, &s.StartedAt, &s.ExpiresAt, &s.AutoRenew, &s.PaymentMethod,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("postgres: subscription for %s: %w", userID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: failed to get subscription: %w", err)
	}
	return &s, nil
}

// UpsertSubscription заменяет подписку пользователя за один запрос.
func (r *SubscriptionRepo) UpsertSubscription(ctx context.Context, s *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (user_id, active, package, started_at, expires_at, auto_renew, payment_method)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE
		SET active = EXCLUDED.active,
		    package = EXCLUDED.package,
		    started_at = EXCLUDED.started_at,
		    expires_at = EXCLUDED.expires_at,
		    auto_renew = EXCLUDED.auto_renew,
		    payment_method = EXCLUDED.payment_method`

	_, err := r.db.ExecContext(ctx, query, s.UserID, s.Active, s.PackageKey, s.StartedAt, s.ExpiresAt, s.AutoRenew, s.PaymentMethod)
	if err != nil {
		return fmt.Errorf("postgres: failed to upsert subscription: %w", err)
	}
	return nil
}
