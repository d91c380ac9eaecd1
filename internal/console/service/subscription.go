package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ferrychris/policyweb-sub000/internal/audit"
	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/ferrychris/policyweb-sub000/internal/infra"
	"github.com/ferrychris/policyweb-sub000/internal/payment"
	"github.com/ferrychris/policyweb-sub000/internal/validation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubscriptionStore: хранилище подписок.
type SubscriptionStore interface {
	GetSubscription(ctx context.Context, userID string) (*domain.Subscription, error)
	UpsertSubscription(ctx context.Context, s *domain.Subscription) error
}

// PackageLookup: каталог пакетов.
type PackageLookup interface {
	GetPackage(key domain.PackageKey) (*domain.Package, bool)
}

// EntitlementNotifier сбрасывает кэш пакетов на всех инстансах.
type EntitlementNotifier interface {
	Notify(ctx context.Context, userID string) error
}

type SubscriptionService struct {
	repo      SubscriptionStore
	packages  PackageLookup
	processor payment.Processor
	notifier  EntitlementNotifier
	auditor   audit.Auditor
	term      time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewSubscriptionService(repo SubscriptionStore, packages PackageLookup, processor payment.Processor,
	notifier EntitlementNotifier, auditor audit.Auditor, term time.Duration, logger *zap.Logger) *SubscriptionService {
	if term <= 0 {
		term = 365 * 24 * time.Hour
	}
	return &SubscriptionService{
		repo:      repo,
		packages:  packages,
		processor: processor,
		notifier:  notifier,
		auditor:   auditor,
		term:      term,
		logger:    logger.Named("subscriptions"),
		now:       time.Now,
	}
}

// Get: текущая подписка. domain.ErrNotFound, если пользователь ничего не покупал.
func (s *SubscriptionService) Get(ctx context.Context, userID string) (*domain.Subscription, error) {
	return s.repo.GetSubscription(ctx, userID)
}

// Purchase списывает цену пакета и заменяет подписку пользователя.
// При отказе платежа подписка не меняется.
func (s *SubscriptionService) Purchase(ctx context.Context, userID string, req domain.PurchaseRequest) (*domain.Subscription, *payment.Receipt, error) {
	req.Payment.CardNumber = payment.NormalizeCard(req.Payment.CardNumber)
	if err := validation.Struct(req); err != nil {
		return nil, nil, err
	}
	pkg, ok := s.packages.GetPackage(req.Package)
	if !ok {
		v := &domain.ValidationError{}
		v.Add("package", "unknown package")
		return nil, nil, v
	}

	start := time.Now()
	receipt, err := s.processor.Charge(ctx, pkg.PriceCents(), req.Payment)
	if err != nil {
		s.audit(ctx, userID, pkg.Key, "", err, start)
		return nil, nil, err
	}

	now := s.now().UTC()
	sub := &domain.Subscription{
		UserID:        userID,
		Active:        true,
		PackageKey:    pkg.Key,
		StartedAt:     now,
		ExpiresAt:     now.Add(s.term),
		AutoRenew:     req.AutoRenew,
		PaymentMethod: receipt.Method,
	}
	if err := s.repo.UpsertSubscription(ctx, sub); err != nil {
		// Деньги списаны, а запись не сохранилась: нужен ручной разбор по txn
		s.logger.Error("subscription not stored after successful charge",
			zap.String("user_id", userID), zap.String("txn", receipt.TransactionID), zap.Error(err))
		s.audit(ctx, userID, pkg.Key, receipt.TransactionID, err, start)
		return nil, nil, fmt.Errorf("subscriptions: store: %w", err)
	}

	if err := s.notifier.Notify(ctx, userID); err != nil {
		s.logger.Warn("entitlement invalidation not broadcast", zap.String("user_id", userID), zap.Error(err))
	}
	s.audit(ctx, userID, pkg.Key, receipt.TransactionID, nil, start)
	s.logger.Info("package purchased",
		zap.String("user_id", userID), zap.String("package", string(pkg.Key)), zap.String("txn", receipt.TransactionID))
	return sub, receipt, nil
}

// IsPaymentFailure: отказ процессора (HTTP 402).
func IsPaymentFailure(err error) bool {
	return errors.Is(err, payment.ErrDeclined) || errors.Is(err, payment.ErrInsufficientFunds)
}

func (s *SubscriptionService) audit(ctx context.Context, userID string, key domain.PackageKey, txn string, err error, start time.Time) {
	if s.auditor == nil {
		return
	}
	ev := audit.Event{
		ID:         uuid.New().String(),
		TraceID:    infra.TraceID(ctx),
		UserID:     userID,
		Action:     audit.ActionSubscription,
		Status:     audit.StatusSuccess,
		Timestamp:  s.now(),
		DurationMs: time.Since(start).Milliseconds(),
		Details:    map[string]interface{}{"package": string(key)},
	}
	if txn != "" {
		ev.Details["txn"] = txn
	}
	if err != nil {
		ev.Status = audit.StatusFailed
		ev.Error = err.Error()
	}
	s.auditor.Log(ev)
}
