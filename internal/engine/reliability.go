package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/ferrychris/policyweb-sub000/internal/connectors"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrProviderUnavailable — предохранитель разомкнут, провайдер не вызывается.
var ErrProviderUnavailable = errors.New("generation provider temporarily unavailable")

// ReliabilityConfig — параметры защиты вызовов к провайдеру генерации.
type ReliabilityConfig struct {
	Name          string
	Attempts      uint          // всего попыток, включая первую
	BaseDelay     time.Duration // задержка перед первым повтором, дальше удваивается
	MaxRetryAfter time.Duration // потолок для Retry-After от провайдера
	CallTimeout   time.Duration

	CBMaxRequests uint32
	CBInterval    time.Duration
	CBTimeout     time.Duration
	CBMaxFailures uint32

	RateLimit float64 // запросов в секунду, 0 без ограничения
	RateBurst int
}

// DefaultReliabilityConfig: 1 вызов + 3 повтора с задержками 1s, 2s, 4s.
func DefaultReliabilityConfig() ReliabilityConfig {
	return ReliabilityConfig{
		Name:          "generation",
		Attempts:      4,
		BaseDelay:     time.Second,
		MaxRetryAfter: 30 * time.Second,
		CallTimeout:   90 * time.Second,
		CBMaxRequests: 3,
		CBInterval:    time.Minute,
		CBTimeout:     30 * time.Second,
		CBMaxFailures: 5,
		RateLimit:     5,
		RateBurst:     10,
	}
}

type ReliabilityWrapper struct {
	next    connectors.TextGenerator
	cfg     ReliabilityConfig
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	metrics *Metrics
	logger  *zap.Logger
}

func NewReliabilityWrapper(next connectors.TextGenerator, cfg ReliabilityConfig, metrics *Metrics, logger *zap.Logger) *ReliabilityWrapper {
	if cfg.Attempts == 0 {
		cfg.Attempts = 1
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	w := &ReliabilityWrapper{
		next:    next,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.Named("reliability"),
	}

	// Настройка предохранителя
	w.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.CBMaxFailures
		},
		// Ошибки клиента (auth, bad request) не говорят о здоровье провайдера
		IsSuccessful: func(err error) bool {
			return err == nil || !connectors.IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			w.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			w.logger.Warn("circuit breaker state changed",
				zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	// Настройка лимитера
	if cfg.RateLimit > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.RateBurst, 1))
	}
	return w
}

// Generate — вызов провайдера с лимитером, предохранителем и повторами transient-ошибок.
// Нетранзиентная ошибка возвращается после первой же попытки.
func (w *ReliabilityWrapper) Generate(ctx context.Context, p connectors.Prompt) (string, error) {
	// 1. Rate Limiter
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	// 2. Circuit Breaker
	res, err := w.cb.Execute(func() (interface{}, error) {
		var text string

		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.cfg.Attempts),
			retry.LastErrorOnly(true),
			retry.RetryIf(connectors.IsTransient),
			retry.OnRetry(func(n uint, err error) {
				kind := "unknown"
				var apiErr *connectors.APIError
				if errors.As(err, &apiErr) {
					kind = string(apiErr.Kind)
				}
				w.metrics.RetriesTotal.WithLabelValues(kind).Inc()
				w.logger.Warn("generation attempt failed, retrying",
					zap.Uint("attempt", n+1), zap.String("kind", kind), zap.Error(err))
			}),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Если провайдер прислал Retry-After, уважаем его
				var apiErr *connectors.APIError
				if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
					return min(apiErr.RetryAfter, w.cfg.MaxRetryAfter)
				}
				// retry-go считает n с единицы: первый повтор ждет base
				if n == 0 {
					return w.cfg.BaseDelay
				}
				return BackoffDelay(w.cfg.BaseDelay, n-1)
			}),
		)

		retryErr := r.Do(func() error {
			callCtx := ctx
			if w.cfg.CallTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, w.cfg.CallTimeout)
				defer cancel()
			}

			var callErr error
			text, callErr = w.next.Generate(callCtx, p)
			return callErr
		})
		return text, retryErr
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return "", err
	}
	return res.(string), nil
}

// BackoffDelay — base, 2*base, 4*base ... для n-го повтора (с нуля).
func BackoffDelay(base time.Duration, n uint) time.Duration {
	if n > 16 {
		n = 16
	}
	return base << n
}
