package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ferrychris/policyweb-sub000/internal/connectors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastConfig() ReliabilityConfig {
	cfg := DefaultReliabilityConfig()
	cfg.BaseDelay = time.Millisecond
	cfg.MaxRetryAfter = 5 * time.Millisecond
	cfg.RateLimit = 0
	cfg.CBMaxFailures = 100
	return cfg
}

// scriptedGenerator отдает ошибки по списку, затем успех.
type scriptedGenerator struct {
	calls  atomic.Int32
	errors []error
}

func (s *scriptedGenerator) Generate(_ context.Context, _ connectors.Prompt) (string, error) {
	n := int(s.calls.Add(1)) - 1
	if n < len(s.errors) {
		return "", s.errors[n]
	}
	return "ok", nil
}

func transient(kind connectors.ErrorKind, status int) error {
	return &connectors.APIError{Provider: "test", Kind: kind, StatusCode: status, Message: "x"}
}

func TestReliabilityRetriesTransientErrors(t *testing.T) {
	gen := &scriptedGenerator{errors: []error{
		transient(connectors.KindRateLimited, 429),
		transient(connectors.KindServer, 503),
		transient(connectors.KindServer, 500),
	}}
	w := NewReliabilityWrapper(gen, fastConfig(), nil, zap.NewNop())

	out, err := w.Generate(context.Background(), connectors.Prompt{User: "u"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.EqualValues(t, 4, gen.calls.Load())
}

func TestReliabilityGivesUpAfterThreeRetries(t *testing.T) {
	errs := make([]error, 10)
	for i := range errs {
		errs[i] = transient(connectors.KindServer, 502)
	}
	gen := &scriptedGenerator{errors: errs}
	w := NewReliabilityWrapper(gen, fastConfig(), nil, zap.NewNop())

	_, err := w.Generate(context.Background(), connectors.Prompt{User: "u"})
	var apiErr *connectors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, connectors.KindServer, apiErr.Kind)
	assert.EqualValues(t, 4, gen.calls.Load())
}

func TestReliabilityDoesNotRetryClientErrors(t *testing.T) {
	for _, kind := range []connectors.ErrorKind{connectors.KindAuth, connectors.KindBadRequest} {
		t.Run(string(kind), func(t *testing.T) {
			gen := &scriptedGenerator{errors: []error{transient(kind, 401), transient(kind, 401)}}
			w := NewReliabilityWrapper(gen, fastConfig(), nil, zap.NewNop())

			_, err := w.Generate(context.Background(), connectors.Prompt{User: "u"})
			var apiErr *connectors.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, kind, apiErr.Kind)
			assert.EqualValues(t, 1, gen.calls.Load())
		})
	}
}

func TestReliabilityHonorsRetryAfter(t *testing.T) {
	gen := &scriptedGenerator{errors: []error{
		&connectors.APIError{Provider: "test", Kind: connectors.KindRateLimited, StatusCode: 429, RetryAfter: time.Hour},
	}}
	cfg := fastConfig()
	cfg.MaxRetryAfter = 20 * time.Millisecond
	w := NewReliabilityWrapper(gen, cfg, nil, zap.NewNop())

	start := time.Now()
	_, err := w.Generate(context.Background(), connectors.Prompt{User: "u"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Less(t, time.Since(start), 5*time.Second, "Retry-After is capped")
}

func TestReliabilityCircuitBreakerOpens(t *testing.T) {
	errs := make([]error, 10)
	for i := range errs {
		errs[i] = transient(connectors.KindServer, 500)
	}
	gen := &scriptedGenerator{errors: errs}
	cfg := fastConfig()
	cfg.Attempts = 1
	cfg.CBMaxFailures = 2
	cfg.CBTimeout = time.Hour
	w := NewReliabilityWrapper(gen, cfg, nil, zap.NewNop())

	ctx := context.Background()
	_, _ = w.Generate(ctx, connectors.Prompt{User: "u"})
	_, _ = w.Generate(ctx, connectors.Prompt{User: "u"})
	_, err := w.Generate(ctx, connectors.Prompt{User: "u"})

	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.EqualValues(t, 2, gen.calls.Load())
}

// stampedGenerator запоминает время каждого вызова.
type stampedGenerator struct {
	scriptedGenerator
	mu    sync.Mutex
	stamp []time.Time
}

func (s *stampedGenerator) Generate(ctx context.Context, p connectors.Prompt) (string, error) {
	s.mu.Lock()
	s.stamp = append(s.stamp, time.Now())
	s.mu.Unlock()
	return s.scriptedGenerator.Generate(ctx, p)
}

func TestReliabilityBackoffDoublesFromBase(t *testing.T) {
	gen := &stampedGenerator{scriptedGenerator: scriptedGenerator{errors: []error{
		transient(connectors.KindServer, 500),
		transient(connectors.KindServer, 500),
		transient(connectors.KindServer, 500),
	}}}
	cfg := fastConfig()
	cfg.BaseDelay = 40 * time.Millisecond
	w := NewReliabilityWrapper(gen, cfg, nil, zap.NewNop())

	_, err := w.Generate(context.Background(), connectors.Prompt{User: "u"})
	require.NoError(t, err)
	require.Len(t, gen.stamp, 4)

	for i, want := range []time.Duration{40 * time.Millisecond, 80 * time.Millisecond, 160 * time.Millisecond} {
		gap := gen.stamp[i+1].Sub(gen.stamp[i])
		assert.GreaterOrEqual(t, gap, want, "gap before attempt %d", i+2)
		assert.Less(t, gap, want+want/2+15*time.Millisecond, "gap before attempt %d", i+2)
	}
}
