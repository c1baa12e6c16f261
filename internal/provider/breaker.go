package provider

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// CircuitBreakerProvider wraps a Provider so a misbehaving bridge trips open
// instead of stalling every bot cycle behind timeouts.
type CircuitBreakerProvider struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker
}

var _ Provider = (*CircuitBreakerProvider)(nil)

// CircuitBreakerSettings configures trip behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // max requests allowed while half-open
	Interval     time.Duration // closed-state count reset interval
	Timeout      time.Duration // how long the circuit stays open
	MinRequests  uint32        // minimum requests before tripping
	FailureRatio float64       // failure ratio threshold
}

// NewCircuitBreakerProvider wraps the provider with default settings.
func NewCircuitBreakerProvider(inner Provider, logger *logrus.Logger) *CircuitBreakerProvider {
	return NewCircuitBreakerProviderWithSettings(inner, logger, CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewCircuitBreakerProviderWithSettings wraps the provider with custom settings.
func NewCircuitBreakerProviderWithSettings(inner Provider, logger *logrus.Logger, settings CircuitBreakerSettings) *CircuitBreakerProvider {
	gbSettings := gobreaker.Settings{
		Name:        "ExecutionProvider",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("execution circuit breaker state changed")
		},
	}

	return &CircuitBreakerProvider{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// execBreaker is a generic helper for the wrapper methods.
func execBreaker[T any](breaker *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// ExecuteOrder delegates through the breaker.
func (c *CircuitBreakerProvider) ExecuteOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	return execBreaker(c.breaker, func() (*OrderResult, error) { return c.inner.ExecuteOrder(ctx, req) })
}

// CloseOrder delegates through the breaker.
func (c *CircuitBreakerProvider) CloseOrder(ctx context.Context, req CloseRequest) (*CloseResult, error) {
	return execBreaker(c.breaker, func() (*CloseResult, error) { return c.inner.CloseOrder(ctx, req) })
}

// GetAccountSummary delegates through the breaker.
func (c *CircuitBreakerProvider) GetAccountSummary(ctx context.Context, userID, accountID string) (*AccountSummary, error) {
	return execBreaker(c.breaker, func() (*AccountSummary, error) { return c.inner.GetAccountSummary(ctx, userID, accountID) })
}

// GetOpenPositions delegates through the breaker.
func (c *CircuitBreakerProvider) GetOpenPositions(ctx context.Context, accountID string) ([]OpenPosition, error) {
	return execBreaker(c.breaker, func() ([]OpenPosition, error) { return c.inner.GetOpenPositions(ctx, accountID) })
}

// GetServerTime delegates through the breaker.
func (c *CircuitBreakerProvider) GetServerTime(ctx context.Context) (time.Time, error) {
	return execBreaker(c.breaker, func() (time.Time, error) { return c.inner.GetServerTime(ctx) })
}
