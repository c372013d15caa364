package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/hyperjump/lookalike/internal/apperr"
)

// BreakerClient stops calling the embedding service after repeated failures and
// fails fast with ErrUpstreamUnavailable until the open timeout elapses.
type BreakerClient struct {
	next    Client
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerClient wraps next. The breaker opens after maxFailures consecutive upstream
// failures and half-opens after openTimeout. Caller errors and cancellations do not count.
func NewBreakerClient(next Client, name string, maxFailures uint32, openTimeout time.Duration, logger *zap.Logger) *BreakerClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxFailures == 0 {
		maxFailures = 1
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || apperr.IsClientError(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("embedding circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &BreakerClient{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Embed forwards to the wrapped client unless the breaker is open.
func (b *BreakerClient) Embed(ctx context.Context, image []byte, filename string) ([]float32, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.Embed(ctx, image, filename)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: breaker (%s): %v", apperr.ErrUpstreamUnavailable, b.breaker.Name(), err)
	}
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

// State returns "closed", "half-open" or "open".
func (b *BreakerClient) State() string {
	return b.breaker.State().String()
}

// Unwrap returns the wrapped client.
func (b *BreakerClient) Unwrap() Client {
	return b.next
}

// Close closes the wrapped client.
func (b *BreakerClient) Close() error {
	return b.next.Close()
}

// FindBreaker returns the first BreakerClient in c's wrapping chain, or nil.
func FindBreaker(c Client) *BreakerClient {
	for c != nil {
		if b, ok := c.(*BreakerClient); ok {
			return b
		}
		u, ok := c.(interface{ Unwrap() Client })
		if !ok {
			return nil
		}
		c = u.Unwrap()
	}
	return nil
}
