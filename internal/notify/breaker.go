package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

// ErrProviderUnavailable is returned while a provider's breaker is open.
var ErrProviderUnavailable = errors.New("notify: provider unavailable")

// BreakerSettings tunes the provider circuit breakers.
type BreakerSettings struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

func newBreaker(name string, s BreakerSettings, logger *logging.Logger) *gobreaker.CircuitBreaker[any] {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("notify: circuit breaker state changed", "provider", name, "from", from.String(), "to", to.String())
		},
	})
}

func runBreaker(cb *gobreaker.CircuitBreaker[any], fn func() error) error {
	_, err := cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, cb.Name(), err)
	}
	return err
}

// BreakerEmailSender stops calling a failing email provider for a while.
type BreakerEmailSender struct {
	next EmailSender
	cb   *gobreaker.CircuitBreaker[any]
}

func NewBreakerEmailSender(name string, next EmailSender, s BreakerSettings, logger *logging.Logger) *BreakerEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &BreakerEmailSender{next: next, cb: newBreaker(name, s, logger)}
}

func (b *BreakerEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	return runBreaker(b.cb, func() error { return b.next.Send(ctx, msg) })
}

// BreakerSMSSender stops calling a failing SMS provider for a while.
type BreakerSMSSender struct {
	next SMSSender
	cb   *gobreaker.CircuitBreaker[any]
}

func NewBreakerSMSSender(name string, next SMSSender, s BreakerSettings, logger *logging.Logger) *BreakerSMSSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &BreakerSMSSender{next: next, cb: newBreaker(name, s, logger)}
}

func (b *BreakerSMSSender) SendSMS(ctx context.Context, to, body string) error {
	return runBreaker(b.cb, func() error { return b.next.SendSMS(ctx, to, body) })
}
