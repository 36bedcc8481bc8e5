package mqtt311

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ReconnectStrategy decides whether and when the client re-drives the
// session engine after a non-clean termination.
//
// Should is consulted with the termination reason before every attempt;
// returning false makes the disconnect terminal. Wait blocks for the
// strategy's backoff. Reset is called on each successful CONNACK.
type ReconnectStrategy interface {
	Should(reason error) bool
	Wait(ctx context.Context) error
	Reset()
}

// Default reconnect behavior.
const (
	DefaultReconnectAttempts = 60
	DefaultReconnectInterval = time.Second
)

// FixedIntervalStrategy retries a bounded number of times at a fixed
// interval. It refuses to reconnect after authentication-shaped connect
// errors and after user-initiated disconnects, both of which retrying
// cannot fix.
type FixedIntervalStrategy struct {
	// MaxAttempts bounds consecutive attempts between successful
	// connects. Zero means unlimited.
	MaxAttempts int

	limiter *rate.Limiter

	mu       sync.Mutex
	attempts int
}

// NewFixedIntervalStrategy creates a strategy pacing attempts at the given
// interval.
func NewFixedIntervalStrategy(maxAttempts int, interval time.Duration) *FixedIntervalStrategy {
	if interval <= 0 {
		interval = DefaultReconnectInterval
	}
	return &FixedIntervalStrategy{
		MaxAttempts: maxAttempts,
		limiter:     rate.NewLimiter(rate.Every(interval), 1),
	}
}

// DefaultReconnectStrategy is the strategy used when auto-reconnect is
// enabled without customization: up to 60 attempts, one per second.
func DefaultReconnectStrategy() *FixedIntervalStrategy {
	return NewFixedIntervalStrategy(DefaultReconnectAttempts, DefaultReconnectInterval)
}

// Should reports whether another attempt is allowed for the given reason.
func (s *FixedIntervalStrategy) Should(reason error) bool {
	if errors.Is(reason, ErrSoftDisconnect) || errors.Is(reason, ErrForcedDisconnect) {
		return false
	}

	var connErr *ConnectError
	if errors.As(reason, &connErr) {
		switch connErr.Code {
		case ConnectNotAuthorized,
			ConnectUnacceptableProtocolVersion,
			ConnectBadUsernameOrPassword:
			return false
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.MaxAttempts <= 0 || s.attempts < s.MaxAttempts
}

// Wait blocks until the next attempt slot, counting the attempt.
func (s *FixedIntervalStrategy) Wait(ctx context.Context) error {
	s.mu.Lock()
	s.attempts++
	s.mu.Unlock()

	return s.limiter.Wait(ctx)
}

// Reset clears the consecutive attempt counter.
func (s *FixedIntervalStrategy) Reset() {
	s.mu.Lock()
	s.attempts = 0
	s.mu.Unlock()
}

// isUserDisconnect reports whether the reason is a user-initiated
// disconnect, which never re-engages the reconnect controller.
func isUserDisconnect(reason error) bool {
	return errors.Is(reason, ErrSoftDisconnect) || errors.Is(reason, ErrForcedDisconnect)
}
