package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/SYA-Group/sya-sms-dispatch/pkg/errormapper"
)

type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type CircuitBreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // successes in half-open before closing
	Timeout          time.Duration // time open before trying half-open
	VolumeThreshold  int           // minimum requests before evaluating
	Logger           *slog.Logger
	Gateway          string
}

type CircuitBreaker struct {
	mu              sync.RWMutex
	state           CircuitState
	failureCount    int
	successCount    int
	requestCount    int
	config          CircuitBreakerConfig
	lastStateChange time.Time
	now             func() time.Time
}

func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 3
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.VolumeThreshold == 0 {
		config.VolumeThreshold = 10
	}
	return &CircuitBreaker{
		state:  CircuitClosed,
		config: config,
		now:    time.Now,
	}
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.lastStateChange = cb.now()
	if cb.config.Logger != nil {
		cb.config.Logger.Info("circuit_breaker_state_change",
			slog.String("gateway", cb.config.Gateway),
			slog.String("from_state", from.String()),
			slog.String("to_state", to.String()),
			slog.Int("failure_count", cb.failureCount),
			slog.Int("success_count", cb.successCount),
		)
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

func (cb *CircuitBreaker) AllowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if cb.now().Sub(cb.lastStateChange) >= cb.config.Timeout {
			cb.successCount = 0
			cb.failureCount = 0
			cb.transition(CircuitHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requestCount++

	switch cb.state {
	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.failureCount = 0
			cb.successCount = 0
			cb.transition(CircuitClosed)
		}
	case CircuitClosed:
		cb.failureCount = 0
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requestCount++

	switch cb.state {
	case CircuitHalfOpen:
		cb.failureCount = 0
		cb.successCount = 0
		cb.transition(CircuitOpen)
	case CircuitClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold && cb.requestCount >= cb.config.VolumeThreshold {
			cb.transition(CircuitOpen)
		}
	}
}

// RetryAfter returns how long the breaker stays open. It is zero unless
// the breaker is open.
func (cb *CircuitBreaker) RetryAfter() time.Duration {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	if cb.state != CircuitOpen {
		return 0
	}
	return max(0, cb.config.Timeout-cb.now().Sub(cb.lastStateChange))
}

// breakerClient guards a Client with a CircuitBreaker. Rejections by the
// provider itself do not trip the breaker; only transport-level failures do.
type breakerClient struct {
	next    Client
	breaker *CircuitBreaker
}

func WithCircuitBreaker(next Client, breaker *CircuitBreaker) Client {
	return &breakerClient{next: next, breaker: breaker}
}

func (b *breakerClient) Send(ctx context.Context, phone, text string) (SendResult, error) {
	if !b.breaker.AllowRequest() {
		return SendResult{}, ErrCircuitOpen
	}
	res, err := b.next.Send(ctx, phone, text)
	switch {
	case err == nil:
		b.breaker.RecordSuccess()
	case countsAgainstBreaker(err):
		b.breaker.RecordFailure()
	default:
		b.breaker.RecordSuccess()
	}
	return res, err
}

func countsAgainstBreaker(err error) bool {
	// cancellation of the job is not the provider's fault
	if errors.Is(err, context.Canceled) {
		return false
	}
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Code() != errormapper.ErrorCodeGatewayRejected
	}
	return true
}

func (b *breakerClient) RetryAfter() time.Duration { return b.breaker.RetryAfter() }

func (b *breakerClient) Name() string                    { return b.next.Name() }
func (b *breakerClient) Close(ctx context.Context) error { return b.next.Close(ctx) }
