package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SYA-Group/sya-sms-dispatch/internal/config"
	"github.com/SYA-Group/sya-sms-dispatch/pkg/errormapper"
	"github.com/SYA-Group/sya-sms-dispatch/pkg/segmenter"
)

// SendResult describes an accepted submission.
type SendResult struct {
	MessageID string // provider reference, empty when the provider returns none
	Segments  int
}

// Client delivers one text to one normalized phone number. Implementations
// must honor ctx cancellation and deadlines.
type Client interface {
	Send(ctx context.Context, phone, text string) (SendResult, error)
	Name() string
	Close(ctx context.Context) error
}

// Error is a gateway failure carrying the reason code stored on the recipient row.
type Error struct {
	code string
	err  error
}

func NewError(code string, err error) *Error {
	return &Error{code: code, err: err}
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *Error) Code() string  { return e.code }
func (e *Error) Unwrap() error { return e.err }

var (
	ErrCircuitOpen = NewError(errormapper.ErrorCodeGatewayCircuitOpen, errors.New("gateway circuit is open"))
	ErrNotBound    = NewError(errormapper.ErrorCodeGatewayUnavailable, errors.New("smpp session not bound"))
)

// Deferred reports whether err means the attempt was held back before the
// provider accepted or refused the message: the breaker was open, or the
// submission was throttled. Such an attempt says nothing about the recipient.
func Deferred(err error) bool {
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		return false
	}
	switch gwErr.Code() {
	case errormapper.ErrorCodeGatewayCircuitOpen, errormapper.ErrorCodeGatewayRateLimited:
		return true
	}
	return false
}

// RetryAfterer is implemented by clients that know how long callers should
// hold off after a deferred attempt.
type RetryAfterer interface {
	RetryAfter() time.Duration
}

type sendTimeoutKey struct{}

// ContextWithSendTimeout bounds every provider call made with ctx by d. The
// bound starts when the call reaches the provider, so time spent waiting
// for a rate limiter token is not counted.
func ContextWithSendTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, sendTimeoutKey{}, d)
}

type timeoutClient struct {
	next Client
}

// WithSendTimeout applies the timeout set by ContextWithSendTimeout. It must
// sit directly around the provider, inside any rate limiter.
func WithSendTimeout(next Client) Client {
	return &timeoutClient{next: next}
}

func (t *timeoutClient) Send(ctx context.Context, phone, text string) (SendResult, error) {
	if d, ok := ctx.Value(sendTimeoutKey{}).(time.Duration); ok && d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return t.next.Send(ctx, phone, text)
}

func (t *timeoutClient) Name() string                    { return t.next.Name() }
func (t *timeoutClient) Close(ctx context.Context) error { return t.next.Close(ctx) }

// New builds the configured provider and wraps it with the send timeout, the
// rate limiter and the circuit breaker. The breaker sits outside so rejected
// calls never consume tokens.
func New(ctx context.Context, cfg config.GatewayConfig, logger *slog.Logger) (Client, error) {
	var (
		base Client
		err  error
	)
	switch cfg.Provider {
	case "", "log":
		base = NewLogClient(logger)
	case "twilio":
		base, err = NewTwilioClient(TwilioConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			From:       cfg.TwilioFrom,
		})
	case "http":
		base, err = NewHTTPClient(HTTPConfig{
			URL:      cfg.HTTPURL,
			APIKey:   cfg.HTTPAPIKey,
			SenderID: cfg.SenderID,
			Timeout:  cfg.HTTPTimeout,
		})
	case "smpp":
		var c *SMPPClient
		c, err = NewSMPPClient(SMPPConfig{
			Host:           cfg.SMPPHost,
			Port:           cfg.SMPPPort,
			SystemID:       cfg.SMPPSystemID,
			Password:       cfg.SMPPPassword,
			SystemType:     cfg.SMPPSystemType,
			SenderID:       cfg.SenderID,
			EnquireLink:    cfg.SMPPEnquireLink,
			RequestTimeout: cfg.SMPPRequestTimeout,
			MaxWindowSize:  uint(cfg.SMPPWindowSize),
		}, segmenter.NewDefaultSegmenter())
		if err == nil {
			err = c.ConnectAndBind(ctx)
		}
		base = c
	default:
		return nil, fmt.Errorf("unknown gateway provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialise %s gateway: %w", cfg.Provider, err)
	}

	limited := NewRateLimited(WithSendTimeout(base), cfg.RateLimitRPS, cfg.RateLimitBurst)
	breaker := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		Timeout:          cfg.BreakerTimeout,
		VolumeThreshold:  cfg.BreakerVolumeThreshold,
		Logger:           logger,
		Gateway:          base.Name(),
	})
	return WithCircuitBreaker(limited, breaker), nil
}
