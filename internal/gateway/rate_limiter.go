package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/SYA-Group/sya-sms-dispatch/pkg/errormapper"
)

type TokenBucket struct {
	capacity   float64
	tokens     float64
	refillRate float64
	lastRefill time.Time
	mu         sync.Mutex
	now        func() time.Time
}

func NewTokenBucket(capacity float64, refillRate float64) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// reserve takes a token if one is available, otherwise reports how long
// until the next one.
func (tb *TokenBucket) reserve() (bool, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	elapsed := now.Sub(tb.lastRefill)
	tb.tokens = min(tb.capacity, tb.tokens+(elapsed.Seconds()*tb.refillRate))
	tb.lastRefill = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true, 0
	}
	if tb.refillRate <= 0 {
		return false, time.Second
	}
	return false, time.Duration((1 - tb.tokens) / tb.refillRate * float64(time.Second))
}

func (tb *TokenBucket) Take() bool {
	ok, _ := tb.reserve()
	return ok
}

// Wait blocks until a token is taken or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		ok, wait := tb.reserve()
		if ok {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// rateLimitedClient paces Send calls across all workers of the process.
type rateLimitedClient struct {
	next   Client
	bucket *TokenBucket
}

// NewRateLimited wraps next with a shared token bucket. A non-positive rps
// disables limiting.
func NewRateLimited(next Client, rps float64, burst int) Client {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimitedClient{next: next, bucket: NewTokenBucket(float64(burst), rps)}
}

func (r *rateLimitedClient) Send(ctx context.Context, phone, text string) (SendResult, error) {
	if err := r.bucket.Wait(ctx); err != nil {
		return SendResult{}, NewError(errormapper.ErrorCodeGatewayRateLimited, err)
	}
	return r.next.Send(ctx, phone, text)
}

func (r *rateLimitedClient) Name() string                    { return r.next.Name() }
func (r *rateLimitedClient) Close(ctx context.Context) error { return r.next.Close(ctx) }
