package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrMiss is returned by GetJSON when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache stores small JSON documents with an optional TTL.
type Cache interface {
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	// GetJSON decodes the stored document into dst or returns ErrMiss.
	GetJSON(ctx context.Context, key string, dst any) error
	Ping(ctx context.Context) error
	Close() error
}

func ProgressKey(accountID int64) string {
	return fmt.Sprintf("sms:progress:%d", accountID)
}

func LastMessageKey(accountID int64) string {
	return fmt.Sprintf("sms:last_message:%d", accountID)
}
