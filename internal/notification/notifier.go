package notification

import (
	"context"
	"log"
	"time"
)

const (
	EventJobFinished = "job_finished"
	EventLowQuota    = "low_quota"
)

// Event is one operator-facing notification. Payload is serialized as-is
// by publishers that carry structured data.
type Event struct {
	Type       string    `json:"type"`
	AccountID  int64     `json:"account_id"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	Payload    any       `json:"payload,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier defines the interface for sending notifications.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
	Close() error
}

// LogNotifier is a simple implementation that just logs notifications.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		log.Printf("Notification %s cancelled for account %d", event.Type, event.AccountID)
		return err
	}
	log.Printf("NOTIFICATION [%s] account=%d Subject='%s', Body='%s'", event.Type, event.AccountID, event.Subject, event.Body)
	return nil
}

func (n *LogNotifier) Close() error { return nil }

// Compile-time check to ensure LogNotifier implements Notifier
var _ Notifier = (*LogNotifier)(nil)
