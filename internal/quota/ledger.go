package quota

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientQuota means the reservation would push used above total.
	// Nothing was debited.
	ErrInsufficientQuota = errors.New("insufficient quota")
	ErrAccountNotFound   = errors.New("quota account not found")
	ErrInvalidUnits      = errors.New("units must be positive")
)

// Account is a committed view of one account's quota row.
type Account struct {
	AccountID          int64      `json:"account_id"`
	TotalQuota         int64      `json:"total_quota"`
	UsedQuota          int64      `json:"used_quota"`
	LowQuotaThreshold  int64      `json:"low_quota_threshold"`
	LowQuotaNotifiedAt *time.Time `json:"low_quota_notified_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Remaining is total minus used.
func (a Account) Remaining() int64 {
	return a.TotalQuota - a.UsedQuota
}

// TopUpRequest grants units to an account. Amount is what was paid for
// them and is only recorded in the audit log.
type TopUpRequest struct {
	AccountID int64
	Units     int64
	Amount    decimal.Decimal
	Note      string
}

// Entry is one append-only audit row.
type Entry struct {
	ID        int64           `json:"id"`
	AccountID int64           `json:"account_id"`
	Units     int64           `json:"units"`
	Amount    decimal.Decimal `json:"amount"`
	Kind      string          `json:"kind"`
	Note      string          `json:"note,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Ledger tracks and atomically debits/credits an account's SMS units.
type Ledger interface {
	// Reserve debits units if remaining >= units, all or nothing.
	Reserve(ctx context.Context, accountID, units int64) error
	// Release credits back units reserved for a send that never went out.
	Release(ctx context.Context, accountID, units int64, reason string) error
	TopUp(ctx context.Context, req TopUpRequest) (Account, error)
	Remaining(ctx context.Context, accountID int64) (int64, error)
	Get(ctx context.Context, accountID int64) (Account, error)
	History(ctx context.Context, accountID int64, limit, offset int32) ([]Entry, error)
	SetLowQuotaThreshold(ctx context.Context, accountID, threshold int64) error
	// BelowThreshold lists accounts at or under their threshold that have
	// not been notified since their last top-up.
	BelowThreshold(ctx context.Context, limit int) ([]Account, error)
	MarkLowQuotaNotified(ctx context.Context, accountID int64) error
}
