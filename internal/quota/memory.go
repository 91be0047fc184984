package quota

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SYA-Group/sya-sms-dispatch/pkg/codes"
)

// MemoryLedger is a process-local Ledger. One mutex guards every account,
// which makes Reserve trivially atomic.
type MemoryLedger struct {
	mu       sync.Mutex
	accounts map[int64]*Account
	entries  []Entry
	nextID   int64
	now      func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		accounts: make(map[int64]*Account),
		now:      time.Now,
	}
}

func (l *MemoryLedger) Reserve(_ context.Context, accountID, units int64) error {
	if units <= 0 {
		return ErrInvalidUnits
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	if acct.Remaining() < units {
		return ErrInsufficientQuota
	}
	acct.UsedQuota += units
	acct.UpdatedAt = l.now()
	return nil
}

func (l *MemoryLedger) Release(_ context.Context, accountID, units int64, reason string) error {
	if units <= 0 {
		return ErrInvalidUnits
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	if acct.UsedQuota < units {
		return ErrInvalidUnits
	}
	acct.UsedQuota -= units
	acct.UpdatedAt = l.now()
	l.appendLocked(accountID, -units, decimal.Zero, codes.QuotaReversal, "Reversal: "+reason)
	return nil
}

func (l *MemoryLedger) TopUp(_ context.Context, req TopUpRequest) (Account, error) {
	if req.Units <= 0 {
		return Account{}, ErrInvalidUnits
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[req.AccountID]
	if !ok {
		acct = &Account{AccountID: req.AccountID}
		l.accounts[req.AccountID] = acct
	}
	acct.TotalQuota += req.Units
	acct.LowQuotaNotifiedAt = nil
	acct.UpdatedAt = l.now()

	note := req.Note
	if note == "" {
		note = "Manual top-up via API"
	}
	l.appendLocked(req.AccountID, req.Units, req.Amount, codes.QuotaTopUp, note)
	return *acct, nil
}

func (l *MemoryLedger) Remaining(ctx context.Context, accountID int64) (int64, error) {
	acct, err := l.Get(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return acct.Remaining(), nil
}

func (l *MemoryLedger) Get(_ context.Context, accountID int64) (Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[accountID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return *acct, nil
}

func (l *MemoryLedger) History(_ context.Context, accountID int64, limit, offset int32) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Entry
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].AccountID == accountID {
			out = append(out, l.entries[i])
		}
	}
	if int(offset) >= len(out) {
		return []Entry{}, nil
	}
	out = out[offset:]
	if limit > 0 && int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (l *MemoryLedger) SetLowQuotaThreshold(_ context.Context, accountID, threshold int64) error {
	if threshold < 0 {
		return ErrInvalidUnits
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	acct.LowQuotaThreshold = threshold
	acct.LowQuotaNotifiedAt = nil
	return nil
}

func (l *MemoryLedger) BelowThreshold(_ context.Context, limit int) ([]Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Account
	for _, acct := range l.accounts {
		if acct.LowQuotaThreshold > 0 && acct.Remaining() <= acct.LowQuotaThreshold && acct.LowQuotaNotifiedAt == nil {
			out = append(out, *acct)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *MemoryLedger) MarkLowQuotaNotified(_ context.Context, accountID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acct, ok := l.accounts[accountID]; ok {
		now := l.now()
		acct.LowQuotaNotifiedAt = &now
	}
	return nil
}

func (l *MemoryLedger) appendLocked(accountID, units int64, amount decimal.Decimal, kind, note string) {
	l.nextID++
	l.entries = append(l.entries, Entry{
		ID:        l.nextID,
		AccountID: accountID,
		Units:     units,
		Amount:    amount,
		Kind:      kind,
		Note:      note,
		CreatedAt: l.now(),
	})
}

var _ Ledger = (*MemoryLedger)(nil)
