package quota

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SYA-Group/sya-sms-dispatch/pkg/codes"
)

func topUp(t *testing.T, l *MemoryLedger, accountID, units int64) {
	t.Helper()
	_, err := l.TopUp(context.Background(), TopUpRequest{AccountID: accountID, Units: units, Amount: decimal.RequireFromString("12.50")})
	require.NoError(t, err)
}

func TestReserveUnknownAccount(t *testing.T) {
	l := NewMemoryLedger()
	assert.ErrorIs(t, l.Reserve(context.Background(), 1, 1), ErrAccountNotFound)
}

func TestReserveIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	topUp(t, l, 1, 5)

	require.NoError(t, l.Reserve(ctx, 1, 3))
	assert.ErrorIs(t, l.Reserve(ctx, 1, 3), ErrInsufficientQuota)

	remaining, err := l.Remaining(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), remaining, "failed reserve must not partially debit")

	require.NoError(t, l.Reserve(ctx, 1, 2))
	assert.ErrorIs(t, l.Reserve(ctx, 1, 1), ErrInsufficientQuota)
	assert.ErrorIs(t, l.Reserve(ctx, 1, 0), ErrInvalidUnits)
}

func TestConcurrentReserveNeverOverspends(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	topUp(t, l, 7, 100)

	const callers = 64
	const unitsEach = 3 // 192 requested against 100 available
	var ok, rejected atomic.Int64
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Reserve(ctx, 7, unitsEach)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrInsufficientQuota):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	acct, err := l.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(33), ok.Load(), "exactly floor(100/3) reservations fit")
	assert.Equal(t, int64(callers-33), rejected.Load())
	assert.Equal(t, int64(99), acct.UsedQuota)
	assert.LessOrEqual(t, acct.UsedQuota, acct.TotalQuota)
}

func TestReleaseWritesReversal(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	topUp(t, l, 1, 10)
	require.NoError(t, l.Reserve(ctx, 1, 4))
	require.NoError(t, l.Release(ctx, 1, 2, "GW_REJECTED"))

	acct, err := l.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), acct.UsedQuota)

	assert.ErrorIs(t, l.Release(ctx, 1, 5, "too much"), ErrInvalidUnits)

	history, err := l.History(ctx, 1, 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, codes.QuotaReversal, history[0].Kind)
	assert.Equal(t, int64(-2), history[0].Units)
	assert.Equal(t, codes.QuotaTopUp, history[1].Kind)
	assert.True(t, history[1].Amount.Equal(decimal.RequireFromString("12.5")))
}

func TestTopUpIsAuditedAndClearsNotification(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	topUp(t, l, 3, 10)
	require.NoError(t, l.SetLowQuotaThreshold(ctx, 3, 10))

	below, err := l.BelowThreshold(ctx, 10)
	require.NoError(t, err)
	require.Len(t, below, 1)

	require.NoError(t, l.MarkLowQuotaNotified(ctx, 3))
	below, err = l.BelowThreshold(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, below, "notified accounts are not listed again")

	topUp(t, l, 3, 1)
	below, err = l.BelowThreshold(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, below, "11 remaining is above the threshold")

	history, err := l.History(ctx, 3, 0, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	_, err = l.TopUp(ctx, TopUpRequest{AccountID: 3, Units: -1})
	assert.ErrorIs(t, err, ErrInvalidUnits)
}
