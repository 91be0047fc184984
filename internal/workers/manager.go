package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SYA-Group/sya-sms-dispatch/internal/dispatch"
	"github.com/SYA-Group/sya-sms-dispatch/internal/logging"
	"github.com/SYA-Group/sya-sms-dispatch/internal/notification"
	"github.com/SYA-Group/sya-sms-dispatch/internal/quota"
	"github.com/SYA-Group/sya-sms-dispatch/internal/recipients"
)

// Config holds configuration for worker intervals and batch sizes.
type Config struct {
	LowQuotaInterval   time.Duration
	LowQuotaBatchSize  int
	StaleSweepInterval time.Duration
	StaleAfter         time.Duration
	RunTimeout         time.Duration
}

// Maintainer runs fn while no dispatch job can hold the account.
type Maintainer interface {
	WithMaintenance(ctx context.Context, accountID int64, fn func(ctx context.Context) error) error
}

// Manager orchestrates the background worker loops.
type Manager struct {
	ledger     quota.Ledger
	store      recipients.Store
	notifier   notification.Notifier
	maintainer Maintainer
	cfg        Config
	now        func() time.Time
	wg         sync.WaitGroup
}

func NewManager(ledger quota.Ledger, store recipients.Store, notifier notification.Notifier, maintainer Maintainer, cfg Config) *Manager {
	return &Manager{
		ledger:     ledger,
		store:      store,
		notifier:   notifier,
		maintainer: maintainer,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Start launches the low quota notifier and the stale sending sweeper. The
// sweeper also runs once immediately to recover rows left by a crash.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		runWorkerLoop(ctx, loopConfig{
			name:       "LowQuotaNotifier",
			interval:   m.cfg.LowQuotaInterval,
			batchSize:  m.cfg.LowQuotaBatchSize,
			runTimeout: m.cfg.RunTimeout,
		}, m.checkLowQuota)
	}()
	go func() {
		defer m.wg.Done()
		runWorkerLoop(ctx, loopConfig{
			name:       "StaleSendingSweeper",
			interval:   m.cfg.StaleSweepInterval,
			runTimeout: m.cfg.RunTimeout,
			runAtStart: true,
		}, m.sweepStaleSending)
	}()
}

// Wait blocks until every loop started by Start has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// checkLowQuota notifies each account whose remaining units fell to its
// threshold, once per crossing.
func (m *Manager) checkLowQuota(ctx context.Context, batchSize int) (int, error) {
	accounts, err := m.ledger.BelowThreshold(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	processedCount := 0
	for _, acct := range accounts {
		actx := logging.ContextWithAccountID(ctx, acct.AccountID)
		ev := notification.Event{
			Type:      notification.EventLowQuota,
			AccountID: acct.AccountID,
			Subject:   "Low SMS quota",
			Body: fmt.Sprintf("Your remaining SMS quota (%d units) is at or below the threshold (%d units). Please top up.",
				acct.Remaining(), acct.LowQuotaThreshold),
			Payload:    acct,
			OccurredAt: m.now().UTC(),
		}
		if err := m.notifier.Notify(actx, ev); err != nil {
			slog.WarnContext(actx, "Failed to send low quota notification", slog.Any("error", err))
			continue
		}
		if err := m.ledger.MarkLowQuotaNotified(actx, acct.AccountID); err != nil {
			slog.ErrorContext(actx, "Failed to record low quota notification", slog.Any("error", err))
			continue
		}
		processedCount++
	}
	return processedCount, nil
}

// sweepStaleSending returns rows stuck in sending to pending. Accounts held
// by a job or maintenance are skipped until the next run.
func (m *Manager) sweepStaleSending(ctx context.Context, _ int) (int, error) {
	before := m.now().Add(-m.cfg.StaleAfter)
	accounts, err := m.store.AccountsWithStaleSending(ctx, before)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, accountID := range accounts {
		actx := logging.ContextWithAccountID(ctx, accountID)
		err := m.maintainer.WithMaintenance(actx, accountID, func(ctx context.Context) error {
			n, err := m.store.RequeueStale(ctx, accountID, before)
			if err != nil {
				return err
			}
			if n > 0 {
				slog.InfoContext(ctx, "Requeued stale sending recipients", slog.Int64("rows", n))
			}
			total += int(n)
			return nil
		})
		switch {
		case errors.Is(err, dispatch.ErrJobActive):
			slog.DebugContext(actx, "Account busy, skipping stale sweep")
		case err != nil:
			slog.ErrorContext(actx, "Failed to requeue stale recipients", slog.Any("error", err))
		}
	}
	return total, nil
}
