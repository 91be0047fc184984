package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/SYA-Group/sya-sms-dispatch/internal/database"
	"github.com/SYA-Group/sya-sms-dispatch/internal/logging"
	"github.com/SYA-Group/sya-sms-dispatch/pkg/codes"
)

// PostgresLedger keeps quota rows in account_quotas and the audit trail in
// quota_topups.
type PostgresLedger struct {
	dbPool    *pgxpool.Pool
	dbQueries database.Querier
}

// NewPostgresLedger creates a ledger backed by the given pool.
func NewPostgresLedger(pool *pgxpool.Pool, queries database.Querier) *PostgresLedger {
	return &PostgresLedger{dbPool: pool, dbQueries: queries}
}

// Reserve is a single conditional UPDATE, so concurrent callers can never
// push used_quota past total_quota.
func (l *PostgresLedger) Reserve(ctx context.Context, accountID, units int64) error {
	if units <= 0 {
		return ErrInvalidUnits
	}
	_, err := l.dbQueries.ReserveQuota(ctx, database.ReserveQuotaParams{Units: units, AccountID: accountID})
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to reserve quota: %w", err)
	}
	// No row matched: either the account is unknown or the guard failed.
	if _, getErr := l.dbQueries.GetAccountQuota(ctx, accountID); getErr != nil {
		if errors.Is(getErr, pgx.ErrNoRows) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("failed to load quota after rejected reserve: %w", getErr)
	}
	return ErrInsufficientQuota
}

// Release credits units back and writes a reversal audit row in the same transaction.
func (l *PostgresLedger) Release(ctx context.Context, accountID, units int64, reason string) (err error) {
	if units <= 0 {
		return ErrInvalidUnits
	}
	logCtx := logging.ContextWithAccountID(ctx, accountID)

	tx, err := l.dbPool.BeginTx(logCtx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	qtx := database.New(tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(logCtx)
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(logCtx); rbErr != nil {
				slog.ErrorContext(logCtx, "Error rolling back release transaction", slog.Any("rollback_error", rbErr), slog.Any("original_error", err))
			}
		} else if cmErr := tx.Commit(logCtx); cmErr != nil {
			slog.ErrorContext(logCtx, "Error committing release transaction", slog.Any("error", cmErr))
			err = cmErr
		}
	}()

	if _, err = qtx.ReleaseQuota(logCtx, database.ReleaseQuotaParams{Units: units, AccountID: accountID}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = fmt.Errorf("release of %d units exceeds used quota for account %d", units, accountID)
			return err
		}
		err = fmt.Errorf("failed to release quota: %w", err)
		return err
	}

	note := "Reversal: " + reason
	if _, err = qtx.CreateQuotaTopup(logCtx, database.CreateQuotaTopupParams{
		AccountID: accountID,
		Units:     -units,
		Amount:    decimal.Zero,
		Kind:      codes.QuotaReversal,
		Note:      &note,
	}); err != nil {
		err = fmt.Errorf("failed to record quota reversal: %w", err)
		return err
	}
	return nil
}

// TopUp grants units, creating the quota row on first use.
func (l *PostgresLedger) TopUp(ctx context.Context, req TopUpRequest) (acct Account, err error) {
	if req.Units <= 0 {
		return Account{}, ErrInvalidUnits
	}
	logCtx := logging.ContextWithAccountID(ctx, req.AccountID)
	slog.InfoContext(logCtx, "Processing quota top-up", slog.Int64("units", req.Units), slog.String("amount", req.Amount.String()))

	tx, err := l.dbPool.BeginTx(logCtx, pgx.TxOptions{})
	if err != nil {
		return Account{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(context.Background()) // no-op after commit

	qtx := database.New(tx)

	if _, err = qtx.EnsureAccountQuota(logCtx, req.AccountID); err != nil {
		return Account{}, fmt.Errorf("failed to ensure quota row: %w", err)
	}
	before, err := qtx.GetAccountQuotaForUpdate(logCtx, req.AccountID)
	if err != nil {
		return Account{}, fmt.Errorf("failed to lock quota row: %w", err)
	}
	updated, err := qtx.AddQuota(logCtx, database.AddQuotaParams{Units: req.Units, AccountID: req.AccountID})
	if err != nil {
		return Account{}, fmt.Errorf("failed to add quota: %w", err)
	}

	note := "Manual top-up via API"
	if req.Note != "" {
		note = req.Note
	}
	if _, err = qtx.CreateQuotaTopup(logCtx, database.CreateQuotaTopupParams{
		AccountID: req.AccountID,
		Units:     req.Units,
		Amount:    req.Amount,
		Kind:      codes.QuotaTopUp,
		Note:      &note,
	}); err != nil {
		return Account{}, fmt.Errorf("failed to record top-up: %w", err)
	}

	if err = tx.Commit(logCtx); err != nil {
		return Account{}, fmt.Errorf("failed to commit top-up: %w", err)
	}

	slog.InfoContext(logCtx, "Quota topped up",
		slog.Int64("total_before", before.TotalQuota),
		slog.Int64("total_after", updated.TotalQuota),
	)
	return accountFromRow(updated), nil
}

func (l *PostgresLedger) Remaining(ctx context.Context, accountID int64) (int64, error) {
	acct, err := l.Get(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return acct.Remaining(), nil
}

func (l *PostgresLedger) Get(ctx context.Context, accountID int64) (Account, error) {
	row, err := l.dbQueries.GetAccountQuota(ctx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("failed to get quota: %w", err)
	}
	return accountFromRow(row), nil
}

func (l *PostgresLedger) History(ctx context.Context, accountID int64, limit, offset int32) ([]Entry, error) {
	rows, err := l.dbQueries.ListQuotaTopups(ctx, database.ListQuotaTopupsParams{AccountID: accountID, Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("failed to list quota history: %w", err)
	}
	entries := make([]Entry, len(rows))
	for i, r := range rows {
		entries[i] = Entry{
			ID:        r.ID,
			AccountID: r.AccountID,
			Units:     r.Units,
			Amount:    r.Amount,
			Kind:      r.Kind,
			CreatedAt: r.CreatedAt,
		}
		if r.Note != nil {
			entries[i].Note = *r.Note
		}
	}
	return entries, nil
}

func (l *PostgresLedger) SetLowQuotaThreshold(ctx context.Context, accountID, threshold int64) error {
	if threshold < 0 {
		return ErrInvalidUnits
	}
	n, err := l.dbQueries.SetLowQuotaThreshold(ctx, database.SetLowQuotaThresholdParams{AccountID: accountID, LowQuotaThreshold: threshold})
	if err != nil {
		return fmt.Errorf("failed to set low quota threshold: %w", err)
	}
	if n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (l *PostgresLedger) BelowThreshold(ctx context.Context, limit int) ([]Account, error) {
	rows, err := l.dbQueries.GetAccountsBelowThreshold(ctx, int32(limit))
	if err != nil {
		return nil, err
	}
	accounts := make([]Account, len(rows))
	for i, r := range rows {
		accounts[i] = accountFromRow(r)
	}
	return accounts, nil
}

func (l *PostgresLedger) MarkLowQuotaNotified(ctx context.Context, accountID int64) error {
	return l.dbQueries.UpdateLowQuotaNotifiedAt(ctx, accountID)
}

func accountFromRow(r database.AccountQuota) Account {
	return Account{
		AccountID:          r.AccountID,
		TotalQuota:         r.TotalQuota,
		UsedQuota:          r.UsedQuota,
		LowQuotaThreshold:  r.LowQuotaThreshold,
		LowQuotaNotifiedAt: r.LowQuotaNotifiedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

// Compile-time check to ensure PostgresLedger implements Ledger
var _ Ledger = (*PostgresLedger)(nil)
