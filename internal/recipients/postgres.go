package recipients

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SYA-Group/sya-sms-dispatch/internal/database"
	"github.com/SYA-Group/sya-sms-dispatch/internal/logging"
)

const (
	insertChunkSize = 5000
	exportPageSize  = 1000
)

// PostgresStore is the durable Store backed by the recipients table.
type PostgresStore struct {
	dbPool    *pgxpool.Pool
	dbQueries database.Querier
}

func NewPostgresStore(pool *pgxpool.Pool, queries database.Querier) *PostgresStore {
	return &PostgresStore{dbPool: pool, dbQueries: queries}
}

// BulkInsert inserts in chunks inside one transaction so a failed upload
// leaves nothing behind.
func (s *PostgresStore) BulkInsert(ctx context.Context, accountID int64, records []Record) (InsertResult, error) {
	logCtx := logging.ContextWithAccountID(ctx, accountID)
	candidates, outcomes := prepare(records)
	inserted := make(map[string]time.Time, len(candidates))

	if len(candidates) > 0 {
		tx, err := s.dbPool.BeginTx(logCtx, pgx.TxOptions{})
		if err != nil {
			return InsertResult{}, fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(context.Background())
		qtx := database.New(tx)

		for start := 0; start < len(candidates); start += insertChunkSize {
			end := min(start+insertChunkSize, len(candidates))
			chunk := candidates[start:end]
			phones := make([]string, len(chunk))
			names := make([]string, len(chunk))
			for i, c := range chunk {
				phones[i] = c.phone
				names[i] = c.name
			}
			rows, err := qtx.InsertRecipients(logCtx, database.InsertRecipientsParams{
				AccountID: accountID,
				Phones:    phones,
				Names:     names,
			})
			if err != nil {
				return InsertResult{}, fmt.Errorf("failed to insert recipients: %w", err)
			}
			for _, r := range rows {
				inserted[r.Phone] = r.CreatedAt
			}
		}
		if err := tx.Commit(logCtx); err != nil {
			return InsertResult{}, fmt.Errorf("failed to commit recipients: %w", err)
		}
	}

	res := finish(candidates, outcomes, inserted)
	slog.InfoContext(logCtx, "Recipients uploaded", slog.Int("inserted", res.Inserted), slog.Int("skipped", res.Skipped))
	return res, nil
}

func (s *PostgresStore) FetchBatch(ctx context.Context, q BatchQuery) ([]Recipient, error) {
	rows, err := s.dbQueries.FetchRecipientBatch(ctx, database.FetchRecipientBatchParams{
		AccountID: q.AccountID,
		Status:    q.Status,
		AfterID:   q.AfterID,
		MaxID:     q.MaxID,
		BatchSize: int32(q.Limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recipient batch: %w", err)
	}
	return fromRows(rows), nil
}

func (s *PostgresStore) MaxID(ctx context.Context, accountID int64) (int64, error) {
	return s.dbQueries.GetMaxRecipientID(ctx, accountID)
}

func (s *PostgresStore) CountUpTo(ctx context.Context, accountID int64, status string, maxID int64) (int64, error) {
	return s.dbQueries.CountRecipientsUpTo(ctx, database.CountRecipientsUpToParams{
		AccountID: accountID,
		Status:    status,
		MaxID:     maxID,
	})
}

func (s *PostgresStore) MarkSending(ctx context.Context, accountID int64, phone string) (bool, error) {
	n, err := s.dbQueries.MarkRecipientSending(ctx, database.MarkRecipientSendingParams{AccountID: accountID, Phone: phone})
	if err != nil {
		return false, fmt.Errorf("failed to mark recipient sending: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) MarkResult(ctx context.Context, u ResultUpdate) error {
	if err := validateResult(u); err != nil {
		return err
	}
	var reason *string
	if u.Reason != "" {
		reason = &u.Reason
	}
	_, err := s.dbQueries.MarkRecipientResult(ctx, database.MarkRecipientResultParams{
		Status:         u.Status,
		IncrementRetry: u.IncrementRetry,
		LastError:      reason,
		AccountID:      u.AccountID,
		Phone:          u.Phone,
	})
	if err != nil {
		return fmt.Errorf("failed to mark recipient result: %w", err)
	}
	return nil
}

func (s *PostgresStore) ResetAllToPending(ctx context.Context, accountID int64) (int64, error) {
	n, err := s.dbQueries.ResetAllRecipientsToPending(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset recipients: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) List(ctx context.Context, q ListQuery) ([]Recipient, int64, error) {
	total, err := s.dbQueries.CountRecipients(ctx, database.CountRecipientsParams{AccountID: q.AccountID, Status: q.Status})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count recipients: %w", err)
	}
	if total == 0 {
		return []Recipient{}, 0, nil
	}
	rows, err := s.dbQueries.ListRecipients(ctx, database.ListRecipientsParams{
		AccountID: q.AccountID,
		Status:    q.Status,
		RowLimit:  q.Limit,
		RowOffset: q.Offset,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list recipients: %w", err)
	}
	return fromRows(rows), total, nil
}

func (s *PostgresStore) Stats(ctx context.Context, accountID int64) (Stats, error) {
	rows, err := s.dbQueries.CountRecipientsByStatus(ctx, accountID)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count recipients by status: %w", err)
	}
	var st Stats
	for _, r := range rows {
		st.add(r.Status, r.Total)
	}
	return st, nil
}

func (s *PostgresStore) Timeline(ctx context.Context, accountID int64, since time.Time) ([]DayCount, error) {
	rows, err := s.dbQueries.SentTimeline(ctx, database.SentTimelineParams{AccountID: accountID, SentAt: &since})
	if err != nil {
		return nil, fmt.Errorf("failed to load sent timeline: %w", err)
	}
	out := make([]DayCount, len(rows))
	for i, r := range rows {
		out[i] = DayCount{Day: r.Day, Count: r.Total}
	}
	return out, nil
}

func (s *PostgresStore) Export(ctx context.Context, accountID int64, status string, fn func(Recipient) error) error {
	var afterID int64
	for {
		rows, err := s.dbQueries.ListRecipientsAfter(ctx, database.ListRecipientsAfterParams{
			AccountID: accountID,
			Status:    status,
			AfterID:   afterID,
			BatchSize: exportPageSize,
		})
		if err != nil {
			return fmt.Errorf("failed to page recipients for export: %w", err)
		}
		for _, r := range fromRows(rows) {
			if err := fn(r); err != nil {
				return err
			}
			afterID = r.ID
		}
		if len(rows) < exportPageSize {
			return nil
		}
	}
}

func (s *PostgresStore) AccountsWithStaleSending(ctx context.Context, before time.Time) ([]int64, error) {
	return s.dbQueries.ListAccountsWithStaleSending(ctx, &before)
}

func (s *PostgresStore) RequeueStale(ctx context.Context, accountID int64, before time.Time) (int64, error) {
	return s.dbQueries.RequeueStaleRecipients(ctx, database.RequeueStaleRecipientsParams{AccountID: accountID, LastAttemptAt: &before})
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.dbPool.Ping(ctx)
}

func fromRows(rows []database.Recipient) []Recipient {
	out := make([]Recipient, len(rows))
	for i, r := range rows {
		out[i] = Recipient{
			ID:            r.ID,
			AccountID:     r.AccountID,
			Phone:         r.Phone,
			Status:        r.Status,
			Retries:       int(r.Retries),
			LastAttemptAt: r.LastAttemptAt,
			SentAt:        r.SentAt,
			CreatedAt:     r.CreatedAt,
		}
		if r.Name != nil {
			out[i].Name = *r.Name
		}
		if r.LastError != nil {
			out[i].LastError = *r.LastError
		}
	}
	return out
}

var _ Store = (*PostgresStore)(nil)
