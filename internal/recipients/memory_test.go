package recipients

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SYA-Group/sya-sms-dispatch/pkg/codes"
)

func seed(t *testing.T, s *MemoryStore, accountID int64, n int) {
	t.Helper()
	records := make([]Record, n)
	for i := range records {
		records[i] = Record{Phone: fmt.Sprintf("0100%07d", i), Name: fmt.Sprintf("r%d", i)}
	}
	res, err := s.BulkInsert(context.Background(), accountID, records)
	require.NoError(t, err)
	require.Equal(t, n, res.Inserted)
}

func TestBulkInsertDedupsAcrossFormats(t *testing.T) {
	s := NewMemoryStore()
	res, err := s.BulkInsert(context.Background(), 1, []Record{
		{Phone: "201001234567", Name: "A"},
		{Phone: "01001234567", Name: "A-dup"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, codes.RowInserted, res.Rows[0].Status)
	assert.NotNil(t, res.Rows[0].CreatedAt)
	assert.Equal(t, codes.RowDuplicate, res.Rows[1].Status)
	assert.Equal(t, "201001234567", res.Rows[1].Phone)
}

func TestBulkInsertReportsInvalidAndExisting(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.BulkInsert(ctx, 1, []Record{{Phone: "01001234567"}})
	require.NoError(t, err)

	res, err := s.BulkInsert(ctx, 1, []Record{
		{Phone: "not-a-number"},
		{Phone: "+201001234567"},
		{Phone: "01112223333", Name: "  Mona "},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, codes.RowInvalid, res.Rows[0].Status)
	assert.Equal(t, "invalid_format", res.Rows[0].Reason)
	assert.Equal(t, codes.RowDuplicate, res.Rows[1].Status)
	assert.Equal(t, "already exists", res.Rows[1].Reason)
	assert.Equal(t, "Mona", res.Rows[2].Name)

	// Same phone in another account is not a duplicate.
	res, err = s.BulkInsert(ctx, 2, []Record{{Phone: "01001234567"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
}

func TestFetchBatchCursorHasNoGapsOrOverlap(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, 1, 25)

	maxID, err := s.MaxID(ctx, 1)
	require.NoError(t, err)
	_, err = s.BulkInsert(ctx, 1, []Record{{Phone: "01299999999"}}) // after the snapshot
	require.NoError(t, err)

	seen := map[int64]bool{}
	var after int64
	for {
		batch, err := s.FetchBatch(ctx, BatchQuery{AccountID: 1, Status: codes.RecipientPending, AfterID: after, MaxID: maxID, Limit: 7})
		require.NoError(t, err)
		if len(batch) == 0 {
			break
		}
		for _, r := range batch {
			assert.False(t, seen[r.ID], "row %d returned twice", r.ID)
			assert.Greater(t, r.ID, after)
			seen[r.ID] = true
		}
		after = batch[len(batch)-1].ID
	}
	assert.Len(t, seen, 25, "rows inserted after the snapshot are excluded")

	n, err := s.CountUpTo(ctx, 1, codes.RecipientPending, maxID)
	require.NoError(t, err)
	assert.Equal(t, int64(25), n)
}

func TestMarkSendingAndResult(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, 1, 1)
	ph := "201000000000"

	ok, err := s.MarkSending(ctx, 1, ph)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.MarkSending(ctx, 1, ph)
	require.NoError(t, err)
	assert.False(t, ok, "only pending rows move to sending")

	require.NoError(t, s.MarkResult(ctx, ResultUpdate{AccountID: 1, Phone: ph, Status: codes.RecipientPending, IncrementRetry: true, Reason: "GW_TIMEOUT"}))
	require.NoError(t, s.MarkResult(ctx, ResultUpdate{AccountID: 1, Phone: ph, Status: codes.RecipientSent}))

	rows, total, err := s.List(ctx, ListQuery{AccountID: 1})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, codes.RecipientSent, rows[0].Status)
	assert.Equal(t, 1, rows[0].Retries)
	assert.NotNil(t, rows[0].SentAt)
	assert.NotNil(t, rows[0].LastAttemptAt)

	assert.ErrorIs(t, s.MarkResult(ctx, ResultUpdate{AccountID: 1, Phone: ph, Status: "bogus"}), ErrInvalidStatus)
}

func TestResetAllToPendingIsIdempotentAndKeepsRetries(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, 1, 3)
	require.NoError(t, s.MarkResult(ctx, ResultUpdate{AccountID: 1, Phone: "201000000001", Status: codes.RecipientFailed, IncrementRetry: true}))
	require.NoError(t, s.MarkResult(ctx, ResultUpdate{AccountID: 1, Phone: "201000000002", Status: codes.RecipientSent}))

	first, err := s.ResetAllToPending(ctx, 1)
	require.NoError(t, err)
	second, err := s.ResetAllToPending(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), first)
	assert.Equal(t, first, second)

	st, err := s.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Stats{Pending: 3, Total: 3}, st)

	rows, _, err := s.List(ctx, ListQuery{AccountID: 1, Status: codes.RecipientPending})
	require.NoError(t, err)
	assert.Equal(t, 1, rows[1].Retries)
}

func TestListPaging(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, 1, 12)
	require.NoError(t, s.MarkResult(ctx, ResultUpdate{AccountID: 1, Phone: "201000000004", Status: codes.RecipientFailed}))

	rows, total, err := s.List(ctx, ListQuery{AccountID: 1, Limit: 5, Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(12), total)
	assert.Len(t, rows, 2)

	rows, total, err = s.List(ctx, ListQuery{AccountID: 1, Status: codes.RecipientFailed, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "201000000004", rows[0].Phone)

	var exported int
	require.NoError(t, s.Export(ctx, 1, "", func(Recipient) error { exported++; return nil }))
	assert.Equal(t, 12, exported)
}

func TestRequeueStale(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	seed(t, s, 9, 2)

	_, err := s.MarkSending(ctx, 9, "201000000000")
	require.NoError(t, err)

	accounts, err := s.AccountsWithStaleSending(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []int64{9}, accounts)

	n, err := s.RequeueStale(ctx, 9, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, _, err := s.List(ctx, ListQuery{AccountID: 9})
	require.NoError(t, err)
	assert.Equal(t, codes.RecipientPending, rows[0].Status)
	assert.Equal(t, 1, rows[0].Retries)
	assert.Equal(t, "interrupted", rows[0].LastError)
}

func TestTimelineGroupsByCairoDay(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, 1, 3)

	// 22:30 UTC is already the next day in Cairo.
	times := []time.Time{
		time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 1, 22, 30, 0, 0, time.UTC),
		time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	for i, ts := range times {
		ts := ts
		s.now = func() time.Time { return ts }
		require.NoError(t, s.MarkResult(ctx, ResultUpdate{AccountID: 1, Phone: fmt.Sprintf("20100%07d", i), Status: codes.RecipientSent}))
	}

	days, err := s.Timeline(ctx, 1, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []DayCount{{Day: "2025-03-01", Count: 1}, {Day: "2025-03-02", Count: 2}}, days)
}

func TestValidateFilter(t *testing.T) {
	for in, want := range map[string]string{"": "", "all": "", "SENT": "sent", " failed ": "failed"} {
		got, err := ValidateFilter(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ValidateFilter("delivered")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
