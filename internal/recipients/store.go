package recipients

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SYA-Group/sya-sms-dispatch/pkg/codes"
	"github.com/SYA-Group/sya-sms-dispatch/pkg/phone"
)

var ErrInvalidStatus = errors.New("invalid recipient status")

// Recipient is one row of an account's recipient set.
type Recipient struct {
	ID            int64      `json:"id"`
	AccountID     int64      `json:"account_id"`
	Phone         string     `json:"phone"`
	Name          string     `json:"name,omitempty"`
	Status        string     `json:"status"`
	Retries       int        `json:"retries"`
	LastError     string     `json:"last_error,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Record is an incoming phone+name pair from upload or manual add.
type Record struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

// RowOutcome reports what happened to one input record.
type RowOutcome struct {
	Phone     string     `json:"phone"`
	Input     string     `json:"input,omitempty"`
	Name      string     `json:"name,omitempty"`
	Status    string     `json:"status"`
	Reason    string     `json:"reason,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

type InsertResult struct {
	Inserted int          `json:"inserted"`
	Skipped  int          `json:"skipped"`
	Rows     []RowOutcome `json:"rows"`
}

// BatchQuery pages by id. MaxID of zero means no upper bound.
type BatchQuery struct {
	AccountID int64
	Status    string
	AfterID   int64
	MaxID     int64
	Limit     int
}

type ResultUpdate struct {
	AccountID      int64
	Phone          string
	Status         string
	IncrementRetry bool
	Reason         string
}

type ListQuery struct {
	AccountID int64
	Status    string // empty lists every status
	Limit     int32
	Offset    int32
}

type Stats struct {
	Pending int64 `json:"pending"`
	Sending int64 `json:"sending"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Total   int64 `json:"total"`
}

func (s *Stats) add(status string, n int64) {
	switch status {
	case codes.RecipientPending:
		s.Pending += n
	case codes.RecipientSending:
		s.Sending += n
	case codes.RecipientSent:
		s.Sent += n
	case codes.RecipientFailed:
		s.Failed += n
	}
	s.Total += n
}

type DayCount struct {
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

// Store is the durable recipient table.
type Store interface {
	// BulkInsert normalizes and dedups on (account, phone). Duplicates and
	// invalid numbers are skipped and reported per row, never an error.
	BulkInsert(ctx context.Context, accountID int64, records []Record) (InsertResult, error)
	// FetchBatch returns rows with id > AfterID in ascending id order.
	FetchBatch(ctx context.Context, q BatchQuery) ([]Recipient, error)
	MaxID(ctx context.Context, accountID int64) (int64, error)
	CountUpTo(ctx context.Context, accountID int64, status string, maxID int64) (int64, error)
	// MarkSending moves a pending row to sending. It returns false if the
	// row was no longer pending.
	MarkSending(ctx context.Context, accountID int64, phone string) (bool, error)
	MarkResult(ctx context.Context, u ResultUpdate) error
	// ResetAllToPending sets every row of the account to pending. Retries are kept.
	ResetAllToPending(ctx context.Context, accountID int64) (int64, error)
	List(ctx context.Context, q ListQuery) ([]Recipient, int64, error)
	Stats(ctx context.Context, accountID int64) (Stats, error)
	Timeline(ctx context.Context, accountID int64, since time.Time) ([]DayCount, error)
	// Export walks matching rows in id order.
	Export(ctx context.Context, accountID int64, status string, fn func(Recipient) error) error
	AccountsWithStaleSending(ctx context.Context, before time.Time) ([]int64, error)
	RequeueStale(ctx context.Context, accountID int64, before time.Time) (int64, error)
	Ping(ctx context.Context) error
}

// candidate is a normalized record waiting for the backend insert.
type candidate struct {
	index int
	phone string
	name  string
}

// prepare normalizes every record and drops in-batch duplicates. The
// returned outcomes are in input order; candidates point back into them.
func prepare(records []Record) ([]candidate, []RowOutcome) {
	outcomes := make([]RowOutcome, len(records))
	seen := make(map[string]struct{}, len(records))
	candidates := make([]candidate, 0, len(records))

	for i, rec := range records {
		name := strings.TrimSpace(rec.Name)
		norm, err := phone.Normalize(rec.Phone)
		if err != nil {
			outcomes[i] = RowOutcome{Input: rec.Phone, Name: name, Status: codes.RowInvalid, Reason: phone.ReasonFormat}
			continue
		}
		if _, dup := seen[norm]; dup {
			outcomes[i] = RowOutcome{Phone: norm, Input: rec.Phone, Name: name, Status: codes.RowDuplicate, Reason: "duplicate in upload"}
			continue
		}
		seen[norm] = struct{}{}
		outcomes[i] = RowOutcome{Phone: norm, Input: rec.Phone, Name: name}
		candidates = append(candidates, candidate{index: i, phone: norm, name: name})
	}
	return candidates, outcomes
}

// finish marks candidates the backend did not insert as duplicates and counts.
func finish(candidates []candidate, outcomes []RowOutcome, inserted map[string]time.Time) InsertResult {
	for _, c := range candidates {
		if createdAt, ok := inserted[c.phone]; ok {
			ts := createdAt
			outcomes[c.index].Status = codes.RowInserted
			outcomes[c.index].CreatedAt = &ts
		} else {
			outcomes[c.index].Status = codes.RowDuplicate
			outcomes[c.index].Reason = "already exists"
		}
	}
	res := InsertResult{Rows: outcomes}
	for _, o := range outcomes {
		if o.Status == codes.RowInserted {
			res.Inserted++
		} else {
			res.Skipped++
		}
	}
	return res
}

func validateResult(u ResultUpdate) error {
	if !codes.IsRecipientStatus(u.Status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, u.Status)
	}
	return nil
}

// ValidateFilter accepts an empty filter, "all" (mapped to empty) or a known status.
func ValidateFilter(status string) (string, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" || status == "all" {
		return "", nil
	}
	if !codes.IsRecipientStatus(status) {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return status, nil
}

// TimelineSince returns the start of the Cairo calendar day that begins a
// window of days days ending today.
func TimelineSince(now time.Time, days int) time.Time {
	if days < 1 {
		days = 1
	}
	local := now.In(cairo)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, cairo)
	return start.AddDate(0, 0, -(days - 1))
}
