package recipients

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SYA-Group/sya-sms-dispatch/pkg/codes"
	"github.com/SYA-Group/sya-sms-dispatch/pkg/errormapper"
)

var cairo = mustLoadLocation("Africa/Cairo")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("EET", 2*60*60)
	}
	return loc
}

// MemoryStore is a process-local Store used by tests and STORE_BACKEND=memory.
// Rows per account are kept in ascending id order.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	rows    map[int64][]*Recipient
	byPhone map[int64]map[string]*Recipient
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:    make(map[int64][]*Recipient),
		byPhone: make(map[int64]map[string]*Recipient),
		now:     time.Now,
	}
}

func (s *MemoryStore) BulkInsert(_ context.Context, accountID int64, records []Record) (InsertResult, error) {
	candidates, outcomes := prepare(records)

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byPhone[accountID]
	if !ok {
		idx = make(map[string]*Recipient)
		s.byPhone[accountID] = idx
	}
	inserted := make(map[string]time.Time, len(candidates))
	for _, c := range candidates {
		if _, exists := idx[c.phone]; exists {
			continue
		}
		s.nextID++
		r := &Recipient{
			ID:        s.nextID,
			AccountID: accountID,
			Phone:     c.phone,
			Name:      c.name,
			Status:    codes.RecipientPending,
			CreatedAt: s.now(),
		}
		idx[c.phone] = r
		s.rows[accountID] = append(s.rows[accountID], r)
		inserted[c.phone] = r.CreatedAt
	}
	return finish(candidates, outcomes, inserted), nil
}

func (s *MemoryStore) FetchBatch(_ context.Context, q BatchQuery) ([]Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.rows[q.AccountID]
	start := sort.Search(len(rows), func(i int) bool { return rows[i].ID > q.AfterID })
	var out []Recipient
	for _, r := range rows[start:] {
		if q.MaxID > 0 && r.ID > q.MaxID {
			break
		}
		if r.Status != q.Status {
			continue
		}
		out = append(out, *r)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) MaxID(_ context.Context, accountID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.rows[accountID]
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[len(rows)-1].ID, nil
}

func (s *MemoryStore) CountUpTo(_ context.Context, accountID int64, status string, maxID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, r := range s.rows[accountID] {
		if maxID > 0 && r.ID > maxID {
			break
		}
		if r.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) MarkSending(_ context.Context, accountID int64, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byPhone[accountID][phone]
	if !ok || r.Status != codes.RecipientPending {
		return false, nil
	}
	now := s.now()
	r.Status = codes.RecipientSending
	r.LastAttemptAt = &now
	return true, nil
}

func (s *MemoryStore) MarkResult(_ context.Context, u ResultUpdate) error {
	if err := validateResult(u); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byPhone[u.AccountID][u.Phone]
	if !ok {
		return nil
	}
	r.Status = u.Status
	if u.IncrementRetry {
		r.Retries++
	}
	r.LastError = u.Reason
	if u.Status == codes.RecipientSent {
		now := s.now()
		r.SentAt = &now
	}
	return nil
}

func (s *MemoryStore) ResetAllToPending(_ context.Context, accountID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.rows[accountID]
	for _, r := range rows {
		r.Status = codes.RecipientPending
		r.LastError = ""
	}
	return int64(len(rows)), nil
}

func (s *MemoryStore) List(_ context.Context, q ListQuery) ([]Recipient, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Recipient
	for _, r := range s.rows[q.AccountID] {
		if q.Status == "" || r.Status == q.Status {
			matched = append(matched, *r)
		}
	}
	total := int64(len(matched))
	if int(q.Offset) >= len(matched) {
		return []Recipient{}, total, nil
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && int(q.Limit) < len(matched) {
		matched = matched[:q.Limit]
	}
	return matched, total, nil
}

func (s *MemoryStore) Stats(_ context.Context, accountID int64) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st Stats
	for _, r := range s.rows[accountID] {
		st.add(r.Status, 1)
	}
	return st, nil
}

func (s *MemoryStore) Timeline(_ context.Context, accountID int64, since time.Time) ([]DayCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int64)
	for _, r := range s.rows[accountID] {
		if r.Status != codes.RecipientSent || r.SentAt == nil || r.SentAt.Before(since) {
			continue
		}
		counts[r.SentAt.In(cairo).Format(time.DateOnly)]++
	}
	out := make([]DayCount, 0, len(counts))
	for day, n := range counts {
		out = append(out, DayCount{Day: day, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

func (s *MemoryStore) Export(ctx context.Context, accountID int64, status string, fn func(Recipient) error) error {
	rows, _, err := s.List(ctx, ListQuery{AccountID: accountID, Status: status})
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) AccountsWithStaleSending(_ context.Context, before time.Time) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []int64
	for accountID, rows := range s.rows {
		for _, r := range rows {
			if r.Status == codes.RecipientSending && r.LastAttemptAt != nil && r.LastAttemptAt.Before(before) {
				out = append(out, accountID)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *MemoryStore) RequeueStale(_ context.Context, accountID int64, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.rows[accountID] {
		if r.Status == codes.RecipientSending && r.LastAttemptAt != nil && r.LastAttemptAt.Before(before) {
			r.Status = codes.RecipientPending
			r.Retries++
			r.LastError = errormapper.ErrorCodeInterrupted
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

var _ Store = (*MemoryStore)(nil)
