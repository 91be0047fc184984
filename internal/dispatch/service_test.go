package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SYA-Group/sya-sms-dispatch/internal/cache"
	"github.com/SYA-Group/sya-sms-dispatch/internal/gateway"
	"github.com/SYA-Group/sya-sms-dispatch/internal/notification"
	"github.com/SYA-Group/sya-sms-dispatch/internal/quota"
	"github.com/SYA-Group/sya-sms-dispatch/internal/recipients"
	"github.com/SYA-Group/sya-sms-dispatch/pkg/codes"
	"github.com/SYA-Group/sya-sms-dispatch/pkg/errormapper"
)

type fakeGateway struct {
	mu         sync.Mutex
	failures   map[string]int // phone -> failures left before success
	failFirst  int            // the first failFirst calls fail
	alwaysFail bool
	panicOn    string
	delay      time.Duration
	block      chan struct{}
	calls      int
}

func (f *fakeGateway) Send(ctx context.Context, phone, text string) (gateway.SendResult, error) {
	f.mu.Lock()
	f.calls++
	early := f.calls <= f.failFirst
	left := f.failures[phone]
	if left > 0 {
		f.failures[phone] = left - 1
	}
	block, delay := f.block, f.delay
	f.mu.Unlock()

	if phone == f.panicOn {
		panic("gateway exploded")
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return gateway.SendResult{}, gateway.NewError(errormapper.ErrorCodeGatewayTimeout, ctx.Err())
		}
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if f.alwaysFail || early || left > 0 {
		return gateway.SendResult{}, gateway.NewError(errormapper.ErrorCodeGatewayUnavailable, errors.New("provider down"))
	}
	return gateway.SendResult{MessageID: "m-" + phone, Segments: 1}, nil
}

func (f *fakeGateway) Name() string                { return "fake" }
func (f *fakeGateway) Close(context.Context) error { return nil }

func (f *fakeGateway) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification.Event
}

func (n *recordingNotifier) Notify(_ context.Context, ev notification.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

func (n *recordingNotifier) Events() []notification.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification.Event(nil), n.events...)
}

type harness struct {
	svc      *Service
	store    *recipients.MemoryStore
	ledger   *quota.MemoryLedger
	gw       *fakeGateway
	notifier *recordingNotifier
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		store:    recipients.NewMemoryStore(),
		ledger:   quota.NewMemoryLedger(),
		gw:       &fakeGateway{failures: map[string]int{}},
		notifier: &recordingNotifier{},
	}
	h.svc = h.service(opts, h.gw, h.notifier)
	return h
}

// service builds a Service over the harness backends with a custom gateway
// chain or notifier.
func (h *harness) service(opts Options, gw gateway.Client, n notification.Notifier) *Service {
	return NewService(Dependencies{
		Store:    h.store,
		Ledger:   h.ledger,
		Gateway:  gw,
		Cache:    cache.NewMemoryCache(),
		Notifier: n,
	}, opts, time.Hour)
}

func defaultOptions() Options {
	return Options{Workers: 3, BatchSize: 4, MaxRetries: 3, SendTimeout: time.Second}
}

func (h *harness) topUp(t *testing.T, accountID, units int64) {
	t.Helper()
	_, err := h.ledger.TopUp(context.Background(), quota.TopUpRequest{AccountID: accountID, Units: units})
	require.NoError(t, err)
}

func (h *harness) seed(t *testing.T, accountID int64, n int) []string {
	t.Helper()
	records := make([]recipients.Record, n)
	phones := make([]string, n)
	for i := range records {
		records[i] = recipients.Record{Phone: fmt.Sprintf("0100%07d", i)}
		phones[i] = fmt.Sprintf("20100%07d", i)
	}
	res, err := h.store.BulkInsert(context.Background(), accountID, records)
	require.NoError(t, err)
	require.Equal(t, n, res.Inserted)
	return phones
}

func (h *harness) waitFinished(t *testing.T, accountID int64) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		if h.svc.IsActive(accountID) {
			return false
		}
		var err error
		snap, err = h.svc.Progress(context.Background(), accountID)
		return err == nil && snap.Status == codes.JobStopped
	}, 5*time.Second, 5*time.Millisecond)
	return snap
}

func (h *harness) stats(t *testing.T, accountID int64) recipients.Stats {
	t.Helper()
	st, err := h.store.Stats(context.Background(), accountID)
	require.NoError(t, err)
	return st
}

func (h *harness) used(t *testing.T, accountID int64) int64 {
	t.Helper()
	acct, err := h.ledger.Get(context.Background(), accountID)
	require.NoError(t, err)
	return acct.UsedQuota
}

func TestStartSendsEveryPendingRecipient(t *testing.T) {
	h := newHarness(t, defaultOptions())
	h.topUp(t, 1, 100)
	h.seed(t, 1, 10)

	snap, err := h.svc.Start(context.Background(), 1, "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(10), snap.Total)
	assert.Equal(t, 1, snap.UnitsPerMessage)
	assert.NotEmpty(t, snap.JobID)

	final := h.waitFinished(t, 1)
	assert.Equal(t, codes.StopCompleted, final.Reason)
	assert.Equal(t, int64(10), final.Sent)
	assert.Equal(t, int64(0), final.Pending)
	assert.Equal(t, int64(10), final.UnitsUsed)
	assert.Equal(t, codes.ProgressIdle, final.State)
	assert.Equal(t, int64(10), h.stats(t, 1).Sent)
	assert.Equal(t, int64(10), h.used(t, 1))

	msg, ok, err := h.svc.LastMessage(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello", msg)

	events := h.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notification.EventJobFinished, events[0].Type)
	assert.Equal(t, int64(1), events[0].AccountID)
}

func TestQuotaExhaustionStopsAndLeavesRestPending(t *testing.T) {
	h := newHarness(t, defaultOptions())
	h.topUp(t, 1, 5)
	h.seed(t, 1, 10)

	_, err := h.svc.Start(context.Background(), 1, "hello")
	require.NoError(t, err)

	final := h.waitFinished(t, 1)
	assert.Equal(t, codes.StopQuotaExhausted, final.Reason)
	assert.Equal(t, int64(5), final.Sent)
	assert.Equal(t, int64(5), final.Pending)

	st := h.stats(t, 1)
	assert.Equal(t, int64(5), st.Sent)
	assert.Equal(t, int64(5), st.Pending)
	assert.Equal(t, int64(5), h.used(t, 1))
}

func TestMultiUnitMessageChargesPerRecipient(t *testing.T) {
	h := newHarness(t, defaultOptions())
	h.topUp(t, 1, 5)
	h.seed(t, 1, 4)

	snap, err := h.svc.Start(context.Background(), 1, strings.Repeat("a", 71))
	require.NoError(t, err)
	assert.Equal(t, 2, snap.UnitsPerMessage)

	final := h.waitFinished(t, 1)
	assert.Equal(t, codes.StopQuotaExhausted, final.Reason)
	assert.Equal(t, int64(2), final.Sent)
	assert.Equal(t, int64(4), final.UnitsUsed)
	assert.Equal(t, int64(4), h.used(t, 1))
}

func TestTransientFailureIsRetriedWithoutRecharging(t *testing.T) {
	h := newHarness(t, defaultOptions())
	h.topUp(t, 1, 10)
	phones := h.seed(t, 1, 1)
	h.gw.failures[phones[0]] = 2

	_, err := h.svc.Start(context.Background(), 1, "hello")
	require.NoError(t, err)

	final := h.waitFinished(t, 1)
	assert.Equal(t, int64(1), final.Sent)
	assert.Equal(t, int64(0), final.Failed)
	assert.Equal(t, 3, h.gw.callCount())
	assert.Equal(t, int64(1), h.used(t, 1))

	rows, _, err := h.store.List(context.Background(), recipients.ListQuery{AccountID: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, codes.RecipientSent, rows[0].Status)
	assert.Equal(t, 2, rows[0].Retries)
}

func TestPermanentFailureReleasesUnits(t *testing.T) {
	h := newHarness(t, Options{Workers: 1, BatchSize: 10, MaxRetries: 2, SendTimeout: time.Second})
	h.topUp(t, 1, 10)
	h.seed(t, 1, 1)
	h.gw.alwaysFail = true

	_, err := h.svc.Start(context.Background(), 1, "hello")
	require.NoError(t, err)

	final := h.waitFinished(t, 1)
	assert.Equal(t, codes.StopCompleted, final.Reason)
	assert.Equal(t, int64(1), final.Failed)
	assert.Equal(t, int64(0), final.Pending)
	assert.Equal(t, int64(0), final.UnitsUsed)
	assert.Equal(t, int64(0), h.used(t, 1))

	rows, _, err := h.store.List(context.Background(), recipients.ListQuery{AccountID: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, codes.RecipientFailed, rows[0].Status)
	assert.Equal(t, 2, rows[0].Retries)
	assert.Equal(t, errormapper.ErrorCodeGatewayUnavailable, rows[0].LastError)

	history, err := h.ledger.History(context.Background(), 1, 10, 0)
	require.NoError(t, err)
	var reversals int
	for _, e := range history {
		if e.Kind == codes.QuotaReversal {
			reversals++
		}
	}
	assert.Equal(t, 1, reversals)
}

func TestSecondStartIsRejectedWhileRunning(t *testing.T) {
	h := newHarness(t, defaultOptions())
	h.topUp(t, 1, 10)
	h.seed(t, 1, 3)
	h.gw.block = make(chan struct{})

	first, err := h.svc.Start(context.Background(), 1, "hello")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.gw.callCount() > 0 }, time.Second, time.Millisecond)

	_, err = h.svc.Start(context.Background(), 1, "other")
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Equal(t, errormapper.ErrorCodeAlreadyRunning, Code(err))

	_, err = h.svc.ResendAll(context.Background(), 1)
	assert.ErrorIs(t, err, ErrJobActive)

	live, err := h.svc.Progress(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, first.JobID, live.JobID)
	assert.Equal(t, int64(3), live.Total)
	assert.Equal(t, codes.ProgressSending, live.State)

	close(h.gw.block)
	final := h.waitFinished(t, 1)
	assert.Equal(t, first.JobID, final.JobID)
	assert.Equal(t, int64(3), final.Sent)

	msg, _, err := h.svc.LastMessage(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "hello", msg)
}

func TestStopKeepsCountsConsistent(t *testing.T) {
	h := newHarness(t, Options{Workers: 4, BatchSize: 16, MaxRetries: 3, SendTimeout: time.Second})
	h.topUp(t, 1, 1000)
	h.seed(t, 1, 200)
	h.gw.delay = 5 * time.Millisecond

	_, err := h.svc.Start(context.Background(), 1, "hello")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		snap, err := h.svc.Progress(context.Background(), 1)
		return err == nil && snap.Sent >= 10
	}, 5*time.Second, time.Millisecond)

	_, err = h.svc.Stop(context.Background(), 1)
	require.NoError(t, err)

	final := h.waitFinished(t, 1)
	assert.Equal(t, codes.StopUserRequested, final.Reason)
	assert.Equal(t, final.Total, final.Sent+final.Failed+final.Pending)
	assert.Positive(t, final.Pending)

	st := h.stats(t, 1)
	assert.Equal(t, final.Sent, st.Sent)
	assert.Equal(t, final.Pending, st.Pending)
	assert.Zero(t, st.Sending)
	assert.Equal(t, final.UnitsUsed, h.used(t, 1))

	// stopping an idle account is a no-op
	again, err := h.svc.Stop(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, final.JobID, again.JobID)
	assert.Equal(t, codes.StopUserRequested, again.Reason)
}

func TestResendAllIsIdempotent(t *testing.T) {
	h := newHarness(t, defaultOptions())
	h.topUp(t, 1, 10)
	h.seed(t, 1, 3)

	_, err := h.svc.Start(context.Background(), 1, "hello")
	require.NoError(t, err)
	h.waitFinished(t, 1)
	require.Equal(t, int64(3), h.stats(t, 1).Sent)

	for range 2 {
		n, err := h.svc.ResendAll(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
		st := h.stats(t, 1)
		assert.Equal(t, int64(3), st.Pending)
		assert.Zero(t, st.Sent)
	}
	assert.False(t, h.svc.IsActive(1))
}

func TestStartPrechecks(t *testing.T) {
	h := newHarness(t, defaultOptions())
	ctx := context.Background()

	_, err := h.svc.Start(ctx, 1, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = h.svc.Start(ctx, 99, "hello")
	assert.ErrorIs(t, err, quota.ErrAccountNotFound)
	assert.Equal(t, errormapper.ErrorCodeAccountNotFound, Code(err))
	assert.False(t, h.svc.IsActive(99))

	h.topUp(t, 2, 1)
	h.seed(t, 2, 1)
	_, err = h.svc.Start(ctx, 2, strings.Repeat("a", 71))
	assert.ErrorIs(t, err, quota.ErrInsufficientQuota)
	assert.Equal(t, errormapper.ErrorCodeInsufficientQuota, Code(err))
	assert.False(t, h.svc.IsActive(2))
	assert.Zero(t, h.gw.callCount())
}

func TestProgressWithoutAnyJobIsIdle(t *testing.T) {
	h := newHarness(t, defaultOptions())
	snap, err := h.svc.Progress(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, codes.JobIdle, snap.Status)
	assert.Equal(t, codes.ProgressIdle, snap.State)
	assert.False(t, snap.Active())

	_, ok, err := h.svc.LastMessage(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStartWithNoRecipientsCompletesImmediately(t *testing.T) {
	h := newHarness(t, defaultOptions())
	h.topUp(t, 1, 10)

	_, err := h.svc.Start(context.Background(), 1, "hello")
	require.NoError(t, err)

	final := h.waitFinished(t, 1)
	assert.Equal(t, codes.StopCompleted, final.Reason)
	assert.Zero(t, final.Total)
	assert.Zero(t, h.gw.callCount())
}

func TestWorkerPanicStopsJobWithError(t *testing.T) {
	h := newHarness(t, Options{Workers: 1, BatchSize: 10, MaxRetries: 3, SendTimeout: time.Second})
	h.topUp(t, 1, 10)
	phones := h.seed(t, 1, 3)
	h.gw.panicOn = phones[0]

	_, err := h.svc.Start(context.Background(), 1, "hello")
	require.NoError(t, err)

	final := h.waitFinished(t, 1)
	assert.Equal(t, codes.StopError, final.Reason)
	assert.Contains(t, final.Error, "panic")
	assert.Zero(t, h.used(t, 1), "reservation of the interrupted send is released")
}

func TestShutdownStopsRunningJobs(t *testing.T) {
	h := newHarness(t, defaultOptions())
	h.topUp(t, 1, 10)
	h.seed(t, 1, 6)
	h.gw.block = make(chan struct{})

	_, err := h.svc.Start(context.Background(), 1, "hello")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.gw.callCount() > 0 }, time.Second, time.Millisecond)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- h.svc.Shutdown(ctx)
	}()
	require.Eventually(t, func() bool {
		snap, err := h.svc.Progress(context.Background(), 1)
		return err == nil && snap.Status == codes.JobStopping
	}, time.Second, time.Millisecond)
	close(h.gw.block)

	require.NoError(t, <-done)
	final := h.waitFinished(t, 1)
	assert.Equal(t, codes.StopShutdown, final.Reason)
	assert.Equal(t, final.Total, final.Sent+final.Failed+final.Pending)
}

func TestRegistryReleaseOnlyRemovesCurrentLease(t *testing.T) {
	r := NewRegistry()
	l1, ok := r.TryAcquire(1, PurposeMaintenance, nil)
	require.True(t, ok)

	cur, ok := r.TryAcquire(1, PurposeDispatch, nil)
	assert.False(t, ok)
	assert.Same(t, l1, cur)

	assert.True(t, r.Release(l1))
	assert.False(t, r.Release(l1))
	assert.False(t, r.IsLeased(1))
}

func TestOpenCircuitDefersWithoutSpendingRetries(t *testing.T) {
	h := newHarness(t, defaultOptions())
	breaker := gateway.NewCircuitBreaker(gateway.CircuitBreakerConfig{
		FailureThreshold: 3,
		VolumeThreshold:  3,
		SuccessThreshold: 1,
		Timeout:          30 * time.Millisecond,
	})
	h.svc = h.service(Options{Workers: 1, BatchSize: 10, MaxRetries: 3, DeferBackoff: 5 * time.Millisecond},
		gateway.WithCircuitBreaker(h.gw, breaker), h.notifier)
	h.topUp(t, 1, 100)
	h.seed(t, 1, 10)
	h.gw.failFirst = 3

	_, err := h.svc.Start(context.Background(), 1, "hello")
	require.NoError(t, err)

	final := h.waitFinished(t, 1)
	assert.Equal(t, codes.StopCompleted, final.Reason)
	assert.Equal(t, int64(10), final.Sent)
	assert.Zero(t, final.Failed)
	assert.Equal(t, 13, h.gw.callCount(), "rows held back by the open circuit never reached the gateway")
	assert.Equal(t, int64(10), h.used(t, 1))

	rows, _, err := h.store.List(context.Background(), recipients.ListQuery{AccountID: 1, Limit: 20})
	require.NoError(t, err)
	var retries int
	for _, r := range rows {
		assert.Equal(t, codes.RecipientSent, r.Status)
		retries += r.Retries
	}
	assert.Equal(t, 3, retries)
}

func TestGatewayOutageStopsJobWithError(t *testing.T) {
	h := newHarness(t, defaultOptions())
	breaker := gateway.NewCircuitBreaker(gateway.CircuitBreakerConfig{
		FailureThreshold: 2,
		VolumeThreshold:  2,
		SuccessThreshold: 1,
		Timeout:          5 * time.Millisecond,
	})
	h.svc = h.service(Options{Workers: 1, BatchSize: 10, MaxRetries: 5, DeferBackoff: time.Millisecond, MaxDeferredPasses: 3},
		gateway.WithCircuitBreaker(h.gw, breaker), h.notifier)
	h.topUp(t, 1, 100)
	h.seed(t, 1, 20)
	h.gw.alwaysFail = true

	_, err := h.svc.Start(context.Background(), 1, "hello")
	require.NoError(t, err)

	final := h.waitFinished(t, 1)
	assert.Equal(t, codes.StopError, final.Reason)
	assert.Contains(t, final.Error, "gateway unavailable")
	assert.Zero(t, final.Sent)
	assert.Zero(t, final.Failed, "no recipient is failed for an outage")
	assert.Equal(t, int64(20), final.Pending)
	assert.Equal(t, 4, h.gw.callCount())
	assert.Zero(t, h.used(t, 1))

	st := h.stats(t, 1)
	assert.Equal(t, int64(20), st.Pending)
	assert.Zero(t, st.Sending)
	assert.Zero(t, st.Failed)
}

func TestRateLimiterWaitIsNotAFailedAttempt(t *testing.T) {
	h := newHarness(t, defaultOptions())
	limited := gateway.NewRateLimited(gateway.WithSendTimeout(h.gw), 100, 1)
	h.svc = h.service(Options{Workers: 5, BatchSize: 20, MaxRetries: 1, SendTimeout: 5 * time.Millisecond}, limited, h.notifier)
	h.topUp(t, 1, 100)
	h.seed(t, 1, 15)

	_, err := h.svc.Start(context.Background(), 1, "hello")
	require.NoError(t, err)

	final := h.waitFinished(t, 1)
	assert.Equal(t, codes.StopCompleted, final.Reason)
	assert.Equal(t, int64(15), final.Sent)
	assert.Zero(t, final.Failed)
	assert.Equal(t, 15, h.gw.callCount())
}

type blockingNotifier struct {
	release chan struct{}
	calls   chan notification.Event
}

func (n *blockingNotifier) Notify(ctx context.Context, ev notification.Event) error {
	n.calls <- ev
	select {
	case <-n.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *blockingNotifier) Close() error { return nil }

func TestLeaseIsReleasedBeforeFinishEventIsPublished(t *testing.T) {
	h := newHarness(t, defaultOptions())
	n := &blockingNotifier{release: make(chan struct{}), calls: make(chan notification.Event, 4)}
	h.svc = h.service(defaultOptions(), h.gw, n)
	h.topUp(t, 1, 10)
	h.seed(t, 1, 2)

	first, err := h.svc.Start(context.Background(), 1, "hello")
	require.NoError(t, err)

	select {
	case ev := <-n.calls:
		assert.Equal(t, notification.EventJobFinished, ev.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("finish event was never published")
	}
	assert.False(t, h.svc.IsActive(1))
	snap, err := h.svc.Progress(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, first.JobID, snap.JobID)
	assert.Equal(t, codes.JobStopped, snap.Status)

	_, err = h.svc.ResendAll(context.Background(), 1)
	require.NoError(t, err)
	second, err := h.svc.Start(context.Background(), 1, "again")
	require.NoError(t, err)
	assert.NotEqual(t, first.JobID, second.JobID)

	close(n.release)
	final := h.waitFinished(t, 1)
	assert.Equal(t, second.JobID, final.JobID)
	assert.Equal(t, int64(2), final.Sent)
}

func TestStartWithLoadsUnderTheLease(t *testing.T) {
	h := newHarness(t, defaultOptions())
	h.topUp(t, 1, 10)
	h.seed(t, 1, 1)

	snap, err := h.svc.StartWith(context.Background(), 1, "hello", func(ctx context.Context) error {
		assert.True(t, h.svc.IsActive(1))
		_, err := h.store.BulkInsert(ctx, 1, []recipients.Record{{Phone: "01009999999"}})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Total)
	assert.Equal(t, int64(2), h.waitFinished(t, 1).Sent)

	loadErr := errors.New("search backend down")
	_, err = h.svc.StartWith(context.Background(), 1, "hello", func(context.Context) error { return loadErr })
	assert.ErrorIs(t, err, loadErr)
	assert.False(t, h.svc.IsActive(1))

	// an empty message is rejected before anything is loaded
	_, err = h.svc.StartWith(context.Background(), 1, " ", func(context.Context) error {
		t.Fatal("load must not run")
		return nil
	})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestRowsCommittedBelowHorizonAfterCountGrowTotal(t *testing.T) {
	h := newHarness(t, defaultOptions())
	h.topUp(t, 1, 10)
	h.seed(t, 1, 3)

	maxID, err := h.store.MaxID(context.Background(), 1)
	require.NoError(t, err)

	job := newJob(1, "hello", 1, defaultOptions(), h.store, h.ledger, h.gw)
	job.begin(maxID, 2) // the third row was not yet visible to the count
	job.run(context.Background())

	snap := job.Snapshot()
	assert.Equal(t, codes.JobStopped, snap.Status)
	assert.Equal(t, int64(3), snap.Sent)
	assert.Equal(t, int64(3), snap.Total)
	assert.Zero(t, snap.Pending)
}
