package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/SYA-Group/sya-sms-dispatch/internal/gateway"
	"github.com/SYA-Group/sya-sms-dispatch/internal/logging"
	"github.com/SYA-Group/sya-sms-dispatch/internal/quota"
	"github.com/SYA-Group/sya-sms-dispatch/internal/recipients"
	"github.com/SYA-Group/sya-sms-dispatch/pkg/codes"
	"github.com/SYA-Group/sya-sms-dispatch/pkg/errormapper"
)

const releaseTimeout = 10 * time.Second

// Options tunes a job's worker pool and retry policy.
type Options struct {
	Workers     int
	BatchSize   int
	MaxRetries  int
	SendTimeout time.Duration

	// DeferBackoff is the minimum pause after a pass cut short because the
	// gateway deferred a send. MaxDeferredPasses such passes in a row
	// without a single successful send stop the job with an error.
	DeferBackoff      time.Duration
	MaxDeferredPasses int
}

func (o Options) withDefaults() Options {
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.BatchSize < 1 {
		o.BatchSize = 500
	}
	if o.MaxRetries < 1 {
		o.MaxRetries = 3
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 15 * time.Second
	}
	if o.DeferBackoff <= 0 {
		o.DeferBackoff = 2 * time.Second
	}
	if o.MaxDeferredPasses < 1 {
		o.MaxDeferredPasses = 10
	}
	return o
}

// Job is one run of a message over an account's pending recipients.
//
// Recipients are consumed in passes. Each pass walks the pending rows with
// id <= maxID by cursor and hands them to the worker pool; the next pass
// picks up rows requeued for retry. The job ends after a pass that finds no
// pending rows or once a stop was requested and in-flight sends drained.
//
// Units are reserved once per recipient per job. A retry reuses the
// reservation; a permanent failure, or a billed row still pending when the
// job ends, gives the units back.
//
// A send the gateway deferred (open breaker, throttling) is not an attempt:
// the row goes back to pending, the rest of the pass is skipped and the job
// backs off before the next pass.
type Job struct {
	ID              string
	AccountID       int64
	Message         string
	UnitsPerMessage int

	opts   Options
	store  recipients.Store
	ledger quota.Ledger
	gw     gateway.Client

	cancelRequested atomic.Bool
	deferred        atomic.Bool // set when the current pass hit a deferred send
	stopCh          chan struct{}
	stopOnce        sync.Once

	mu         sync.Mutex
	status     string
	reason     string
	errMsg     string
	maxID      int64
	sent       int64
	failed     int64
	unitsUsed  int64
	total      int64
	startedAt  time.Time
	finishedAt time.Time
	attempts   map[int64]int      // failed attempts in this job, by recipient id
	billed     map[int64]struct{} // recipients holding a reservation
	deferErr   error

	done     chan struct{}
	onFinish func(Snapshot)
}

func newJob(accountID int64, message string, units int, opts Options, store recipients.Store, ledger quota.Ledger, gw gateway.Client) *Job {
	return &Job{
		ID:              uuid.NewString(),
		AccountID:       accountID,
		Message:         message,
		UnitsPerMessage: units,
		opts:            opts.withDefaults(),
		store:           store,
		ledger:          ledger,
		gw:              gw,
		status:          codes.JobIdle,
		attempts:        make(map[int64]int),
		billed:          make(map[int64]struct{}),
		stopCh:          make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// begin moves the job from idle to running with a fixed recipient horizon.
func (j *Job) begin(maxID, total int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = codes.JobRunning
	j.maxID = maxID
	j.total = total
	j.startedAt = time.Now().UTC()
}

// Snapshot returns the job's counters as of one instant.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := Snapshot{
		JobID:           j.ID,
		AccountID:       j.AccountID,
		Status:          j.status,
		State:           legacyState(j.status),
		Reason:          j.reason,
		Error:           j.errMsg,
		UnitsPerMessage: j.UnitsPerMessage,
		Sent:            j.sent,
		Failed:          j.failed,
		UnitsUsed:       j.unitsUsed,
		Total:           j.total,
		Pending:         max(0, j.total-j.sent-j.failed),
	}
	if !j.startedAt.IsZero() {
		t := j.startedAt
		s.StartedAt = &t
	}
	if !j.finishedAt.IsZero() {
		t := j.finishedAt
		s.FinishedAt = &t
	}
	return s
}

// Done is closed once the job is stopped, its lease released and the
// finish event published.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Stop asks the job to stop taking new work. In-flight sends complete.
// The first reason recorded wins.
func (j *Job) Stop(reason string) {
	j.requestStop(reason, nil)
}

func (j *Job) requestStop(reason string, cause error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status == codes.JobStopped {
		return
	}
	if j.reason == "" {
		j.reason = reason
	}
	if cause != nil && j.errMsg == "" {
		j.errMsg = cause.Error()
	}
	if j.status == codes.JobRunning {
		j.status = codes.JobStopping
	}
	j.cancelRequested.Store(true)
	j.stopOnce.Do(func() { close(j.stopCh) })
}

// abort ends a job that never started running.
func (j *Job) abort() {
	j.mu.Lock()
	j.status = codes.JobStopped
	j.finishedAt = time.Now().UTC()
	j.mu.Unlock()
	close(j.done)
}

func (j *Job) run(ctx context.Context) {
	ctx = logging.ContextWithJobID(logging.ContextWithAccountID(ctx, j.AccountID), j.ID)
	snap := j.Snapshot()
	slog.InfoContext(ctx, "Dispatch job started",
		slog.Int64("total", snap.Total),
		slog.Int("units_per_message", j.UnitsPerMessage),
		slog.Int("workers", j.opts.Workers),
	)

	idlePasses := 0
	for snap.Total > 0 && !j.cancelRequested.Load() {
		sentBefore := j.sentCount()
		j.deferred.Store(false)
		fetched, err := j.runPass(ctx)
		if err != nil {
			j.requestStop(codes.StopError, err)
			break
		}
		if j.deferred.Load() {
			if j.sentCount() > sentBefore {
				idlePasses = 0
			} else {
				idlePasses++
			}
			if idlePasses >= j.opts.MaxDeferredPasses {
				j.requestStop(codes.StopError, fmt.Errorf("gateway unavailable after %d deferred passes: %w", idlePasses, j.lastDeferErr()))
				break
			}
			j.backoff(ctx)
			continue
		}
		if fetched == 0 {
			break
		}
	}
	j.finish(ctx)
}

// backoff waits before the next pass after a deferred send, at least until
// the gateway says it will accept requests again. A stop cuts it short.
func (j *Job) backoff(ctx context.Context) {
	wait := j.opts.DeferBackoff
	if ra, ok := j.gw.(gateway.RetryAfterer); ok {
		wait = max(wait, ra.RetryAfter())
	}
	slog.InfoContext(ctx, "Gateway deferred sends, pausing dispatch", slog.Duration("wait", wait), slog.Any("error", j.lastDeferErr()))

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-j.stopCh:
	case <-ctx.Done():
	}
}

// runPass feeds one cursor walk of pending rows to the worker pool and
// waits for every handed-out row to be processed.
func (j *Job) runPass(ctx context.Context) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	work := make(chan recipients.Recipient, j.opts.BatchSize)
	fetched := 0

	g.Go(func() error {
		defer close(work)
		return j.recovered(ctx, func() error {
			var afterID int64
			for !j.halted() {
				batch, err := j.store.FetchBatch(gctx, recipients.BatchQuery{
					AccountID: j.AccountID,
					Status:    codes.RecipientPending,
					AfterID:   afterID,
					MaxID:     j.maxID,
					Limit:     j.opts.BatchSize,
				})
				if err != nil {
					if gctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("failed to fetch recipient batch: %w", err)
				}
				fetched += len(batch)
				for _, r := range batch {
					if j.halted() {
						return nil
					}
					select {
					case work <- r:
					case <-gctx.Done():
						return nil
					}
				}
				if len(batch) < j.opts.BatchSize {
					return nil
				}
				afterID = batch[len(batch)-1].ID
			}
			return nil
		})
	})

	for w := 1; w <= j.opts.Workers; w++ {
		workerCtx := logging.ContextWithWorkerID(ctx, w)
		g.Go(func() error {
			for r := range work {
				if err := j.recovered(workerCtx, func() error { return j.process(workerCtx, r) }); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err := g.Wait()
	return fetched, err
}

// recovered runs fn, turning a panic into an error. Any error also stops
// the job so the remaining workers stop taking rows.
func (j *Job) recovered(ctx context.Context, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in dispatch worker: %v", p)
			slog.ErrorContext(ctx, "Recovered panic in dispatch worker", slog.Any("panic", p), slog.String("stack", string(debug.Stack())))
		}
		if err != nil {
			j.requestStop(codes.StopError, err)
		}
	}()
	return fn()
}

// process drives one recipient through reserve, send and record. A
// returned error is fatal for the job.
func (j *Job) process(ctx context.Context, r recipients.Recipient) error {
	if j.halted() {
		return nil
	}
	ctx = logging.ContextWithRecipientID(logging.ContextWithMSISDN(ctx, r.Phone), r.ID)
	units := int64(j.UnitsPerMessage)

	if !j.isBilled(r.ID) {
		if err := j.ledger.Reserve(ctx, j.AccountID, units); err != nil {
			if errors.Is(err, quota.ErrInsufficientQuota) {
				slog.InfoContext(ctx, "Quota exhausted, stopping dispatch job")
				j.requestStop(codes.StopQuotaExhausted, nil)
				return nil
			}
			return fmt.Errorf("failed to reserve quota: %w", err)
		}
		j.markBilled(r.ID)
	}

	ok, err := j.store.MarkSending(ctx, j.AccountID, r.Phone)
	if err != nil {
		return err
	}
	if !ok {
		slog.DebugContext(ctx, "Recipient no longer pending, skipping")
		j.refund(ctx, r.ID, "not_pending")
		return nil
	}

	res, sendErr := j.gw.Send(gateway.ContextWithSendTimeout(ctx, j.opts.SendTimeout), r.Phone, j.Message)

	if sendErr == nil {
		j.recordSent(r.ID, units)
		if err := j.store.MarkResult(ctx, recipients.ResultUpdate{AccountID: j.AccountID, Phone: r.Phone, Status: codes.RecipientSent}); err != nil {
			return fmt.Errorf("failed to record sent recipient: %w", err)
		}
		slog.DebugContext(ctx, "SMS sent", slog.String("message_id", res.MessageID))
		return nil
	}

	reason := errormapper.ReasonFromError(sendErr)
	if gateway.Deferred(sendErr) {
		j.deferPass(sendErr)
		slog.DebugContext(ctx, "SMS send deferred by gateway, requeueing", slog.String("reason", reason))
		return j.store.MarkResult(ctx, recipients.ResultUpdate{
			AccountID: j.AccountID,
			Phone:     r.Phone,
			Status:    codes.RecipientPending,
			Reason:    reason,
		})
	}
	if j.recordAttempt(r.ID) < j.opts.MaxRetries {
		slog.WarnContext(ctx, "SMS send failed, requeueing", slog.String("reason", reason), slog.Any("error", sendErr))
		return j.store.MarkResult(ctx, recipients.ResultUpdate{
			AccountID:      j.AccountID,
			Phone:          r.Phone,
			Status:         codes.RecipientPending,
			IncrementRetry: true,
			Reason:         reason,
		})
	}

	slog.WarnContext(ctx, "SMS send failed permanently", slog.String("reason", reason), slog.Any("error", sendErr))
	if err := j.store.MarkResult(ctx, recipients.ResultUpdate{
		AccountID:      j.AccountID,
		Phone:          r.Phone,
		Status:         codes.RecipientFailed,
		IncrementRetry: true,
		Reason:         reason,
	}); err != nil {
		return fmt.Errorf("failed to record failed recipient: %w", err)
	}
	j.recordFailed(r.ID)
	j.refund(ctx, r.ID, reason)
	return nil
}

// halted reports whether workers should stop taking rows for this pass.
func (j *Job) halted() bool {
	return j.cancelRequested.Load() || j.deferred.Load()
}

func (j *Job) deferPass(err error) {
	j.mu.Lock()
	j.deferErr = err
	j.mu.Unlock()
	j.deferred.Store(true)
}

func (j *Job) lastDeferErr() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.deferErr
}

func (j *Job) sentCount() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sent
}

func (j *Job) isBilled(id int64) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, ok := j.billed[id]
	return ok
}

func (j *Job) markBilled(id int64) {
	j.mu.Lock()
	j.billed[id] = struct{}{}
	j.mu.Unlock()
}

// recordAttempt counts a failed attempt and returns the new count.
func (j *Job) recordAttempt(id int64) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts[id]++
	return j.attempts[id]
}

func (j *Job) recordSent(id, units int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.billed, id)
	delete(j.attempts, id)
	j.sent++
	j.unitsUsed += units
	j.growTotal()
}

func (j *Job) recordFailed(id int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.attempts, id)
	j.failed++
	j.growTotal()
}

// growTotal counts a row that committed below maxID after the job counted
// its recipients, so sent+failed never exceeds total. Callers hold j.mu.
func (j *Job) growTotal() {
	if done := j.sent + j.failed; done > j.total {
		j.total = done
	}
}

// refund releases the reservation held for id, if any.
func (j *Job) refund(ctx context.Context, id int64, reason string) {
	j.mu.Lock()
	_, ok := j.billed[id]
	delete(j.billed, id)
	j.mu.Unlock()
	if !ok {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := j.ledger.Release(rctx, j.AccountID, int64(j.UnitsPerMessage), reason); err != nil {
		slog.ErrorContext(ctx, "Failed to release reserved units", slog.Any("error", err))
	}
}

func (j *Job) finish(ctx context.Context) {
	j.mu.Lock()
	leftover := int64(len(j.billed))
	j.billed = make(map[int64]struct{})
	j.mu.Unlock()

	if leftover > 0 {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		if err := j.ledger.Release(rctx, j.AccountID, leftover*int64(j.UnitsPerMessage), "requeued_at_stop"); err != nil {
			slog.ErrorContext(ctx, "Failed to release units of requeued recipients", slog.Int64("recipients", leftover), slog.Any("error", err))
		}
		cancel()
	}

	j.mu.Lock()
	if j.reason == "" {
		j.reason = codes.StopCompleted
	}
	j.status = codes.JobStopped
	j.finishedAt = time.Now().UTC()
	j.mu.Unlock()

	snap := j.Snapshot()
	slog.InfoContext(ctx, "Dispatch job stopped",
		slog.String("reason", snap.Reason),
		slog.Int64("sent", snap.Sent),
		slog.Int64("failed", snap.Failed),
		slog.Int64("pending", snap.Pending),
		slog.Int64("units_used", snap.UnitsUsed),
	)
	if j.onFinish != nil {
		j.onFinish(snap)
	}
	close(j.done)
}
