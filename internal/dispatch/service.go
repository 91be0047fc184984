package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/SYA-Group/sya-sms-dispatch/internal/cache"
	"github.com/SYA-Group/sya-sms-dispatch/internal/gateway"
	"github.com/SYA-Group/sya-sms-dispatch/internal/logging"
	"github.com/SYA-Group/sya-sms-dispatch/internal/notification"
	"github.com/SYA-Group/sya-sms-dispatch/internal/quota"
	"github.com/SYA-Group/sya-sms-dispatch/internal/recipients"
	"github.com/SYA-Group/sya-sms-dispatch/pkg/codes"
	"github.com/SYA-Group/sya-sms-dispatch/pkg/segmenter"
)

const finishTimeout = 10 * time.Second

type Dependencies struct {
	Store    recipients.Store
	Ledger   quota.Ledger
	Gateway  gateway.Client
	Cache    cache.Cache
	Notifier notification.Notifier
	Registry *Registry // optional, a fresh one is created if nil
}

// Service starts, stops and reports on dispatch jobs. At most one job or
// maintenance operation holds an account at a time.
type Service struct {
	deps        Dependencies
	registry    *Registry
	opts        Options
	snapshotTTL time.Duration
	baseCtx     context.Context
}

func NewService(deps Dependencies, opts Options, snapshotTTL time.Duration) *Service {
	reg := deps.Registry
	if reg == nil {
		reg = NewRegistry()
	}
	if deps.Notifier == nil {
		deps.Notifier = notification.NewLogNotifier()
	}
	return &Service{
		deps:        deps,
		registry:    reg,
		opts:        opts.withDefaults(),
		snapshotTTL: snapshotTTL,
		// jobs outlive the request that started them
		baseCtx: context.Background(),
	}
}

// Start validates the message and quota, then launches a job in the
// background and returns its first snapshot.
func (s *Service) Start(ctx context.Context, accountID int64, message string) (Snapshot, error) {
	return s.start(ctx, accountID, message, nil)
}

// StartWith runs load while holding the account's lease and then starts a
// job over every pending recipient, including those load added. No other
// job or maintenance can take the account between the two. A load error
// aborts the start.
func (s *Service) StartWith(ctx context.Context, accountID int64, message string, load func(ctx context.Context) error) (Snapshot, error) {
	return s.start(ctx, accountID, message, load)
}

func (s *Service) start(ctx context.Context, accountID int64, message string, load func(ctx context.Context) error) (Snapshot, error) {
	if strings.TrimSpace(message) == "" {
		return Snapshot{}, ErrEmptyMessage
	}
	units := segmenter.Units(message)
	job := newJob(accountID, message, units, s.opts, s.deps.Store, s.deps.Ledger, s.deps.Gateway)

	lease, ok := s.registry.TryAcquire(accountID, PurposeDispatch, job)
	if !ok {
		if lease != nil && lease.Purpose == PurposeMaintenance {
			return Snapshot{}, ErrJobActive
		}
		return Snapshot{}, ErrAlreadyRunning
	}

	if load != nil {
		if err := load(ctx); err != nil {
			job.abort()
			s.registry.Release(lease)
			return Snapshot{}, err
		}
	}

	total, maxID, err := s.prepare(ctx, accountID, units)
	if err != nil {
		job.abort()
		s.registry.Release(lease)
		return Snapshot{}, err
	}

	job.begin(maxID, total)
	job.onFinish = func(snap Snapshot) { s.jobFinished(lease, snap) }

	if err := s.deps.Cache.SetJSON(ctx, cache.LastMessageKey(accountID), message, 0); err != nil {
		slog.WarnContext(ctx, "Failed to cache last message", slog.Any("error", err))
	}

	go job.run(s.baseCtx)
	return job.Snapshot(), nil
}

// prepare runs the pre-checks that need the lease held: the quota covers
// at least one message, and the recipient horizon is fixed.
func (s *Service) prepare(ctx context.Context, accountID int64, units int) (total, maxID int64, err error) {
	acct, err := s.deps.Ledger.Get(ctx, accountID)
	if err != nil {
		return 0, 0, err
	}
	if acct.Remaining() < int64(units) {
		return 0, 0, fmt.Errorf("%w: %d remaining, %d needed per message", quota.ErrInsufficientQuota, acct.Remaining(), units)
	}
	maxID, err = s.deps.Store.MaxID(ctx, accountID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read recipient horizon: %w", err)
	}
	if maxID == 0 {
		return 0, 0, nil
	}
	total, err = s.deps.Store.CountUpTo(ctx, accountID, codes.RecipientPending, maxID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count pending recipients: %w", err)
	}
	return total, maxID, nil
}

// jobFinished caches the final snapshot, releases the lease and then
// publishes the event. The account is free again while the publish is in
// flight; Progress serves the cached snapshot from the moment the lease
// is gone.
func (s *Service) jobFinished(lease *Lease, snap Snapshot) {
	ctx, cancel := context.WithTimeout(logging.ContextWithJobID(logging.ContextWithAccountID(s.baseCtx, snap.AccountID), snap.JobID), finishTimeout)
	defer cancel()

	if err := s.deps.Cache.SetJSON(ctx, cache.ProgressKey(snap.AccountID), snap, s.snapshotTTL); err != nil {
		slog.WarnContext(ctx, "Failed to cache final progress snapshot", slog.Any("error", err))
	}
	s.registry.Release(lease)
	ev := notification.Event{
		Type:      notification.EventJobFinished,
		AccountID: snap.AccountID,
		Subject:   fmt.Sprintf("SMS dispatch %s", snap.Reason),
		Body: fmt.Sprintf("sent=%d failed=%d pending=%d units_used=%d",
			snap.Sent, snap.Failed, snap.Pending, snap.UnitsUsed),
		Payload:    snap,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.deps.Notifier.Notify(ctx, ev); err != nil {
		slog.WarnContext(ctx, "Failed to publish job finished event", slog.Any("error", err))
	}
}

// Stop requests a user stop of the account's running job. It does not wait
// for in-flight sends and is a no-op when nothing is running.
func (s *Service) Stop(ctx context.Context, accountID int64) (Snapshot, error) {
	if lease, ok := s.registry.Get(accountID); ok && lease.Job != nil {
		lease.Job.Stop(codes.StopUserRequested)
		return lease.Job.Snapshot(), nil
	}
	return s.Progress(ctx, accountID)
}

// Progress reports the live job if there is one, else the last finished
// job's snapshot, else an idle snapshot.
func (s *Service) Progress(ctx context.Context, accountID int64) (Snapshot, error) {
	if lease, ok := s.registry.Get(accountID); ok && lease.Job != nil {
		return lease.Job.Snapshot(), nil
	}
	var snap Snapshot
	err := s.deps.Cache.GetJSON(ctx, cache.ProgressKey(accountID), &snap)
	switch {
	case err == nil:
		return snap, nil
	case errors.Is(err, cache.ErrMiss):
		return IdleSnapshot(accountID), nil
	default:
		slog.WarnContext(ctx, "Failed to read cached progress", slog.Int64("account_id", accountID), slog.Any("error", err))
		return IdleSnapshot(accountID), nil
	}
}

// LastMessage returns the text of the most recently started job.
func (s *Service) LastMessage(ctx context.Context, accountID int64) (string, bool, error) {
	var msg string
	err := s.deps.Cache.GetJSON(ctx, cache.LastMessageKey(accountID), &msg)
	if errors.Is(err, cache.ErrMiss) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return msg, true, nil
}

// IsActive reports whether the account is held by a job or maintenance.
func (s *Service) IsActive(accountID int64) bool {
	return s.registry.IsLeased(accountID)
}

// Shutdown stops every running job and waits for them to drain or for ctx.
func (s *Service) Shutdown(ctx context.Context) error {
	jobs := s.registry.Jobs()
	for _, j := range jobs {
		j.Stop(codes.StopShutdown)
	}
	for _, j := range jobs {
		select {
		case <-j.Done():
		case <-ctx.Done():
			return fmt.Errorf("dispatch shutdown interrupted: %w", ctx.Err())
		}
	}
	slog.Info("Dispatch service stopped", slog.Int("jobs", len(jobs)))
	return nil
}
