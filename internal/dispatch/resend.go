package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SYA-Group/sya-sms-dispatch/internal/logging"
)

// WithMaintenance runs fn while holding the account's lease, so no job can
// start underneath it. It returns ErrJobActive if the account is busy.
func (s *Service) WithMaintenance(ctx context.Context, accountID int64, fn func(ctx context.Context) error) error {
	lease, ok := s.registry.TryAcquire(accountID, PurposeMaintenance, nil)
	if !ok {
		return ErrJobActive
	}
	defer s.registry.Release(lease)
	return fn(ctx)
}

// ResendAll returns every recipient of the account to pending, including
// rows already sent. Retry counts are kept.
func (s *Service) ResendAll(ctx context.Context, accountID int64) (int64, error) {
	ctx = logging.ContextWithAccountID(ctx, accountID)
	var reset int64
	err := s.WithMaintenance(ctx, accountID, func(ctx context.Context) error {
		n, err := s.deps.Store.ResetAllToPending(ctx, accountID)
		if err != nil {
			return fmt.Errorf("failed to reset recipients: %w", err)
		}
		reset = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	slog.InfoContext(ctx, "Recipients reset to pending", slog.Int64("rows", reset))
	return reset, nil
}
