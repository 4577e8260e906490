package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie/pkg/apperrors"
)

// Config defines a fixed-interval retry budget.
type Config struct {
	MaxAttempts int
	Interval    time.Duration
}

// WriteConflictConfig is the budget for mirror writes: 3 attempts, 100ms apart.
func WriteConflictConfig() Config {
	return Config{
		MaxAttempts: 3,
		Interval:    100 * time.Millisecond,
	}
}

// SQLSTATE codes PostgreSQL raises for lock contention that clears on its own.
var conflictCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

// IsWriteConflict reports whether err is a transient lock conflict.
func IsWriteConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		_, ok := conflictCodes[pgErr.Code]
		return ok
	}
	return false
}

// OnWriteConflict runs fn, retrying only while it fails with a transient write
// conflict. Any other error is returned as-is after the first attempt. When the
// budget is exhausted the last error is wrapped with apperrors.ErrTransientWriteConflict.
func OnWriteConflict(ctx context.Context, cfg Config, logger *zap.Logger, fn func() error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var conflict error
	op := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsWriteConflict(err) {
			return backoff.Permanent(err)
		}
		conflict = err
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.Interval), uint64(cfg.MaxAttempts-1)),
		ctx,
	)

	notify := func(err error, wait time.Duration) {
		logger.Debug("Retrying after write conflict",
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	err := backoff.RetryNotify(op, policy, notify)
	if err == nil {
		return nil
	}
	if conflict != nil && errors.Is(err, conflict) {
		return fmt.Errorf("%w: %w", apperrors.ErrTransientWriteConflict, err)
	}
	return err
}
