package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Sumatoshi-tech/gitgraft/pkg/bookmark"
	"github.com/Sumatoshi-tech/gitgraft/pkg/derived"
	"github.com/Sumatoshi-tech/gitgraft/pkg/foreign"
	"github.com/Sumatoshi-tech/gitgraft/pkg/land"
	"github.com/Sumatoshi-tech/gitgraft/pkg/recovery"
	"github.com/Sumatoshi-tech/gitgraft/pkg/toposort"
)

// BackOffFactory returns a fresh retry schedule. interval is the record's sleep_time.
type BackOffFactory func(interval time.Duration) backoff.BackOff

const (
	minRetryInterval = 100 * time.Millisecond
	maxLandInterval  = 30 * time.Second
)

// DefaultBackOff retries at a constant sleep_time, with a floor for zero sleep times.
func DefaultBackOff(interval time.Duration) backoff.BackOff {
	return backoff.NewConstantBackOff(max(interval, minRetryInterval))
}

func defaultLandBackOff(interval time.Duration) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = max(interval, minRetryInterval)
	bo.MaxInterval = maxLandInterval
	bo.MaxElapsedTime = 0

	return bo
}

// fatalErrors are never retried.
var fatalErrors = []error{
	recovery.ErrInvalidRecord,
	recovery.ErrUnknownStage,
	derived.ErrUnknownKind,
	derived.ErrDerivationIncomplete,
	land.ErrPathConflict,
	land.ErrDestinationMissing,
	land.ErrNotGraftMerge,
	bookmark.ErrConcurrentMutation,
	bookmark.ErrEmptyName,
	foreign.ErrUnknownParent,
	toposort.ErrCycle,
	ErrForeignHistoryChanged,
	ErrNoCommits,
	ErrOverrideNotFound,
	ErrUnshiftedParent,
	ErrStageRegression,
	context.Canceled,
	context.DeadlineExceeded,
}

// IsFatal reports whether err must stop the run without retrying.
func IsFatal(err error) bool {
	for _, target := range fatalErrors {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

// retry runs op up to attempts times on bo, stopping early on fatal errors.
func (s *session) retry(ctx context.Context, what string, attempts int, bo backoff.BackOff, op func() error) error {
	attempt := 0

	wrapped := func() error {
		attempt++

		err := op()
		if err != nil && IsFatal(err) {
			return backoff.Permanent(err)
		}

		return err
	}

	notify := func(err error, wait time.Duration) {
		s.logger.WarnContext(ctx, "retrying after transient failure",
			"op", what, "attempt", attempt, "max_attempts", attempts, "wait", wait, "error", err)
	}

	return backoff.RetryNotify(wrapped, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(max(attempts, 1)-1)), ctx), notify)
}

// retryBatch retries one batch of work on the record's constant schedule.
func (s *session) retryBatch(ctx context.Context, state *recovery.State, what string, op func() error) error {
	return s.retry(ctx, what, s.retryAttempts, s.newBackOff(state.SleepTime.Std()), op)
}
