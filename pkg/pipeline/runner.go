// Package pipeline drives a recovery record through the import stages until the
// imported history lands on the destination bookmark.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/gitgraft/pkg/bookmark"
	"github.com/Sumatoshi-tech/gitgraft/pkg/changeset"
	"github.com/Sumatoshi-tech/gitgraft/pkg/derived"
	"github.com/Sumatoshi-tech/gitgraft/pkg/foreign"
	"github.com/Sumatoshi-tech/gitgraft/pkg/land"
	"github.com/Sumatoshi-tech/gitgraft/pkg/observability"
	"github.com/Sumatoshi-tech/gitgraft/pkg/recovery"
)

const (
	tracerName = "gitgraft"
	spanPrefix = "gitgraft.stage."

	// DefaultWorkers bounds concurrent file conversion inside a GitImport batch.
	DefaultWorkers = 8
	// DefaultRetryAttempts bounds attempts of one batch on transient failures.
	DefaultRetryAttempts = 3
	// DefaultLandAttempts bounds landing submissions per run.
	DefaultLandAttempts = 5
)

// Collaborators are the services the pipeline drives.
type Collaborators struct {
	Records   *recovery.Store
	Store     changeset.Store
	Foreign   foreign.Reader
	Bookmarks bookmark.Service
	Verifier  *derived.Verifier
	Checker   *land.Checker
	Lander    land.Service
}

// Sleeper pauses between batches. It returns early with ctx.Err() when ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Runner executes stage handlers for one recovery record.
type Runner struct {
	Collaborators

	mover         *bookmark.Mover
	workers       int
	retryAttempts int
	landAttempts  int
	sleep         Sleeper
	newBackOff    BackOffFactory
	landBackOff   BackOffFactory
	logger        *slog.Logger
	tracer        trace.Tracer
	metrics       *observability.ImportMetrics
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers bounds concurrent file conversion in GitImport.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithRetryAttempts bounds attempts of one batch on transient failures.
func WithRetryAttempts(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.retryAttempts = n
		}
	}
}

// WithLandAttempts bounds landing submissions per run.
func WithLandAttempts(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.landAttempts = n
		}
	}
}

// WithSleeper replaces the inter-batch pause.
func WithSleeper(s Sleeper) Option {
	return func(r *Runner) { r.sleep = s }
}

// WithBackOff replaces both the batch and the landing retry schedules.
func WithBackOff(factory BackOffFactory) Option {
	return func(r *Runner) {
		r.newBackOff = factory
		r.landBackOff = factory
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithTracer sets the tracer used for stage spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) { r.tracer = tracer }
}

// WithMetrics sets the import metrics.
func WithMetrics(metrics *observability.ImportMetrics) Option {
	return func(r *Runner) { r.metrics = metrics }
}

// New creates a Runner.
func New(c Collaborators, opts ...Option) *Runner {
	r := &Runner{
		Collaborators: c,
		workers:       DefaultWorkers,
		retryAttempts: DefaultRetryAttempts,
		landAttempts:  DefaultLandAttempts,
		sleep:         Sleep,
		newBackOff:    DefaultBackOff,
		landBackOff:   defaultLandBackOff,
		logger:        slog.Default(),
		tracer:        otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.mover = bookmark.NewMover(c.Bookmarks, r.logger)

	return r
}

// Run loads the record at recordPath and executes stages until Done or the first failure.
// Every stage transition and batch checkpoint is saved before moving on; a failure leaves
// the record at the last checkpoint and is returned as a *StageError.
func (r *Runner) Run(ctx context.Context, recordPath string) error {
	state, err := r.Records.Load(recordPath)
	if err != nil {
		return fmt.Errorf("load recovery record: %w", err)
	}

	run := &session{Runner: r, path: recordPath}

	for state.ImportStage != recovery.StageDone {
		next, stepErr := run.step(ctx, state.Clone())
		if stepErr != nil {
			return &StageError{Stage: state.ImportStage, RecordPath: recordPath, Err: stepErr}
		}

		if next.ImportStage <= state.ImportStage {
			return &StageError{
				Stage:      state.ImportStage,
				RecordPath: recordPath,
				Err:        fmt.Errorf("%w: %s to %s", ErrStageRegression, state.ImportStage, next.ImportStage),
			}
		}

		err = run.checkpoint(next)
		if err != nil {
			return &StageError{Stage: state.ImportStage, RecordPath: recordPath, Err: err}
		}

		r.logger.InfoContext(ctx, fmt.Sprintf("stage %s: complete", state.ImportStage),
			"next", next.ImportStage.String())

		state = next
	}

	r.logger.InfoContext(ctx, "import done", "record", recordPath)

	return nil
}

// session carries per-run context for stage handlers.
type session struct {
	*Runner

	path string
}

// step runs the handler for the state's current stage inside a span.
func (s *session) step(ctx context.Context, state *recovery.State) (*recovery.State, error) {
	stage := state.ImportStage

	ctx = observability.WithImportScope(ctx, s.path, stage.String())

	ctx, span := s.tracer.Start(ctx, spanPrefix+stage.String(),
		trace.WithAttributes(attribute.String("pipeline.stage", stage.String())))
	defer span.End()

	s.logger.InfoContext(ctx, fmt.Sprintf("stage %s: start", stage))

	started := time.Now()
	next, err := s.dispatch(ctx, state)

	s.metrics.RecordStage(ctx, stage.String(), time.Since(started), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return next, err
}

func (s *session) dispatch(ctx context.Context, state *recovery.State) (*recovery.State, error) {
	switch state.ImportStage {
	case recovery.StageGitImport:
		return s.gitImport(ctx, state)
	case recovery.StageRewriteForeignHistory:
		return s.rewriteForeignHistory(ctx, state)
	case recovery.StageBookmarkMove:
		return s.bookmarkMove(ctx, state)
	case recovery.StageDerivedDataBackfill:
		return s.derivedDataBackfill(ctx, state)
	case recovery.StageMergeIntoDestination:
		return s.mergeIntoDestination(ctx, state)
	case recovery.StagePushCommit:
		return s.pushCommit(ctx, state)
	case recovery.StageDone:
		return state, nil
	}

	return nil, fmt.Errorf("%w: %d", recovery.ErrUnknownStage, int(state.ImportStage))
}

// checkpoint durably saves state. Progress never advances past an unsaved checkpoint.
func (s *session) checkpoint(state *recovery.State) error {
	err := s.Records.Save(s.path, state)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	return nil
}

// pause waits sleep_time between batches.
func (s *session) pause(ctx context.Context, state *recovery.State) error {
	d := state.SleepTime.Std()
	if d <= 0 {
		return nil
	}

	return s.sleep(ctx, d)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// progress logs the human-readable batch line.
func (s *session) progress(ctx context.Context, stage recovery.Stage, done, total int) {
	s.logger.InfoContext(ctx, fmt.Sprintf("stage %s: commit %d of %d", stage, done, total))
}
