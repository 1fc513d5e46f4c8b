package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/gitgraft/pkg/bookmark"
	"github.com/Sumatoshi-tech/gitgraft/pkg/changeset"
	"github.com/Sumatoshi-tech/gitgraft/pkg/commitstore"
	"github.com/Sumatoshi-tech/gitgraft/pkg/config"
	"github.com/Sumatoshi-tech/gitgraft/pkg/derived"
	"github.com/Sumatoshi-tech/gitgraft/pkg/foreign"
	"github.com/Sumatoshi-tech/gitgraft/pkg/land"
	"github.com/Sumatoshi-tech/gitgraft/pkg/observability"
	"github.com/Sumatoshi-tech/gitgraft/pkg/pipeline"
	"github.com/Sumatoshi-tech/gitgraft/pkg/recovery"
)

// ErrRecordLocked is returned when another process holds the record lock.
var ErrRecordLocked = errors.New("recovery record is locked by another process")

// lockSuffix names the lock file next to the record.
const lockSuffix = ".lock"

// nativeStore is what the pipeline needs from a commit store.
type nativeStore interface {
	changeset.Store
	derived.Index
}

// NewRecoverProcessCommand creates the recover-process command.
func NewRecoverProcessCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "recover-process <record>",
		Short: "Run or resume an import from its recovery record",
		Long: `Run the import described by a recovery record, resuming at the stage
and cursor it records. Every completed batch and stage is checkpointed
back to the record, so an interrupted run resumes with the same command.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.Load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return recoverProcess(ctx, cfg, args[0], cmd.ErrOrStderr())
		},
	}
}

func recoverProcess(ctx context.Context, cfg *config.Config, recordPath string, logOutput io.Writer) error {
	lock := flock.New(recordPath + lockSuffix)

	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", recordPath, err)
	}

	if !locked {
		return fmt.Errorf("%w: %s", ErrRecordLocked, recordPath)
	}

	defer func() { _ = lock.Unlock() }()

	providers, err := initObservability(cfg, observability.ModeCLI, logOutput)
	if err != nil {
		return err
	}

	logger := providers.Logger

	defer func() {
		shutdownErr := providers.Shutdown(context.Background())
		if shutdownErr != nil {
			logger.Warn("observability shutdown failed", "error", shutdownErr)
		}
	}()

	records := recovery.NewStore()

	state, err := records.Load(recordPath)
	if err != nil {
		return err
	}

	if state.ImportStage == recovery.StageDone {
		logger.Info("import already done", "record", recordPath)

		return nil
	}

	if cfg.Telemetry.MetricsAddr != "" {
		red, redErr := observability.NewREDMetrics(providers.Meter)
		if redErr != nil {
			return redErr
		}

		diag, diagErr := observability.NewDiagnosticsServer(cfg.Telemetry.MetricsAddr, providers.MetricsHandler, providers.Tracer, red)
		if diagErr != nil {
			return diagErr
		}

		logger.Info("diagnostics listening", "addr", diag.Addr())

		defer func() { _ = diag.Close(context.Background()) }()
	}

	store, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return err
	}

	defer closeStore()

	bookmarks, err := bookmark.OpenSQLite(cfg.Bookmarks.Path)
	if err != nil {
		return err
	}

	defer func() { _ = bookmarks.Close() }()

	var reader foreign.Reader

	if state.ImportStage == recovery.StageGitImport {
		git, gitErr := foreign.OpenGit(state.ForeignRepoPath, "")
		if gitErr != nil {
			return fmt.Errorf("open foreign repository: %w", gitErr)
		}

		defer func() { _ = git.Close() }()

		reader = git
	}

	metrics, err := observability.NewImportMetrics(providers.Meter)
	if err != nil {
		return err
	}

	collaborators, err := buildCollaborators(cfg, state, records, store, bookmarks, reader, logger)
	if err != nil {
		return err
	}

	runner := pipeline.New(collaborators,
		pipeline.WithWorkers(cfg.Import.Workers),
		pipeline.WithRetryAttempts(cfg.Retry.MaxAttempts),
		pipeline.WithLandAttempts(cfg.Land.MaxAttempts),
		pipeline.WithLogger(logger),
		pipeline.WithTracer(providers.Tracer),
		pipeline.WithMetrics(metrics),
	)

	return runner.Run(ctx, recordPath)
}

func buildCollaborators(
	cfg *config.Config,
	state *recovery.State,
	records *recovery.Store,
	store nativeStore,
	bookmarks bookmark.Service,
	reader foreign.Reader,
	logger *slog.Logger,
) (pipeline.Collaborators, error) {
	engine := derived.NewLocalEngine(store)

	verifier, err := derived.NewVerifier(engine, cfg.Derived.Kinds,
		derived.WithMaxAttempts(cfg.Derived.MaxAttempts),
		derived.WithLogger(logger),
	)
	if err != nil {
		return pipeline.Collaborators{}, err
	}

	checker := land.NewChecker(engine.Manifest, store)

	lander := land.NewLocalService(store, bookmarks,
		land.WithConflictCheck(checker, state.DestPath),
		land.WithServiceLogger(logger),
	)

	return pipeline.Collaborators{
		Records:   records,
		Store:     store,
		Foreign:   reader,
		Bookmarks: bookmarks,
		Verifier:  verifier,
		Checker:   checker,
		Lander:    lander,
	}, nil
}

// openStore opens the configured commit store and returns its release func.
func openStore(cfg config.StoreConfig) (nativeStore, func(), error) {
	if cfg.InMemory {
		return commitstore.NewMemory(), func() {}, nil
	}

	store, err := commitstore.OpenBadger(commitstore.BadgerOptions{Path: cfg.Path})
	if err != nil {
		return nil, nil, err
	}

	return store, func() { _ = store.Close() }, nil
}
