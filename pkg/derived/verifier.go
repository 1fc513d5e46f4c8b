package derived

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Sumatoshi-tech/gitgraft/pkg/changeset"
)

// Default verifier bounds.
const (
	DefaultMaxAttempts     = 5
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMaxInterval     = 10 * time.Second
)

var errPending = errors.New("derivation pending")

// Verifier gates progress on derived data existing for a changeset.
type Verifier struct {
	engine      Engine
	kinds       []string
	maxAttempts int
	newBackOff  func() backoff.BackOff
	logger      *slog.Logger
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithMaxAttempts bounds how many times each kind is checked.
func WithMaxAttempts(n int) VerifierOption {
	return func(v *Verifier) {
		if n > 0 {
			v.maxAttempts = n
		}
	}
}

// WithBackOff replaces the retry schedule. The factory is called once per kind.
func WithBackOff(factory func() backoff.BackOff) VerifierOption {
	return func(v *Verifier) { v.newBackOff = factory }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) VerifierOption {
	return func(v *Verifier) { v.logger = logger }
}

// NewVerifier creates a verifier for kinds. Unknown kinds are rejected up front.
func NewVerifier(engine Engine, kinds []string, opts ...VerifierOption) (*Verifier, error) {
	err := ValidateKinds(kinds)
	if err != nil {
		return nil, err
	}

	v := &Verifier{
		engine:      engine,
		kinds:       kinds,
		maxAttempts: DefaultMaxAttempts,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = DefaultInitialInterval
			bo.MaxInterval = DefaultMaxInterval
			bo.MaxElapsedTime = 0

			return bo
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(v)
	}

	return v, nil
}

// Kinds returns the kinds the verifier checks.
func (v *Verifier) Kinds() []string {
	return v.kinds
}

// Ensure returns nil once every kind is present for id. Pending kinds are re-checked with
// backoff; still pending after the bound yields ErrDerivationIncomplete.
func (v *Verifier) Ensure(ctx context.Context, id changeset.ID) error {
	for _, kind := range v.kinds {
		err := v.ensureKind(ctx, id, kind)
		if err != nil {
			return err
		}
	}

	return nil
}

func (v *Verifier) ensureKind(ctx context.Context, id changeset.ID, kind string) error {
	attempt := 0

	op := func() error {
		attempt++

		present, err := v.engine.EnsureDerived(ctx, id, kind)
		if err != nil {
			if errors.Is(err, ErrUnknownKind) {
				return backoff.Permanent(err)
			}

			return err
		}

		if !present {
			v.logger.InfoContext(ctx, "derived data pending",
				"kind", kind, "changeset", id.Short(), "attempt", attempt, "max_attempts", v.maxAttempts)

			return errPending
		}

		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(v.newBackOff(), uint64(v.maxAttempts-1)), ctx)

	err := backoff.Retry(op, bo)
	if err == nil {
		return nil
	}

	if errors.Is(err, errPending) {
		return fmt.Errorf("%w: %s for %s after %d attempts", ErrDerivationIncomplete, kind, id.Short(), attempt)
	}

	return fmt.Errorf("derive %s for %s: %w", kind, id.Short(), err)
}
