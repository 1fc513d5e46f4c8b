// Package bookmark provides named, mutable pointers to changesets with
// compare-and-set semantics, and the Mover used to advance them safely.
package bookmark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Sumatoshi-tech/gitgraft/pkg/changeset"
)

// Sentinel errors.
var (
	// ErrConcurrentMutation is returned when a bookmark's live value differs from the expected one.
	ErrConcurrentMutation = errors.New("bookmark was modified concurrently")
	// ErrEmptyName is returned for an empty bookmark name.
	ErrEmptyName = errors.New("bookmark name is empty")
)

// ImportAliasPrefix prefixes the ephemeral bookmark advanced during an import.
const ImportAliasPrefix = "repo_import_"

// ImportAlias returns the import-alias bookmark name for a suffix.
func ImportAlias(suffix string) string {
	return ImportAliasPrefix + suffix
}

// Service stores bookmarks.
type Service interface {
	// Get returns the bookmark target and whether the bookmark exists.
	Get(ctx context.Context, name string) (changeset.ID, bool, error)
	// CompareAndSet moves name from expected to target. A nil expected means the bookmark must not exist.
	// Returns ok=false without error when the live value does not match.
	CompareAndSet(ctx context.Context, name string, expected *changeset.ID, target changeset.ID) (bool, error)
	// Delete removes the bookmark. Deleting a missing bookmark is not an error.
	Delete(ctx context.Context, name string) error
}

// Mover advances bookmarks with compare-and-set semantics.
// It performs no locking: callers must serialize movers of the same bookmark.
type Mover struct {
	service Service
	logger  *slog.Logger
}

// NewMover creates a Mover over the given service.
func NewMover(service Service, logger *slog.Logger) *Mover {
	if logger == nil {
		logger = slog.Default()
	}

	return &Mover{service: service, logger: logger}
}

// Move sets name to target if its live value equals expected (nil: absent).
// A bookmark already pointing at target is left alone and reported as success, so a move
// repeated after a crash between the write and its checkpoint is harmless.
func (m *Mover) Move(ctx context.Context, name string, expected *changeset.ID, target changeset.ID) error {
	if name == "" {
		return ErrEmptyName
	}

	ok, err := m.service.CompareAndSet(ctx, name, expected, target)
	if err != nil {
		return fmt.Errorf("move bookmark %s: %w", name, err)
	}

	if ok {
		return nil
	}

	live, exists, err := m.service.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("read bookmark %s: %w", name, err)
	}

	if exists && live == target {
		m.logger.DebugContext(ctx, "bookmark already at target", "bookmark", name, "target", target.Short())

		return nil
	}

	return fmt.Errorf("%w: %s is at %s, expected %s", ErrConcurrentMutation, name, describe(live, exists), describePtr(expected))
}

// Delete removes the bookmark; a missing bookmark is not an error.
func (m *Mover) Delete(ctx context.Context, name string) error {
	if name == "" {
		return ErrEmptyName
	}

	err := m.service.Delete(ctx, name)
	if err != nil {
		return fmt.Errorf("delete bookmark %s: %w", name, err)
	}

	return nil
}

func describe(id changeset.ID, exists bool) string {
	if !exists {
		return "<absent>"
	}

	return id.String()
}

func describePtr(id *changeset.ID) string {
	if id == nil {
		return "<absent>"
	}

	return id.String()
}
