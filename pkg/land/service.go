package land

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Sumatoshi-tech/gitgraft/pkg/bookmark"
	"github.com/Sumatoshi-tech/gitgraft/pkg/changeset"
)

// Service lands a merge on a destination bookmark.
type Service interface {
	// Submit lands merge on destBookmark and returns the ID that became the new head.
	// A landing lost to a concurrent destination move returns ErrRejected.
	Submit(ctx context.Context, merge *changeset.Changeset, destBookmark string) (changeset.ID, error)
}

// ChangesetStore is the slice of the commit store LocalService needs.
type ChangesetStore interface {
	Create(ctx context.Context, cs *changeset.Changeset) (changeset.ID, error)
	Read(ctx context.Context, id changeset.ID) (*changeset.Changeset, error)
}

// LocalService lands merges with a pushrebase over a local bookmark service.
// If the destination moved past the merge's first parent, the merge is rebuilt on
// the live head after re-checking for path conflicts.
type LocalService struct {
	store     ChangesetStore
	bookmarks bookmark.Service
	checker   *Checker
	destPath  string
	logger    *slog.Logger
}

// LocalOption configures a LocalService.
type LocalOption func(*LocalService)

// WithConflictCheck re-checks destPath with checker before rebasing onto a moved destination.
func WithConflictCheck(checker *Checker, destPath string) LocalOption {
	return func(s *LocalService) {
		s.checker = checker
		s.destPath = destPath
	}
}

// WithServiceLogger sets the logger.
func WithServiceLogger(logger *slog.Logger) LocalOption {
	return func(s *LocalService) { s.logger = logger }
}

// NewLocalService creates a LocalService.
func NewLocalService(store ChangesetStore, bookmarks bookmark.Service, opts ...LocalOption) *LocalService {
	s := &LocalService{store: store, bookmarks: bookmarks, logger: slog.Default()}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Submit implements Service.
func (s *LocalService) Submit(ctx context.Context, merge *changeset.Changeset, destBookmark string) (changeset.ID, error) {
	err := validateGraftMerge(merge)
	if err != nil {
		return changeset.ID{}, err
	}

	live, exists, err := s.bookmarks.Get(ctx, destBookmark)
	if err != nil {
		return changeset.ID{}, fmt.Errorf("read %s: %w", destBookmark, err)
	}

	if !exists {
		return changeset.ID{}, fmt.Errorf("%w: %s", ErrDestinationMissing, destBookmark)
	}

	imported := merge.Parents[1]

	landed, err := s.alreadyLanded(ctx, live, imported)
	if err != nil {
		return changeset.ID{}, err
	}

	if landed {
		s.logger.InfoContext(ctx, "merge already landed", "bookmark", destBookmark, "head", live.Short())

		return live, nil
	}

	candidate := merge

	if live != merge.Parents[0] {
		if s.checker != nil {
			err = s.checker.Check(ctx, live, imported, s.destPath)
			if err != nil {
				return changeset.ID{}, err
			}
		}

		candidate = BuildMerge(live, imported, merge.Author, merge.Message, merge.Date)
		candidate.Extra = merge.Extra

		s.logger.InfoContext(ctx, "rebasing merge onto moved destination",
			"bookmark", destBookmark, "from", merge.Parents[0].Short(), "onto", live.Short())
	}

	id, err := s.store.Create(ctx, candidate)
	if err != nil {
		return changeset.ID{}, fmt.Errorf("create landed merge: %w", err)
	}

	ok, err := s.bookmarks.CompareAndSet(ctx, destBookmark, &live, id)
	if err != nil {
		return changeset.ID{}, fmt.Errorf("move %s: %w", destBookmark, err)
	}

	if !ok {
		return changeset.ID{}, fmt.Errorf("%w: %s moved from %s during landing", ErrRejected, destBookmark, live.Short())
	}

	return id, nil
}

// alreadyLanded reports whether head is a graft merge of imported, which happens
// when a previous submission landed but its result was never recorded.
func (s *LocalService) alreadyLanded(ctx context.Context, head, imported changeset.ID) (bool, error) {
	cs, err := s.store.Read(ctx, head)
	if errors.Is(err, changeset.ErrNotFound) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("read destination head: %w", err)
	}

	return len(cs.Parents) == 2 && len(cs.Files) == 0 && cs.Parents[1] == imported, nil
}
