package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/gitgraft/pkg/changeset"
	"github.com/Sumatoshi-tech/gitgraft/pkg/land"
	"github.com/Sumatoshi-tech/gitgraft/pkg/recovery"
)

// mergeIntoDestination builds the merge of the destination head and the shifted history.
// A merge already recorded is never rebuilt.
func (s *session) mergeIntoDestination(ctx context.Context, state *recovery.State) (*recovery.State, error) {
	if state.MergedChangesetID != nil {
		s.logger.InfoContext(ctx, "merge already built", "merged", state.MergedChangesetID.Short())

		state.ImportStage = state.ImportStage.Next()

		return state, nil
	}

	s.logSkippedChecks(ctx, state)

	imported, _ := state.LastShifted()

	head, exists, err := s.Bookmarks.Get(ctx, state.DestBookmarkName)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", state.DestBookmarkName, err)
	}

	if !exists {
		return nil, fmt.Errorf("%w: %s", land.ErrDestinationMissing, state.DestBookmarkName)
	}

	err = s.Checker.Check(ctx, head, imported, state.DestPath)
	if err != nil {
		return nil, err
	}

	merge := land.BuildMerge(head, imported, state.CommitAuthor, state.CommitMessage, state.Datetime)

	id, err := s.Store.Create(ctx, merge)
	if err != nil {
		return nil, fmt.Errorf("create merge: %w", err)
	}

	s.logger.InfoContext(ctx, "merge built",
		"merged", id.Short(), "destination", head.Short(), "imported", imported.Short())

	state.MergedChangesetID = &id
	state.ImportStage = state.ImportStage.Next()

	return state, nil
}

func (s *session) logSkippedChecks(ctx context.Context, state *recovery.State) {
	for name, disabled := range map[string]bool{
		"hg_sync":     state.HgSyncCheckDisabled,
		"phabricator": state.PhabCheckDisabled,
		"x_repo_sync": state.XRepoCheckDisabled,
	} {
		if disabled {
			s.logger.InfoContext(ctx, "pre-merge check disabled by record", "check", name)
		}
	}
}

// pushCommit submits the recorded merge until it lands, then removes the import alias.
// Every attempt resubmits the same merge.
func (s *session) pushCommit(ctx context.Context, state *recovery.State) (*recovery.State, error) {
	mergedID := *state.MergedChangesetID

	merge, err := s.Store.Read(ctx, mergedID)
	if err != nil {
		return nil, fmt.Errorf("read merge %s: %w", mergedID.Short(), err)
	}

	var landed changeset.ID

	err = s.retry(ctx, "land merge", s.landAttempts, s.landBackOff(state.SleepTime.Std()), func() error {
		var submitErr error

		landed, submitErr = s.Lander.Submit(ctx, merge, state.DestBookmarkName)
		if errors.Is(submitErr, land.ErrRejected) {
			s.logger.InfoContext(ctx, "landing rejected, resubmitting", "merged", mergedID.Short())
		}

		return submitErr
	})
	if err != nil {
		return nil, err
	}

	if landed == mergedID {
		s.logger.InfoContext(ctx, "merge landed", "bookmark", state.DestBookmarkName, "head", landed.String())
	} else {
		s.logger.InfoContext(ctx, "merge landed after rebase; the record keeps the pre-rebase merged_changeset_id",
			"bookmark", state.DestBookmarkName, "merged", mergedID.String(), "landed", landed.String())
	}

	err = s.retryBatch(ctx, state, "delete import alias", func() error {
		return s.mover.Delete(ctx, state.AliasBookmark())
	})
	if err != nil {
		return nil, err
	}

	state.ImportStage = state.ImportStage.Next()

	return state, nil
}
