package pipeline

import (
	"context"

	"github.com/Sumatoshi-tech/gitgraft/pkg/changeset"
	"github.com/Sumatoshi-tech/gitgraft/pkg/recovery"
)

// bookmarkMove advances the import alias through the shifted history one batch at a time.
func (s *session) bookmarkMove(ctx context.Context, state *recovery.State) (*recovery.State, error) {
	alias := state.AliasBookmark()
	shifted := state.ShiftedChangesetIDs
	total := len(shifted)

	for state.MoveBookmarkCommitsDone < total {
		start := state.MoveBookmarkCommitsDone
		end := min(start+state.BatchSize, total)

		var expected *changeset.ID
		if start > 0 {
			prev := shifted[start-1]
			expected = &prev
		}

		err := s.retryBatch(ctx, state, "move bookmark", func() error {
			return s.mover.Move(ctx, alias, expected, shifted[end-1])
		})
		if err != nil {
			return nil, err
		}

		state.MoveBookmarkCommitsDone = end

		err = s.checkpoint(state)
		if err != nil {
			return nil, err
		}

		s.metrics.RecordBatch(ctx, state.ImportStage.String(), end-start)
		s.progress(ctx, state.ImportStage, end, total)

		if end < total {
			err = s.pause(ctx, state)
			if err != nil {
				return nil, err
			}
		}
	}

	state.ImportStage = state.ImportStage.Next()

	return state, nil
}

// derivedDataBackfill waits until derived data exists for the tip of the shifted history.
func (s *session) derivedDataBackfill(ctx context.Context, state *recovery.State) (*recovery.State, error) {
	tip, _ := state.LastShifted()

	err := s.Verifier.Ensure(ctx, tip)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "derived data present", "changeset", tip.Short(), "kinds", s.Verifier.Kinds())

	state.ImportStage = state.ImportStage.Next()

	return state, nil
}
