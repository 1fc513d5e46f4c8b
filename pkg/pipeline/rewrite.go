package pipeline

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path"
	"slices"

	"github.com/Sumatoshi-tech/gitgraft/pkg/changeset"
	"github.com/Sumatoshi-tech/gitgraft/pkg/recovery"
)

// ShiftPath places a foreign path under destPath.
func ShiftPath(destPath, p string) string {
	return path.Join(destPath, p)
}

// ShiftChangeset returns a copy of cs with every path under destPath and every parent
// replaced by its shifted form. A non-nil override replaces the first parent, or becomes
// the only parent of a root.
func ShiftChangeset(
	cs *changeset.Changeset, destPath string, shifted map[changeset.ID]changeset.ID, override *changeset.ID,
) (*changeset.Changeset, error) {
	parents := make([]changeset.ID, 0, max(len(cs.Parents), 1))

	for _, p := range cs.Parents {
		sp, ok := shifted[p]
		if !ok {
			return nil, fmt.Errorf("%w: %s of %s", ErrUnshiftedParent, p.Short(), cs.ID().Short())
		}

		parents = append(parents, sp)
	}

	if override != nil {
		if len(parents) == 0 {
			parents = append(parents, *override)
		} else {
			parents[0] = *override
		}
	}

	files := make([]changeset.FileChange, len(cs.Files))
	for i, f := range cs.Files {
		f.Path = ShiftPath(destPath, f.Path)
		files[i] = f
	}

	return &changeset.Changeset{
		Parents: parents,
		Author:  cs.Author,
		Message: cs.Message,
		Date:    cs.Date,
		Files:   files,
		Extra:   maps.Clone(cs.Extra),
	}, nil
}

// rewriteForeignHistory creates the shifted form of each imported changeset, batch by
// batch, resuming after shifted_changeset_ids.
func (s *session) rewriteForeignHistory(ctx context.Context, state *recovery.State) (*recovery.State, error) {
	natives, err := s.importedNatives(ctx, state)
	if err != nil {
		return nil, err
	}

	err = s.checkOverride(ctx, state)
	if err != nil {
		return nil, err
	}

	total := len(natives)
	shiftedOf := make(map[changeset.ID]changeset.ID, total)

	for i, id := range state.ShiftedChangesetIDs {
		shiftedOf[natives[i]] = id
	}

	for start := len(state.ShiftedChangesetIDs); start < total; start += state.BatchSize {
		end := min(start+state.BatchSize, total)

		var ids []changeset.ID

		err = s.retryBatch(ctx, state, "rewrite batch", func() error {
			ids = ids[:0]

			for i := start; i < end; i++ {
				id, shiftErr := s.shiftOne(ctx, state, natives[i], state.ImportedForeignIDs[i], shiftedOf)
				if shiftErr != nil {
					return shiftErr
				}

				shiftedOf[natives[i]] = id
				ids = append(ids, id)
			}

			return nil
		})
		if err != nil {
			return nil, err
		}

		state.ShiftedChangesetIDs = append(state.ShiftedChangesetIDs, ids...)

		err = s.checkpoint(state)
		if err != nil {
			return nil, err
		}

		s.metrics.RecordBatch(ctx, state.ImportStage.String(), len(ids))
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

func (s *session) shiftOne(
	ctx context.Context, state *recovery.State, native changeset.ID, foreignID string,
	shiftedOf map[changeset.ID]changeset.ID,
) (changeset.ID, error) {
	cs, err := s.Store.Read(ctx, native)
	if err != nil {
		return changeset.ID{}, fmt.Errorf("read imported %s: %w", native.Short(), err)
	}

	var override *changeset.ID
	if foreignID == state.GitMergeForeignRevisionID {
		override = state.GitMergeChangesetID
	}

	shifted, err := ShiftChangeset(cs, state.DestPath, shiftedOf, override)
	if err != nil {
		return changeset.ID{}, err
	}

	id, err := s.Store.Create(ctx, shifted)
	if err != nil {
		return changeset.ID{}, fmt.Errorf("create shifted %s: %w", foreignID, err)
	}

	return id, nil
}

// importedNatives resolves imported_foreign_ids to native IDs, index-aligned.
func (s *session) importedNatives(ctx context.Context, state *recovery.State) ([]changeset.ID, error) {
	natives := make([]changeset.ID, len(state.ImportedForeignIDs))

	for i, foreignID := range state.ImportedForeignIDs {
		id, err := s.Store.Mapping(ctx, foreignID)
		if err != nil {
			return nil, fmt.Errorf("mapping of %s: %w", foreignID, err)
		}

		natives[i] = id
	}

	return natives, nil
}

func (s *session) checkOverride(ctx context.Context, state *recovery.State) error {
	if state.GitMergeChangesetID == nil {
		return nil
	}

	_, err := s.Store.Read(ctx, *state.GitMergeChangesetID)
	if errors.Is(err, changeset.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrOverrideNotFound, state.GitMergeChangesetID.String())
	}

	if err != nil {
		return fmt.Errorf("read override parent: %w", err)
	}

	if !slices.Contains(state.ImportedForeignIDs, state.GitMergeForeignRevisionID) {
		s.logger.WarnContext(ctx, "override revision is not part of the import",
			"git_merge_foreign_revision_id", state.GitMergeForeignRevisionID)
	}

	return nil
}
