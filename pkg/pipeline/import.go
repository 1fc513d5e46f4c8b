package pipeline

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/gitgraft/pkg/changeset"
	"github.com/Sumatoshi-tech/gitgraft/pkg/foreign"
	"github.com/Sumatoshi-tech/gitgraft/pkg/recovery"
)

// ExtraNotSyncedMapping marks imported changesets as not synced to the named mapping.
const ExtraNotSyncedMapping = "not_synced_mapping"

// gitImport creates a native changeset for every foreign commit, batch by batch.
// It resumes after the commits already listed in imported_foreign_ids, which must
// still be the prefix of the foreign history.
func (s *session) gitImport(ctx context.Context, state *recovery.State) (*recovery.State, error) {
	if s.Foreign == nil {
		return nil, ErrNoForeignReader
	}

	total, err := s.Foreign.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count foreign commits: %w", err)
	}

	done := len(state.ImportedForeignIDs)
	if total < done {
		return nil, fmt.Errorf("%w: %d commits recorded, repository has %d", ErrForeignHistoryChanged, done, total)
	}

	if done > 0 {
		s.logger.InfoContext(ctx, "resuming import", "imported", done, "total", total)
	}

	index := 0
	batch := make([]*foreign.Commit, 0, state.BatchSize)

	for commit, iterErr := range s.Foreign.Commits(ctx) {
		if iterErr != nil {
			return nil, fmt.Errorf("read foreign history: %w", iterErr)
		}

		if index < done {
			if commit.ID != state.ImportedForeignIDs[index] {
				return nil, fmt.Errorf("%w: position %d is %s, recorded %s",
					ErrForeignHistoryChanged, index, commit.ID, state.ImportedForeignIDs[index])
			}

			index++

			continue
		}

		index++

		batch = append(batch, commit)
		if len(batch) < state.BatchSize {
			continue
		}

		err = s.importBatch(ctx, state, batch, total)
		if err != nil {
			return nil, err
		}

		batch = batch[:0]
	}

	if len(batch) > 0 {
		err = s.importBatch(ctx, state, batch, total)
		if err != nil {
			return nil, err
		}
	}

	if len(state.ImportedForeignIDs) == 0 {
		return nil, ErrNoCommits
	}

	last := state.ImportedForeignIDs[len(state.ImportedForeignIDs)-1]

	imported, err := s.Store.Mapping(ctx, last)
	if err != nil {
		return nil, fmt.Errorf("mapping of %s: %w", last, err)
	}

	state.ImportedChangesetID = &imported
	state.ImportStage = state.ImportStage.Next()

	return state, nil
}

// importBatch writes one batch, then checkpoints its foreign IDs.
func (s *session) importBatch(ctx context.Context, state *recovery.State, batch []*foreign.Commit, total int) error {
	err := s.retryBatch(ctx, state, "import batch", func() error {
		return s.writeBatch(ctx, batch, state.MarkNotSyncedMapping)
	})
	if err != nil {
		return err
	}

	for _, c := range batch {
		state.ImportedForeignIDs = append(state.ImportedForeignIDs, c.ID)
	}

	err = s.checkpoint(state)
	if err != nil {
		return err
	}

	s.metrics.RecordBatch(ctx, state.ImportStage.String(), len(batch))
	s.progress(ctx, state.ImportStage, len(state.ImportedForeignIDs), total)

	if len(state.ImportedForeignIDs) < total {
		return s.pause(ctx, state)
	}

	return nil
}

// writeBatch converts file bodies concurrently, then creates changesets in order so
// each commit's parents are already mapped.
func (s *session) writeBatch(ctx context.Context, batch []*foreign.Commit, notSyncedMapping string) error {
	files := make([][]changeset.FileChange, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, c := range batch {
		files[i] = make([]changeset.FileChange, len(c.Files))

		for j, f := range c.Files {
			g.Go(func() error {
				fc, err := s.convertFile(gctx, f)
				if err != nil {
					return fmt.Errorf("commit %s: %w", c.ID, err)
				}

				files[i][j] = fc

				return nil
			})
		}
	}

	err := g.Wait()
	if err != nil {
		return err
	}

	for i, c := range batch {
		err = s.createImported(ctx, c, files[i], notSyncedMapping)
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *session) convertFile(ctx context.Context, f foreign.File) (changeset.FileChange, error) {
	if f.Deleted {
		return changeset.FileChange{Path: f.Path, Deleted: true}, nil
	}

	data, err := s.Foreign.ReadBlob(ctx, f.BlobID)
	if err != nil {
		return changeset.FileChange{}, fmt.Errorf("read %s: %w", f.Path, err)
	}

	id, err := s.Store.WriteContent(ctx, data)
	if err != nil {
		return changeset.FileChange{}, fmt.Errorf("write %s: %w", f.Path, err)
	}

	return changeset.FileChange{Path: f.Path, ContentID: id, Mode: f.Mode, Size: int64(len(data))}, nil
}

func (s *session) createImported(ctx context.Context, c *foreign.Commit, files []changeset.FileChange, notSyncedMapping string) error {
	parents := make([]changeset.ID, len(c.ParentIDs))

	for i, p := range c.ParentIDs {
		id, err := s.Store.Mapping(ctx, p)
		if errors.Is(err, changeset.ErrNotFound) {
			return fmt.Errorf("%w: %s of %s was never imported", foreign.ErrUnknownParent, p, c.ID)
		}

		if err != nil {
			return fmt.Errorf("mapping of %s: %w", p, err)
		}

		parents[i] = id
	}

	extra := map[string]string{changeset.ExtraConvertRevision: c.ID}
	if notSyncedMapping != "" {
		extra[ExtraNotSyncedMapping] = notSyncedMapping
	}

	id, err := s.Store.Create(ctx, &changeset.Changeset{
		Parents: parents,
		Author:  c.Author,
		Message: c.Message,
		Date:    c.Date,
		Files:   files,
		Extra:   extra,
	})
	if err != nil {
		return fmt.Errorf("create changeset for %s: %w", c.ID, err)
	}

	err = s.Store.SetMapping(ctx, c.ID, id)
	if err != nil {
		return fmt.Errorf("record mapping of %s: %w", c.ID, err)
	}

	return nil
}
