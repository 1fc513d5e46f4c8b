package foreign

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/Sumatoshi-tech/gitgraft/pkg/changeset"
	"github.com/Sumatoshi-tech/gitgraft/pkg/toposort"
)

// FixtureFile is a file in a FixtureCommit. A nil Content with Deleted set removes the path.
type FixtureFile struct {
	Path    string
	Content []byte
	Mode    changeset.FileMode
	Deleted bool
}

// FixtureCommit describes an in-memory foreign commit.
type FixtureCommit struct {
	ID        string
	ParentIDs []string
	Author    string
	Message   string
	Date      time.Time
	Files     []FixtureFile
}

// SliceReader serves a fixed, in-memory history. Commits may be given in any order.
type SliceReader struct {
	commits []*Commit
	blobs   map[string][]byte
}

// NewSliceReader orders the fixtures parents-first. Fails on unknown parents or cycles.
func NewSliceReader(fixtures []FixtureCommit) (*SliceReader, error) {
	byID := make(map[string]FixtureCommit, len(fixtures))
	graph := toposort.NewGraph()

	for _, fc := range fixtures {
		byID[fc.ID] = fc
		graph.AddNode(fc.ID)
	}

	for _, fc := range fixtures {
		for _, parent := range fc.ParentIDs {
			if _, ok := byID[parent]; !ok {
				return nil, fmt.Errorf("%w: %s -> %s", ErrUnknownParent, fc.ID, parent)
			}

			graph.AddEdge(parent, fc.ID)
		}
	}

	order, err := graph.Sort()
	if err != nil {
		return nil, err
	}

	reader := &SliceReader{
		commits: make([]*Commit, 0, len(order)),
		blobs:   make(map[string][]byte),
	}

	for _, id := range order {
		reader.commits = append(reader.commits, reader.convert(byID[id]))
	}

	return reader, nil
}

func (r *SliceReader) convert(fc FixtureCommit) *Commit {
	out := &Commit{
		ID:        fc.ID,
		ParentIDs: fc.ParentIDs,
		Author:    fc.Author,
		Message:   fc.Message,
		Date:      fc.Date,
		Files:     make([]File, 0, len(fc.Files)),
	}

	for _, f := range fc.Files {
		if f.Deleted {
			out.Files = append(out.Files, File{Path: f.Path, Deleted: true})

			continue
		}

		mode := f.Mode
		if mode == "" {
			mode = changeset.ModeRegular
		}

		blobID := changeset.ContentID(f.Content).String()
		r.blobs[blobID] = f.Content
		out.Files = append(out.Files, File{Path: f.Path, Mode: mode, BlobID: blobID})
	}

	return out
}

// Count implements Reader.
func (r *SliceReader) Count(context.Context) (int, error) {
	return len(r.commits), nil
}

// Commits implements Reader.
func (r *SliceReader) Commits(ctx context.Context) iter.Seq2[*Commit, error] {
	return func(yield func(*Commit, error) bool) {
		for _, c := range r.commits {
			if err := ctx.Err(); err != nil {
				yield(nil, err)

				return
			}

			if !yield(c, nil) {
				return
			}
		}
	}
}

// ReadBlob implements Reader.
func (r *SliceReader) ReadBlob(_ context.Context, blobID string) ([]byte, error) {
	data, ok := r.blobs[blobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, blobID)
	}

	return data, nil
}

// Close implements Reader.
func (r *SliceReader) Close() error {
	return nil
}

// IDs returns the commit IDs in yield order.
func (r *SliceReader) IDs() []string {
	ids := make([]string, len(r.commits))
	for i, c := range r.commits {
		ids[i] = c.ID
	}

	return ids
}
