package foreign

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"

	"github.com/Sumatoshi-tech/gitgraft/pkg/changeset"
	"github.com/Sumatoshi-tech/gitgraft/pkg/gitlib"
)

// GitReader reads a local git repository through libgit2.
type GitReader struct {
	repo *gitlib.Repository
	head gitlib.Hash

	// mu serializes libgit2 calls on the shared repository handle.
	mu sync.Mutex
}

// OpenGit opens the repository at path and pins the history reachable from rev (HEAD when empty).
func OpenGit(path, rev string) (*GitReader, error) {
	repo, err := gitlib.OpenRepository(path)
	if err != nil {
		return nil, err
	}

	if rev == "" {
		rev = "HEAD"
	}

	head, err := repo.ResolveRevision(rev)
	if err != nil {
		repo.Free()

		return nil, err
	}

	return &GitReader{repo: repo, head: head}, nil
}

// Head returns the commit the reader walks from.
func (r *GitReader) Head() string {
	return r.head.String()
}

// Count implements Reader.
func (r *GitReader) Count(ctx context.Context) (int, error) {
	count := 0

	err := r.walk(ctx, func(gitlib.Hash) error {
		count++

		return nil
	})

	return count, err
}

// Commits implements Reader.
func (r *GitReader) Commits(ctx context.Context) iter.Seq2[*Commit, error] {
	return func(yield func(*Commit, error) bool) {
		errStop := errors.New("stop")

		err := r.walk(ctx, func(hash gitlib.Hash) error {
			commit, err := r.readCommit(hash)
			if err != nil {
				return err
			}

			if !yield(commit, nil) {
				return errStop
			}

			return nil
		})
		if err != nil && !errors.Is(err, errStop) {
			yield(nil, err)
		}
	}
}

// ReadBlob implements Reader.
func (r *GitReader) ReadBlob(_ context.Context, blobID string) ([]byte, error) {
	hash, err := gitlib.ParseHash(blobID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBlobNotFound, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	blob, err := r.repo.LookupBlob(hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBlobNotFound, err)
	}
	defer blob.Free()

	return blob.Contents(), nil
}

// Close implements Reader.
func (r *GitReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.repo.Free()

	return nil
}

func (r *GitReader) walk(ctx context.Context, visit func(gitlib.Hash) error) error {
	r.mu.Lock()
	walk, err := r.repo.Walk()

	if err == nil {
		err = walk.Push(r.head)
	}
	r.mu.Unlock()

	if err != nil {
		return err
	}

	defer walk.Free()

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		r.mu.Lock()
		hash, nextErr := walk.Next()
		r.mu.Unlock()

		if errors.Is(nextErr, io.EOF) {
			return nil
		}

		if nextErr != nil {
			return nextErr
		}

		visitErr := visit(hash)
		if visitErr != nil {
			return visitErr
		}
	}
}

func (r *GitReader) readCommit(hash gitlib.Hash) (*Commit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	commit, err := r.repo.LookupCommit(hash)
	if err != nil {
		return nil, err
	}
	defer commit.Free()

	oldTree, err := commit.FirstParentTree()
	if err != nil {
		return nil, err
	}

	if oldTree != nil {
		defer oldTree.Free()
	}

	newTree, err := commit.Tree()
	if err != nil {
		return nil, err
	}
	defer newTree.Free()

	changes, err := gitlib.TreeDiff(r.repo, oldTree, newTree)
	if err != nil {
		return nil, fmt.Errorf("diff commit %s: %w", hash, err)
	}

	author := commit.Author()
	out := &Commit{
		ID:      hash.String(),
		Author:  fmt.Sprintf("%s <%s>", author.Name, author.Email),
		Message: commit.Message(),
		Date:    author.When,
		Files:   make([]File, 0, len(changes)),
	}

	for _, parent := range commit.ParentHashes() {
		out.ParentIDs = append(out.ParentIDs, parent.String())
	}

	seen := make(map[string]bool, len(changes))

	for _, change := range changes {
		seen[change.Path] = true

		if change.Action == gitlib.Delete {
			out.Files = append(out.Files, File{Path: change.Path, Deleted: true})

			continue
		}

		out.Files = append(out.Files, File{Path: change.Path, Mode: fileMode(change.Mode), BlobID: change.Hash.String()})
	}

	// A merge's manifest is the union of its parents' manifests, so paths that only
	// other parents carry and the merge dropped must be deleted explicitly.
	for n := 1; n < commit.NumParents(); n++ {
		dropped, err := r.droppedFromParent(commit, n, newTree)
		if err != nil {
			return nil, err
		}

		for _, p := range dropped {
			if !seen[p] {
				seen[p] = true
				out.Files = append(out.Files, File{Path: p, Deleted: true})
			}
		}
	}

	return out, nil
}

func (r *GitReader) droppedFromParent(commit *gitlib.Commit, n int, newTree *gitlib.Tree) ([]string, error) {
	parentTree, err := commit.ParentTree(n)
	if err != nil {
		return nil, err
	}
	defer parentTree.Free()

	changes, err := gitlib.TreeDiff(r.repo, parentTree, newTree)
	if err != nil {
		return nil, fmt.Errorf("diff commit %s against parent %d: %w", commit.Hash(), n, err)
	}

	var dropped []string

	for _, change := range changes {
		if change.Action == gitlib.Delete {
			dropped = append(dropped, change.Path)
		}
	}

	return dropped, nil
}

func fileMode(mode gitlib.FileMode) changeset.FileMode {
	switch mode {
	case gitlib.ModeExecutable:
		return changeset.ModeExecutable
	case gitlib.ModeSymlink:
		return changeset.ModeSymlink
	default:
		return changeset.ModeRegular
	}
}
