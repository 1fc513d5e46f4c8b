package gitlib

import (
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// FileMode is a git tree entry mode.
type FileMode uint32

// Git file modes.
const (
	ModeRegular    FileMode = 0o100644
	ModeExecutable FileMode = 0o100755
	ModeSymlink    FileMode = 0o120000
	ModeSubmodule  FileMode = 0o160000
	ModeTree       FileMode = 0o040000
)

// ChangeAction represents the type of change in a diff.
type ChangeAction int

const (
	// Insert indicates a new file was added.
	Insert ChangeAction = iota
	// Delete indicates a file was removed.
	Delete
	// Modify indicates a file's content or mode changed.
	Modify
)

// Change is a single path changed between two trees.
// For Delete, Hash and Mode are zero.
type Change struct {
	Action ChangeAction
	Path   string
	Hash   Hash
	Size   int64
	Mode   FileMode
}

// Changes is a collection of Change objects.
type Changes []Change

// TreeDiff computes the blob-level changes from oldTree to newTree.
// A nil oldTree yields every blob of newTree as an insertion. Submodule entries are skipped.
// Renames and copies are reported as a delete of the old path plus an insert of the new one.
func TreeDiff(repo *Repository, oldTree, newTree *Tree) (Changes, error) {
	if oldTree == nil {
		return InitialTreeChanges(repo, newTree)
	}

	if newTree != nil && oldTree.Hash() == newTree.Hash() {
		return Changes{}, nil
	}

	diff, err := repo.DiffTreeToTree(oldTree, newTree)
	if err != nil {
		return nil, err
	}
	defer diff.Free()

	numDeltas, err := diff.NumDeltas()
	if err != nil {
		return nil, err
	}

	changes := make(Changes, 0, numDeltas)

	for i := range numDeltas {
		delta, deltaErr := diff.Delta(i)
		if deltaErr != nil {
			return nil, deltaErr
		}

		switch delta.Status {
		case git2go.DeltaAdded:
			changes = appendInsert(changes, Insert, delta.NewFile)
		case git2go.DeltaDeleted:
			changes = appendDelete(changes, delta.OldFile)
		case git2go.DeltaModified, git2go.DeltaTypeChange:
			changes = appendInsert(changes, Modify, delta.NewFile)
		case git2go.DeltaRenamed, git2go.DeltaCopied:
			if delta.Status == git2go.DeltaRenamed {
				changes = appendDelete(changes, delta.OldFile)
			}

			changes = appendInsert(changes, Insert, delta.NewFile)
		case git2go.DeltaUnmodified, git2go.DeltaIgnored, git2go.DeltaUntracked,
			git2go.DeltaUnreadable, git2go.DeltaConflicted:
			continue
		}
	}

	return changes, nil
}

func appendInsert(changes Changes, action ChangeAction, f DiffFile) Changes {
	if f.Mode == ModeSubmodule {
		return changes
	}

	return append(changes, Change{Action: action, Path: f.Path, Hash: f.Hash, Size: f.Size, Mode: f.Mode})
}

func appendDelete(changes Changes, f DiffFile) Changes {
	if f.Mode == ModeSubmodule {
		return changes
	}

	return append(changes, Change{Action: Delete, Path: f.Path})
}

// InitialTreeChanges lists every blob of tree as an insertion.
func InitialTreeChanges(repo *Repository, tree *Tree) (Changes, error) {
	if tree == nil {
		return Changes{}, nil
	}

	changes := make(Changes, 0)

	err := walkTree(repo, tree, "", func(path string, entry *TreeEntry) {
		changes = append(changes, Change{Action: Insert, Path: path, Hash: entry.Hash(), Mode: entry.Mode()})
	})
	if err != nil {
		return nil, err
	}

	return changes, nil
}

// walkTree calls cb for every blob below tree, recursing into subtrees.
func walkTree(repo *Repository, tree *Tree, prefix string, cb func(path string, entry *TreeEntry)) error {
	for i := range tree.EntryCount() {
		entry := tree.EntryByIndex(i)
		if entry == nil {
			continue
		}

		path := entry.Name()
		if prefix != "" {
			path = prefix + "/" + path
		}

		switch {
		case entry.IsBlob():
			cb(path, entry)
		case entry.IsTree():
			subtree, err := repo.LookupTree(entry.Hash())
			if err != nil {
				return fmt.Errorf("walk %s: %w", path, err)
			}

			walkErr := walkTree(repo, subtree, path, cb)
			subtree.Free()

			if walkErr != nil {
				return walkErr
			}
		}
	}

	return nil
}
