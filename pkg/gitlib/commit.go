package gitlib

import (
	"errors"
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// ErrParentNotFound is returned when the requested parent commit is not found.
var ErrParentNotFound = errors.New("parent commit not found")

// Commit wraps a libgit2 commit.
type Commit struct {
	commit *git2go.Commit
	repo   *Repository
}

// Hash returns the commit hash.
func (c *Commit) Hash() Hash {
	return HashFromOid(c.commit.Id())
}

// Author returns the commit author.
func (c *Commit) Author() Signature {
	sig := c.commit.Author()

	return Signature{
		Name:  sig.Name,
		Email: sig.Email,
		When:  sig.When,
	}
}

// Message returns the commit message.
func (c *Commit) Message() string {
	return c.commit.Message()
}

// NumParents returns the number of parent commits.
func (c *Commit) NumParents() int {
	return int(c.commit.ParentCount())
}

// ParentHashes returns the parent hashes in order.
func (c *Commit) ParentHashes() []Hash {
	count := c.commit.ParentCount()
	out := make([]Hash, 0, count)

	for i := range count {
		out = append(out, HashFromOid(c.commit.ParentId(i)))
	}

	return out
}

// Tree returns the tree associated with this commit.
func (c *Commit) Tree() (*Tree, error) {
	tree, err := c.commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("get commit tree: %w", err)
	}

	return &Tree{tree: tree, repo: c.repo}, nil
}

// FirstParentTree returns the tree of the first parent, or nil for a root commit.
func (c *Commit) FirstParentTree() (*Tree, error) {
	if c.commit.ParentCount() == 0 {
		return nil, nil
	}

	return c.ParentTree(0)
}

// ParentTree returns the tree of the nth parent.
func (c *Commit) ParentTree(n int) (*Tree, error) {
	parent := c.commit.Parent(uint(n))
	if parent == nil {
		return nil, fmt.Errorf("%w: commit %s parent %d", ErrParentNotFound, c.Hash(), n)
	}
	defer parent.Free()

	tree, err := parent.Tree()
	if err != nil {
		return nil, fmt.Errorf("get parent tree: %w", err)
	}

	return &Tree{tree: tree, repo: c.repo}, nil
}

// Free releases the commit resources.
func (c *Commit) Free() {
	if c.commit != nil {
		c.commit.Free()
		c.commit = nil
	}
}
