// Package foreign reads the history of the repository being imported.
//
// Readers yield commits parents-first. Each commit carries the files it
// changes relative to its first parent; file bodies are fetched separately
// with ReadBlob so the importer can convert them concurrently.
package foreign

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/Sumatoshi-tech/gitgraft/pkg/changeset"
)

// Sentinel errors.
var (
	// ErrUnknownParent is returned when a commit names a parent the reader never yields.
	ErrUnknownParent = errors.New("commit references an unknown parent")
	// ErrBlobNotFound is returned by ReadBlob for an unknown blob.
	ErrBlobNotFound = errors.New("blob not found")
)

// File is one path changed by a foreign commit.
type File struct {
	Path    string
	Mode    changeset.FileMode
	Deleted bool
	// BlobID is the reader-specific handle passed to ReadBlob. Empty when Deleted.
	BlobID string
}

// Commit is a read-only view of one foreign commit.
type Commit struct {
	ID        string
	ParentIDs []string
	Author    string
	Message   string
	Date      time.Time
	Files     []File
}

// Reader yields a foreign repository's commits in topological order.
type Reader interface {
	// Count returns the number of commits Commits yields.
	Count(ctx context.Context) (int, error)
	// Commits yields every commit, parents before children.
	Commits(ctx context.Context) iter.Seq2[*Commit, error]
	// ReadBlob returns a file body. Safe for concurrent use.
	ReadBlob(ctx context.Context, blobID string) ([]byte, error)
	// Close releases the reader.
	Close() error
}
