package gitlib

import (
	"bytes"

	git2go "github.com/libgit2/git2go/v34"
)

// Blob wraps a libgit2 blob.
type Blob struct {
	blob *git2go.Blob
}

// Contents returns a copy of the blob contents, valid after Free.
func (b *Blob) Contents() []byte {
	return bytes.Clone(b.blob.Contents())
}

// Free releases the blob resources.
func (b *Blob) Free() {
	if b.blob != nil {
		b.blob.Free()
		b.blob = nil
	}
}
