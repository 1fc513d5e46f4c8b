// Package derived computes and verifies auxiliary indexes over changesets.
package derived

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Sumatoshi-tech/gitgraft/pkg/changeset"
)

// Derived data kinds.
const (
	// KindManifest is the full path -> content map of a changeset.
	KindManifest = "manifest"
	// KindChangesetInfo is a summary of a changeset's metadata.
	KindChangesetInfo = "changeset_info"
)

// Sentinel errors.
var (
	// ErrUnknownKind is returned for a derived data kind no engine can compute.
	ErrUnknownKind = errors.New("unknown derived data kind")
	// ErrDerivationIncomplete is returned when derived data is still missing after all retries.
	ErrDerivationIncomplete = errors.New("derived data incomplete")
	// ErrNotDerived is returned when reading derived data that has not been computed.
	ErrNotDerived = errors.New("derived data not computed")
)

// KnownKinds returns every kind LocalEngine can derive.
func KnownKinds() []string {
	return []string{KindManifest, KindChangesetInfo}
}

// ValidateKinds rejects kinds outside KnownKinds.
func ValidateKinds(kinds []string) error {
	for _, kind := range kinds {
		if !slices.Contains(KnownKinds(), kind) {
			return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
		}
	}

	return nil
}

// Engine triggers and reports derivation.
type Engine interface {
	// EnsureDerived reports whether kind exists for id, triggering derivation when it does not.
	EnsureDerived(ctx context.Context, id changeset.ID, kind string) (bool, error)
}

// Index is the storage LocalEngine reads changesets from and writes derived data to.
type Index interface {
	Read(ctx context.Context, id changeset.ID) (*changeset.Changeset, error)
	GetDerived(ctx context.Context, kind string, id changeset.ID) ([]byte, error)
	PutDerived(ctx context.Context, kind string, id changeset.ID, data []byte) error
}

// Entry is one file in a Manifest.
type Entry struct {
	ContentID changeset.ID
	Mode      changeset.FileMode
	Size      int64
}

// Manifest maps every path in a changeset's tree to its content.
type Manifest map[string]Entry

// Info is the changeset_info payload.
type Info struct {
	Author      string
	Message     string
	Date        time.Time
	ParentCount int
	FileCount   int
}
