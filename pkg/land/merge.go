// Package land builds the graft merge and lands it on the destination bookmark.
package land

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/gitgraft/pkg/changeset"
	"github.com/Sumatoshi-tech/gitgraft/pkg/derived"
)

// Sentinel errors.
var (
	// ErrPathConflict is returned when the destination already holds different content under the import path.
	ErrPathConflict = errors.New("path conflict at destination")
	// ErrRejected is returned when the destination bookmark moved while landing.
	ErrRejected = errors.New("landing rejected")
	// ErrDestinationMissing is returned when the destination bookmark does not exist.
	ErrDestinationMissing = errors.New("destination bookmark does not exist")
	// ErrNotGraftMerge is returned when submitting something other than a two-parent, content-free merge.
	ErrNotGraftMerge = errors.New("not a two-parent content-free merge")
)

// maxReportedConflicts bounds the paths rendered in a conflict report.
const maxReportedConflicts = 5

// BuildMerge returns the merge joining the destination head and the imported history.
// It carries no file changes: its tree is the union of its parents.
func BuildMerge(destHead, imported changeset.ID, author, message string, date time.Time) *changeset.Changeset {
	return &changeset.Changeset{
		Parents: []changeset.ID{destHead, imported},
		Author:  author,
		Message: message,
		Date:    date,
		Files:   []changeset.FileChange{},
	}
}

func validateGraftMerge(merge *changeset.Changeset) error {
	if len(merge.Parents) != 2 || len(merge.Files) != 0 {
		return fmt.Errorf("%w: %d parents, %d files", ErrNotGraftMerge, len(merge.Parents), len(merge.Files))
	}

	return nil
}

// ManifestFunc returns the manifest of a changeset.
type ManifestFunc func(ctx context.Context, id changeset.ID) (derived.Manifest, error)

// ContentReader reads file bodies for conflict reports.
type ContentReader interface {
	ReadContent(ctx context.Context, id changeset.ID) ([]byte, error)
}

// Conflict is one path whose destination content differs from the import.
// A nil side means the path is absent there.
type Conflict struct {
	Path     string
	Dest     *derived.Entry
	Imported *derived.Entry
	// Ancestor is set when Path is a destination file at a parent directory of destPath.
	Ancestor bool
}

// ConflictError lists the conflicting paths. It matches ErrPathConflict.
type ConflictError struct {
	DestPath  string
	Conflicts []Conflict
	Report    string
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("%s: %d path(s) under %s differ between destination and import",
		ErrPathConflict, len(e.Conflicts), e.DestPath)
	if e.Report != "" {
		msg += "\n" + e.Report
	}

	return msg
}

// Unwrap makes errors.Is(err, ErrPathConflict) hold.
func (e *ConflictError) Unwrap() error {
	return ErrPathConflict
}

// Checker verifies the destination holds nothing divergent under the import path.
type Checker struct {
	manifests ManifestFunc
	contents  ContentReader
}

// NewChecker creates a Checker. contents may be nil, which omits content diffs from reports.
func NewChecker(manifests ManifestFunc, contents ContentReader) *Checker {
	return &Checker{manifests: manifests, contents: contents}
}

// Check compares every destination file under destPath with the imported final state.
// Destination files there must be absent from the destination or identical in the import.
func (c *Checker) Check(ctx context.Context, destHead, imported changeset.ID, destPath string) error {
	destManifest, err := c.manifests(ctx, destHead)
	if err != nil {
		return fmt.Errorf("destination manifest: %w", err)
	}

	importedManifest, err := c.manifests(ctx, imported)
	if err != nil {
		return fmt.Errorf("imported manifest: %w", err)
	}

	conflicts := FindConflicts(destManifest, importedManifest, destPath)
	if len(conflicts) == 0 {
		return nil
	}

	return &ConflictError{
		DestPath:  destPath,
		Conflicts: conflicts,
		Report:    c.report(ctx, conflicts),
	}
}

// FindConflicts returns destination paths under destPath whose content or mode differs in imported,
// plus destination files sitting where destPath needs a directory.
func FindConflicts(dest, imported derived.Manifest, destPath string) []Conflict {
	prefix := strings.TrimSuffix(path.Clean(destPath), "/")

	var conflicts []Conflict

	for p, destEntry := range dest {
		if strings.HasPrefix(prefix, p+"/") {
			conflicts = append(conflicts, Conflict{Path: p, Dest: &destEntry, Ancestor: true})

			continue
		}

		if p != prefix && !strings.HasPrefix(p, prefix+"/") {
			continue
		}

		importedEntry, ok := imported[p]
		if ok && importedEntry.ContentID == destEntry.ContentID && importedEntry.Mode == destEntry.Mode {
			continue
		}

		conflict := Conflict{Path: p, Dest: &destEntry}
		if ok {
			conflict.Imported = &importedEntry
		}

		conflicts = append(conflicts, conflict)
	}

	slices.SortFunc(conflicts, func(a, b Conflict) int { return strings.Compare(a.Path, b.Path) })

	return conflicts
}
