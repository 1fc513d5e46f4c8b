// Package changeset defines the native, content-addressed commit model.
//
// A Changeset records its parents and the file changes it introduces relative
// to its first parent. Its ID is the SHA-256 of a canonical encoding, so writing
// the same changeset twice is a no-op for any store keyed by ID.
package changeset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Constants for ID operations.
const (
	// IDSize is the size of a changeset or content ID in bytes.
	IDSize = sha256.Size
	// IDHexSize is the size of a hex-encoded ID.
	IDHexSize = IDSize * 2
)

// Domain separators keep content IDs and changeset IDs from colliding.
const (
	changesetDomain = "changeset\x00"
	contentDomain   = "content\x00"
)

// Sentinel errors.
var (
	// ErrNotFound is returned by stores when an ID or mapping is unknown.
	ErrNotFound = errors.New("not found")
	// ErrInvalidID is returned when an ID string cannot be parsed.
	ErrInvalidID = errors.New("invalid changeset id")
)

// ID identifies a changeset or a file content blob.
type ID [IDSize]byte

// ParseID parses a hex-encoded ID.
func ParseID(s string) (ID, error) {
	var id ID

	if len(s) != IDHexSize {
		return id, fmt.Errorf("%w: %q has length %d, want %d", ErrInvalidID, s, len(s), IDHexSize)
	}

	_, err := hex.Decode(id[:], []byte(s))
	if err != nil {
		return id, fmt.Errorf("%w: %q: %w", ErrInvalidID, s, err)
	}

	return id, nil
}

// MustParseID is ParseID for constants in tests and fixtures.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}

	return id
}

// String returns the hex representation of the ID.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns the first 12 hex characters, for progress output.
func (id ID) Short() string {
	return id.String()[:12]
}

// IsZero returns true if the ID is all zeros.
func (id ID) IsZero() bool {
	return id == ID{}
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}

	*id = parsed

	return nil
}

// ContentID returns the content address of a file body.
func ContentID(data []byte) ID {
	h := sha256.New()
	h.Write([]byte(contentDomain))
	h.Write(data)

	var id ID
	copy(id[:], h.Sum(nil))

	return id
}

// FileMode is the kind of a file entry.
type FileMode string

// File modes.
const (
	ModeRegular    FileMode = "regular"
	ModeExecutable FileMode = "executable"
	ModeSymlink    FileMode = "symlink"
)

// FileChange is one path touched by a changeset.
type FileChange struct {
	Path      string   `json:"path"`
	ContentID ID       `json:"content_id"`
	Mode      FileMode `json:"mode,omitempty"`
	Size      int64    `json:"size"`
	Deleted   bool     `json:"deleted,omitempty"`
}

// Changeset is an immutable unit of committed history.
type Changeset struct {
	Parents []ID              `json:"parents"`
	Author  string            `json:"author"`
	Message string            `json:"message"`
	Date    time.Time         `json:"date"`
	Files   []FileChange      `json:"files"`
	Extra   map[string]string `json:"extra,omitempty"`
}

// Extra keys recorded on imported changesets.
const (
	// ExtraConvertRevision holds the foreign commit ID a changeset was imported from.
	ExtraConvertRevision = "convert_revision"
)

// ID computes the content address of the changeset.
// Files are ordered by path and the date is normalized to UTC before hashing.
func (c *Changeset) ID() ID {
	canonical := c.Canonical()

	data, err := json.Marshal(canonical)
	if err != nil {
		// Changeset only holds JSON-safe field types.
		panic(fmt.Sprintf("changeset: canonical encoding: %v", err))
	}

	h := sha256.New()
	h.Write([]byte(changesetDomain))
	h.Write(data)

	var id ID
	copy(id[:], h.Sum(nil))

	return id
}

// Canonical returns a copy with files sorted by path, the date in UTC, and nil slices made empty.
func (c *Changeset) Canonical() *Changeset {
	out := &Changeset{
		Parents: slices.Clone(c.Parents),
		Author:  c.Author,
		Message: c.Message,
		Date:    c.Date.UTC().Truncate(time.Second),
		Files:   slices.Clone(c.Files),
		Extra:   c.Extra,
	}

	if out.Parents == nil {
		out.Parents = []ID{}
	}

	if out.Files == nil {
		out.Files = []FileChange{}
	}

	slices.SortFunc(out.Files, func(a, b FileChange) int {
		return strings.Compare(a.Path, b.Path)
	})

	return out
}

// IsMerge returns true if the changeset has more than one parent.
func (c *Changeset) IsMerge() bool {
	return len(c.Parents) > 1
}

// Store is a content-addressed changeset store.
// Create is idempotent: writing an existing changeset returns its ID and changes nothing.
type Store interface {
	// Create writes the changeset and returns its ID.
	Create(ctx context.Context, cs *Changeset) (ID, error)
	// Read returns the changeset with the given ID or ErrNotFound.
	Read(ctx context.Context, id ID) (*Changeset, error)
	// WriteContent stores a file body and returns its content ID.
	WriteContent(ctx context.Context, data []byte) (ID, error)
	// ReadContent returns a file body or ErrNotFound.
	ReadContent(ctx context.Context, id ID) ([]byte, error)
	// SetMapping records that the foreign commit was imported as id.
	SetMapping(ctx context.Context, foreignID string, id ID) error
	// Mapping returns the native ID for a foreign commit or ErrNotFound.
	Mapping(ctx context.Context, foreignID string) (ID, error)
}
