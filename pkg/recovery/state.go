// Package recovery holds the import pipeline's durable checkpoint record.
//
// The record is indented JSON with snake_case keys. Field names and stage names
// are a compatibility surface: operators read and hand-edit these files during
// emergency recovery.
package recovery

import (
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/gitgraft/pkg/bookmark"
	"github.com/Sumatoshi-tech/gitgraft/pkg/changeset"
)

// bookmarkSuffixPattern matches the characters allowed in an alias bookmark suffix.
var bookmarkSuffixPattern = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)

// Duration is a time.Duration written as a Go duration string ("5s").
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("sleep_time: %w", err)
	}

	*d = Duration(parsed)

	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// State is the recovery record of one import.
type State struct {
	ImportStage               Stage          `json:"import_stage"`
	BatchSize                 int            `json:"batch_size"`
	BookmarkSuffix            string         `json:"bookmark_suffix"`
	CommitAuthor              string         `json:"commit_author"`
	CommitMessage             string         `json:"commit_message"`
	Datetime                  time.Time      `json:"datetime"`
	DestBookmarkName          string         `json:"dest_bookmark_name"`
	DestPath                  string         `json:"dest_path"`
	GitMergeChangesetID       *changeset.ID  `json:"git_merge_changeset_id,omitempty"`
	GitMergeForeignRevisionID string         `json:"git_merge_foreign_revision_id,omitempty"`
	ForeignRepoPath           string         `json:"foreign_repo_path"`
	ImportedForeignIDs        []string       `json:"imported_foreign_ids,omitempty"`
	HgSyncCheckDisabled       bool           `json:"hg_sync_check_disabled"`
	PhabCheckDisabled         bool           `json:"phab_check_disabled"`
	XRepoCheckDisabled        bool           `json:"x_repo_check_disabled"`
	ImportedChangesetID       *changeset.ID  `json:"imported_changeset_id,omitempty"`
	MergedChangesetID         *changeset.ID  `json:"merged_changeset_id,omitempty"`
	MoveBookmarkCommitsDone   int            `json:"move_bookmark_commits_done"`
	RecoveryFilePath          string         `json:"recovery_file_path"`
	ShiftedChangesetIDs       []changeset.ID `json:"shifted_changeset_ids,omitempty"`
	SleepTime                 Duration       `json:"sleep_time"`
	MarkNotSyncedMapping      string         `json:"mark_not_synced_mapping,omitempty"`
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	out := *s
	out.ImportedForeignIDs = slices.Clone(s.ImportedForeignIDs)
	out.ShiftedChangesetIDs = slices.Clone(s.ShiftedChangesetIDs)
	out.GitMergeChangesetID = cloneID(s.GitMergeChangesetID)
	out.ImportedChangesetID = cloneID(s.ImportedChangesetID)
	out.MergedChangesetID = cloneID(s.MergedChangesetID)

	return &out
}

// AliasBookmark returns the name of the ephemeral import-alias bookmark.
func (s *State) AliasBookmark() string {
	return bookmark.ImportAlias(s.BookmarkSuffix)
}

// LastShifted returns the final shifted changeset, if any.
func (s *State) LastShifted() (changeset.ID, bool) {
	if len(s.ShiftedChangesetIDs) == 0 {
		return changeset.ID{}, false
	}

	return s.ShiftedChangesetIDs[len(s.ShiftedChangesetIDs)-1], true
}

// Validate checks the semantic invariants of the record.
func (s *State) Validate() error {
	checks := []struct {
		ok  bool
		msg string
	}{
		{s.ImportStage.Valid(), fmt.Sprintf("import_stage %s is not a known stage", s.ImportStage)},
		{s.BatchSize > 0, "batch_size must be positive"},
		{s.BookmarkSuffix != "", "bookmark_suffix is required"},
		{bookmarkSuffixPattern.MatchString(s.BookmarkSuffix), "bookmark_suffix may only contain letters, digits and ._/-"},
		{s.CommitAuthor != "", "commit_author is required"},
		{s.DestBookmarkName != "", "dest_bookmark_name is required"},
		{s.DestPath != "", "dest_path is required"},
		{validDestPath(s.DestPath), "dest_path must be a relative path inside the repository"},
		{s.ForeignRepoPath != "", "foreign_repo_path is required"},
		{s.SleepTime >= 0, "sleep_time must not be negative"},
		{!slices.Contains(s.ImportedForeignIDs, ""), "imported_foreign_ids must not contain empty ids"},
		{s.MoveBookmarkCommitsDone >= 0, "move_bookmark_commits_done must not be negative"},
		{
			s.MoveBookmarkCommitsDone <= len(s.ShiftedChangesetIDs),
			"move_bookmark_commits_done exceeds len(shifted_changeset_ids)",
		},
		{
			len(s.ShiftedChangesetIDs) <= len(s.ImportedForeignIDs),
			"shifted_changeset_ids is longer than imported_foreign_ids",
		},
		{
			s.GitMergeChangesetID == nil || s.GitMergeForeignRevisionID != "",
			"git_merge_changeset_id requires git_merge_foreign_revision_id",
		},
		{
			s.ImportStage > StageGitImport || s.ImportedChangesetID == nil,
			"imported_changeset_id is set before GitImport finished",
		},
		{
			s.ImportStage > StageGitImport || len(s.ShiftedChangesetIDs) == 0,
			"shifted_changeset_ids is set before RewriteForeignHistory started",
		},
		{
			s.ImportStage < StageRewriteForeignHistory || s.ImportedChangesetID != nil,
			"imported_changeset_id is required after GitImport",
		},
		{
			s.ImportStage > StageRewriteForeignHistory || s.MoveBookmarkCommitsDone == 0,
			"move_bookmark_commits_done is set before BookmarkMove started",
		},
		{
			s.ImportStage < StageBookmarkMove ||
				(len(s.ShiftedChangesetIDs) == len(s.ImportedForeignIDs) && len(s.ShiftedChangesetIDs) > 0),
			"shifted_changeset_ids must cover every imported commit after RewriteForeignHistory",
		},
		{
			s.ImportStage < StageDerivedDataBackfill || s.MoveBookmarkCommitsDone == len(s.ShiftedChangesetIDs),
			"move_bookmark_commits_done must be complete after BookmarkMove",
		},
		{
			s.ImportStage >= StageMergeIntoDestination || s.MergedChangesetID == nil,
			"merged_changeset_id is set before MergeIntoDestination",
		},
		{
			s.ImportStage != StagePushCommit || s.MergedChangesetID != nil,
			"merged_changeset_id is required at PushCommit",
		},
	}

	for _, c := range checks {
		if !c.ok {
			return fmt.Errorf("%w: %s", ErrInvalidRecord, c.msg)
		}
	}

	return nil
}

func validDestPath(p string) bool {
	clean := path.Clean(p)

	return !path.IsAbs(clean) && clean != "." && clean != ".." && !strings.HasPrefix(clean, "../")
}

func cloneID(id *changeset.ID) *changeset.ID {
	if id == nil {
		return nil
	}

	v := *id

	return &v
}
