package recovery

import (
	"time"

	"github.com/Sumatoshi-tech/gitgraft/pkg/changeset"
)

// Summary is a read-only progress view of a record.
type Summary struct {
	Stage           string    `json:"stage"                      yaml:"stage"`
	StageIndex      int       `json:"stage_index"                yaml:"stage_index"`
	StageCount      int       `json:"stage_count"                yaml:"stage_count"`
	Done            bool      `json:"done"                       yaml:"done"`
	ForeignRepo     string    `json:"foreign_repo"               yaml:"foreign_repo"`
	DestBookmark    string    `json:"dest_bookmark"              yaml:"dest_bookmark"`
	DestPath        string    `json:"dest_path"                  yaml:"dest_path"`
	AliasBookmark   string    `json:"alias_bookmark"             yaml:"alias_bookmark"`
	BatchSize       int       `json:"batch_size"                 yaml:"batch_size"`
	Imported        int       `json:"imported"                   yaml:"imported"`
	Shifted         int       `json:"shifted"                    yaml:"shifted"`
	BookmarkMoved   int       `json:"bookmark_moved"             yaml:"bookmark_moved"`
	ImportedTip     string    `json:"imported_tip,omitempty"     yaml:"imported_tip,omitempty"`
	MergedChangeset string    `json:"merged_changeset,omitempty" yaml:"merged_changeset,omitempty"`
	Started         time.Time `json:"started"                    yaml:"started"`
	Checks          []string  `json:"skipped_checks,omitempty"   yaml:"skipped_checks,omitempty"`
}

// Summarize builds the progress view of s.
func (s *State) Summarize() Summary {
	sum := Summary{
		Stage:           s.ImportStage.String(),
		StageIndex:      int(s.ImportStage),
		StageCount:      len(Stages()),
		Done:            s.ImportStage == StageDone,
		ForeignRepo:     s.ForeignRepoPath,
		DestBookmark:    s.DestBookmarkName,
		DestPath:        s.DestPath,
		AliasBookmark:   s.AliasBookmark(),
		BatchSize:       s.BatchSize,
		Imported:        len(s.ImportedForeignIDs),
		Shifted:         len(s.ShiftedChangesetIDs),
		BookmarkMoved:   s.MoveBookmarkCommitsDone,
		ImportedTip:     idString(s.ImportedChangesetID),
		MergedChangeset: idString(s.MergedChangesetID),
		Started:         s.Datetime,
	}

	if s.HgSyncCheckDisabled {
		sum.Checks = append(sum.Checks, "hg_sync")
	}

	if s.PhabCheckDisabled {
		sum.Checks = append(sum.Checks, "phabricator")
	}

	if s.XRepoCheckDisabled {
		sum.Checks = append(sum.Checks, "x_repo_sync")
	}

	return sum
}

func idString(id *changeset.ID) string {
	if id == nil {
		return ""
	}

	return id.String()
}
