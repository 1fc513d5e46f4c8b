package pipeline

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/gitgraft/pkg/recovery"
)

// Sentinel errors.
var (
	// ErrForeignHistoryChanged is returned when the foreign commits already imported no longer
	// match the foreign repository's history.
	ErrForeignHistoryChanged = errors.New("foreign history changed since import started")
	// ErrNoForeignReader is returned when GitImport runs without a foreign repository reader.
	ErrNoForeignReader = errors.New("no foreign repository reader configured")
	// ErrNoCommits is returned when the foreign repository is empty.
	ErrNoCommits = errors.New("foreign repository has no commits")
	// ErrOverrideNotFound is returned when git_merge_changeset_id names a missing changeset.
	ErrOverrideNotFound = errors.New("override parent changeset not found")
	// ErrStageRegression is returned if a handler tried to move the record backwards.
	ErrStageRegression = errors.New("stage did not advance")
)

// StageError reports a failed stage. The record stays at its last checkpoint.
type StageError struct {
	Stage      recovery.Stage
	RecordPath string
	Err        error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v\nfix the cause and resume with: gitgraft recover-process %s",
		e.Stage, e.Err, e.RecordPath)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// ErrUnshiftedParent is returned when rewriting reaches a commit before one of its parents.
var ErrUnshiftedParent = errors.New("parent has no rewritten form")
