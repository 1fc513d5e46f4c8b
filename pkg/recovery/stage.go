package recovery

import (
	"errors"
	"fmt"
)

// ErrUnknownStage is returned when a record names a stage this binary does not know.
var ErrUnknownStage = errors.New("unknown import stage")

// Stage is a step of the import pipeline. Stages are totally ordered.
type Stage int

// Pipeline stages in execution order.
const (
	StageGitImport Stage = iota
	StageRewriteForeignHistory
	StageBookmarkMove
	StageDerivedDataBackfill
	StageMergeIntoDestination
	StagePushCommit
	StageDone
)

// stageNames are the record's on-disk values and must not change.
var stageNames = [...]string{
	StageGitImport:             "GitImport",
	StageRewriteForeignHistory: "RewriteForeignHistory",
	StageBookmarkMove:          "BookmarkMove",
	StageDerivedDataBackfill:   "DerivedDataBackfill",
	StageMergeIntoDestination:  "MergeIntoDestination",
	StagePushCommit:            "PushCommit",
	StageDone:                  "Done",
}

// Stages returns all stages in order.
func Stages() []Stage {
	out := make([]Stage, 0, len(stageNames))
	for s := StageGitImport; s <= StageDone; s++ {
		out = append(out, s)
	}

	return out
}

// ParseStage parses a stage name as written in the recovery record.
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownStage, name)
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	return s >= StageGitImport && s <= StageDone
}

// String returns the record name of the stage.
func (s Stage) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Stage(%d)", int(s))
	}

	return stageNames[s]
}

// Next returns the stage that follows s. Done is its own successor.
func (s Stage) Next() Stage {
	if s >= StageDone {
		return StageDone
	}

	return s + 1
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStage, int(s))
	}

	return []byte(stageNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stage) UnmarshalText(text []byte) error {
	parsed, err := ParseStage(string(text))
	if err != nil {
		return err
	}

	*s = parsed

	return nil
}
