package recovery_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/gitgraft/pkg/changeset"
	"github.com/Sumatoshi-tech/gitgraft/pkg/recovery"
)

func newState(path string) *recovery.State {
	return &recovery.State{
		ImportStage:      recovery.StageGitImport,
		BatchSize:        3,
		BookmarkSuffix:   "thirdparty",
		CommitAuthor:     "importer <importer@example.com>",
		CommitMessage:    "Merge thirdparty history",
		Datetime:         time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		DestBookmarkName: "main",
		DestPath:         "third_party/lib",
		ForeignRepoPath:  "/srv/lib.git",
		RecoveryFilePath: path,
		SleepTime:        recovery.Duration(5 * time.Second),
	}
}

func TestStage_Names(t *testing.T) {
	t.Parallel()

	want := []string{
		"GitImport", "RewriteForeignHistory", "BookmarkMove", "DerivedDataBackfill",
		"MergeIntoDestination", "PushCommit", "Done",
	}

	stages := recovery.Stages()
	require.Len(t, stages, len(want))

	for i, s := range stages {
		assert.Equal(t, want[i], s.String())

		parsed, err := recovery.ParseStage(want[i])
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
}

func TestStage_NextIsMonotonic(t *testing.T) {
	t.Parallel()

	for _, s := range recovery.Stages() {
		assert.GreaterOrEqual(t, s.Next(), s)
	}

	assert.Equal(t, recovery.StageDone, recovery.StageDone.Next())
	assert.Equal(t, recovery.StageRewriteForeignHistory, recovery.StageGitImport.Next())
}

func TestStage_Unknown(t *testing.T) {
	t.Parallel()

	_, err := recovery.ParseStage("Teleport")
	require.ErrorIs(t, err, recovery.ErrUnknownStage)

	_, err = recovery.Stage(42).MarshalText()
	require.ErrorIs(t, err, recovery.ErrUnknownStage)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "import.json")
	store := recovery.NewStore()

	shifted := []changeset.ID{changeset.ContentID([]byte("1")), changeset.ContentID([]byte("2"))}
	imported := changeset.ContentID([]byte("imported"))
	merged := changeset.ContentID([]byte("merged"))

	state := newState(path)
	state.ImportStage = recovery.StagePushCommit
	state.ImportedForeignIDs = []string{"aaa", "bbb"}
	state.ImportedChangesetID = &imported
	state.ShiftedChangesetIDs = shifted
	state.MoveBookmarkCommitsDone = 2
	state.MergedChangesetID = &merged

	require.NoError(t, store.Save(path, state))

	loaded, err := store.Load(path)
	require.NoError(t, err)
	assert.Equal(t, state, loaded)
}

func TestStore_RecordUsesSnakeCaseKeysAndStageNames(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "import.json")
	require.NoError(t, recovery.NewStore().Save(path, newState(path)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, "GitImport", raw["import_stage"])
	assert.Equal(t, "5s", raw["sleep_time"])
	assert.Contains(t, raw, "move_bookmark_commits_done")
	assert.Contains(t, raw, "x_repo_check_disabled")
	assert.NotContains(t, raw, "merged_changeset_id", "later-stage fields stay unset")
}

func TestStore_LoadMissing(t *testing.T) {
	t.Parallel()

	_, err := recovery.NewStore().Load(filepath.Join(t.TempDir(), "nope.json"))
	require.ErrorIs(t, err, recovery.ErrNotFound)
}

func TestStore_LoadRejectsMalformedRecords(t *testing.T) {
	t.Parallel()

	base := func() map[string]any {
		return map[string]any{
			"import_stage":               "GitImport",
			"batch_size":                 3,
			"bookmark_suffix":            "thirdparty",
			"commit_author":              "a",
			"commit_message":             "m",
			"datetime":                   "2024-05-01T12:00:00Z",
			"dest_bookmark_name":         "main",
			"dest_path":                  "third_party/lib",
			"foreign_repo_path":          "/srv/lib.git",
			"move_bookmark_commits_done": 0,
			"recovery_file_path":         "",
			"sleep_time":                 "0s",
		}
	}

	tests := []struct {
		name   string
		mutate func(map[string]any)
		target error
	}{
		{"unknown stage", func(m map[string]any) { m["import_stage"] = "Teleport" }, recovery.ErrUnknownStage},
		{"zero batch", func(m map[string]any) { m["batch_size"] = 0 }, recovery.ErrInvalidRecord},
		{"unknown field", func(m map[string]any) { m["surprise"] = true }, recovery.ErrInvalidRecord},
		{"missing dest", func(m map[string]any) { delete(m, "dest_path") }, recovery.ErrInvalidRecord},
		{"escaping dest", func(m map[string]any) { m["dest_path"] = "../outside" }, recovery.ErrInvalidRecord},
		{"bad duration", func(m map[string]any) { m["sleep_time"] = "soon" }, recovery.ErrInvalidRecord},
		{"bad id", func(m map[string]any) { m["merged_changeset_id"] = "xyz" }, recovery.ErrInvalidRecord},
		{"cursor past shifted", func(m map[string]any) {
			m["import_stage"] = "BookmarkMove"
			m["move_bookmark_commits_done"] = 4
		}, recovery.ErrInvalidRecord},
		{"push without merge", func(m map[string]any) {
			m["import_stage"] = "PushCommit"
		}, recovery.ErrInvalidRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doc := base()
			tt.mutate(doc)

			data, err := json.Marshal(doc)
			require.NoError(t, err)

			path := filepath.Join(t.TempDir(), "import.json")
			require.NoError(t, os.WriteFile(path, data, 0o600))

			_, err = recovery.NewStore().Load(path)
			require.ErrorIs(t, err, tt.target)
		})
	}
}

func TestStore_SaveRefusesInvalidState(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "import.json")
	store := recovery.NewStore()

	require.NoError(t, store.Save(path, newState(path)))

	bad := newState(path)
	bad.BatchSize = 0

	require.ErrorIs(t, store.Save(path, bad), recovery.ErrInvalidRecord)

	loaded, err := store.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.BatchSize, "previous record must survive a refused save")
}

func TestStore_SaveRejectsWhatLoadWouldReject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*recovery.State)
	}{
		{"space in suffix", func(s *recovery.State) { s.BookmarkSuffix = "my lib" }},
		{"empty author", func(s *recovery.State) { s.CommitAuthor = "" }},
		{"empty foreign id", func(s *recovery.State) { s.ImportedForeignIDs = []string{"aaa", ""} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "import.json")
			store := recovery.NewStore()

			require.NoError(t, store.Save(path, newState(path)))

			bad := newState(path)
			tt.mutate(bad)

			require.ErrorIs(t, store.Save(path, bad), recovery.ErrInvalidRecord)

			loaded, err := store.Load(path)
			require.NoError(t, err)
			assert.Equal(t, newState(path), loaded)
		})
	}
}

func TestStore_SavedRecordsAlwaysLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "import.json")
	store := recovery.NewStore()

	state := newState(path)
	state.BookmarkSuffix = "vendor/lib-2.x_final"
	state.CommitMessage = ""
	state.SleepTime = 0

	require.NoError(t, store.Save(path, state))

	loaded, err := store.Load(path)
	require.NoError(t, err)
	assert.Equal(t, state, loaded)
}

func TestState_CloneIsDeep(t *testing.T) {
	t.Parallel()

	id := changeset.ContentID([]byte("x"))
	state := newState("")
	state.ImportedForeignIDs = []string{"a"}
	state.GitMergeChangesetID = &id

	clone := state.Clone()
	clone.ImportedForeignIDs[0] = "b"
	clone.GitMergeChangesetID[0] = 0xff

	assert.Equal(t, "a", state.ImportedForeignIDs[0])
	assert.Equal(t, id, *state.GitMergeChangesetID)
}

func TestState_AliasBookmark(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "repo_import_thirdparty", newState("").AliasBookmark())
}

func TestState_Summarize(t *testing.T) {
	t.Parallel()

	merged := changeset.ContentID([]byte("merged"))

	state := newState("")
	state.ImportStage = recovery.StagePushCommit
	state.ImportedForeignIDs = []string{"a", "b", "c"}
	state.ShiftedChangesetIDs = []changeset.ID{changeset.ContentID([]byte("1"))}
	state.MoveBookmarkCommitsDone = 1
	state.MergedChangesetID = &merged
	state.PhabCheckDisabled = true

	sum := state.Summarize()

	assert.Equal(t, "PushCommit", sum.Stage)
	assert.Equal(t, 5, sum.StageIndex)
	assert.Equal(t, 7, sum.StageCount)
	assert.False(t, sum.Done)
	assert.Equal(t, 3, sum.Imported)
	assert.Equal(t, 1, sum.Shifted)
	assert.Equal(t, "repo_import_thirdparty", sum.AliasBookmark)
	assert.Equal(t, merged.String(), sum.MergedChangeset)
	assert.Empty(t, sum.ImportedTip)
	assert.Equal(t, []string{"phabricator"}, sum.Checks)
}
