package commands_test

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/gitgraft/cmd/gitgraft/commands"
	"github.com/Sumatoshi-tech/gitgraft/pkg/recovery"
)

func TestInitCommand_WritesFreshRecord(t *testing.T) {
	t.Parallel()

	record := filepath.Join(t.TempDir(), "import.json")

	cmd := commands.NewInitCommand()
	cmd.SetArgs([]string{record,
		"--foreign-repo", "/srv/lib.git",
		"--dest-path", "third_party/lib",
		"--bookmark-suffix", "lib",
		"--batch-size", "3",
		"--sleep", "2s",
		"--disable-phab-check",
	})

	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "gitgraft recover-process "+record)

	state, err := recovery.NewStore().Load(record)
	require.NoError(t, err)

	assert.Equal(t, recovery.StageGitImport, state.ImportStage)
	assert.Equal(t, 3, state.BatchSize)
	assert.Equal(t, "main", state.DestBookmarkName)
	assert.Equal(t, "repo_import_lib", state.AliasBookmark())
	assert.Equal(t, "Import lib into third_party/lib", state.CommitMessage)
	assert.Equal(t, 2*time.Second, state.SleepTime.Std())
	assert.True(t, state.PhabCheckDisabled)
	assert.Equal(t, record, state.RecoveryFilePath)
}

func TestInitCommand_RefusesToOverwrite(t *testing.T) {
	t.Parallel()

	record := filepath.Join(t.TempDir(), "import.json")
	opts := &commands.InitOptions{
		ForeignRepo:    "/srv/lib.git",
		DestPath:       "lib",
		DestBookmark:   "main",
		BookmarkSuffix: "lib",
		BatchSize:      10,
		CommitAuthor:   "gitgraft",
	}

	var out bytes.Buffer

	require.NoError(t, opts.Run(record, &out))
	require.ErrorIs(t, opts.Run(record, &out), commands.ErrRecordExists)

	opts.Force = true
	require.NoError(t, opts.Run(record, &out))
}

func TestInitOptions_RejectsInvalidRecords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*commands.InitOptions)
	}{
		{"escaping dest path", func(o *commands.InitOptions) { o.DestPath = "../up" }},
		{"zero batch", func(o *commands.InitOptions) { o.BatchSize = 0 }},
		{"bad changeset id", func(o *commands.InitOptions) { o.GitMergeChangeset = "nothex" }},
		{"space in suffix", func(o *commands.InitOptions) { o.BookmarkSuffix = "my lib" }},
		{"empty author", func(o *commands.InitOptions) { o.CommitAuthor = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opts := &commands.InitOptions{
				ForeignRepo:    "/srv/lib.git",
				DestPath:       "lib",
				DestBookmark:   "main",
				BookmarkSuffix: "lib",
				BatchSize:      10,
				CommitAuthor:   "gitgraft",
			}
			tt.mutate(opts)

			_, err := opts.State(filepath.Join(t.TempDir(), "import.json"))
			require.Error(t, err)
		})
	}
}
