package commands_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/gitgraft/cmd/gitgraft/commands"
	"github.com/Sumatoshi-tech/gitgraft/pkg/recovery"
)

func TestRootCommand_Tree(t *testing.T) {
	t.Parallel()

	root, err := commands.NewRootCommand()
	require.NoError(t, err)

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}

	for _, want := range []string{"init", "recover-process", "status", "validate", "mcp", "version"} {
		assert.Contains(t, names, want)
	}

	for _, flag := range []string{"config", "log-level", "log-json", "otlp-endpoint", "metrics-addr"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestRootCommand_Version(t *testing.T) {
	t.Parallel()

	root, err := commands.NewRootCommand()
	require.NoError(t, err)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "gitgraft dev")
}

func TestOptions_FlagsOverrideConfigFile(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "gitgraft.yaml")
	require.NoError(t, os.WriteFile(file, []byte("logging:\n  level: warn\nimport:\n  workers: 2\n"), 0o600))

	opts := commands.NewOptions()
	root := &cobra.Command{Use: "test"}
	require.NoError(t, opts.Bind(root))

	require.NoError(t, root.PersistentFlags().Set("config", file))
	require.NoError(t, root.PersistentFlags().Set("log-level", "debug"))

	cfg, err := opts.Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 2, cfg.Import.Workers)
}

func TestValidateCommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	record := filepath.Join(dir, "import.json")

	opts := &commands.InitOptions{
		ForeignRepo:    "/srv/lib.git",
		DestPath:       "lib",
		DestBookmark:   "main",
		BookmarkSuffix: "lib",
		BatchSize:      10,
		CommitAuthor:   "gitgraft",
	}
	require.NoError(t, opts.Run(record, &bytes.Buffer{}))

	var out bytes.Buffer

	cmd := commands.NewValidateCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{record})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "is valid (stage GitImport)")

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{"import_stage":"GitImport"}`), 0o600))

	cmd = commands.NewValidateCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{broken})
	require.ErrorIs(t, cmd.Execute(), recovery.ErrInvalidRecord)
}
