package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/gitgraft/pkg/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".gitgraft.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig_EmptyFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultStorePath, cfg.Store.Path)
	assert.False(t, cfg.Store.InMemory)
	assert.Equal(t, config.DefaultBookmarksPath, cfg.Bookmarks.Path)
	assert.Equal(t, config.DefaultImportWorkers, cfg.Import.Workers)
	assert.Equal(t, config.DefaultRetryMaxAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, config.DefaultDerivedKinds(), cfg.Derived.Kinds)
	assert.Equal(t, config.DefaultLandMaxAttempts, cfg.Land.MaxAttempts)
	assert.Empty(t, cfg.Telemetry.OTLPEndpoint)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, `store:
  in_memory: true
  path: ""
bookmarks:
  path: /var/lib/gitgraft/bookmarks.db
import:
  workers: 2
derived:
  kinds: [manifest]
  max_attempts: 9
logging:
  level: debug
  json: true
telemetry:
  metrics_addr: "127.0.0.1:9464"
`))
	require.NoError(t, err)

	assert.True(t, cfg.Store.InMemory)
	assert.Equal(t, 2, cfg.Import.Workers)
	assert.Equal(t, []string{"manifest"}, cfg.Derived.Kinds)
	assert.Equal(t, 9, cfg.Derived.MaxAttempts)
	assert.True(t, cfg.Logging.JSON)
	assert.Equal(t, "127.0.0.1:9464", cfg.Telemetry.MetricsAddr)

	level, err := cfg.Logging.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	t.Setenv("GITGRAFT_IMPORT_WORKERS", "3")

	cfg, err := config.LoadConfig(writeConfig(t, "import:\n  workers: 5\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Import.Workers)
}

func TestLoadWith_FlagsWin(t *testing.T) {
	t.Parallel()

	v := viper.New()
	v.Set("logging.level", "warn")

	cfg, err := config.LoadWith(v, writeConfig(t, "logging:\n  level: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		target  error
	}{
		{"zero workers", "import:\n  workers: 0\n", config.ErrInvalidWorkers},
		{"zero attempts", "land:\n  max_attempts: 0\n", config.ErrInvalidAttempts},
		{"no store", "store:\n  path: \"\"\n", config.ErrMissingStorePath},
		{"bad level", "logging:\n  level: loud\n", config.ErrInvalidLogLevel},
		{"bad metrics addr", "telemetry:\n  metrics_addr: nope\n", config.ErrInvalidMetricsAddr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadConfig(writeConfig(t, tt.content))
			require.ErrorIs(t, err, tt.target)
		})
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(writeConfig(t, "store: [unclosed"))
	require.Error(t, err)
}
