package commands_test

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/gitgraft/cmd/gitgraft/commands"
	"github.com/Sumatoshi-tech/gitgraft/pkg/recovery"
)

func init() {
	color.NoColor = true //nolint:reassign // deterministic test output
}

func sampleSummary() recovery.Summary {
	return recovery.Summary{
		Stage:         "BookmarkMove",
		StageIndex:    2,
		StageCount:    7,
		ForeignRepo:   "/srv/lib.git",
		DestBookmark:  "main",
		DestPath:      "third_party/lib",
		AliasBookmark: "repo_import_lib",
		BatchSize:     1000,
		Imported:      12345,
		Shifted:       12345,
		BookmarkMoved: 3000,
		Started:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Checks:        []string{"hg_sync"},
	}
}

func TestRenderStatus_Table(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	now := time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)
	require.NoError(t, commands.RenderStatus(&out, sampleSummary(), commands.FormatTable, now))

	text := out.String()
	assert.Contains(t, text, "BookmarkMove (3/7)")
	assert.Contains(t, text, "main:third_party/lib")
	assert.Contains(t, text, "12,345")
	assert.Contains(t, text, "3,000 of 12,345")
	assert.Contains(t, text, "2 hours ago")
	assert.Contains(t, text, "hg_sync")
}

func TestRenderStatus_JSONAndYAML(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	require.NoError(t, commands.RenderStatus(&out, sampleSummary(), commands.FormatJSON, time.Now()))

	var fromJSON recovery.Summary
	require.NoError(t, json.Unmarshal(out.Bytes(), &fromJSON))
	assert.Equal(t, sampleSummary(), fromJSON)

	out.Reset()
	require.NoError(t, commands.RenderStatus(&out, sampleSummary(), commands.FormatYAML, time.Now()))

	var fromYAML map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &fromYAML))
	assert.Equal(t, "BookmarkMove", fromYAML["stage"])
	assert.Equal(t, 3000, fromYAML["bookmark_moved"])
}

func TestRenderStatus_UnknownFormat(t *testing.T) {
	t.Parallel()

	err := commands.RenderStatus(&bytes.Buffer{}, sampleSummary(), "xml", time.Now())
	require.ErrorIs(t, err, commands.ErrUnknownFormat)
}
