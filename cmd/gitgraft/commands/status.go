package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/gitgraft/pkg/recovery"
)

// ErrUnknownFormat is returned for an unsupported --format value.
var ErrUnknownFormat = errors.New("unknown output format")

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	var (
		format  string
		noColor bool
	)

	cmd := &cobra.Command{
		Use:           "status <record>",
		Short:         "Show the progress recorded in a recovery record",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if noColor {
				color.NoColor = true //nolint:reassign // intentional override of library global
			}

			state, err := recovery.NewStore().Load(args[0])
			if err != nil {
				return err
			}

			return RenderStatus(cmd.OutOrStdout(), state.Summarize(), format, time.Now())
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", FormatTable, "output format: table, json, yaml")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")

	return cmd
}

// RenderStatus writes sum to w in the given format. now anchors relative ages.
func RenderStatus(w io.Writer, sum recovery.Summary, format string, now time.Time) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(sum)
	case FormatYAML:
		enc := yaml.NewEncoder(w)

		err := enc.Encode(sum)
		if err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}

		return enc.Close()
	case FormatTable:
		renderStatusTable(w, sum, now)

		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func renderStatusTable(w io.Writer, sum recovery.Summary, now time.Time) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false

	tbl.AppendRow(table.Row{"stage", stageColor(sum).Sprintf("%s (%d/%d)", sum.Stage, sum.StageIndex+1, sum.StageCount)})
	tbl.AppendRow(table.Row{"foreign repo", sum.ForeignRepo})
	tbl.AppendRow(table.Row{"destination", sum.DestBookmark + ":" + sum.DestPath})
	tbl.AppendRow(table.Row{"alias bookmark", sum.AliasBookmark})
	tbl.AppendRow(table.Row{"batch size", humanize.Comma(int64(sum.BatchSize))})
	tbl.AppendSeparator()
	tbl.AppendRow(table.Row{"imported", humanize.Comma(int64(sum.Imported))})
	tbl.AppendRow(table.Row{"shifted", progress(sum.Shifted, sum.Imported)})
	tbl.AppendRow(table.Row{"bookmark moved", progress(sum.BookmarkMoved, sum.Shifted)})

	if sum.ImportedTip != "" {
		tbl.AppendRow(table.Row{"imported tip", sum.ImportedTip})
	}

	if sum.MergedChangeset != "" {
		tbl.AppendRow(table.Row{"merge", sum.MergedChangeset})
	}

	if len(sum.Checks) > 0 {
		tbl.AppendRow(table.Row{"skipped checks", strings.Join(sum.Checks, ", ")})
	}

	tbl.AppendSeparator()
	tbl.AppendRow(table.Row{"started", humanize.RelTime(sum.Started, now, "ago", "from now")})

	tbl.Render()
}

func progress(done, total int) string {
	if total == 0 {
		return humanize.Comma(int64(done))
	}

	return fmt.Sprintf("%s of %s", humanize.Comma(int64(done)), humanize.Comma(int64(total)))
}

func stageColor(sum recovery.Summary) *color.Color {
	switch {
	case sum.Done:
		return color.New(color.FgGreen)
	case sum.StageIndex == 0 && sum.Imported == 0:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgYellow)
	}
}
