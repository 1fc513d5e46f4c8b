package land

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Sumatoshi-tech/gitgraft/pkg/derived"
	"github.com/Sumatoshi-tech/gitgraft/pkg/textutil"
)

// report renders the first few conflicts as line diffs, destination to import.
func (c *Checker) report(ctx context.Context, conflicts []Conflict) string {
	var b strings.Builder

	for i, conflict := range conflicts {
		if i == maxReportedConflicts {
			fmt.Fprintf(&b, "... and %d more\n", len(conflicts)-i)

			break
		}

		if conflict.Ancestor {
			fmt.Fprintf(&b, "%s: file at destination where the import needs a directory\n", conflict.Path)

			continue
		}

		if conflict.Imported == nil {
			fmt.Fprintf(&b, "%s: present at destination, missing from import\n", conflict.Path)

			continue
		}

		if conflict.Dest.ContentID == conflict.Imported.ContentID {
			fmt.Fprintf(&b, "%s: mode %s at destination, %s in import\n", conflict.Path, conflict.Dest.Mode, conflict.Imported.Mode)

			continue
		}

		fmt.Fprintf(&b, "%s:\n", conflict.Path)

		diff, err := c.lineDiff(ctx, conflict.Dest, conflict.Imported)
		if err != nil {
			fmt.Fprintf(&b, "  (content unavailable: %v)\n", err)

			continue
		}

		b.WriteString(diff)
	}

	return strings.TrimRight(b.String(), "\n")
}

func (c *Checker) lineDiff(ctx context.Context, dest, imported *derived.Entry) (string, error) {
	if c.contents == nil {
		return fmt.Sprintf("  content %s at destination, %s in import\n",
			dest.ContentID.Short(), imported.ContentID.Short()), nil
	}

	before, err := c.contents.ReadContent(ctx, dest.ContentID)
	if err != nil {
		return "", err
	}

	after, err := c.contents.ReadContent(ctx, imported.ContentID)
	if err != nil {
		return "", err
	}

	if textutil.IsBinary(before) || textutil.IsBinary(after) {
		return fmt.Sprintf("  binary content differs (%s at destination, %s in import)\n",
			humanize.IBytes(uint64(len(before))), humanize.IBytes(uint64(len(after)))), nil
	}

	return RenderLineDiff(string(before), string(after)), nil
}

// RenderLineDiff returns a +/- line diff of before and after, omitting unchanged lines.
func RenderLineDiff(before, after string) string {
	dmp := diffmatchpatch.New()
	src, dst, lines := dmp.DiffLinesToRunes(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMainRunes(src, dst, false), lines)

	var b strings.Builder

	for _, d := range diffs {
		var marker string

		switch d.Type {
		case diffmatchpatch.DiffDelete:
			marker = "  -"
		case diffmatchpatch.DiffInsert:
			marker = "  +"
		case diffmatchpatch.DiffEqual:
			continue
		}

		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}

			b.WriteString(marker)
			b.WriteString(strings.TrimSuffix(line, "\n"))
			b.WriteString("\n")
		}
	}

	return b.String()
}
