// Package diff provides diff utilities used by the replace_in_file tool and
// the UI's diff-block rendering.
package diff

import (
	"fmt"
	"strings"

	diffmatchpatch "github.com/sergi/go-diff/diffmatchpatch"
)

// DiffType represents the type of diff line.
type DiffType int

const (
	DiffEqual DiffType = iota
	DiffInsert
	DiffDelete
)

// DiffLine represents a line in a diff.
type DiffLine struct {
	Type    DiffType
	Content string
}

var dmp = diffmatchpatch.New()

// Unified returns a unified-format diff between a and b.
func Unified(a, b string) string {
	diffs := dmp.DiffMain(a, b, true)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var b2 strings.Builder
	for _, d := range diffs {
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				fmt.Fprintf(&b2, "+%s", line)
			case diffmatchpatch.DiffDelete:
				fmt.Fprintf(&b2, "-%s", line)
			case diffmatchpatch.DiffEqual:
				fmt.Fprintf(&b2, " %s", line)
			}
		}
	}
	return b2.String()
}

// Lines returns a line-by-line diff between a and b.
func Lines(a, b string) []DiffLine {
	diffs := dmp.DiffMain(a, b, true)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var out []DiffLine
	for _, d := range diffs {
		lines := strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n")
		for _, content := range lines {
			var t DiffType
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				t = DiffInsert
			case diffmatchpatch.DiffDelete:
				t = DiffDelete
			default:
				t = DiffEqual
			}
			out = append(out, DiffLine{Type: t, Content: content})
		}
	}
	return out
}

// GenerateDiff generates a unified diff between old and new content, along
// with their line counts, for the replace_in_file tool's diff block (spec
// §4.3 supplement: edit tools render a diff, not just new content).
func GenerateDiff(old, newContent, filename string) (diffText string, oldLines, newLines int) {
	if old == newContent {
		return "", strings.Count(old, "\n") + 1, strings.Count(newContent, "\n") + 1
	}
	patches := dmp.PatchMake(old, dmp.DiffMain(old, newContent, true))
	header := fmt.Sprintf("--- %s\n+++ %s\n", filename, filename)
	return header + dmp.PatchToText(patches), strings.Count(old, "\n") + 1, strings.Count(newContent, "\n") + 1
}
