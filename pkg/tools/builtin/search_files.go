package builtin

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/forgekit/forge-agent/internal/fsext"
	"github.com/forgekit/forge-agent/pkg/tools"
)

// maxRegexHits caps how many regex matches are rendered in full before the
// tool falls back to a ranked list of the most relevant file paths instead
// (grounded on the teacher's fuzzy-matching file picker, internal/filepicker,
// applied here to search results rather than interactive file selection).
const maxRegexHits = 200

// SearchFilesSpec declares search_files: a regex content search scoped to a
// named project directory.
func SearchFilesSpec() tools.Spec {
	return tools.Spec{
		Name:        "search_files",
		Description: "Searches file contents within a project directory for a regular expression, returning matching lines with file path and line number.",
		ParametersSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"project": map[string]any{"type": "string", "description": "Project-relative subdirectory to search, or \"\" for the workspace root."},
				"regex":   map[string]any{"type": "string", "description": "Regular expression to match against each line."},
			},
			"required": []string{"project", "regex"},
		},
		SupportedScopes: []tools.Scope{
			tools.ScopeAgent, tools.ScopeAgentWithDiffBlocks,
			tools.ScopeSubAgentReadOnly, tools.ScopeSubAgentDefault,
		},
	}
}

type searchHit struct {
	path string
	line int
	text string
}

// NewSearchFilesHandler returns a Handler rooted at baseDir.
func NewSearchFilesHandler(baseDir string) tools.Handler {
	return func(_ context.Context, toolCallID string, input map[string]any) (tools.Result, error) {
		project, _ := input["project"].(string)
		pattern, _ := input["regex"].(string)
		if pattern == "" {
			return errResult("search_files: \"regex\" is required")
		}

		re, err := regexp.Compile(pattern)
		if err != nil {
			return errResult("search_files: invalid regex: %v", err)
		}

		root, err := resolveInBase(baseDir, project)
		if err != nil {
			return errResult("search_files: %v", err)
		}

		tree, err := fsext.BuildTree(project, root, 20, 20000)
		if err != nil {
			return errResult("search_files: %v", err)
		}
		paths := tree.Paths()

		var hits []searchHit
		matchedPaths := make(map[string]bool)
		for _, p := range paths {
			fileHits := grepFile(p, re)
			if len(fileHits) > 0 {
				matchedPaths[p] = true
				hits = append(hits, fileHits...)
			}
			if len(hits) > maxRegexHits {
				break
			}
		}

		if len(hits) <= maxRegexHits {
			return textResult{
				success:    true,
				body:       renderHits(hits),
				toolCallID: toolCallID,
				statusLine: fmt.Sprintf("Found %d match(es) for %q", len(hits), pattern),
			}, nil
		}

		// Too many line hits to render: rank the matched files by fuzzy
		// relevance to the pattern text and return the top ones instead.
		ranked := rankPaths(pattern, keys(matchedPaths))
		return textResult{
			success:    true,
			body:       renderRankedPaths(pattern, len(hits), ranked),
			toolCallID: toolCallID,
			statusLine: fmt.Sprintf("%d matches across %d files; showing top %d files", len(hits), len(matchedPaths), len(ranked)),
		}, nil
	}
}

func grepFile(path string, re *regexp.Regexp) []searchHit {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var hits []searchHit
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if re.MatchString(line) {
			hits = append(hits, searchHit{path: path, line: lineNo, text: line})
		}
	}
	return hits
}

func renderHits(hits []searchHit) string {
	if len(hits) == 0 {
		return "No matches found."
	}
	var b strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&b, "%s:%d: %s\n", h.path, h.line, h.text)
	}
	return b.String()
}

func rankPaths(pattern string, paths []string) []string {
	top := fuzzy.Find(pattern, paths) // already sorted by Score descending
	if len(top) > 20 {
		top = top[:20]
	}
	out := make([]string, len(top))
	for i, m := range top {
		out[i] = m.Str
	}
	return out
}

func renderRankedPaths(pattern string, totalHits int, ranked []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d matches for %q; too many to list individually. Most relevant files:\n", totalHits, pattern)
	for _, p := range ranked {
		fmt.Fprintf(&b, "- %s\n", filepath.Clean(p))
	}
	return b.String()
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
