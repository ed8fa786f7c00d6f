// Package fsext provides the filesystem helpers used to build and refresh
// WorkingMemory.FileTrees: directory walking, path prettification, and a
// lightweight Tree type the list_directory tool and session restore share.
package fsext

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// PrettyPath collapses the user's home directory to "~" for display.
func PrettyPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + strings.TrimPrefix(path, home)
	}
	return path
}

// defaultExcludes are directories never walked into when building a Tree.
var defaultExcludes = map[string]bool{
	".git":         true,
	"node_modules": true,
	".venv":        true,
}

// Node is one entry in a project's file tree.
type Node struct {
	Name     string
	Path     string
	IsDir    bool
	Children []*Node
}

// Tree is the root of a project's scanned file tree, as stored in
// WorkingMemory.FileTrees.
type Tree struct {
	ProjectName string
	Root        *Node
	Truncated   bool
}

// BuildTree walks root up to maxDepth levels deep, capping the total number
// of entries at limit. It never descends into defaultExcludes directories.
func BuildTree(projectName, root string, maxDepth, limit int) (*Tree, error) {
	if maxDepth <= 0 {
		maxDepth = 5
	}
	if limit <= 0 {
		limit = 2000
	}
	count := 0
	truncated := false
	rootNode := &Node{Name: filepath.Base(root), Path: root, IsDir: true}
	if err := walk(rootNode, maxDepth, 0, limit, &count, &truncated); err != nil {
		return nil, err
	}
	return &Tree{ProjectName: projectName, Root: rootNode, Truncated: truncated}, nil
}

func walk(node *Node, maxDepth, depth, limit int, count *int, truncated *bool) error {
	if depth >= maxDepth {
		return nil
	}
	entries, err := os.ReadDir(node.Path)
	if err != nil {
		return nil // unreadable subtree: skip, not fatal for the whole scan
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		if *count >= limit {
			*truncated = true
			return nil
		}
		if e.IsDir() && defaultExcludes[e.Name()] {
			continue
		}
		child := &Node{
			Name:  e.Name(),
			Path:  filepath.Join(node.Path, e.Name()),
			IsDir: e.IsDir(),
		}
		node.Children = append(node.Children, child)
		*count++
		if e.IsDir() {
			if err := walk(child, maxDepth, depth+1, limit, count, truncated); err != nil {
				return err
			}
		}
	}
	return nil
}

// Paths flattens a Tree into a list of its file paths, each including the
// root directory the tree was built from, used by search_files as a
// fallback candidate set for fuzzy ranking.
func (t *Tree) Paths() []string {
	var out []string
	var visit func(n *Node)
	visit = func(n *Node) {
		if !n.IsDir {
			out = append(out, n.Path)
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	visit(t.Root)
	return out
}

// Entry is one direct child of a listed directory.
type Entry struct {
	Name  string
	IsDir bool
}

// ListDirectory lists the immediate children of path, directories first
// then files, both alphabetically — the single-level counterpart to
// BuildTree's recursive scan, used by the list_directory tool.
func ListDirectory(path string) ([]Entry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, Entry{Name: e.Name(), IsDir: e.IsDir()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDir != out[j].IsDir {
			return out[i].IsDir
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// RenderListing formats entries the way the original explorer rendered an
// unexpanded directory listing: directories suffixed with "/ [...]", a "├─ "
// connector for every entry but the last, which gets "└─ ".
func RenderListing(dirName string, entries []Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s/\n", dirName)
	for i, e := range entries {
		connector := "├─ "
		if i == len(entries)-1 {
			connector = "└─ "
		}
		if e.IsDir {
			fmt.Fprintf(&b, "%s%s/ [...]\n", connector, e.Name)
		} else {
			fmt.Fprintf(&b, "%s%s\n", connector, e.Name)
		}
	}
	return b.String()
}
