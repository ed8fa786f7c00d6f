package builtin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgekit/forge-agent/pkg/tools"
)

func TestReadFile_Success(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))

	res, err := NewReadFileHandler(dir)(context.Background(), "tc1", map[string]any{"path": "a.txt"})
	require.NoError(t, err)
	assert.True(t, res.IsSuccess())
	assert.Equal(t, "hello", res.Render(nil))
}

func TestReadFile_RejectsEscape(t *testing.T) {
	dir := t.TempDir()
	res, err := NewReadFileHandler(dir)(context.Background(), "tc1", map[string]any{"path": "../../etc/passwd"})
	require.NoError(t, err)
	assert.False(t, res.IsSuccess())
}

func TestReadFile_DedupsViaTracker(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	handler := NewReadFileHandler(dir)

	first, err := handler(context.Background(), "tc-new", map[string]any{"path": "a.txt"})
	require.NoError(t, err)
	second, err := handler(context.Background(), "tc-old", map[string]any{"path": "a.txt"})
	require.NoError(t, err)

	tracker := tools.NewResourcesTracker()
	// Newest-first iteration order per spec §4.5.
	assert.Equal(t, "hello", first.Render(tracker))
	assert.Contains(t, second.Render(tracker), "omitted")
}

func TestWriteFile_CreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	res, err := NewWriteFileHandler(dir)(context.Background(), "tc1", map[string]any{
		"path": "nested/dir/b.txt", "content": "data",
	})
	require.NoError(t, err)
	assert.True(t, res.IsSuccess())

	got, err := os.ReadFile(filepath.Join(dir, "nested", "dir", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))
}

func TestReplaceInFile_RequiresUniqueMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.txt")
	require.NoError(t, os.WriteFile(path, []byte("foo bar foo"), 0o644))

	res, err := NewReplaceInFileHandler(dir)(context.Background(), "tc1", map[string]any{
		"path": "c.txt", "old_text": "foo", "new_text": "baz",
	})
	require.NoError(t, err)
	assert.False(t, res.IsSuccess())
}

func TestReplaceInFile_ReplacesAndDiffs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.txt")
	require.NoError(t, os.WriteFile(path, []byte("line one\nline two\n"), 0o644))

	res, err := NewReplaceInFileHandler(dir)(context.Background(), "tc1", map[string]any{
		"path": "c.txt", "old_text": "line one", "new_text": "line ONE",
	})
	require.NoError(t, err)
	require.True(t, res.IsSuccess())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line ONE\nline two\n", string(got))
	assert.Contains(t, res.Render(nil), "c.txt")
}

func TestSearchFiles_FindsMatches(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("// TODO: fix\nfunc main() {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.go"), []byte("func other() {}\n"), 0o644))

	res, err := NewSearchFilesHandler(dir)(context.Background(), "tc1", map[string]any{
		"project": "", "regex": "TODO",
	})
	require.NoError(t, err)
	assert.True(t, res.IsSuccess())
	assert.Contains(t, res.Render(nil), "a.go")
}

func TestListDirectory_ListsChildrenNotExpanded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.txt"), []byte("x"), 0o644))

	res, err := NewListDirectoryHandler(dir)(context.Background(), "tc1", map[string]any{"path": ""})
	require.NoError(t, err)
	body := res.Render(nil)
	assert.Contains(t, body, "sub/ [...]")
	assert.Contains(t, body, "file.txt")
}

type fakeSpawner struct {
	lastTask     string
	lastReadOnly bool
	summary      string
}

func (f *fakeSpawner) Spawn(_ context.Context, task string, readOnly bool) (string, error) {
	f.lastTask, f.lastReadOnly = task, readOnly
	return f.summary, nil
}

func TestSpawnAgent_DelegatesToSpawner(t *testing.T) {
	spawner := &fakeSpawner{summary: "done"}
	res, err := NewSpawnAgentHandler(spawner)(context.Background(), "tc1", map[string]any{
		"task": "investigate", "mode": "read_only",
	})
	require.NoError(t, err)
	assert.True(t, res.IsSuccess())
	assert.Equal(t, "done", res.Render(nil))
	assert.True(t, spawner.lastReadOnly)
	assert.Equal(t, "investigate", spawner.lastTask)
}

func TestCompleteTask_CarriesSummary(t *testing.T) {
	res, err := NewCompleteTaskHandler()(context.Background(), "tc1", map[string]any{"summary": "all done"})
	require.NoError(t, err)
	assert.Equal(t, "all done", res.Render(nil))
}
