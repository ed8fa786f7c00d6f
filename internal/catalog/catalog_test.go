package catalog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertAndListSessions(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	defer c.Close()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, c.UpsertSession("s1", "fix the bug", 0, now))
	require.NoError(t, c.UpsertSession("s2", "add feature", 1, now.Add(time.Hour)))

	sessions, err := c.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "s2", sessions[0].ID) // most recently updated first
	assert.Equal(t, "s1", sessions[1].ID)
}

func TestUpsertSession_UpdatesExistingRow(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	defer c.Close()

	now := time.Now()
	require.NoError(t, c.UpsertSession("s1", "first title", 0, now))
	require.NoError(t, c.UpsertSession("s1", "renamed", 3, now.Add(time.Minute)))

	sessions, err := c.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "renamed", sessions[0].TaskTitle)
	assert.Equal(t, 3, sessions[0].CompactionCount)
}

func TestRecordingsFor(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	defer c.Close()

	now := time.Now()
	require.NoError(t, c.UpsertSession("s1", "task", 0, now))
	require.NoError(t, c.RecordRecording("r1", "s1", "/recordings/r1.json", now))
	require.NoError(t, c.RecordRecording("r2", "s1", "/recordings/r2.json", now.Add(time.Second)))

	recs, err := c.RecordingsFor("s1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "r1", recs[0].ID)
	assert.Equal(t, "r2", recs[1].ID)
}
