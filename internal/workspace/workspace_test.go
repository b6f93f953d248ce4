package workspace

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewSessionWorkspaceCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, 2, testLogger())

	path, err := m.NewSessionWorkspace("sess-1")
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, filepath.Join(dir, "sessions", "sess-1"), path)
}

func TestDestroySessionWorkspaceRemovesDirectory(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, 2, testLogger())

	path, err := m.NewSessionWorkspace("sess-2")
	require.NoError(t, err)

	require.NoError(t, m.DestroySessionWorkspace("sess-2"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDestroySessionWorkspaceMissingIsNotError(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, 2, testLogger())
	assert.NoError(t, m.DestroySessionWorkspace("never-existed"))
}

func TestBaseWorkspaceAbsentBeforeProvisioning(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, 2, testLogger())

	_, ok := m.BaseWorkspace("python")
	assert.False(t, ok)
	assert.Equal(t, StatusPending, m.LanguageStatus("python"))
}

func TestSweepStaleWorkspacesRemovesOldDirs(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, 2, testLogger())

	oldPath, err := m.NewSessionWorkspace("old-session")
	require.NoError(t, err)
	freshPath, err := m.NewSessionWorkspace("fresh-session")
	require.NoError(t, err)

	oldTime := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, oldTime, oldTime))

	removed, err := m.SweepStaleWorkspaces(24 * time.Hour)
	require.NoError(t, err)
	assert.Contains(t, removed, "old-session")
	assert.NotContains(t, removed, "fresh-session")

	_, err = os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(freshPath)
	assert.NoError(t, err)
}

func TestSweepStaleWorkspacesNoSessionsRootIsNotError(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, 2, testLogger())

	removed, err := m.SweepStaleWorkspaces(time.Hour)
	require.NoError(t, err)
	assert.Empty(t, removed)
}
