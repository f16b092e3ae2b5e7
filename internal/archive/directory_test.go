package archive_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tmskss/portfolio-health-report/internal/archive"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadDirectoryExcludesColleagueFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b_thread.txt", "From: a\nTo: b\nDate: d\nSubject: s\n\nbody")
	writeFile(t, dir, "a_thread.txt", "Subject: s\nFrom: a\nTo: b\nDate: d\n\nbody")
	writeFile(t, dir, "Colleagues.txt", "Alice - PM\nBob - Dev")
	writeFile(t, dir, ".DS_Store", "junk")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	got, err := archive.LoadDirectory(dir, "Colleagues.txt")
	require.NoError(t, err)

	require.Equal(t, "Alice - PM\nBob - Dev", got.Colleagues)
	require.Len(t, got.Files, 2)
	require.Equal(t, "a_thread.txt", got.Files[0].Name)
	require.Equal(t, "b_thread.txt", got.Files[1].Name)
}

func TestLoadDirectoryWithoutColleagueFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "thread.txt", "From: a\nTo: b\nDate: d\nSubject: s\n\nbody")

	got, err := archive.LoadDirectory(dir, "Colleagues.txt")
	require.NoError(t, err)
	require.Empty(t, got.Colleagues)
	require.Len(t, got.Files, 1)
}

func TestLoadDirectoryMissing(t *testing.T) {
	_, err := archive.LoadDirectory(filepath.Join(t.TempDir(), "absent"), "Colleagues.txt")
	require.ErrorIs(t, err, archive.ErrDirectory)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadDirectoryRejectsInvalidUTF8(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.txt", string([]byte{0xff, 0xfe, 0xfd}))

	_, err := archive.LoadDirectory(dir, "Colleagues.txt")
	require.ErrorIs(t, err, archive.ErrDirectory)
}
