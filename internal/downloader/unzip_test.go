package downloader

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArchive(t *testing.T, dir string, files map[string]string) string {
	t.Helper()

	var buf bytes.Buffer

	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)

		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	archive := filepath.Join(dir, "bundle.zip")
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0644))

	return archive
}

func TestUnzip(t *testing.T) {
	dir := t.TempDir()
	archive := writeArchive(t, dir, map[string]string{
		"a.txt":          "alpha",
		"sub/b.txt":      "beta",
		"sub/deep/c.txt": "gamma",
	})

	require.NoError(t, unzip(archive))

	got, err := os.ReadFile(filepath.Join(dir, "sub", "deep", "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "gamma", string(got))

	_, err = os.Stat(archive)
	assert.True(t, os.IsNotExist(err), "archive is removed after extraction")
}

func TestUnzip_RejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	archive := writeArchive(t, dir, map[string]string{
		"../escape.txt": "nope",
	})

	assert.Error(t, unzip(archive))
}

func TestUnzip_NotAnArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not.zip")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0644))

	assert.Error(t, unzip(path))
}
