package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCredentials(t *testing.T) {
	t.Run("literal pair", func(t *testing.T) {
		creds, err := ResolveCredentials("12345:secretpin")
		require.NoError(t, err)

		assert.Equal(t, "12345", creds.CustomerID)
		assert.Equal(t, "secretpin", creds.PIN)
	})

	t.Run("credentials file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "auth")
		require.NoError(t, os.WriteFile(path, []byte("12345:secretpin\n"), 0600))

		creds, err := ResolveCredentials(path)
		require.NoError(t, err)

		assert.Equal(t, "12345", creds.CustomerID)
		assert.Equal(t, "secretpin", creds.PIN)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ResolveCredentials(filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
	})

	t.Run("malformed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "auth")
		require.NoError(t, os.WriteFile(path, []byte("no separator"), 0600))

		_, err := ResolveCredentials(path)
		assert.Error(t, err)
	})

	t.Run("empty halves", func(t *testing.T) {
		_, err := ResolveCredentials("12345:")
		assert.Error(t, err)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := ResolveCredentials("")
		assert.Error(t, err)
	})
}
