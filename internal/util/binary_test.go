package util

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindBinary(t *testing.T) {
	t.Run("finds executable binary via environment variable", func(t *testing.T) {
		tmpFile, err := os.CreateTemp("", "test-binary-*")
		require.NoError(t, err)
		defer os.Remove(tmpFile.Name())
		tmpFile.Close()
		require.NoError(t, os.Chmod(tmpFile.Name(), 0755))

		t.Setenv("TEST_BINARY_PATH", tmpFile.Name())

		path, err := FindBinary("nonexistent-binary", "TEST_BINARY_PATH")
		require.NoError(t, err)
		assert.Equal(t, tmpFile.Name(), path)
	})

	t.Run("finds binary on PATH when no env var", func(t *testing.T) {
		path, err := FindBinary("ls", "")
		require.NoError(t, err)
		assert.NotEmpty(t, path)
	})

	t.Run("returns error when binary not found", func(t *testing.T) {
		_, err := FindBinary("definitely-not-a-real-binary-xyz", "")
		assert.Error(t, err)
	})
}
