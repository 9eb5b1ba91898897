package checksum

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBLAKE3FileMatchesReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "TheIsland.ark")
	require.NoError(t, os.WriteFile(path, []byte("save data"), 0o644))

	fromFile, err := BLAKE3File(path)
	require.NoError(t, err)
	fromReader, err := BLAKE3(strings.NewReader("save data"))
	require.NoError(t, err)

	assert.Equal(t, fromReader, fromFile)
	assert.Len(t, fromFile, 64)
}

func TestVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	sum, err := BLAKE3File(path)
	require.NoError(t, err)
	require.NoError(t, Verify(path, sum))

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	assert.ErrorContains(t, Verify(path, sum), "BLAKE3 mismatch")

	assert.ErrorContains(t, Verify(filepath.Join(t.TempDir(), "missing"), sum), "failed to calculate BLAKE3")
}
