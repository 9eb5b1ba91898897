package saveinfo

import (
	"errors"
	"gsb/internal/tarball"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildArchive(t *testing.T, files map[string]string) string {
	t.Helper()
	src := t.TempDir()
	for name, content := range files {
		p := filepath.Join(src, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}

	path := filepath.Join(t.TempDir(), "backup-20260101120000.tar.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	_, err = tarball.Write(f, src)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return path
}

func TestExtract(t *testing.T) {
	path := buildArchive(t, map[string]string{
		"TheIsland.ark":                        "0123456789",
		"TheIsland_17.10.2026_12.00.00.ark":    "old",
		"TheIsland_17.10.2026_12.15.00.ark":    "old",
		"76561198000000001.arkprofile":         "p",
		"76561198000000002.arkprofile":         "p",
		"1234567.arktribe":                     "t",
		"SaveGames/PlayerLocalData.arkprofile": "p",
	})

	info, err := Extract(path)
	require.NoError(t, err)

	assert.Equal(t, "TheIsland", info.MapName)
	assert.Equal(t, "The Island", info.MapDisplayName)
	assert.Equal(t, 3, info.PlayerCount)
	assert.Equal(t, 1, info.TribeCount)
	assert.Equal(t, 2, info.AutoSaveCount)
	assert.Equal(t, int64(10), info.MainSaveSize)
	assert.Equal(t, 7, info.TotalFileCount)
	assert.Equal(t, []string{"The Island", "multiplayer", "tribes"}, info.SuggestedTags)
}

func TestExtractNoSave(t *testing.T) {
	path := buildArchive(t, map[string]string{"readme.txt": "hi"})

	_, err := Extract(path)
	assert.True(t, errors.Is(err, ErrNoSave))
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		mapName string
		want    string
	}{
		{"TheIsland_WP", "The Island"},
		{"ScorchedEarth_P", "Scorched Earth"},
		{"Gen2", "Genesis: Part 2"},
		{"CustomMap", "CustomMap"},
	}
	for _, tt := range tests {
		t.Run(tt.mapName, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayName(tt.mapName))
		})
	}
}
