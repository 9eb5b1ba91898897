package lock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestAcquireAndRelease(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "run", "gsb.lock")
	g := New(lockPath)

	release, err := g.Acquire("backup")
	require.NoError(t, err)

	data, err := os.ReadFile(lockPath)
	require.NoError(t, err)
	var entry Entry
	require.NoError(t, yaml.Unmarshal(data, &entry))
	assert.Equal(t, os.Getpid(), entry.Pid)
	assert.Equal(t, "backup", entry.Operation)
	assert.NotEmpty(t, entry.Token)
	assert.NotEmpty(t, entry.StartedAt)

	holder, err := g.Holder()
	require.NoError(t, err)
	require.NotNil(t, holder)
	assert.Equal(t, "backup", holder.Operation)

	require.NoError(t, release())
	_, err = os.Stat(lockPath)
	assert.True(t, os.IsNotExist(err))

	holder, err = g.Holder()
	require.NoError(t, err)
	assert.Nil(t, holder)
}

func TestAcquireBusyInProcess(t *testing.T) {
	g := New(filepath.Join(t.TempDir(), "gsb.lock"))

	release, err := g.Acquire("backup")
	require.NoError(t, err)
	defer release()

	_, err = g.Acquire("restore")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Contains(t, err.Error(), "backup by pid")
}

func TestAcquireBlockedByOtherLiveProcess(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "gsb.lock")
	// The parent of the test binary is alive for the duration of the test.
	other := &Entry{Pid: os.Getppid(), Operation: "restore", Token: "other", StartedAt: "2026-01-01T00:00:00Z"}
	require.NoError(t, writeLock(lockPath, other))

	_, err := New(lockPath).Acquire("backup")
	assert.ErrorIs(t, err, ErrBusy)
}

func TestAcquireReclaimsStaleLock(t *testing.T) {
	tests := []struct {
		name  string
		entry *Entry
	}{
		{name: "dead pid", entry: &Entry{Pid: 999999999, Token: "x", StartedAt: "2024-01-01T00:00:00Z"}},
		{name: "same pid, previous incarnation", entry: &Entry{Pid: os.Getpid(), Token: "previous", StartedAt: "2024-01-01T00:00:00Z"}},
		{name: "no pid", entry: &Entry{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lockPath := filepath.Join(t.TempDir(), "gsb.lock")
			require.NoError(t, writeLock(lockPath, tt.entry))

			release, err := New(lockPath).Acquire("backup")
			require.NoError(t, err)

			entry, err := readLock(lockPath)
			require.NoError(t, err)
			assert.Equal(t, os.Getpid(), entry.Pid)
			assert.Equal(t, "backup", entry.Operation)

			require.NoError(t, release())
		})
	}
}

func TestReleaseIdempotent(t *testing.T) {
	g := New(filepath.Join(t.TempDir(), "gsb.lock"))

	release, err := g.Acquire("prune")
	require.NoError(t, err)

	require.NoError(t, release())
	require.NoError(t, release())
}

func TestReleaseDoesNotDropNewerHolder(t *testing.T) {
	g := New(filepath.Join(t.TempDir(), "gsb.lock"))

	first, err := g.Acquire("backup")
	require.NoError(t, err)
	require.NoError(t, first())

	second, err := g.Acquire("restore")
	require.NoError(t, err)
	defer second()

	require.NoError(t, first())
	_, err = g.Acquire("backup")
	assert.ErrorIs(t, err, ErrBusy)
}
