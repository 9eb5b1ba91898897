package backup

import (
	"context"
	"errors"
	"fmt"
	"gsb/internal/archive"
	"gsb/internal/config"
	"gsb/internal/lock"
	"gsb/internal/manifest"
	"gsb/internal/remote"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBackend struct {
	mu        sync.Mutex
	objects   map[string]remote.ObjectInfo
	kinds     map[string]string
	deleted   []string
	uploadErr error
	sizeDelta int64
}

func newMemBackend() *memBackend {
	return &memBackend{objects: map[string]remote.ObjectInfo{}, kinds: map[string]string{}}
}

func (m *memBackend) Upload(_ context.Context, localPath, remotePath, checksumHash, kind string) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	info, err := os.Stat(localPath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[remotePath] = remote.ObjectInfo{Size: info.Size() + m.sizeDelta, Blake3: checksumHash}
	m.kinds[remotePath] = kind
	return nil
}

func (m *memBackend) Head(_ context.Context, remotePath string) (*remote.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.objects[remotePath]
	if !ok {
		return nil, fmt.Errorf("no such key %s", remotePath)
	}
	return &info, nil
}

func (m *memBackend) Delete(_ context.Context, remotePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, remotePath)
	m.deleted = append(m.deleted, remotePath)
	return nil
}

func (m *memBackend) VerifyCredentials(context.Context) error {
	return nil
}

func newTestJob(t *testing.T, backend *memBackend) (*Job, *lock.Guard) {
	t.Helper()
	root := t.TempDir()
	save := filepath.Join(root, "SavedArks")
	require.NoError(t, os.MkdirAll(save, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(save, "TheIsland.ark"), []byte("island"), 0o644))

	store := archive.New(filepath.Join(root, "backups"), "backup")
	base := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	store.SetClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	})

	guard := lock.New(filepath.Join(root, "run", "gsb.lock"))
	if backend == nil {
		return NewJob(store, guard, save, nil), guard
	}
	return NewJob(store, guard, save, backend), guard
}

func TestRunCreatesVerifiesAndPrunes(t *testing.T) {
	job, _ := newTestJob(t, nil)
	settings := config.Settings{MaxBackups: 2, VerifyAfterCreate: true}

	var last *Result
	for i := 0; i < 3; i++ {
		res, err := job.Run(context.Background(), settings, archive.CreateOptions{Notes: fmt.Sprint(i)})
		require.NoError(t, err)
		last = res
	}

	require.NotNil(t, last.Verification)
	assert.Equal(t, manifest.StatusVerified, last.Verification.Status)
	assert.Len(t, last.Pruned, 1)

	list, err := job.Store().List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2", *list[0].Notes)
	assert.Equal(t, manifest.StatusVerified, list[0].Verification.Status)
}

func TestRunSkipsVerification(t *testing.T) {
	job, _ := newTestJob(t, nil)

	res, err := job.Run(context.Background(), config.Settings{MaxBackups: 5}, archive.CreateOptions{})
	require.NoError(t, err)
	assert.Nil(t, res.Verification)
	assert.Equal(t, manifest.StatusUnknown, res.Archive.Verification.Status)
}

func TestRunBusy(t *testing.T) {
	job, guard := newTestJob(t, nil)
	release, err := guard.Acquire("restore")
	require.NoError(t, err)
	defer release()

	_, err = job.Run(context.Background(), config.Settings{}, archive.CreateOptions{})
	assert.ErrorIs(t, err, lock.ErrBusy)

	list, err := job.Store().List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRunCancelled(t *testing.T) {
	job, _ := newTestJob(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := job.Run(ctx, config.Settings{}, archive.CreateOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunReplicates(t *testing.T) {
	backend := newMemBackend()
	job, _ := newTestJob(t, backend)
	settings := config.Settings{MaxBackups: 1, VerifyAfterCreate: true}

	first, err := job.Run(context.Background(), settings, archive.CreateOptions{Notes: "first"})
	require.NoError(t, err)

	key := remote.ArchiveKey(first.Archive.Name)
	obj, err := backend.Head(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, first.Archive.SizeBytes, obj.Size)
	assert.Equal(t, first.Verification.Checksum, obj.Blake3)
	assert.Equal(t, remote.KindArchive, backend.kinds[key])
	assert.Equal(t, remote.KindMetadata, backend.kinds[remote.MetadataKey(first.Archive.Name)])

	second, err := job.Run(context.Background(), settings, archive.CreateOptions{Notes: "second"})
	require.NoError(t, err)
	assert.Equal(t, []string{first.Archive.Name}, second.Pruned)
	assert.ElementsMatch(t, []string{key, remote.MetadataKey(first.Archive.Name)}, backend.deleted)
}

func TestRunUploadFailureKeepsArchive(t *testing.T) {
	backend := newMemBackend()
	backend.uploadErr = errors.New("connection reset")
	job, _ := newTestJob(t, backend)

	res, err := job.Run(context.Background(), config.Settings{MaxBackups: 5}, archive.CreateOptions{})
	assert.ErrorContains(t, err, "connection reset")
	require.NotNil(t, res)

	list, err := job.Store().List()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRunUploadMismatch(t *testing.T) {
	backend := newMemBackend()
	backend.sizeDelta = -1
	job, _ := newTestJob(t, backend)

	_, err := job.Run(context.Background(), config.Settings{}, archive.CreateOptions{})
	assert.ErrorContains(t, err, "remote size mismatch")
}

func TestPruneUnderGuard(t *testing.T) {
	job, guard := newTestJob(t, nil)
	for i := 0; i < 3; i++ {
		_, err := job.Run(context.Background(), config.Settings{MaxBackups: 5}, archive.CreateOptions{})
		require.NoError(t, err)
	}

	pruned, err := job.Prune(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, pruned, 2)

	release, err := guard.Acquire("restore")
	require.NoError(t, err)
	defer release()
	_, err = job.Prune(context.Background(), 1)
	assert.ErrorIs(t, err, lock.ErrBusy)
}

func TestDeleteUnderGuard(t *testing.T) {
	backend := newMemBackend()
	job, guard := newTestJob(t, backend)
	res, err := job.Run(context.Background(), config.Settings{MaxBackups: 5, VerifyAfterCreate: true}, archive.CreateOptions{})
	require.NoError(t, err)
	name := res.Archive.Name

	release, err := guard.Acquire("restore")
	require.NoError(t, err)
	assert.ErrorIs(t, job.Delete(context.Background(), name), lock.ErrBusy)
	_, err = job.Store().Get(name)
	require.NoError(t, err, "archive is kept while the guard is held")
	require.NoError(t, release())

	require.NoError(t, job.Delete(context.Background(), name))
	_, err = job.Store().Get(name)
	assert.ErrorIs(t, err, archive.ErrNotFound)
	assert.ElementsMatch(t, []string{remote.ArchiveKey(name), remote.MetadataKey(name)}, backend.deleted)

	assert.ErrorIs(t, job.Delete(context.Background(), name), archive.ErrNotFound)
}
