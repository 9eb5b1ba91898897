package backup

import (
	"context"
	"errors"
	"fmt"
	"gsb/internal/archive"
	"gsb/internal/checksum"
	"gsb/internal/config"
	"gsb/internal/lock"
	"gsb/internal/manifest"
	"gsb/internal/remote"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// ErrVerificationFailed is returned when a freshly created archive does not
// pass verification. The archive itself is kept.
var ErrVerificationFailed = errors.New("archive verification failed")

type Result struct {
	Archive      *archive.Archive       `json:"archive"`
	Verification *manifest.Verification `json:"verification,omitempty"`
	Pruned       []string               `json:"pruned"`
}

// Job creates, verifies, replicates and prunes archives of the save
// directory while holding the operation guard.
type Job struct {
	store   *archive.Store
	guard   *lock.Guard
	saveDir string
	backend remote.Backend
}

// NewJob returns a job. backend may be nil when replication is disabled.
func NewJob(store *archive.Store, guard *lock.Guard, saveDir string, backend remote.Backend) *Job {
	return &Job{store: store, guard: guard, saveDir: saveDir, backend: backend}
}

func (j *Job) Store() *archive.Store {
	return j.store
}

func (j *Job) Run(ctx context.Context, settings config.Settings, opts archive.CreateOptions) (*Result, error) {
	if ctx.Err() != nil {
		return nil, fmt.Errorf("backup cancelled before start: %w", ctx.Err())
	}

	release, err := j.guard.Acquire("backup")
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if err := release(); err != nil {
			slog.Warn("Failed to release lock", "error", err)
		}
	}()

	slog.Info("Backup started", "saveDir", j.saveDir, "maxBackups", settings.MaxBackups)

	a, err := j.store.Create(j.saveDir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	result := &Result{Archive: a}

	if settings.VerifyAfterCreate {
		v, err := j.store.Verify(a.Name)
		if err != nil {
			return result, fmt.Errorf("failed to verify archive: %w", err)
		}
		result.Verification = &v
		if v.Status != manifest.StatusVerified {
			return result, fmt.Errorf("%w: %s: %s", ErrVerificationFailed, a.Name, v.Error)
		}
	}

	if j.backend != nil {
		if err := j.replicate(ctx, a, result.Verification); err != nil {
			return result, err
		}
	}

	pruned, err := j.prune(ctx, settings.MaxBackups)
	if err != nil {
		return result, err
	}
	result.Pruned = pruned

	slog.Info("Backup completed successfully", "name", a.Name, "pruned", len(pruned))
	return result, nil
}

// Prune applies retention under the operation guard.
func (j *Job) Prune(ctx context.Context, maxCount int) ([]string, error) {
	release, err := j.guard.Acquire("prune")
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if err := release(); err != nil {
			slog.Warn("Failed to release lock", "error", err)
		}
	}()
	return j.prune(ctx, maxCount)
}

// Delete removes one archive and its sidecars under the operation guard, so
// it cannot pull an archive out from under a running restore. Remote copies
// are removed best-effort.
func (j *Job) Delete(ctx context.Context, name string) error {
	release, err := j.guard.Acquire("delete")
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if err := release(); err != nil {
			slog.Warn("Failed to release lock", "error", err)
		}
	}()

	if err := j.store.Delete(name); err != nil {
		return err
	}
	j.deleteRemote(ctx, name)
	return nil
}

func (j *Job) prune(ctx context.Context, maxCount int) ([]string, error) {
	pruned, err := j.store.Prune(maxCount)
	if err != nil {
		return nil, fmt.Errorf("failed to prune archives: %w", err)
	}
	for _, name := range pruned {
		j.deleteRemote(ctx, name)
	}
	return pruned, nil
}

func (j *Job) deleteRemote(ctx context.Context, name string) {
	if j.backend == nil {
		return
	}
	for _, key := range []string{remote.ArchiveKey(name), remote.MetadataKey(name)} {
		if err := j.backend.Delete(ctx, key); err != nil {
			slog.Warn("Failed to delete remote copy", "key", key, "error", err)
		}
	}
}

// replicate uploads the archive and its metadata sidecar concurrently, then
// checks the uploaded archive against its local size and digest.
func (j *Job) replicate(ctx context.Context, a *archive.Archive, v *manifest.Verification) error {
	archivePath := filepath.Join(j.store.Dir(), a.Name)
	metaPath := manifest.MetaPath(j.store.Dir(), a.Name)

	var sum string
	if v != nil && v.Checksum != "" {
		sum = v.Checksum
	} else {
		var err error
		sum, err = checksumFile(archivePath)
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := j.backend.Upload(gctx, archivePath, remote.ArchiveKey(a.Name), sum, remote.KindArchive); err != nil {
			return fmt.Errorf("failed to upload archive: %w", err)
		}
		return nil
	})
	if _, err := os.Stat(metaPath); err == nil {
		g.Go(func() error {
			metaSum, err := checksumFile(metaPath)
			if err != nil {
				return err
			}
			if err := j.backend.Upload(gctx, metaPath, remote.MetadataKey(a.Name), metaSum, remote.KindMetadata); err != nil {
				return fmt.Errorf("failed to upload metadata: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := remote.VerifyUpload(ctx, j.backend, remote.ArchiveKey(a.Name), a.SizeBytes, sum); err != nil {
		return fmt.Errorf("failed to verify upload: %w", err)
	}
	slog.Info("Archive replicated", "name", a.Name)
	return nil
}

func checksumFile(path string) (string, error) {
	sum, err := checksum.BLAKE3File(path)
	if err != nil {
		return "", fmt.Errorf("failed to calculate BLAKE3: %w", err)
	}
	return sum, nil
}
