package archive

import (
	"errors"
	"fmt"
	"gsb/internal/checksum"
	"gsb/internal/manifest"
	"gsb/internal/saveinfo"
	"gsb/internal/tarball"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

const (
	Suffix          = ".tar.gz"
	timestampLayout = "20060102150405"
)

var (
	ErrNotFound    = errors.New("archive not found")
	ErrInvalidName = errors.New("invalid archive name")
	ErrExists      = errors.New("archive already exists")
)

var namePattern = regexp.MustCompile(`^[a-z0-9_]+-\d{14}\.tar\.gz$`)

type Archive struct {
	Name         string                `json:"name"`
	SizeBytes    int64                 `json:"size_bytes"`
	CreatedAt    int64                 `json:"created_at"`
	Notes        *string               `json:"notes,omitempty"`
	Tags         []string              `json:"tags,omitempty"`
	Verification manifest.Verification `json:"verification"`
	SaveInfo     *manifest.SaveInfo    `json:"save_info,omitempty"`

	modTime time.Time
}

type CreateOptions struct {
	// Prefix overrides the store's default archive prefix.
	Prefix string
	Notes  string
	Tags   []string
	// NoOverwrite fails the create instead of replacing an archive from the
	// same minute.
	NoOverwrite bool
}

// Store keeps archives and their sidecar files in a single directory.
type Store struct {
	dir     string
	prefix  string
	now     func() time.Time
	extract func(path string) (*manifest.SaveInfo, error)
	remove  func(path string) error
}

func New(dir, prefix string) *Store {
	return &Store{
		dir:     dir,
		prefix:  prefix,
		now:     time.Now,
		extract: saveinfo.Extract,
		remove:  os.Remove,
	}
}

// SetClock replaces the clock used to name and timestamp new archives.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) Dir() string {
	return s.dir
}

// ValidateName rejects anything that is not a bare archive file name.
func ValidateName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Name returns the archive name for prefix at instant t. Names have minute
// granularity and are in UTC so that lexical order matches creation order.
func Name(prefix string, t time.Time) string {
	return fmt.Sprintf("%s-%s%s", prefix, t.UTC().Truncate(time.Minute).Format(timestampLayout), Suffix)
}

// Path returns the location of an existing archive.
func (s *Store) Path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", err
	}
	return path, nil
}

// Create snapshots sourceDir into a new archive. Save-info and metadata are
// written best-effort after the archive itself is durable.
func (s *Store) Create(sourceDir string, opts CreateOptions) (*Archive, error) {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = s.prefix
	}

	info, err := os.Stat(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %s is not a directory", sourceDir)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	createdAt := s.now()
	name := Name(prefix, createdAt)
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, name)

	if _, err := os.Stat(path); err == nil {
		if opts.NoOverwrite {
			return nil, fmt.Errorf("%w: %s", ErrExists, name)
		}
		slog.Warn("Overwriting archive created in the same minute", "name", name)
	}

	entries, err := s.writeArchive(path, sourceDir)
	if err != nil {
		return nil, err
	}
	if err := os.Chtimes(path, createdAt, createdAt); err != nil {
		slog.Warn("Failed to set archive mtime", "name", name, "error", err)
	}
	// A verification record of an overwritten archive no longer applies.
	if err := manifest.Remove(manifest.VerifyPath(s.dir, name)); err != nil {
		slog.Warn("Failed to remove stale verification record", "name", name, "error", err)
	}
	slog.Info("Archive created", "name", name, "entries", entries)

	meta := &manifest.Metadata{Notes: opts.Notes, Tags: normalizeTags(opts.Tags)}
	if si, err := s.extract(path); err != nil {
		slog.Warn("Failed to extract save info", "name", name, "error", err)
	} else {
		meta.SaveInfo = si
	}
	if err := manifest.WriteMetadata(manifest.MetaPath(s.dir, name), meta); err != nil {
		slog.Warn("Failed to write archive metadata", "name", name, "error", err)
	}

	return s.load(name)
}

func (s *Store) writeArchive(path, sourceDir string) (int, error) {
	tmp, err := os.CreateTemp(s.dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary archive: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	entries, err := tarball.Write(tmp, sourceDir)
	if err != nil {
		cleanup()
		return 0, fmt.Errorf("failed to write archive: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return 0, fmt.Errorf("failed to sync archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to close archive: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		slog.Warn("Failed to chmod archive", "path", tmpPath, "error", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to move archive into place: %w", err)
	}
	return entries, nil
}

// load joins an archive file with its sidecars.
func (s *Store) load(name string) (*Archive, error) {
	info, err := os.Stat(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	return s.fromInfo(name, info), nil
}

func (s *Store) fromInfo(name string, info os.FileInfo) *Archive {
	a := &Archive{
		Name:         name,
		SizeBytes:    info.Size(),
		CreatedAt:    info.ModTime().Unix(),
		Verification: manifest.Verification{Status: manifest.StatusUnknown},
		modTime:      info.ModTime(),
	}

	meta, err := manifest.ReadMetadata(manifest.MetaPath(s.dir, name))
	if err != nil {
		slog.Warn("Ignoring unreadable metadata", "name", name, "error", err)
	} else if meta != nil {
		notes := meta.Notes
		a.Notes = &notes
		a.Tags = meta.Tags
		if a.Tags == nil {
			a.Tags = []string{}
		}
		a.SaveInfo = meta.SaveInfo
	}

	v, err := manifest.ReadVerification(manifest.VerifyPath(s.dir, name))
	if err != nil {
		slog.Warn("Ignoring unreadable verification record", "name", name, "error", err)
	} else if v != nil {
		a.Verification = *v
	}
	return a
}

// Get returns one archive joined with its sidecars.
func (s *Store) Get(name string) (*Archive, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return s.load(name)
}

// List returns every archive in the store, newest first. Orphan sidecars are
// ignored.
func (s *Store) List() ([]Archive, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Archive{}, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	archives := []Archive{}
	for _, entry := range entries {
		if entry.IsDir() || !namePattern.MatchString(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		archives = append(archives, *s.fromInfo(entry.Name(), info))
	}

	sort.SliceStable(archives, func(i, j int) bool {
		if !archives[i].modTime.Equal(archives[j].modTime) {
			return archives[i].modTime.After(archives[j].modTime)
		}
		return archives[i].Name > archives[j].Name
	})
	return archives, nil
}

// Verify reads the whole archive, counts its entries and records the result
// in the verification sidecar. A corrupt archive is reported through the
// returned status, not as an error. When an earlier record carries a digest,
// a file whose content changed since then is reported as failed and the
// earlier digest is kept.
func (s *Store) Verify(name string) (manifest.Verification, error) {
	path, err := s.Path(name)
	if err != nil {
		return manifest.Verification{}, err
	}

	verifyPath := manifest.VerifyPath(s.dir, name)
	prev, err := manifest.ReadVerification(verifyPath)
	if err != nil {
		slog.Warn("Ignoring unreadable verification record", "name", name, "error", err)
		prev = nil
	}

	result := manifest.Verification{CheckedAt: s.now().Unix()}
	count, err := tarball.Count(path)
	switch {
	case err != nil:
		result.Status = manifest.StatusFailed
		result.Error = err.Error()
		slog.Warn("Archive verification failed", "name", name, "error", err)
	case prev != nil && prev.Checksum != "":
		result.FileCount = count
		result.Checksum = prev.Checksum
		if err := checksum.Verify(path, prev.Checksum); err != nil {
			result.Status = manifest.StatusFailed
			result.Error = fmt.Sprintf("archive changed since last verification: %v", err)
			slog.Warn("Archive checksum changed", "name", name, "error", err)
		} else {
			result.Status = manifest.StatusVerified
		}
	default:
		result.Status = manifest.StatusVerified
		result.FileCount = count
		if sum, err := checksum.BLAKE3File(path); err != nil {
			slog.Warn("Failed to calculate BLAKE3", "name", name, "error", err)
		} else {
			result.Checksum = sum
		}
	}

	if err := manifest.WriteVerification(verifyPath, &result); err != nil {
		return result, fmt.Errorf("failed to write verification record: %w", err)
	}
	return result, nil
}

// UpdateMetadata replaces notes and tags, keeping extracted save info. When
// both are empty the metadata sidecar is removed.
func (s *Store) UpdateMetadata(name, notes string, tags []string) error {
	if _, err := s.Path(name); err != nil {
		return err
	}

	metaPath := manifest.MetaPath(s.dir, name)
	tags = normalizeTags(tags)
	if notes == "" && len(tags) == 0 {
		if err := manifest.Remove(metaPath); err != nil {
			return fmt.Errorf("failed to remove metadata: %w", err)
		}
		return nil
	}

	meta, err := manifest.ReadMetadata(metaPath)
	if err != nil {
		slog.Warn("Replacing unreadable metadata", "name", name, "error", err)
		meta = nil
	}
	if meta == nil {
		meta = &manifest.Metadata{}
	}
	meta.Notes = notes
	meta.Tags = tags

	if err := manifest.WriteMetadata(metaPath, meta); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// Delete removes the archive and both sidecars. A missing archive is an
// error; missing sidecars are not.
func (s *Store) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := s.remove(filepath.Join(s.dir, name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("failed to delete archive: %w", err)
	}
	if err := manifest.Remove(manifest.MetaPath(s.dir, name)); err != nil {
		slog.Warn("Failed to remove metadata", "name", name, "error", err)
	}
	if err := manifest.Remove(manifest.VerifyPath(s.dir, name)); err != nil {
		slog.Warn("Failed to remove verification record", "name", name, "error", err)
	}
	slog.Info("Archive deleted", "name", name)
	return nil
}

// Prune deletes the oldest archives beyond maxCount and returns the names it
// removed. A failed delete is logged and pruning continues.
func (s *Store) Prune(maxCount int) ([]string, error) {
	if maxCount < 0 {
		return nil, fmt.Errorf("max count must be non-negative, got %d", maxCount)
	}

	archives, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(archives) <= maxCount {
		return nil, nil
	}

	var deleted []string
	for _, a := range archives[maxCount:] {
		if err := s.Delete(a.Name); err != nil {
			slog.Error("Failed to prune archive", "name", a.Name, "error", err)
			continue
		}
		deleted = append(deleted, a.Name)
	}
	slog.Info("Pruned archives", "deleted", len(deleted), "kept", maxCount)
	return deleted, nil
}

func normalizeTags(tags []string) []string {
	out := []string{}
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
