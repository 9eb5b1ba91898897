package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ErrBusy is returned when another operation holds the save directory.
var ErrBusy = errors.New("operation in progress")

type Entry struct {
	Pid       int    `yaml:"pid"`
	Operation string `yaml:"operation"`
	Token     string `yaml:"token"`
	StartedAt string `yaml:"started_at"`
}

// Guard serializes operations that touch the save directory, both within
// this process and across processes sharing the same lock file.
type Guard struct {
	path  string
	token string
	mu    sync.Mutex
}

func New(path string) *Guard {
	return &Guard{path: path, token: uuid.NewString()}
}

func (g *Guard) Path() string {
	return g.path
}

// Holder returns the entry currently recorded in the lock file, or nil when
// nobody holds the guard.
func (g *Guard) Holder() (*Entry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, err := readLock(g.path)
	if err != nil || entry == nil {
		return nil, err
	}
	if !g.held(entry) {
		return nil, nil
	}
	return entry, nil
}

func readLock(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var entry Entry
	if err := yaml.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func writeLock(path string, entry *Entry) error {
	data, err := yaml.Marshal(entry)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	if err == syscall.ESRCH {
		return false
	}
	return true
}

// held reports whether entry still belongs to a live operation. An entry with
// our pid but a foreign token was left by an earlier process that had the
// same pid (pid 1 in a restarted container) and is stale.
func (g *Guard) held(entry *Entry) bool {
	if entry.Pid <= 0 || !isProcessAlive(entry.Pid) {
		return false
	}
	if entry.Pid == os.Getpid() {
		return entry.Token == g.token
	}
	return true
}

// Acquire records operation as the holder of the guard. It returns a release
// function which should be called (deferred) when work is done.
func (g *Guard) Acquire(operation string) (func() error, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, err := readLock(g.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lock file: %w", err)
	}

	if existing != nil && g.held(existing) {
		return nil, fmt.Errorf("%w: %s by pid %d (started %s)", ErrBusy, existing.Operation, existing.Pid, existing.StartedAt)
	}

	if err := os.MkdirAll(filepath.Dir(g.path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	entry := &Entry{
		Pid:       os.Getpid(),
		Operation: operation,
		Token:     g.token,
		StartedAt: time.Now().Format(time.RFC3339),
	}
	if err := writeLock(g.path, entry); err != nil {
		return nil, err
	}

	var once sync.Once
	release := func() error {
		var releaseErr error
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
				releaseErr = err
			}
		})
		return releaseErr
	}

	return release, nil
}
