package restore

import (
	"context"
	"errors"
	"fmt"
	"gsb/internal/archive"
	"gsb/internal/config"
	"gsb/internal/lock"
	"gsb/internal/tarball"
	"log/slog"
	"os"
	"path/filepath"
)

// Event types, also used as stream event names.
const (
	EventProgress = "progress"
	EventDone     = "done"
	EventError    = "error"
)

// Stages reported in progress events.
const (
	StageStarting     = "starting"
	StageSafetyBackup = "safety_backup"
	StageDeleting     = "deleting"
	StageExtracting   = "extracting"
	StageComplete     = "complete"
)

const SafetyPrefix = "safety"

type Event struct {
	Type         string  `json:"-"`
	Stage        string  `json:"stage,omitempty"`
	Percent      int     `json:"percent"`
	Message      string  `json:"message"`
	SafetyBackup *string `json:"safety_backup"`
}

type SettingsProvider interface {
	Settings() (config.Settings, error)
}

// Orchestrator replaces the contents of the save directory with an archive,
// optionally taking a safety backup of the live data first.
type Orchestrator struct {
	store    *archive.Store
	guard    *lock.Guard
	saveDir  string
	settings SettingsProvider
}

func New(store *archive.Store, guard *lock.Guard, saveDir string, settings SettingsProvider) *Orchestrator {
	return &Orchestrator{store: store, guard: guard, saveDir: saveDir, settings: settings}
}

// Run restores the archive called name, reporting progress through emit.
// Every failure produces exactly one error event. Once the save directory is
// being cleared the restore runs to the end regardless of ctx.
func (o *Orchestrator) Run(ctx context.Context, name string, emit func(Event)) error {
	fail := func(err error) error {
		msg := fmt.Sprintf("Restore failed: %v", err)
		if errors.Is(err, archive.ErrNotFound) || errors.Is(err, archive.ErrInvalidName) {
			msg = fmt.Sprintf("Backup not found: %s", name)
		}
		slog.Error("Restore failed", "name", name, "error", err)
		emit(Event{Type: EventError, Message: msg})
		return err
	}
	progress := func(stage string, percent int, message string) {
		emit(Event{Type: EventProgress, Stage: stage, Percent: percent, Message: message})
	}

	archivePath, err := o.store.Path(name)
	if err != nil {
		return fail(err)
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	release, err := o.guard.Acquire("restore")
	if err != nil {
		return fail(err)
	}
	defer func() {
		if err := release(); err != nil {
			slog.Warn("Failed to release lock", "error", err)
		}
	}()

	slog.Info("Restore started", "name", name, "saveDir", o.saveDir)
	progress(StageStarting, 0, fmt.Sprintf("Starting restore of %s", name))

	settings, err := o.settings.Settings()
	if err != nil {
		return fail(err)
	}

	var safetyName *string
	if settings.AutoSafetyBackup {
		progress(StageSafetyBackup, 5, "Creating safety backup of current save")
		a, err := o.store.Create(o.saveDir, archive.CreateOptions{
			Prefix:      SafetyPrefix,
			Notes:       fmt.Sprintf("Automatic safety backup before restoring %s", name),
			Tags:        []string{"safety"},
			NoOverwrite: true,
		})
		if err != nil {
			return fail(fmt.Errorf("safety backup failed: %w", err))
		}
		safetyName = &a.Name
		progress(StageSafetyBackup, 15, fmt.Sprintf("Safety backup created: %s", a.Name))
	} else {
		progress(StageSafetyBackup, 15, "Safety backup disabled, skipping")
	}

	if err := o.clear(progress); err != nil {
		return fail(err)
	}

	progress(StageExtracting, 50, fmt.Sprintf("Extracting %s", name))
	n, err := tarball.Extract(archivePath, o.saveDir)
	if err != nil {
		return fail(fmt.Errorf("failed to extract archive: %w", err))
	}

	progress(StageComplete, 100, fmt.Sprintf("Restore complete, %d entries restored", n))
	emit(Event{Type: EventDone, Percent: 100, Message: "Restore complete", SafetyBackup: safetyName})
	slog.Info("Restore completed successfully", "name", name, "entries", n)
	return nil
}

// clear removes every entry of the save directory one at a time.
func (o *Orchestrator) clear(progress func(string, int, string)) error {
	if err := os.MkdirAll(o.saveDir, 0o755); err != nil {
		return fmt.Errorf("failed to create save directory: %w", err)
	}
	entries, err := os.ReadDir(o.saveDir)
	if err != nil {
		return fmt.Errorf("failed to read save directory: %w", err)
	}

	total := len(entries)
	progress(StageDeleting, 20, fmt.Sprintf("Removing %d entries from save directory", total))
	for i, entry := range entries {
		if err := os.RemoveAll(filepath.Join(o.saveDir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
		progress(StageDeleting, 20+30*(i+1)/total, fmt.Sprintf("Removed %s", entry.Name()))
	}
	return nil
}
