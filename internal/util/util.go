package util

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gsb/internal/logging"
)

func RunDir(baseDir string) string {
	return filepath.Join(baseDir, "run")
}

func LogDir(baseDir string) string {
	return filepath.Join(baseDir, "logs")
}

func LockPath(baseDir string) string {
	return filepath.Join(RunDir(baseDir), "gsb.lock")
}

// LogPath is the daily log file for the given day.
func LogPath(baseDir string, day time.Time) string {
	return filepath.Join(LogDir(baseDir), fmt.Sprintf("gsb-%s.log", day.Format("2006-01-02")))
}

func SetupDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func SetupLogging(logPath, level string) (*slog.Logger, *os.File, error) {
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logger, logFile, err := logging.NewLogger(logPath, logging.ParseLevel(level))
	if err != nil {
		return nil, nil, err
	}

	return logger, logFile, nil
}

// HumanBytes formats n with binary units, e.g. "1.5 GiB".
func HumanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
