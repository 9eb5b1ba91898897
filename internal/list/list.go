package list

import (
	"context"
	"encoding/json"
	"fmt"
	"gsb/internal/archive"
	"gsb/internal/config"
	"gsb/internal/manifest"
	"gsb/internal/remote"
	"gsb/internal/util"
	"io"
	"log/slog"
	"slices"
	"time"
)

type Info struct {
	Name         string   `json:"name"`
	SizeBytes    int64    `json:"size_bytes"`
	Size         string   `json:"size"`
	CreatedAt    int64    `json:"created_at"`
	CreatedAtStr string   `json:"created_at_str"`
	Notes        string   `json:"notes,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Map          string   `json:"map,omitempty"`
	Verification string   `json:"verification"`
	Checksum     string   `json:"checksum,omitempty"`
	// Remote is set only when the remote copy was checked.
	Remote *bool `json:"remote,omitempty"`
}

type Output struct {
	BackupDir string `json:"backup_dir"`
	Backups   []Info `json:"backups"`
	Summary   struct {
		TotalBackups   int    `json:"total_backups"`
		TotalSizeBytes int64  `json:"total_size_bytes"`
		TotalSize      string `json:"total_size"`
		Verified       int    `json:"verified"`
		Failed         int    `json:"failed"`
		Unverified     int    `json:"unverified"`
	} `json:"summary"`
}

// Run prints the archives in the configured backup directory as JSON. When
// checkRemote is set and S3 is enabled, each archive is looked up remotely.
func Run(ctx context.Context, w io.Writer, configPath, tag string, checkRemote bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var backend remote.Backend
	if checkRemote {
		if !cfg.S3.Enabled {
			return fmt.Errorf("S3 is not enabled in config")
		}
		s3, err := remote.NewS3(ctx, cfg.S3.Bucket, cfg.S3.Region,
			cfg.S3.Prefix, cfg.S3.Endpoint,
			cfg.S3StorageClass(), cfg.S3RetryAttempts())
		if err != nil {
			return fmt.Errorf("failed to initialize S3 backend: %w", err)
		}
		if err := s3.VerifyCredentials(ctx); err != nil {
			return fmt.Errorf("AWS credentials verification failed: %w", err)
		}
		backend = s3
	}

	output, err := Build(ctx, archive.New(cfg.BackupDir, cfg.Prefix()), backend, tag)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(output); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// Build collects the listing. An empty tag matches every archive; backend
// may be nil.
func Build(ctx context.Context, store *archive.Store, backend remote.Backend, tag string) (*Output, error) {
	archives, err := store.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}

	output := &Output{BackupDir: store.Dir(), Backups: []Info{}}
	for _, a := range archives {
		if tag != "" && !slices.Contains(a.Tags, tag) {
			continue
		}

		info := Info{
			Name:         a.Name,
			SizeBytes:    a.SizeBytes,
			Size:         util.HumanBytes(a.SizeBytes),
			CreatedAt:    a.CreatedAt,
			CreatedAtStr: time.Unix(a.CreatedAt, 0).UTC().Format("2006-01-02 15:04:05"),
			Tags:         a.Tags,
			Verification: a.Verification.Status,
			Checksum:     a.Verification.Checksum,
		}
		if a.Notes != nil {
			info.Notes = *a.Notes
		}
		if a.SaveInfo != nil {
			info.Map = a.SaveInfo.MapDisplayName
		}
		if backend != nil {
			found := true
			if _, err := backend.Head(ctx, remote.ArchiveKey(a.Name)); err != nil {
				slog.Debug("Remote copy not found", "name", a.Name, "error", err)
				found = false
			}
			info.Remote = &found
		}

		output.Backups = append(output.Backups, info)
	}

	output.Summary.TotalBackups = len(output.Backups)
	for _, b := range output.Backups {
		output.Summary.TotalSizeBytes += b.SizeBytes
		switch b.Verification {
		case manifest.StatusVerified:
			output.Summary.Verified++
		case manifest.StatusFailed:
			output.Summary.Failed++
		default:
			output.Summary.Unverified++
		}
	}
	output.Summary.TotalSize = util.HumanBytes(output.Summary.TotalSizeBytes)

	return output, nil
}
