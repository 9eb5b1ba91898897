package check

import (
	"context"
	"fmt"
	"gsb/internal/config"
	"gsb/internal/container"
	"gsb/internal/remote"
	"io"
	"os"
)

func Run(ctx context.Context, w io.Writer, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	fmt.Fprintln(w, "config: OK")

	rt := container.NewDocker(cfg.RuntimeBinary(), cfg.Container.Name)
	if err := checkHost(ctx, w, cfg, rt); err != nil {
		return err
	}

	if cfg.S3.Enabled {
		backend, err := remote.NewS3(ctx, cfg.S3.Bucket, cfg.S3.Region,
			cfg.S3.Prefix, cfg.S3.Endpoint,
			cfg.S3StorageClass(), cfg.S3RetryAttempts())
		if err != nil {
			return fmt.Errorf("S3 init: %w", err)
		}
		if err := backend.VerifyCredentials(ctx); err != nil {
			return fmt.Errorf("S3 credentials: %w", err)
		}
		fmt.Fprintf(w, "S3 bucket %s: OK\n", cfg.S3.Bucket)
	}

	fmt.Fprintln(w, "all checks passed")
	return nil
}

func checkHost(ctx context.Context, w io.Writer, cfg *config.Config, rt container.Runtime) error {
	info, err := os.Stat(cfg.SaveDir)
	if err != nil {
		return fmt.Errorf("save dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("save dir: %s is not a directory", cfg.SaveDir)
	}
	fmt.Fprintf(w, "save dir %s: OK\n", cfg.SaveDir)

	if err := os.MkdirAll(cfg.BackupDir, 0o755); err != nil {
		return fmt.Errorf("backup dir: %w", err)
	}
	probe, err := os.CreateTemp(cfg.BackupDir, ".gsb-check-*")
	if err != nil {
		return fmt.Errorf("backup dir not writable: %w", err)
	}
	probe.Close()
	os.Remove(probe.Name())
	fmt.Fprintf(w, "backup dir %s: OK\n", cfg.BackupDir)

	status, err := rt.Inspect(ctx)
	if err != nil {
		return fmt.Errorf("container %s: %w", cfg.Container.Name, err)
	}
	fmt.Fprintf(w, "container %s: OK (%s)\n", cfg.Container.Name, status)
	return nil
}
