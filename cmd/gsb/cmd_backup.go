package main

import (
	"context"
	"encoding/json"
	"fmt"
	"gsb/internal/archive"
	"gsb/internal/backup"
	"gsb/internal/manifest"
	"os"
)

func runBackup(ctx context.Context, configPath, notes string, tags []string) error {
	if ctx.Err() != nil {
		return fmt.Errorf("backup cancelled before start: %w", ctx.Err())
	}

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	job := backup.NewJob(a.store, a.guard, a.cfg.SaveDir, a.backend)
	res, err := job.Run(ctx, a.cfg.Backup, archive.CreateOptions{Notes: notes, Tags: tags})
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runVerify(ctx context.Context, configPath, name string) error {
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	v, err := a.store.Verify(name)
	if err != nil {
		return err
	}
	if err := printJSON(v); err != nil {
		return err
	}
	if v.Status != manifest.StatusVerified {
		return fmt.Errorf("%w: %s", backup.ErrVerificationFailed, v.Error)
	}
	return nil
}

// runPrune applies retention. A negative maxCount uses the configured value.
func runPrune(ctx context.Context, configPath string, maxCount int) error {
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if maxCount < 0 {
		maxCount = a.cfg.Backup.MaxBackups
	}
	job := backup.NewJob(a.store, a.guard, a.cfg.SaveDir, a.backend)
	pruned, err := job.Prune(ctx, maxCount)
	if err != nil {
		return err
	}
	return printJSON(map[string][]string{"pruned": pruned})
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
