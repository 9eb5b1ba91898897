package main

import (
	"context"
	"fmt"
	"gsb/internal/archive"
	"gsb/internal/config"
	"gsb/internal/lock"
	"gsb/internal/remote"
	"gsb/internal/util"
	"log/slog"
	"os"
	"time"
)

// app holds what every state-changing command needs.
type app struct {
	configPath string
	cfg        *config.Config
	store      *archive.Store
	guard      *lock.Guard
	backend    remote.Backend
	logFile    *os.File
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := util.SetupDirectories(cfg.BaseDir, util.RunDir(cfg.BaseDir), cfg.BackupDir); err != nil {
		return nil, err
	}

	logger, logFile, err := util.SetupLogging(util.LogPath(cfg.BaseDir, time.Now()), cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	slog.SetDefault(logger)

	a := &app{
		configPath: configPath,
		cfg:        cfg,
		store:      archive.New(cfg.BackupDir, cfg.Prefix()),
		guard:      lock.New(util.LockPath(cfg.BaseDir)),
		logFile:    logFile,
	}

	if cfg.S3.Enabled {
		backend, err := remote.NewS3(ctx, cfg.S3.Bucket, cfg.S3.Region,
			cfg.S3.Prefix, cfg.S3.Endpoint,
			cfg.S3StorageClass(), cfg.S3RetryAttempts())
		if err != nil {
			logFile.Close()
			return nil, fmt.Errorf("failed to initialize S3 backend: %w", err)
		}
		a.backend = backend
	}

	return a, nil
}

func (a *app) settings() config.FileSettings {
	return config.FileSettings{Path: a.configPath}
}

func (a *app) Close() {
	if a.logFile != nil {
		a.logFile.Close()
	}
}
