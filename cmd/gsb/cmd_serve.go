package main

import (
	"context"
	"fmt"
	"gsb/internal/backup"
	"gsb/internal/container"
	"gsb/internal/restore"
	"gsb/internal/scheduler"
	"gsb/internal/server"
	"gsb/internal/status"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func runServe(ctx context.Context, configPath, version string) error {
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if !strings.EqualFold(a.cfg.LogLevel, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	settings := a.settings()
	job := backup.NewJob(a.store, a.guard, a.cfg.SaveDir, a.backend)
	sched := scheduler.New(job, settings, reg)

	docker := container.NewDocker(a.cfg.RuntimeBinary(), a.cfg.Container.Name)
	ctrl := container.NewController(docker, container.NewTracker(), a.cfg.StopTimeout())

	intervals := a.cfg.Status
	mux := status.New(
		status.ContainerTopic(ctrl, intervals.ContainerInterval()),
		status.BackupsTopic(a.store, intervals.BackupsInterval()),
		status.SchedulerTopic(sched, intervals.SchedulerInterval()),
		status.DiskTopic(a.cfg.BackupDir, a.store, intervals.DiskInterval()),
		status.VersionTopic(status.NewVersionInfo(version, time.Now())),
	)

	srv := server.New(server.Deps{
		Store:     a.store,
		Job:       job,
		Scheduler: sched,
		Restore:   restore.New(a.store, a.guard, a.cfg.SaveDir, settings),
		Container: ctrl,
		Status:    mux,
		Gatherer:  reg,
	})

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	slog.Info("gsb started",
		"version", version,
		"save_dir", a.cfg.SaveDir,
		"backup_dir", a.cfg.BackupDir,
		"container", a.cfg.Container.Name,
		"s3", a.cfg.S3.Enabled,
	)
	return srv.Run(ctx, a.cfg.ListenAddr())
}
