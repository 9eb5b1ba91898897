package main

import (
	"context"
	"errors"
	"fmt"
	"gsb/internal/check"
	"gsb/internal/list"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/urfave/cli/v3"
)

var version = "0.1.0"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "config",
		Usage: "path to configuration yaml file",
		Value: "gsb_config.yaml",
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "gsb",
		Usage:   "Game server save backup keeper",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the scheduler and the HTTP API",
				Flags: []cli.Flag{configFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runServe(ctx, cmd.String("config"), version)
				},
			},
			{
				Name:  "backup",
				Usage: "Create one backup, verify it and apply retention",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "notes",
						Usage: "Notes stored with the archive",
					},
					&cli.StringSliceFlag{
						Name:  "tag",
						Usage: "Tag stored with the archive (repeatable)",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runBackup(ctx, cmd.String("config"), cmd.String("notes"), cmd.StringSlice("tag"))
				},
			},
			{
				Name:  "list",
				Usage: "List available backups",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "tag",
						Usage: "Only list archives carrying this tag",
					},
					&cli.BoolFlag{
						Name:  "remote",
						Usage: "Check whether each archive exists in S3",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return list.Run(ctx, os.Stdout, cmd.String("config"), cmd.String("tag"), cmd.Bool("remote"))
				},
			},
			{
				Name:  "verify",
				Usage: "Verify an archive and record the result",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:     "name",
						Usage:    "Archive file name",
						Required: true,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runVerify(ctx, cmd.String("config"), cmd.String("name"))
				},
			},
			{
				Name:  "prune",
				Usage: "Delete the oldest archives beyond the retention limit",
				Flags: []cli.Flag{
					configFlag(),
					&cli.IntFlag{
						Name:  "max",
						Usage: "Archives to keep (-1 uses backup.max_backups)",
						Value: -1,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runPrune(ctx, cmd.String("config"), cmd.Int("max"))
				},
			},
			{
				Name:  "restore",
				Usage: "Replace the save directory with an archive",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:     "name",
						Usage:    "Archive file name",
						Required: true,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runRestore(ctx, cmd.String("config"), cmd.String("name"))
				},
			},
			{
				Name:  "check",
				Usage: "Check config, directories, container and S3 access",
				Flags: []cli.Flag{configFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return check.Run(ctx, os.Stdout, cmd.String("config"))
				},
			},
			{
				Name:  "version",
				Usage: "Print version information",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Printf("gsb %s (%s)\n", version, runtime.Version())
					return nil
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			fmt.Fprintln(os.Stderr, "\n⚠ Interrupted by user")
			os.Exit(130)
		}
		slog.Error("CLI error", "error", err)
		os.Exit(1)
	}
}
