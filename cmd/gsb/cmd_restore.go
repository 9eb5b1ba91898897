package main

import (
	"context"
	"fmt"
	"gsb/internal/restore"
	"os"
)

func runRestore(ctx context.Context, configPath, name string) error {
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	orch := restore.New(a.store, a.guard, a.cfg.SaveDir, a.settings())
	return orch.Run(ctx, name, func(ev restore.Event) {
		switch ev.Type {
		case restore.EventProgress:
			fmt.Fprintf(os.Stderr, "[%3d%%] %s: %s\n", ev.Percent, ev.Stage, ev.Message)
		case restore.EventDone:
			fmt.Println(ev.Message)
			if ev.SafetyBackup != nil {
				fmt.Printf("Safety backup: %s\n", *ev.SafetyBackup)
			}
		case restore.EventError:
			fmt.Fprintln(os.Stderr, ev.Message)
		}
	})
}
