package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

var ErrNotFound = errors.New("container not found")

// Runtime is the subset of a container runtime the engine relies on.
type Runtime interface {
	Inspect(ctx context.Context) (string, error)
	Start(ctx context.Context) (string, error)
	Stop(ctx context.Context, timeout time.Duration) (string, error)
}

// Docker drives a single named container through the docker (or podman) CLI.
type Docker struct {
	Binary string
	Name   string
}

func NewDocker(binary, name string) *Docker {
	if binary == "" {
		binary = "docker"
	}
	return &Docker{Binary: binary, Name: name}
}

func (d *Docker) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, d.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if strings.Contains(strings.ToLower(msg), "no such") {
			return "", fmt.Errorf("%w: %s", ErrNotFound, d.Name)
		}
		if msg == "" {
			return "", fmt.Errorf("%s %s failed: %w", d.Binary, args[0], err)
		}
		return "", fmt.Errorf("%s %s failed: %w: %s", d.Binary, args[0], err, msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (d *Docker) Inspect(ctx context.Context) (string, error) {
	return d.run(ctx, "inspect", "-f", "{{.State.Status}}", d.Name)
}

func (d *Docker) Start(ctx context.Context) (string, error) {
	slog.Info("Starting container", "name", d.Name)
	if _, err := d.run(ctx, "start", d.Name); err != nil {
		return "", err
	}
	return d.Inspect(ctx)
}

func (d *Docker) Stop(ctx context.Context, timeout time.Duration) (string, error) {
	slog.Info("Stopping container", "name", d.Name, "timeout", timeout)
	secs := strconv.Itoa(int(timeout.Seconds()))
	if _, err := d.run(ctx, "stop", "-t", secs, d.Name); err != nil {
		return "", err
	}
	return d.Inspect(ctx)
}
