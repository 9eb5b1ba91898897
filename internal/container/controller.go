package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// NotFoundStatus is reported when the runtime does not know the container.
const NotFoundStatus = "not_found"

// Controller combines a Runtime with a Tracker so callers see starting and
// stopping while an operation is in flight.
type Controller struct {
	runtime     Runtime
	tracker     *Tracker
	stopTimeout time.Duration
}

func NewController(runtime Runtime, tracker *Tracker, stopTimeout time.Duration) *Controller {
	return &Controller{runtime: runtime, tracker: tracker, stopTimeout: stopTimeout}
}

func (c *Controller) Tracker() *Tracker {
	return c.tracker
}

// Status returns the effective container status.
func (c *Controller) Status(ctx context.Context) (string, error) {
	status, err := c.runtime.Inspect(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return NotFoundStatus, nil
		}
		return "", fmt.Errorf("failed to inspect container: %w", err)
	}
	return c.tracker.EffectiveStatus(status), nil
}

func (c *Controller) Start(ctx context.Context) (string, error) {
	c.tracker.SetStarting()
	status, err := c.runtime.Start(ctx)
	if err != nil {
		c.tracker.Clear()
		slog.Error("Failed to start container", "error", err)
		return "", fmt.Errorf("failed to start container: %w", err)
	}
	return c.tracker.EffectiveStatus(status), nil
}

func (c *Controller) Stop(ctx context.Context) (string, error) {
	c.tracker.SetStopping()
	status, err := c.runtime.Stop(ctx, c.stopTimeout)
	if err != nil {
		c.tracker.Clear()
		slog.Error("Failed to stop container", "error", err)
		return "", fmt.Errorf("failed to stop container: %w", err)
	}
	return c.tracker.EffectiveStatus(status), nil
}
