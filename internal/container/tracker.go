package container

import (
	"sync"
	"time"
)

// TransitionalTimeout bounds how long a starting/stopping overlay may mask the
// runtime status without being reconciled.
const TransitionalTimeout = 5 * time.Minute

const (
	Starting = "starting"
	Stopping = "stopping"

	Running = "running"
	Exited  = "exited"
)

// Tracker overlays operator intent (starting, stopping) on top of the status
// reported by the container runtime until the runtime catches up or the
// overlay expires.
type Tracker struct {
	mu    sync.Mutex
	value string
	setAt time.Time
	now   func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

func (t *Tracker) SetStarting() {
	t.set(Starting)
}

func (t *Tracker) SetStopping() {
	t.set(Stopping)
}

func (t *Tracker) set(value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.value = value
	t.setAt = t.now()
}

func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearLocked()
}

func (t *Tracker) clearLocked() {
	t.value = ""
	t.setAt = time.Time{}
}

// Transitional returns the active overlay and when it was set. An empty value
// means none is active.
func (t *Tracker) Transitional() (string, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expireLocked()
	return t.value, t.setAt
}

func (t *Tracker) expireLocked() {
	if t.value != "" && t.now().Sub(t.setAt) > TransitionalTimeout {
		t.clearLocked()
	}
}

// EffectiveStatus reconciles runtimeStatus with the overlay.
func (t *Tracker) EffectiveStatus(runtimeStatus string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.expireLocked()
	switch {
	case t.value == "":
		return runtimeStatus
	case t.value == Starting && runtimeStatus == Running:
		t.clearLocked()
		return runtimeStatus
	case t.value == Stopping && runtimeStatus == Exited:
		t.clearLocked()
		return runtimeStatus
	default:
		return t.value
	}
}
