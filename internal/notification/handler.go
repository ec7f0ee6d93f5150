package notification

import (
	"fmt"
	"log/slog"
	"sync"
)

// crashThreshold is how many bus disappearances a helper gets before the
// user is told about it. A single drop is routine (session logout,
// upgrade); repeated drops mean the helper cannot hold its identity.
const crashThreshold = 3

// Handler watches helper lifecycle events and raises a desktop
// notification when a helper keeps falling off the bus.
type Handler struct {
	notifier Notifier

	mu      sync.Mutex
	crashes map[string]int
	posted  map[string]uint32
}

// NewHandler creates a lifecycle handler over the given notifier.
func NewHandler(notifier Notifier) *Handler {
	return &Handler{
		notifier: notifier,
		crashes:  make(map[string]int),
		posted:   make(map[string]uint32),
	}
}

// HelperVanished records a disappearance of the given service identity.
// Every crashThreshold disappearances the user is alerted; an existing
// alert for the same identity is withdrawn first so they never stack.
func (h *Handler) HelperVanished(service string) {
	h.mu.Lock()
	h.crashes[service]++
	count := h.crashes[service]
	prev, hadPrev := h.posted[service]
	h.mu.Unlock()

	if count%crashThreshold != 0 {
		return
	}

	if hadPrev {
		if err := h.notifier.Close(prev); err != nil {
			slog.Debug("failed to close previous crash notification", "service", service, "error", err)
		}
	}

	id, err := h.notifier.Notify(
		"GTK integration degraded",
		fmt.Sprintf("Helper %s dropped off the bus %d times and keeps being restarted.", service, count),
		"dialog-warning")
	if err != nil {
		slog.Warn("failed to post helper crash notification", "service", service, "error", err)
		return
	}

	h.mu.Lock()
	h.posted[service] = id
	h.mu.Unlock()
}
