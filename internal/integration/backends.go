package integration

import (
	"os"
	"strconv"
)

// WindowSource reports the active top-level window so a native dialog
// can be parented to it. Implementations come from the embedding
// application's windowing layer.
type WindowSource interface {
	// WaylandHandle returns the xdg_foreign export handle of the
	// active window, if running under Wayland.
	WaylandHandle() (string, bool)
	// X11ID returns the X window ID of the active window, if running
	// under X11.
	X11ID() (uint64, bool)
}

// parentWindowRef computes the platform-appropriate parent window
// reference string, preferring Wayland over X11.
func (i *Integration) parentWindowRef() string {
	i.mu.Lock()
	ws := i.windows
	i.mu.Unlock()

	if ws == nil {
		return ""
	}
	if handle, ok := ws.WaylandHandle(); ok && handle != "" {
		return "wayland:" + handle
	}
	if id, ok := ws.X11ID(); ok {
		return "x11:" + strconv.FormatUint(id, 16)
	}
	return ""
}

// AllowedBackends returns the GDK backend preference list for the
// current session: the native windowing system first, its sibling as
// fallback, or empty when neither is detectable.
func AllowedBackends() string {
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		return "wayland,x11"
	}
	if os.Getenv("DISPLAY") != "" {
		return "x11,wayland"
	}
	return ""
}
