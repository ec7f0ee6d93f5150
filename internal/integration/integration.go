// Package integration implements the capability proxy the main process
// holds for each GTK helper. In remoting mode operations are fulfilled
// by synchronous bus calls into the helper; inside a helper process the
// same operations run locally against the loaded toolkit.
package integration

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/halcyon-im/gtkbridge/internal/gtk"
	"github.com/halcyon-im/gtkbridge/internal/gtkbus"
)

// DefaultDialogTimeout bounds the wait for a dialog response signal.
// The helper's dialog has no inherent deadline; without a timeout a lost
// signal would block the caller forever.
const DefaultDialogTimeout = 5 * time.Minute

// ErrAlreadyLoaded is returned when Load is called twice in local mode.
// Repeated loading is a programming error in the caller, but it must not
// crash the helper's dispatch loop.
var ErrAlreadyLoaded = errors.New("gtk integration already loaded")

// Config assembles an Integration. The zero value is not usable; use
// ForType for process-wide instances or New in tests and helpers.
type Config struct {
	Type gtkbus.Type

	// Remoting selects the execution mode: true in the main process
	// (operations become bus calls), false inside the helper process.
	Remoting bool

	// Conn is the bus connection used in remoting mode. nil puts the
	// proxy in degraded mode: every operation fails fast with
	// ErrBusUnavailable.
	Conn *dbus.Conn

	// ServiceName is the helper's bus identity (remoting mode only).
	ServiceName string

	// DialogTimeout overrides DefaultDialogTimeout when positive.
	DialogTimeout time.Duration

	// Windows supplies the active top-level window for dialog
	// parenting. Optional.
	Windows WindowSource

	// ModalGuard is invoked before a dialog wait begins; the returned
	// function releases the guard afterwards. Optional.
	ModalGuard func() func()
}

// Integration is the capability proxy for one helper type.
type Integration struct {
	typ         gtkbus.Type
	remoting    bool
	conn        *dbus.Conn
	serviceName string
	timeout     time.Duration
	modalGuard  func() func()

	mu      sync.Mutex
	windows WindowSource
	lib     *gtk.Library
}

// New builds an Integration from an explicit configuration. Most callers
// want ForType; New exists for helper processes and tests.
func New(cfg Config) *Integration {
	timeout := cfg.DialogTimeout
	if timeout <= 0 {
		timeout = DefaultDialogTimeout
	}
	guard := cfg.ModalGuard
	if guard == nil {
		guard = func() func() { return func() {} }
	}
	return &Integration{
		typ:         cfg.Type,
		remoting:    cfg.Remoting,
		conn:        cfg.Conn,
		serviceName: cfg.ServiceName,
		timeout:     timeout,
		modalGuard:  guard,
		windows:     cfg.Windows,
	}
}

// Process-wide instances, one per type, created on first use.
var (
	instancesMu sync.Mutex
	instances   = make(map[gtkbus.Type]*Integration)

	settingsMu sync.Mutex
	settings   = Settings{}
)

// Settings configure the process-wide instances created by ForType.
type Settings struct {
	WorkDir       string
	DialogTimeout time.Duration
	Windows       WindowSource
	ModalGuard    func() func()
}

// Configure sets the parameters ForType uses when it first creates an
// instance. It has no effect on instances that already exist, so call it
// during startup before any ForType use.
func Configure(s Settings) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	settings = s
}

// ForType returns the process-wide remoting proxy for the given helper
// type, creating it on first use. The session bus is dialed lazily; if
// it cannot be obtained the instance operates in degraded mode.
func ForType(t gtkbus.Type) *Integration {
	instancesMu.Lock()
	defer instancesMu.Unlock()

	if i, ok := instances[t]; ok {
		return i
	}

	settingsMu.Lock()
	s := settings
	settingsMu.Unlock()

	workDir := s.WorkDir
	if workDir == "" {
		if wd, err := os.Getwd(); err == nil {
			workDir = wd
		}
	}

	conn, err := gtkbus.SessionConn()
	if err != nil {
		slog.Debug("session bus unavailable, gtk integration degraded", "type", t, "error", err)
		conn = nil
	}

	i := New(Config{
		Type:          t,
		Remoting:      true,
		Conn:          conn,
		ServiceName:   gtkbus.ServiceName(t, workDir),
		DialogTimeout: s.DialogTimeout,
		Windows:       s.Windows,
		ModalGuard:    s.ModalGuard,
	})
	instances[t] = i
	return i
}

// SetWindows replaces the active-window source.
func (i *Integration) SetWindows(ws WindowSource) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.windows = ws
}

// Loaded reports whether the local toolkit has been bound.
func (i *Integration) Loaded() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lib != nil
}

// Load prepares the toolkit. In remoting mode it forwards the request to
// the helper over the bus; failures are classified, not propagated as
// faults. In local mode it binds the GTK symbol table through the
// capability adapter; calling it twice locally returns ErrAlreadyLoaded.
func (i *Integration) Load(allowedBackends string) error {
	if i.remoting {
		if i.conn == nil {
			return gtkbus.ErrBusUnavailable
		}
		call := i.conn.Object(i.serviceName, gtkbus.ObjectPath).Call(
			gtkbus.Interface+".Load", 0, allowedBackends)
		if call.Err != nil {
			return gtkbus.ClassifyCallError(call.Err)
		}
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.lib != nil {
		return ErrAlreadyLoaded
	}

	lib, err := gtk.Load(allowedBackends)
	if err != nil {
		return fmt.Errorf("%w: %v", gtkbus.ErrToolkit, err)
	}
	i.lib = lib
	slog.Info("gtk loaded", "type", i.typ, "allowed_backends", allowedBackends)
	return nil
}

// CreateDialog builds a native open-with dialog (local mode only). The
// helper's dispatcher uses it to decouple dialog creation from the
// response signal.
func (i *Integration) CreateDialog(parent, filepath string) (gtk.Dialog, error) {
	i.mu.Lock()
	lib := i.lib
	i.mu.Unlock()

	if i.remoting {
		return nil, errors.New("CreateDialog requires local mode")
	}
	if lib == nil {
		return nil, fmt.Errorf("%w: gtk not loaded", gtkbus.ErrToolkit)
	}
	dlg, err := lib.NewOpenWithDialog(parent, filepath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gtkbus.ErrToolkit, err)
	}
	return dlg, nil
}
