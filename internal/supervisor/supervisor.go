// Package supervisor spawns and watches the GTK helper processes. Each
// integration type gets a deterministic bus identity derived from the
// working directory; the supervisor launches the helper under that
// identity, restarts it when it falls off the bus, and re-issues the
// capability handshake when it (re)appears.
package supervisor

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/godbus/dbus/v5"

	"github.com/halcyon-im/gtkbridge/internal/gtkbus"
)

// Config assembles a Supervisor. All fields are optional; zero values
// select production behavior.
type Config struct {
	// BusAddress connects to a custom bus instead of the shared
	// session bus connection. Used by tests.
	BusAddress string

	// WorkDir roots the service identity. Defaults to the process
	// working directory.
	WorkDir string

	// ExePath is the helper binary. Defaults to the running
	// executable (helpers are the same binary in a different mode).
	ExePath string

	// Spawn launches a detached helper process. Tests substitute a
	// recorder; the default starts ExePath with Setsid.
	Spawn func(exe string, args ...string) error

	// OnAppeared runs whenever a watched helper (re)appears on the
	// bus, to re-issue the initial Load handshake.
	OnAppeared func(t gtkbus.Type)

	// OnVanished runs whenever a watched helper drops off the bus,
	// before the automatic restart.
	OnVanished func(t gtkbus.Type)
}

// Supervisor manages helper processes for one application instance.
type Supervisor struct {
	busAddress string
	workDir    string
	exePath    string
	spawn      func(exe string, args ...string) error
	onAppeared func(t gtkbus.Type)
	onVanished func(t gtkbus.Type)

	connOnce sync.Once
	conn     *dbus.Conn
	connErr  error

	mu      sync.Mutex
	watched map[string]gtkbus.Type // service name -> type
	signals chan *dbus.Signal
	pumping bool
}

// New creates a Supervisor. Nothing is spawned or watched until Start
// and Autorestart are called per type.
func New(cfg Config) *Supervisor {
	workDir := cfg.WorkDir
	if workDir == "" {
		if wd, err := os.Getwd(); err == nil {
			workDir = wd
		}
	}
	exePath := cfg.ExePath
	if exePath == "" {
		if exe, err := os.Executable(); err == nil {
			exePath = exe
		}
	}
	spawn := cfg.Spawn
	if spawn == nil {
		spawn = spawnDetached
	}
	return &Supervisor{
		busAddress: cfg.BusAddress,
		workDir:    workDir,
		exePath:    exePath,
		spawn:      spawn,
		onAppeared: cfg.OnAppeared,
		onVanished: cfg.OnVanished,
		watched:    make(map[string]gtkbus.Type),
		signals:    make(chan *dbus.Signal, 16),
	}
}

// ServiceName returns the bus identity computed for the given type under
// this supervisor's working directory.
func (s *Supervisor) ServiceName(t gtkbus.Type) string {
	return gtkbus.ServiceName(t, s.workDir)
}

// Start spawns a helper of the given type, passing the parent's unique
// bus name and the computed service identity as positional arguments.
// Helpers are a best-effort sidecar: spawn and bus failures are logged
// and absorbed, never fatal. For the webview type only the identity is
// established; the webview component spawns its own helpers on demand.
func (s *Supervisor) Start(t gtkbus.Type) {
	switch t {
	case gtkbus.TypeBase, gtkbus.TypeApp:
	case gtkbus.TypeWebview:
		return
	default:
		return
	}

	conn, err := s.bus()
	if err != nil {
		slog.Debug("session bus unavailable, skipping gtk helper", "type", t, "error", err)
		return
	}

	name := s.ServiceName(t)
	parent := conn.Names()[0]

	args := []string{helperSubcommand(t)}
	if s.busAddress != "" {
		args = append(args, "-bus-address="+s.busAddress)
	}
	args = append(args, parent, name)
	if err := s.spawn(s.exePath, args...); err != nil {
		slog.Warn("failed to spawn gtk helper", "type", t, "service", name, "error", err)
		return
	}
	slog.Info("spawned gtk helper", "type", t, "service", name)
}

// Autorestart installs a persistent watch on the helper's service
// identity: disappearance triggers Start again, (re)appearance triggers
// the OnAppeared handshake. Idempotent per type; a second call for the
// same type does not double-register the watch.
func (s *Supervisor) Autorestart(t gtkbus.Type) {
	if t != gtkbus.TypeBase && t != gtkbus.TypeApp {
		return
	}

	conn, err := s.bus()
	if err != nil {
		slog.Debug("session bus unavailable, skipping helper watch", "type", t, "error", err)
		return
	}

	name := s.ServiceName(t)

	s.mu.Lock()
	if _, ok := s.watched[name]; ok {
		s.mu.Unlock()
		return
	}
	s.watched[name] = t
	s.mu.Unlock()

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchSender("org.freedesktop.DBus"),
		dbus.WithMatchArg(0, name),
	); err != nil {
		slog.Warn("failed to watch helper service", "service", name, "error", err)
		s.mu.Lock()
		delete(s.watched, name)
		s.mu.Unlock()
		return
	}

	// Mark the pump running only once a match rule is in place, so a
	// failed first watch does not leave later watches without a reader.
	s.mu.Lock()
	startPump := !s.pumping
	s.pumping = true
	s.mu.Unlock()

	if startPump {
		conn.Signal(s.signals)
		go s.pump()
	}
}

// pump handles NameOwnerChanged for all watched identities for the
// process lifetime.
func (s *Supervisor) pump() {
	for sig := range s.signals {
		if sig.Name != "org.freedesktop.DBus.NameOwnerChanged" || len(sig.Body) != 3 {
			continue
		}
		name, ok1 := sig.Body[0].(string)
		newOwner, ok3 := sig.Body[2].(string)
		if !ok1 || !ok3 {
			continue
		}

		s.mu.Lock()
		t, watched := s.watched[name]
		s.mu.Unlock()
		if !watched {
			continue
		}

		if newOwner == "" {
			slog.Info("gtk helper vanished, restarting", "type", t, "service", name)
			if s.onVanished != nil {
				s.onVanished(t)
			}
			s.Start(t)
		} else {
			slog.Debug("gtk helper appeared", "type", t, "service", name, "owner", newOwner)
			if s.onAppeared != nil {
				s.onAppeared(t)
			}
		}
	}
}

// bus returns the supervisor's bus connection, dialing it on first use.
func (s *Supervisor) bus() (*dbus.Conn, error) {
	s.connOnce.Do(func() {
		if s.busAddress == "" {
			s.conn, s.connErr = gtkbus.SessionConn()
		} else {
			s.conn, s.connErr = dbus.Connect(s.busAddress)
		}
	})
	return s.conn, s.connErr
}

func helperSubcommand(t gtkbus.Type) string {
	if t == gtkbus.TypeBase {
		return "base-helper"
	}
	return "app-helper"
}

// spawnDetached launches the helper in its own session so it survives
// independently of the parent's process group; helper lifetime is
// governed by the bus watch, not by process ancestry.
func spawnDetached(exe string, args ...string) error {
	cmd := exec.Command(exe, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", exe, err)
	}
	go cmd.Wait() //nolint:errcheck
	return nil
}
