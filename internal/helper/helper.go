// Package helper implements the GTK helper process: the code path
// executed when the binary is launched in helper mode. It owns one bus
// connection, registers the integration object under the service name
// the parent computed, and blocks until the parent vanishes from the
// bus.
package helper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/halcyon-im/gtkbridge/internal/gtkbus"
	"github.com/halcyon-im/gtkbridge/internal/integration"
)

// Config holds helper startup parameters, passed positionally by the
// supervising parent process.
type Config struct {
	// Type selects which integration this helper hosts. Only TypeBase
	// and TypeApp run the built-in runtime; webview helpers are hosted
	// by the webview component.
	Type gtkbus.Type

	// ParentBusName is the parent's unique bus name. It is the single
	// identity authorized to call methods on this helper, and its
	// disappearance ends the helper's life.
	ParentBusName string

	// ServiceName is the deterministic bus identity to claim.
	ServiceName string

	// BusAddress connects to a custom bus instead of the session bus.
	// Used by integration tests to point at a private dbus-daemon.
	BusAddress string

	// Capability overrides the local integration the dispatcher calls
	// into. Tests substitute a stub; production leaves it nil.
	Capability Capability
}

// Run registers the helper on the bus and blocks until the parent
// disappears (clean shutdown, nil) or ctx is cancelled. Registration and
// connection failures return an error; the caller maps that to a
// non-zero exit code.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Type != gtkbus.TypeBase && cfg.Type != gtkbus.TypeApp {
		return fmt.Errorf("helper type %s is not hosted by this runtime", cfg.Type)
	}
	if cfg.ParentBusName == "" || cfg.ServiceName == "" {
		return fmt.Errorf("parent bus name and service name are required")
	}

	var conn *dbus.Conn
	var err error
	if cfg.BusAddress == "" {
		conn, err = dbus.ConnectSessionBus()
	} else {
		conn, err = dbus.Connect(cfg.BusAddress)
	}
	if err != nil {
		return fmt.Errorf("connect to bus: %w", err)
	}
	defer conn.Close()

	capability := cfg.Capability
	if capability == nil {
		capability = integration.New(integration.Config{Type: cfg.Type})
	}

	dispatcher := NewDispatcher(conn, cfg.ParentBusName, cfg.ServiceName, capability)

	if err := conn.Export(dispatcher, gtkbus.ObjectPath, gtkbus.Interface); err != nil {
		return fmt.Errorf("export integration object: %w", err)
	}
	if err := conn.Export(introspectable{}, gtkbus.ObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspectable: %w", err)
	}

	// Watch the parent before claiming the name so its loss is never
	// missed between registration and the dispatch loop.
	signals := make(chan *dbus.Signal, 16)
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchSender("org.freedesktop.DBus"),
		dbus.WithMatchArg(0, cfg.ParentBusName),
	); err != nil {
		return fmt.Errorf("watch parent: %w", err)
	}
	conn.Signal(signals)

	reply, err := conn.RequestName(cfg.ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request bus name %q: %w", cfg.ServiceName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("not primary owner of %q (reply=%d): another helper already registered", cfg.ServiceName, reply)
	}

	slog.Info("helper ready",
		"type", cfg.Type,
		"service", cfg.ServiceName,
		"parent", cfg.ParentBusName)

	for {
		select {
		case <-ctx.Done():
			slog.Info("helper shutting down", "reason", "context cancelled")
			return nil
		case sig, ok := <-signals:
			if !ok {
				return fmt.Errorf("bus connection closed")
			}
			if !parentVanished(sig, cfg.ParentBusName) {
				continue
			}
			slog.Info("helper shutting down", "reason", "parent vanished")
			return nil
		}
	}
}

// parentVanished reports whether sig is the NameOwnerChanged announcing
// that the parent's unique name lost its owner.
func parentVanished(sig *dbus.Signal, parent string) bool {
	if sig.Name != "org.freedesktop.DBus.NameOwnerChanged" || len(sig.Body) != 3 {
		return false
	}
	name, ok1 := sig.Body[0].(string)
	newOwner, ok3 := sig.Body[2].(string)
	if !ok1 || !ok3 {
		return false
	}
	return name == parent && newOwner == ""
}

// introspectable serves the fixed schema so the wire contract cannot
// drift from what the proxy expects.
type introspectable struct{}

func (introspectable) Introspect() (string, *dbus.Error) {
	return gtkbus.IntrospectionXML, nil
}
