// Package notification posts desktop notifications about helper health.
package notification

import (
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notifyDest      = "org.freedesktop.Notifications"
	notifyPath      = "/org/freedesktop/Notifications"
	notifyInterface = "org.freedesktop.Notifications"
)

// Notifier defines the interface for sending desktop notifications.
type Notifier interface {
	// Notify sends a notification and returns its ID.
	Notify(summary, body, icon string) (uint32, error)
	// Close closes a notification by ID.
	Close(id uint32) error
}

// DBusNotifier sends notifications over the session bus. It
// automatically reconnects if the connection drops.
type DBusNotifier struct {
	busAddress string

	mu   sync.Mutex
	conn *dbus.Conn
}

// NewDBusNotifier creates a notifier on a private session bus
// connection. busAddress overrides the session bus for tests; empty
// selects the session bus.
func NewDBusNotifier(busAddress string) (*DBusNotifier, error) {
	n := &DBusNotifier{busAddress: busAddress}
	if err := n.connect(); err != nil {
		return nil, err
	}
	return n, nil
}

// connect establishes a private bus connection.
// Must be called with n.mu held (or during construction).
func (n *DBusNotifier) connect() error {
	var conn *dbus.Conn
	var err error
	if n.busAddress == "" {
		conn, err = dbus.ConnectSessionBus()
	} else {
		conn, err = dbus.Connect(n.busAddress)
	}
	if err != nil {
		return fmt.Errorf("connect to session bus: %w", err)
	}
	n.conn = conn
	return nil
}

// reconnect closes the dead connection and establishes a new one.
// Must be called with n.mu held.
func (n *DBusNotifier) reconnect() error {
	if n.conn != nil {
		n.conn.Close()
	}
	if err := n.connect(); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	return nil
}

// Stop closes the D-Bus connection.
func (n *DBusNotifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		n.conn.Close()
	}
}

// Notify sends a desktop notification.
// If the D-Bus connection is dead, it reconnects and retries once.
func (n *DBusNotifier) Notify(summary, body, icon string) (uint32, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id, err := n.doNotify(summary, body, icon)
	if err != nil && errors.Is(err, dbus.ErrClosed) {
		if reconnErr := n.reconnect(); reconnErr != nil {
			return 0, fmt.Errorf("notify call: %w (reconnect failed: %v)", err, reconnErr)
		}
		id, err = n.doNotify(summary, body, icon)
	}
	return id, err
}

func (n *DBusNotifier) doNotify(summary, body, icon string) (uint32, error) {
	obj := n.conn.Object(notifyDest, notifyPath)
	call := obj.Call(
		notifyInterface+".Notify",
		0,
		"gtkbridge", // app_name
		uint32(0),   // replaces_id (0 = new notification)
		icon,        // app_icon
		summary,     // summary
		body,        // body
		[]string{},  // actions
		map[string]dbus.Variant{
			"urgency": dbus.MakeVariant(byte(1)), // normal
		},
		int32(-1), // expire_timeout (-1 = server default)
	)
	if call.Err != nil {
		return 0, fmt.Errorf("notify call: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("store notify result: %w", err)
	}
	return id, nil
}

// Close closes a notification by ID.
// If the D-Bus connection is dead, it reconnects and retries once.
func (n *DBusNotifier) Close(id uint32) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	err := n.doClose(id)
	if err != nil && errors.Is(err, dbus.ErrClosed) {
		if reconnErr := n.reconnect(); reconnErr != nil {
			return fmt.Errorf("close notification: %w (reconnect failed: %v)", err, reconnErr)
		}
		err = n.doClose(id)
	}
	return err
}

func (n *DBusNotifier) doClose(id uint32) error {
	obj := n.conn.Object(notifyDest, notifyPath)
	call := obj.Call(notifyInterface+".CloseNotification", 0, id)
	if call.Err != nil {
		return fmt.Errorf("close notification: %w", call.Err)
	}
	return nil
}
