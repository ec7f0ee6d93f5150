package gtkbus

import (
	"sync"

	"github.com/godbus/dbus/v5"
)

var (
	sessionOnce sync.Once
	sessionConn *dbus.Conn
	sessionErr  error
)

// SessionConn returns the process-wide session bus connection, dialing
// it on first use. The connection is shared by all integration traffic
// and is never torn down before process exit. A nil connection with an
// error means the process runs in degraded mode: helpers are neither
// spawned nor reachable.
func SessionConn() (*dbus.Conn, error) {
	sessionOnce.Do(func() {
		sessionConn, sessionErr = dbus.ConnectSessionBus()
	})
	return sessionConn, sessionErr
}
