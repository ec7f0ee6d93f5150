package helper

import "github.com/godbus/dbus/v5"

// resolveSender asks the bus daemon for the PID and UID behind a sender
// identity, for logging rejected callers. Best effort: zero values on
// failure, never an error.
func resolveSender(conn *dbus.Conn, sender string) (pid, uid uint32) {
	busObj := conn.Object("org.freedesktop.DBus", "/org/freedesktop/DBus")

	if call := busObj.Call("org.freedesktop.DBus.GetConnectionUnixProcessID", 0, sender); call.Err == nil {
		call.Store(&pid) //nolint:errcheck
	}
	if call := busObj.Call("org.freedesktop.DBus.GetConnectionUnixUser", 0, sender); call.Err == nil {
		call.Store(&uid) //nolint:errcheck
	}
	return pid, uid
}
