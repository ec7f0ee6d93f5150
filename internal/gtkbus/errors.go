package gtkbus

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Standard D-Bus error names used at the bus boundary.
const (
	errNameAccessDenied  = "org.freedesktop.DBus.Error.AccessDenied"
	errNameUnknownMethod = "org.freedesktop.DBus.Error.UnknownMethod"
	errNameFailed        = "org.freedesktop.DBus.Error.Failed"
)

// Sentinel errors for the proxy's enumerable failure taxonomy. Callers
// can distinguish why a capability degraded instead of receiving a
// silently swallowed fault.
var (
	// ErrBusUnavailable means no session bus connection could be
	// obtained; all operations degrade to no-op/false.
	ErrBusUnavailable = errors.New("session bus unavailable")
	// ErrAccessDenied means the helper rejected the caller's identity.
	ErrAccessDenied = errors.New("helper denied access")
	// ErrUnknownMethod means the helper does not implement the
	// requested operation (or could not resolve its capability object).
	ErrUnknownMethod = errors.New("helper does not implement method")
	// ErrToolkit means the native toolkit failed to load or to create
	// a dialog.
	ErrToolkit = errors.New("toolkit failure")
	// ErrDialogTimeout means no response signal arrived before the
	// dialog wait expired.
	ErrDialogTimeout = errors.New("dialog response timed out")
)

// DBusErrAccessDenied is returned to callers whose bus identity does not
// match the helper's recorded parent.
func DBusErrAccessDenied() *dbus.Error {
	return &dbus.Error{Name: errNameAccessDenied, Body: []interface{}{"Access denied."}}
}

// DBusErrUnknownMethod is returned for unrecognized methods and when the
// helper's capability object cannot be resolved.
func DBusErrUnknownMethod() *dbus.Error {
	return &dbus.Error{Name: errNameUnknownMethod, Body: []interface{}{"Method does not exist."}}
}

// DBusErrFailed wraps an internal fault into a generic bus error.
func DBusErrFailed(err error) *dbus.Error {
	return &dbus.Error{Name: errNameFailed, Body: []interface{}{err.Error()}}
}

// ClassifyCallError maps an error from a synchronous bus call onto the
// sentinel taxonomy, preserving the original message.
func ClassifyCallError(err error) error {
	if err == nil {
		return nil
	}
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		switch dbusErr.Name {
		case errNameAccessDenied:
			return fmt.Errorf("%w: %s", ErrAccessDenied, dbusErr.Error())
		case errNameUnknownMethod,
			"org.freedesktop.DBus.Error.ServiceUnknown",
			"org.freedesktop.DBus.Error.NameHasNoOwner":
			return fmt.Errorf("%w: %s", ErrUnknownMethod, dbusErr.Error())
		}
	}
	if errors.Is(err, dbus.ErrClosed) {
		return fmt.Errorf("%w: %v", ErrBusUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrToolkit, err)
}
