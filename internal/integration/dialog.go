package integration

import (
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/halcyon-im/gtkbridge/internal/gtkbus"
)

// ShowOpenWithDialog presents the native "open with" application chooser
// for filepath and reports whether the user picked an application. All
// bus and toolkit faults degrade to (false, classified error); the
// caller may treat any error as "feature unavailable".
func (i *Integration) ShowOpenWithDialog(filepath string) (bool, error) {
	parent := i.parentWindowRef()
	if i.remoting {
		return i.showRemote(parent, filepath)
	}
	return i.showLocal(parent, filepath)
}

// showRemote triggers the dialog in the helper and waits for its
// OpenWithDialogResponse signal. The signal subscription is installed
// before the triggering call so a fast response cannot be lost, and it
// is removed unconditionally afterwards.
func (i *Integration) showRemote(parent, filepath string) (bool, error) {
	if i.conn == nil {
		return false, gtkbus.ErrBusUnavailable
	}

	// The response must come from the helper actually owning the
	// service name. Pinning its unique name keeps a stray peer from
	// resolving the dialog, and keeps the base and app proxies on the
	// shared connection from answering each other's waits.
	var owner string
	err := i.conn.BusObject().Call("org.freedesktop.DBus.GetNameOwner", 0, i.serviceName).Store(&owner)
	if err != nil {
		return false, gtkbus.ClassifyCallError(err)
	}

	signals := make(chan *dbus.Signal, 1)
	i.conn.Signal(signals)
	defer i.conn.RemoveSignal(signals)

	match := []dbus.MatchOption{
		dbus.WithMatchSender(owner),
		dbus.WithMatchObjectPath(gtkbus.ObjectPath),
		dbus.WithMatchInterface(gtkbus.Interface),
		dbus.WithMatchMember(gtkbus.OpenWithDialogResponse),
	}
	if err := i.conn.AddMatchSignal(match...); err != nil {
		return false, gtkbus.ClassifyCallError(err)
	}
	defer i.conn.RemoveMatchSignal(match...) //nolint:errcheck

	call := i.conn.Object(i.serviceName, gtkbus.ObjectPath).Call(
		gtkbus.Interface+".ShowOpenWithDialog", 0, parent, filepath)
	if call.Err != nil {
		return false, gtkbus.ClassifyCallError(call.Err)
	}

	release := i.modalGuard()
	defer release()

	timer := time.NewTimer(i.timeout)
	defer timer.Stop()

	for {
		select {
		case sig, ok := <-signals:
			if !ok {
				return false, gtkbus.ErrBusUnavailable
			}
			if sig.Sender != owner ||
				sig.Name != gtkbus.Interface+"."+gtkbus.OpenWithDialogResponse ||
				sig.Path != gtkbus.ObjectPath || len(sig.Body) != 1 {
				continue
			}
			result, ok := sig.Body[0].(bool)
			if !ok {
				continue
			}
			return result, nil
		case <-timer.C:
			return false, gtkbus.ErrDialogTimeout
		}
	}
}

// showLocal creates the dialog directly and waits on its own response.
func (i *Integration) showLocal(parent, filepath string) (bool, error) {
	dlg, err := i.CreateDialog(parent, filepath)
	if err != nil {
		return false, err
	}
	defer dlg.Destroy()

	release := i.modalGuard()
	defer release()

	timer := time.NewTimer(i.timeout)
	defer timer.Stop()

	select {
	case result, ok := <-dlg.Response():
		if !ok {
			return false, gtkbus.ErrToolkit
		}
		return result, nil
	case <-timer.C:
		return false, gtkbus.ErrDialogTimeout
	}
}
