package helper

import (
	"context"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/halcyon-im/gtkbridge/internal/gtk"
	"github.com/halcyon-im/gtkbridge/internal/gtkbus"
	"github.com/halcyon-im/gtkbridge/internal/logging"
)

// Capability is the local integration surface the dispatcher forwards
// into. The indirection keeps the bus object testable without a display
// or a GTK install.
type Capability interface {
	Load(allowedBackends string) error
	CreateDialog(parent, filepath string) (gtk.Dialog, error)
}

// Dispatcher is the object exported under gtkbus.ObjectPath. Every call
// is authenticated against the single parent identity recorded at
// construction; anything else is rejected before a handler runs.
type Dispatcher struct {
	conn       *dbus.Conn
	parent     string
	capability Capability
	audit      *logging.Logger
}

// NewDispatcher creates the bus object for the helper registered under
// service.
func NewDispatcher(conn *dbus.Conn, parent, service string, capability Capability) *Dispatcher {
	return &Dispatcher{
		conn:       conn,
		parent:     parent,
		capability: capability,
		audit:      logging.New(service),
	}
}

// Load binds the toolkit in-process. Internal faults surface as a
// generic failed reply; they never crash the dispatch loop.
func (d *Dispatcher) Load(sender dbus.Sender, allowedBackends string) *dbus.Error {
	if dbusErr := d.authorize(sender, "Load"); dbusErr != nil {
		return dbusErr
	}
	if d.capability == nil {
		return gtkbus.DBusErrUnknownMethod()
	}
	err := d.capability.Load(allowedBackends)
	d.audit.LogMethod(context.Background(), "Load", string(sender),
		map[string]any{"allowed_backends": allowedBackends}, err)
	if err != nil {
		return gtkbus.DBusErrFailed(err)
	}
	return nil
}

// ShowOpenWithDialog creates the native dialog and replies immediately,
// acknowledging creation only. The dialog's eventual outcome travels
// back as a single OpenWithDialogResponse signal addressed to the
// parent, decoupled from this call because the dialog's lifetime is
// bound to the toolkit's own event processing.
func (d *Dispatcher) ShowOpenWithDialog(sender dbus.Sender, parent, filepath string) *dbus.Error {
	if dbusErr := d.authorize(sender, "ShowOpenWithDialog"); dbusErr != nil {
		return dbusErr
	}
	if d.capability == nil {
		return gtkbus.DBusErrUnknownMethod()
	}

	dialog, err := d.capability.CreateDialog(parent, filepath)
	d.audit.LogMethod(context.Background(), "ShowOpenWithDialog", string(sender),
		map[string]any{"filepath": filepath}, err)
	if err != nil || dialog == nil {
		return gtkbus.DBusErrUnknownMethod()
	}

	go d.forwardResponse(dialog)
	return nil
}

// forwardResponse waits for the dialog to resolve and emits the result
// to the parent. The dialog's response channel fires at most once, so at
// most one signal is ever emitted per triggering call.
func (d *Dispatcher) forwardResponse(dialog gtk.Dialog) {
	result, ok := <-dialog.Response()
	if ok {
		if err := d.emitResponse(result); err != nil {
			slog.Warn("emit dialog response failed", "error", err)
		}
	}
	dialog.Destroy()
}

// emitResponse sends OpenWithDialogResponse as a targeted signal: only
// the parent receives it, matching the single-tenant access model.
func (d *Dispatcher) emitResponse(result bool) error {
	msg := &dbus.Message{
		Type: dbus.TypeSignal,
		Headers: map[dbus.HeaderField]dbus.Variant{
			dbus.FieldPath:        dbus.MakeVariant(gtkbus.ObjectPath),
			dbus.FieldInterface:   dbus.MakeVariant(gtkbus.Interface),
			dbus.FieldMember:      dbus.MakeVariant(gtkbus.OpenWithDialogResponse),
			dbus.FieldDestination: dbus.MakeVariant(d.parent),
			dbus.FieldSignature:   dbus.MakeVariant(dbus.SignatureOf(result)),
		},
		Body: []interface{}{result},
	}
	return d.conn.Send(msg, nil).Err
}

// authorize rejects any sender other than the recorded parent. Denied
// callers are logged with their bus-resolved credentials.
func (d *Dispatcher) authorize(sender dbus.Sender, method string) *dbus.Error {
	if string(sender) == d.parent {
		return nil
	}
	pid, uid := resolveSender(d.conn, string(sender))
	d.audit.LogDenied(context.Background(), method, string(sender), pid, uid)
	return gtkbus.DBusErrAccessDenied()
}
