// Package gtkbus defines the D-Bus schema shared by the GTK helper
// processes and the in-process capability proxy.
package gtkbus

import "github.com/godbus/dbus/v5"

// D-Bus interface and path constants for the GTK integration helpers.
const (
	Interface  = "org.halcyon.desktop.GtkIntegration"
	ObjectPath = dbus.ObjectPath("/org/halcyon/desktop/GtkIntegration")

	// Signal emitted by a helper when an open-with dialog resolves.
	OpenWithDialogResponse = "OpenWithDialogResponse"
)

// IntrospectionXML describes the helper object. It is served verbatim so
// the wire schema never drifts from what the proxy expects.
const IntrospectionXML = `<node>
	<interface name='org.halcyon.desktop.GtkIntegration'>
		<method name='Load'>
			<arg type='s' name='allowed-backends' direction='in'/>
		</method>
		<method name='ShowOpenWithDialog'>
			<arg type='s' name='parent' direction='in'/>
			<arg type='s' name='filepath' direction='in'/>
		</method>
		<signal name='OpenWithDialogResponse'>
			<arg type='b' name='result' direction='out'/>
		</signal>
	</interface>
	<interface name='org.freedesktop.DBus.Introspectable'>
		<method name='Introspect'>
			<arg type='s' name='xml' direction='out'/>
		</method>
	</interface>
</node>`

// Type identifies which integration a helper process hosts.
type Type int

const (
	// TypeBase hosts the plain GTK library for theme and settings lookup.
	TypeBase Type = iota
	// TypeWebview hosts an embedded web view. Helpers of this type are
	// spawned on demand by the webview component, one per slot.
	TypeWebview
	// TypeApp hosts the application-level GTK capabilities (the
	// open-with dialog).
	TypeApp
)

func (t Type) String() string {
	switch t {
	case TypeBase:
		return "base"
	case TypeWebview:
		return "webview"
	case TypeApp:
		return "app"
	}
	return "unknown"
}
