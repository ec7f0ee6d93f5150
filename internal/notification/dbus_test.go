package notification

import (
	"sync"
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/halcyon-im/gtkbridge/internal/testutil"
)

// stubNotifyService implements enough of org.freedesktop.Notifications
// to verify the wire calls.
type stubNotifyService struct {
	mu       sync.Mutex
	lastApp  string
	lastBody string
	closed   []uint32
}

func (s *stubNotifyService) Notify(appName string, replacesID uint32, icon, summary, body string,
	actions []string, hints map[string]dbus.Variant, timeout int32) (uint32, *dbus.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastApp = appName
	s.lastBody = body
	return 42, nil
}

func (s *stubNotifyService) CloseNotification(id uint32) *dbus.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, id)
	return nil
}

func TestDBusNotifier_NotifyAndClose(t *testing.T) {
	addr := testutil.StartSessionBus(t)

	conn, err := dbus.Connect(addr)
	if err != nil {
		t.Fatalf("connect stub: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	stub := &stubNotifyService{}
	if err := conn.Export(stub, notifyPath, notifyInterface); err != nil {
		t.Fatalf("export stub: %v", err)
	}
	if reply, err := conn.RequestName(notifyDest, dbus.NameFlagDoNotQueue); err != nil || reply != dbus.RequestNameReplyPrimaryOwner {
		t.Fatalf("claim %s: %v", notifyDest, err)
	}

	n, err := NewDBusNotifier(addr)
	if err != nil {
		t.Fatalf("NewDBusNotifier: %v", err)
	}
	defer n.Stop()

	id, err := n.Notify("Helper down", "the body", "dialog-warning")
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if id != 42 {
		t.Errorf("notification id = %d, want 42", id)
	}

	stub.mu.Lock()
	if stub.lastApp != "gtkbridge" || stub.lastBody != "the body" {
		t.Errorf("stub saw app=%q body=%q", stub.lastApp, stub.lastBody)
	}
	stub.mu.Unlock()

	if err := n.Close(42); err != nil {
		t.Fatalf("Close: %v", err)
	}
	stub.mu.Lock()
	if len(stub.closed) != 1 || stub.closed[0] != 42 {
		t.Errorf("closed = %v, want [42]", stub.closed)
	}
	stub.mu.Unlock()
}
