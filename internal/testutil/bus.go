// Package testutil provides test utilities, mainly a private dbus-daemon
// for integration tests.
package testutil

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
)

// sessionConfigTemplate is the dbus-daemon config for integration tests.
// Access control in this project happens at the application level (the
// helper checks the caller's unique name), so the bus itself is
// permissive, like a standard session bus.
//
// Arg: sockPath
const sessionConfigTemplate = `<?xml version="1.0"?>
<!DOCTYPE busconfig PUBLIC "-//freedesktop//DTD D-BUS Bus Configuration 1.0//EN"
 "http://www.freedesktop.org/standards/dbus/1.0/busconfig.dtd">
<busconfig>
  <type>session</type>
  <listen>unix:path=%s</listen>
  <policy context="default">
    <allow user="*"/>
    <allow own="*"/>
    <allow send_type="method_call"/>
    <allow send_type="signal"/>
    <allow send_requested_reply="true" send_type="method_return"/>
    <allow send_requested_reply="true" send_type="error"/>
    <allow receive_type="method_call"/>
    <allow receive_type="method_return"/>
    <allow receive_type="error"/>
    <allow receive_type="signal"/>
  </policy>
</busconfig>`

// StartSessionBus starts a private dbus-daemon and returns its address.
// Uses filesystem sockets (NOT abstract) to avoid cross-test collisions.
// The daemon is killed when the test finishes.
func StartSessionBus(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	sockPath := filepath.Join(tmpDir, "test.sock")
	confPath := filepath.Join(tmpDir, "session.conf")

	conf := []byte(fmt.Sprintf(sessionConfigTemplate, sockPath))
	if err := os.WriteFile(confPath, conf, 0600); err != nil {
		t.Fatalf("write bus config: %v", err)
	}

	cmd := exec.Command("dbus-daemon", "--config-file="+confPath, "--nofork")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		t.Fatalf("start dbus-daemon: %v", err)
	}
	t.Cleanup(func() {
		cmd.Process.Kill() //nolint:errcheck
		cmd.Wait()         //nolint:errcheck
	})

	// Wait for socket file to appear (50 * 100ms = 5s max).
	for range 50 {
		if _, err := os.Stat(sockPath); err == nil {
			return "unix:path=" + sockPath
		}
		time.Sleep(100 * time.Millisecond)
	}

	t.Fatal("dbus-daemon socket not created in time")
	return ""
}

// WaitForName polls until the bus name is registered or timeout.
func WaitForName(t *testing.T, addr, name string) {
	t.Helper()
	for range 50 {
		conn, err := dbus.Connect(addr)
		if err != nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		obj := conn.BusObject()
		var owners []string
		if err := obj.Call("org.freedesktop.DBus.ListNames", 0).Store(&owners); err != nil {
			conn.Close()
			time.Sleep(100 * time.Millisecond)
			continue
		}
		conn.Close()
		for _, n := range owners {
			if n == name {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("bus name %q not registered in time", name)
}
