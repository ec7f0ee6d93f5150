package service

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func mockSystemctl(t *testing.T) *[]string {
	t.Helper()
	orig := systemctlFunc
	var calls []string
	systemctlFunc = func(args ...string) error {
		calls = append(calls, strings.Join(args, " "))
		return nil
	}
	t.Cleanup(func() { systemctlFunc = orig })
	return &calls
}

func TestInstallWritesUnit(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	calls := mockSystemctl(t)

	if err := Install(Options{}); err != nil {
		t.Fatalf("Install() error: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(tmpDir, "systemd", "user", unitFileName))
	if err != nil {
		t.Fatalf("read unit: %v", err)
	}
	s := string(content)
	if !strings.Contains(s, "ExecStart=") || !strings.Contains(s, " run") {
		t.Error("unit missing ExecStart with the run subcommand")
	}
	if !strings.Contains(s, "WantedBy=default.target") {
		t.Error("unit missing WantedBy=default.target")
	}
	if strings.Contains(s, "WorkingDirectory=") {
		t.Error("unit has WorkingDirectory without WorkDir option")
	}

	want := []string{"daemon-reload", "enable " + unitFileName}
	if len(*calls) != len(want) {
		t.Fatalf("systemctl calls = %v, want %v", *calls, want)
	}
	for i, w := range want {
		if (*calls)[i] != w {
			t.Errorf("systemctl call %d = %q, want %q", i, (*calls)[i], w)
		}
	}
}

func TestInstallWithOptions(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	calls := mockSystemctl(t)

	err := Install(Options{
		ConfigPath: "/etc/gtkbridge.yaml",
		WorkDir:    "/srv/profile",
		Start:      true,
	})
	if err != nil {
		t.Fatalf("Install() error: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(tmpDir, "systemd", "user", unitFileName))
	if err != nil {
		t.Fatalf("read unit: %v", err)
	}
	s := string(content)
	if !strings.Contains(s, "--config /etc/gtkbridge.yaml") {
		t.Error("unit missing --config in ExecStart")
	}
	if !strings.Contains(s, "WorkingDirectory=/srv/profile") {
		t.Error("unit missing WorkingDirectory")
	}

	last := (*calls)[len(*calls)-1]
	if last != "start "+unitFileName {
		t.Errorf("last systemctl call = %q, want start", last)
	}
}

func TestUninstallRemovesUnit(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	calls := mockSystemctl(t)

	if err := Install(Options{}); err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	if err := Uninstall(); err != nil {
		t.Fatalf("Uninstall() error: %v", err)
	}

	unitPath := filepath.Join(tmpDir, "systemd", "user", unitFileName)
	if _, err := os.Stat(unitPath); !os.IsNotExist(err) {
		t.Errorf("unit file still exists after uninstall")
	}

	joined := strings.Join(*calls, ",")
	for _, w := range []string{"stop " + unitFileName, "disable " + unitFileName} {
		if !strings.Contains(joined, w) {
			t.Errorf("systemctl calls %v missing %q", *calls, w)
		}
	}
}

func TestUnitPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom")
	got, err := UnitPath()
	if err != nil {
		t.Fatalf("UnitPath: %v", err)
	}
	want := "/custom/systemd/user/" + unitFileName
	if got != want {
		t.Errorf("UnitPath() = %q, want %q", got, want)
	}
}
