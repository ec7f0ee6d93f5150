package integration_test

import (
	"testing"

	. "github.com/halcyon-im/gtkbridge/internal/integration"
)

func TestAllowedBackends(t *testing.T) {
	tests := []struct {
		name    string
		wayland string
		x11     string
		want    string
	}{
		{"wayland session", "wayland-0", ":0", "wayland,x11"},
		{"x11 session", "", ":0", "x11,wayland"},
		{"headless", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("WAYLAND_DISPLAY", tt.wayland)
			t.Setenv("DISPLAY", tt.x11)
			if got := AllowedBackends(); got != tt.want {
				t.Errorf("AllowedBackends() = %q, want %q", got, tt.want)
			}
		})
	}
}
