package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/halcyon-im/gtkbridge/internal/gtk"
	"github.com/halcyon-im/gtkbridge/internal/gtkbus"
	"github.com/halcyon-im/gtkbridge/internal/helper"
	"github.com/halcyon-im/gtkbridge/internal/supervisor"
	"github.com/halcyon-im/gtkbridge/internal/testutil"
)

// noopCapability satisfies the dispatcher without a toolkit.
type noopCapability struct{}

func (noopCapability) Load(string) error { return nil }

func (noopCapability) CreateDialog(parent, filepath string) (gtk.Dialog, error) {
	return nil, fmt.Errorf("no display in tests")
}

// inProcessSpawner runs helpers as goroutines instead of processes, so
// the supervisor's full lifecycle can be driven inside one test binary.
type inProcessSpawner struct {
	mu      sync.Mutex
	cancels []context.CancelFunc
	done    []chan error
}

func (s *inProcessSpawner) spawn(exe string, args ...string) error {
	if len(args) != 4 {
		return fmt.Errorf("unexpected helper args: %v", args)
	}
	typ := gtkbus.TypeBase
	if args[0] == "app-helper" {
		typ = gtkbus.TypeApp
	}
	cfg := helper.Config{
		Type:          typ,
		ParentBusName: args[2],
		ServiceName:   args[3],
		BusAddress:    strings.TrimPrefix(args[1], "-bus-address="),
		Capability:    noopCapability{},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- helper.Run(ctx, cfg) }()

	s.mu.Lock()
	s.cancels = append(s.cancels, cancel)
	s.done = append(s.done, done)
	s.mu.Unlock()
	return nil
}

func (s *inProcessSpawner) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.cancels {
		cancel()
	}
}

// TestBridge_HelperLifecycle drives the whole loop on a private bus:
// spawn, registration, the appearance handshake, and the automatic
// restart after the helper dies.
func TestBridge_HelperLifecycle(t *testing.T) {
	addr := testutil.StartSessionBus(t)
	workDir := t.TempDir()

	spawner := &inProcessSpawner{}
	t.Cleanup(spawner.stopAll)

	appeared := make(chan gtkbus.Type, 4)
	sup := supervisor.New(supervisor.Config{
		BusAddress: addr,
		WorkDir:    workDir,
		ExePath:    "gtkbridge",
		Spawn:      spawner.spawn,
		OnAppeared: func(typ gtkbus.Type) { appeared <- typ },
	})

	// Watch before spawning so the first appearance is never missed.
	sup.Autorestart(gtkbus.TypeBase)
	sup.Start(gtkbus.TypeBase)

	name := sup.ServiceName(gtkbus.TypeBase)
	testutil.WaitForName(t, addr, name)

	select {
	case typ := <-appeared:
		if typ != gtkbus.TypeBase {
			t.Fatalf("appeared type = %v, want base", typ)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no appearance handshake within 5s")
	}

	// Kill the helper; the supervisor must notice and respawn.
	spawner.mu.Lock()
	firstCancel := spawner.cancels[0]
	firstDone := spawner.done[0]
	spawner.mu.Unlock()

	firstCancel()
	select {
	case err := <-firstDone:
		if err != nil {
			t.Fatalf("helper exited with error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("helper did not exit after cancel")
	}

	select {
	case typ := <-appeared:
		if typ != gtkbus.TypeBase {
			t.Fatalf("reappeared type = %v, want base", typ)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("helper was not respawned within 10s")
	}

	spawner.mu.Lock()
	spawns := len(spawner.cancels)
	spawner.mu.Unlock()
	if spawns != 2 {
		t.Errorf("spawn count = %d, want 2", spawns)
	}
}
