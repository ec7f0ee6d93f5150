package gtk

import (
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// callLog records the OS thread each fake symbol ran on.
type callLog struct {
	mu   sync.Mutex
	tids map[string]int
}

func (c *callLog) record(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tids[name] = unix.Gettid()
}

// stubLibrary builds a symbol table of fakes and starts the toolkit
// thread, so dialog plumbing can be exercised without libgtk or a
// display.
func stubLibrary(t *testing.T) (*Library, *callLog) {
	t.Helper()

	log := &callLog{tids: make(map[string]int)}
	lib := &Library{
		calls: make(chan func(), 16),

		InitCheck:       func(argc, argv uintptr) bool { log.record("gtk_init_check"); return true },
		EventsPending:   func() bool { return false },
		MainIterationDo: func(blocking bool) bool { return false },

		FileNewForPath: func(path string) uintptr { log.record("g_file_new_for_path"); return 1 },
		AppChooserDialogNew: func(parent uintptr, flags int32, file uintptr) uintptr {
			log.record("gtk_app_chooser_dialog_new")
			return 2
		},
		SignalConnectData: func(instance uintptr, signal string, handler, data, destroy uintptr, flags uint32) uint64 {
			log.record("g_signal_connect_data")
			return 1
		},
		WidgetRealize: func(widget uintptr) { log.record("gtk_widget_realize") },
		WidgetShow:    func(widget uintptr) { log.record("gtk_widget_show") },
		WidgetDestroy: func(widget uintptr) { log.record("gtk_widget_destroy") },
		ObjectUnref:   func(obj uintptr) { log.record("g_object_unref") },
	}

	initErr := make(chan error, 1)
	go lib.run(initErr)
	if err := <-initErr; err != nil {
		t.Fatalf("toolkit thread init: %v", err)
	}
	return lib, log
}

// TestDialogCallsStayOnToolkitThread verifies every toolkit call, from
// initialization through widget destruction, runs on the one thread the
// library locked, regardless of which goroutine drives the dialog.
func TestDialogCallsStayOnToolkitThread(t *testing.T) {
	lib, log := stubLibrary(t)

	dlg, err := lib.NewOpenWithDialog("", "/tmp/report.pdf")
	if err != nil {
		t.Fatalf("NewOpenWithDialog: %v", err)
	}

	done := make(chan struct{})
	go func() {
		dlg.Destroy()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Destroy did not return")
	}

	log.mu.Lock()
	defer log.mu.Unlock()
	want := log.tids["gtk_init_check"]
	for name, tid := range log.tids {
		if tid != want {
			t.Errorf("%s ran on thread %d, toolkit thread is %d", name, tid, want)
		}
	}
	for _, name := range []string{
		"g_file_new_for_path", "gtk_app_chooser_dialog_new",
		"g_signal_connect_data", "gtk_widget_realize", "gtk_widget_show",
		"gtk_widget_destroy", "g_object_unref",
	} {
		if _, ok := log.tids[name]; !ok {
			t.Errorf("%s was never called", name)
		}
	}
}

func TestDialogDestroyClosesResponse(t *testing.T) {
	lib, _ := stubLibrary(t)

	dlg, err := lib.NewOpenWithDialog("", "/tmp/x")
	if err != nil {
		t.Fatalf("NewOpenWithDialog: %v", err)
	}
	dlg.Destroy()

	select {
	case result, ok := <-dlg.Response():
		if ok {
			t.Errorf("unresolved dialog delivered result %v", result)
		}
	case <-time.After(time.Second):
		t.Fatal("response channel not closed after Destroy")
	}

	// Destroy is idempotent.
	dlg.Destroy()
}

func TestDialogCreationFailureReleasesFile(t *testing.T) {
	lib, log := stubLibrary(t)
	lib.AppChooserDialogNew = func(parent uintptr, flags int32, file uintptr) uintptr { return 0 }

	if _, err := lib.NewOpenWithDialog("", "/tmp/x"); err == nil {
		t.Fatal("expected error when dialog construction fails")
	}

	log.mu.Lock()
	defer log.mu.Unlock()
	if _, ok := log.tids["g_object_unref"]; !ok {
		t.Error("file handle was not released after construction failure")
	}
}
