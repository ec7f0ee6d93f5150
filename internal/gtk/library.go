// Package gtk loads a small, stable subset of GTK 3 dynamically at
// runtime and presents it as a capability table. It is linked only into
// the helper process code path; nothing above this package depends on
// how symbols are resolved, so tests substitute a stub table.
package gtk

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/ebitengine/purego"
)

const soName = "libgtk-3.so.0"

// Library is the capability table of resolved GTK symbols. Populated
// once by Load and treated as immutable afterwards.
type Library struct {
	// calls feeds the toolkit thread; every GTK call after binding
	// goes through it.
	calls chan func()

	WidgetShow      func(widget uintptr)
	WidgetGetWindow func(widget uintptr) uintptr
	WidgetRealize   func(widget uintptr)
	WidgetDestroy   func(widget uintptr)

	AppChooserDialogNew  func(parent uintptr, flags int32, file uintptr) uintptr
	AppChooserGetAppInfo func(chooser uintptr) uintptr
	AppChooserGetType    func() uintptr

	InitCheck       func(argc uintptr, argv uintptr) bool
	MainIterationDo func(blocking bool) bool
	EventsPending   func() bool

	FileNewForPath    func(path string) uintptr
	ObjectUnref       func(obj uintptr)
	SignalConnectData func(instance uintptr, signal string, handler uintptr, data uintptr, destroy uintptr, flags uint32) uint64
}

// Load opens the GTK shared library, binds the symbol subset, and
// starts the toolkit thread. allowedBackends is a comma-separated GDK
// backend preference list ("wayland,x11"); empty leaves GDK's own
// default in place.
func Load(allowedBackends string) (*Library, error) {
	if allowedBackends != "" {
		os.Setenv("GDK_BACKEND", allowedBackends)
	}

	handle, err := purego.Dlopen(soName, purego.RTLD_LAZY|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", soName, err)
	}

	lib := &Library{calls: make(chan func(), 16)}
	if err := lib.bind(handle); err != nil {
		return nil, err
	}

	initErr := make(chan error, 1)
	go lib.run(initErr)
	if err := <-initErr; err != nil {
		return nil, err
	}
	return lib, nil
}

// run owns the toolkit thread for the lifetime of the process. GTK 3 is
// not thread safe: initialization, widget calls, and event iteration
// all happen here, serialized over the calls channel.
func (l *Library) run(initErr chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if !l.InitCheck(0, 0) {
		initErr <- errors.New("gtk_init_check failed: no display available")
		return
	}
	initErr <- nil

	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case fn := <-l.calls:
			fn()
		case <-tick.C:
			for l.EventsPending() {
				l.MainIterationDo(false)
			}
		}
	}
}

// do runs fn on the toolkit thread and waits for it to finish.
func (l *Library) do(fn func()) {
	done := make(chan struct{})
	l.calls <- func() {
		fn()
		close(done)
	}
	<-done
}

// bind resolves every symbol in the table. purego panics on a missing
// symbol; a partial GTK install therefore surfaces as an error here
// rather than a crash later.
func (l *Library) bind(handle uintptr) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bind GTK symbols: %v", r)
		}
	}()

	purego.RegisterLibFunc(&l.WidgetShow, handle, "gtk_widget_show")
	purego.RegisterLibFunc(&l.WidgetGetWindow, handle, "gtk_widget_get_window")
	purego.RegisterLibFunc(&l.WidgetRealize, handle, "gtk_widget_realize")
	purego.RegisterLibFunc(&l.WidgetDestroy, handle, "gtk_widget_destroy")

	purego.RegisterLibFunc(&l.AppChooserDialogNew, handle, "gtk_app_chooser_dialog_new")
	purego.RegisterLibFunc(&l.AppChooserGetAppInfo, handle, "gtk_app_chooser_get_app_info")
	purego.RegisterLibFunc(&l.AppChooserGetType, handle, "gtk_app_chooser_get_type")

	purego.RegisterLibFunc(&l.InitCheck, handle, "gtk_init_check")
	purego.RegisterLibFunc(&l.MainIterationDo, handle, "gtk_main_iteration_do")
	purego.RegisterLibFunc(&l.EventsPending, handle, "gtk_events_pending")

	purego.RegisterLibFunc(&l.FileNewForPath, handle, "g_file_new_for_path")
	purego.RegisterLibFunc(&l.ObjectUnref, handle, "g_object_unref")
	purego.RegisterLibFunc(&l.SignalConnectData, handle, "g_signal_connect_data")

	return nil
}
