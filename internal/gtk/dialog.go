package gtk

import (
	"errors"
	"sync"

	"github.com/ebitengine/purego"
)

// GTK constants used by the open-with dialog.
const (
	dialogModal    = 1 << 0 // GTK_DIALOG_MODAL
	responseOK     = -5     // GTK_RESPONSE_OK
	responseCancel = -6     // GTK_RESPONSE_CANCEL
)

// Dialog is a native dialog whose outcome arrives asynchronously.
// Response delivers the result exactly once; the channel is closed
// without a value if the dialog is torn down unresolved.
type Dialog interface {
	Response() <-chan bool
	Destroy()
}

// openWithDialog drives a GTK app chooser dialog. All widget calls run
// on the library's toolkit thread; the response callback fires there
// during event iteration and only touches Go channels.
type openWithDialog struct {
	lib    *Library
	widget uintptr
	file   uintptr

	resp chan bool
	once sync.Once

	destroyOnce sync.Once
}

// NewOpenWithDialog creates an app chooser dialog for the given file.
// The parent window reference ("wayland:<handle>" or "x11:<hex id>") is
// recorded for foreign-window attachment by the GDK layer; the dialog is
// shown immediately.
func (l *Library) NewOpenWithDialog(parent, filepath string) (Dialog, error) {
	d := &openWithDialog{
		lib:  l,
		resp: make(chan bool, 1),
	}

	var err error
	l.do(func() {
		d.file = l.FileNewForPath(filepath)
		if d.file == 0 {
			err = errors.New("g_file_new_for_path returned nil")
			return
		}

		d.widget = l.AppChooserDialogNew(0, dialogModal, d.file)
		if d.widget == 0 {
			l.ObjectUnref(d.file)
			err = errors.New("gtk_app_chooser_dialog_new returned nil")
			return
		}

		handler := purego.NewCallback(func(dialog uintptr, responseID int32, data uintptr) uintptr {
			d.fire(responseID == responseOK)
			return 0
		})
		l.SignalConnectData(d.widget, "response", handler, 0, 0, 0)

		l.WidgetRealize(d.widget)
		l.WidgetShow(d.widget)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// fire resolves the dialog at most once.
func (d *openWithDialog) fire(result bool) {
	d.once.Do(func() {
		d.resp <- result
		close(d.resp)
	})
}

func (d *openWithDialog) Response() <-chan bool {
	return d.resp
}

// Destroy tears the dialog down on the toolkit thread. If it has not
// resolved yet, the response channel is closed without a value.
func (d *openWithDialog) Destroy() {
	d.once.Do(func() {
		close(d.resp)
	})
	d.destroyOnce.Do(func() {
		d.lib.do(func() {
			d.lib.WidgetDestroy(d.widget)
			d.lib.ObjectUnref(d.file)
		})
	})
}
