// Package dialog holds the console's single modal and wait overlay state.
package dialog

import (
	"errors"
	"sync"

	"github.com/dongho-jung/pwmcfg/internal/i18n"
	"github.com/dongho-jung/pwmcfg/internal/logging"
	"github.com/dongho-jung/pwmcfg/internal/transport"
)

// Button is a modal button.
type Button int

const (
	ButtonOK Button = iota
	ButtonCancel
	ButtonClose
)

// Label returns the localized button caption.
func (b Button) Label() string {
	switch b {
	case ButtonOK:
		return i18n.T("dialog.ok")
	case ButtonCancel:
		return i18n.T("dialog.cancel")
	default:
		return i18n.T("dialog.close")
	}
}

// Kind distinguishes modal purposes.
type Kind int

const (
	KindInfo Kind = iota
	KindConfirm
	KindError
)

// Modal is one dialog. Action identifies what confirming it does; the shell
// interprets it.
type Modal struct {
	ID      uint64
	Kind    Kind
	Title   string
	Message string
	Detail  string
	Buttons []Button
	Action  string
	Payload string
	// Fatal error modals force a re-bootstrap when dismissed.
	Fatal bool
}

// Result is a dismissed modal and the button that dismissed it.
type Result struct {
	Modal  Modal
	Button Button
}

// Confirmed reports whether the modal was dismissed with OK.
func (r Result) Confirmed() bool {
	return r.Button == ButtonOK
}

// Manager holds at most one visible modal and the busy overlay state.
type Manager struct {
	mu     sync.Mutex
	nextID uint64
	active *Modal
	busy   int
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// Show makes m the visible modal. A previously visible modal is closed and
// returned.
func (d *Manager) Show(m Modal) (shown Modal, replaced *Modal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	m.ID = d.nextID
	if len(m.Buttons) == 0 {
		m.Buttons = []Button{ButtonClose}
	}
	replaced = d.active
	if replaced != nil {
		logging.Debug("dialog: %q replaced by %q", replaced.Title, m.Title)
	}
	d.active = &m
	return m, replaced
}

// Info shows an informational modal.
func (d *Manager) Info(title, message string) Modal {
	m, _ := d.Show(Modal{Kind: KindInfo, Title: title, Message: message, Buttons: []Button{ButtonOK}})
	return m
}

// Confirm shows an OK/Cancel modal tagged with action and payload.
func (d *Manager) Confirm(title, message, action, payload string) Modal {
	m, _ := d.Show(Modal{
		Kind:    KindConfirm,
		Title:   title,
		Message: message,
		Buttons: []Button{ButtonOK, ButtonCancel},
		Action:  action,
		Payload: payload,
	})
	return m
}

// Error shows the error modal for err.
func (d *Manager) Error(err error) Modal {
	m, _ := d.Show(ErrorModal(err))
	return m
}

// ErrorModal builds the modal describing err. Fatal transport errors are
// flagged so the shell reloads after dismissal.
func ErrorModal(err error) Modal {
	m := Modal{
		Kind:    KindError,
		Title:   i18n.T("error.title"),
		Message: err.Error(),
		Buttons: []Button{ButtonClose},
	}
	var te *transport.Error
	if errors.As(err, &te) {
		m.Message = te.Message
		m.Detail = te.Detail
		if te.Kind == transport.KindTransport {
			m.Message = i18n.T("error.transport")
			m.Detail = err.Error()
		}
		if te.Fatal() {
			m.Fatal = true
			m.Title = i18n.T("error.fatal_title")
			m.Detail = i18n.T("error.fatal_hint")
			m.Buttons = []Button{ButtonOK}
		}
	}
	return m
}

// Current returns the visible modal.
func (d *Manager) Current() (Modal, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return Modal{}, false
	}
	return *d.active, true
}

// Dismiss closes the visible modal with button b. ok is false when no modal
// is visible or b is not one of its buttons.
func (d *Manager) Dismiss(b Button) (Result, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return Result{}, false
	}
	valid := false
	for _, candidate := range d.active.Buttons {
		if candidate == b {
			valid = true
			break
		}
	}
	if !valid {
		return Result{}, false
	}
	r := Result{Modal: *d.active, Button: b}
	d.active = nil
	return r, true
}

// SetBusy records the outstanding operation count.
func (d *Manager) SetBusy(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy = n
}

// Waiting reports whether the wait overlay is shown.
func (d *Manager) Waiting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy > 0
}

// Blocking reports whether input is blocked by a modal or the wait overlay.
func (d *Manager) Blocking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active != nil || d.busy > 0
}
