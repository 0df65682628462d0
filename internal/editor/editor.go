// Package editor implements one editor per setting syntax. Every editor reads
// its value through the protocol session, renders from it, and writes changes
// back through the same session.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dongho-jung/pwmcfg/internal/service"
	"github.com/dongho-jung/pwmcfg/internal/setting"
)

var (
	// ErrBusy is returned when an operation is attempted while a write or
	// load of the same editor is in flight.
	ErrBusy = errors.New("a change to this setting is still in flight")
	// ErrNotLoaded is returned when editing before the first successful Load.
	ErrNotLoaded = errors.New("setting has not been loaded")
	// ErrInvalidValue wraps every client-side validation failure.
	ErrInvalidValue = errors.New("invalid value")
	// ErrIndexOutOfRange is returned by list operations on a bad index.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrDefaultLocaleRequired is returned when deleting the default locale of
	// a required setting that still has other locales.
	ErrDefaultLocaleRequired = errors.New("the default locale cannot be removed while other locales exist")
	// ErrSuperseded is returned by Load when every read was overtaken by a
	// reset of the same setting.
	ErrSuperseded = errors.New("setting changed while loading")
	// ErrUnsupportedSyntax is returned by New for unknown syntaxes.
	ErrUnsupportedSyntax = errors.New("unsupported syntax")
)

// State is the lifecycle state of an editor.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateRendered
	StateEditing
	StateWriting
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateRendered:
		return "rendered"
	case StateEditing:
		return "editing"
	case StateWriting:
		return "writing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Backend is the protocol surface editors depend on. *service.Session
// implements it.
type Backend interface {
	Read(ctx context.Context, key string) (service.Reading, error)
	Write(ctx context.Context, key string, value any) (service.WriteResult, error)
	Reset(ctx context.Context, key string) error
	Execute(ctx context.Context, key, function string, extraData any) (service.ExecResult, error)
}

// Editor is the common surface of every per-syntax editor.
type Editor interface {
	Key() string
	Syntax() setting.Syntax
	Descriptor() setting.Descriptor
	State() State
	Modified() bool
	Visible() bool
	LastWrite() service.WriteResult

	// Load reads the current value from the server and renders from it.
	Load(ctx context.Context) error
	// Edit enters the editing state.
	Edit() error
	// Cancel leaves the editing state without writing.
	Cancel()
	// Write validates and sends a new value. value may be the editor's Go
	// type, a json.RawMessage, or a string in the editor's text form.
	Write(ctx context.Context, value any) error
	// Reset restores the default and reloads.
	Reset(ctx context.Context) error
	// Execute runs a server-side setting function and reloads.
	Execute(ctx context.Context, function string, extraData any) (service.ExecResult, error)
	// Render returns display lines. Secret values are never included.
	Render() []string
}

// New creates the editor for d.
func New(b Backend, d setting.Descriptor) (Editor, error) {
	switch d.Syntax {
	case setting.SyntaxString, setting.SyntaxTextArea:
		return NewStringEditor(b, d), nil
	case setting.SyntaxNumeric:
		return NewNumericEditor(b, d), nil
	case setting.SyntaxDuration:
		return NewDurationEditor(b, d), nil
	case setting.SyntaxBoolean:
		return NewBooleanEditor(b, d), nil
	case setting.SyntaxSelect:
		return NewSelectEditor(b, d), nil
	case setting.SyntaxOptionList:
		return NewOptionListEditor(b, d), nil
	case setting.SyntaxStringArray:
		return NewStringArrayEditor(b, d), nil
	case setting.SyntaxProfile:
		return NewProfileEditor(b, d), nil
	case setting.SyntaxForm:
		return NewFormEditor(b, d), nil
	case setting.SyntaxAction:
		return NewActionEditor(b, d), nil
	case setting.SyntaxPermission:
		return NewPermissionEditor(b, d), nil
	case setting.SyntaxLocalizedString, setting.SyntaxLocalizedTextArea:
		return NewLocalizedStringEditor(b, d), nil
	case setting.SyntaxLocalizedStringArray:
		return NewLocalizedStringArrayEditor(b, d), nil
	case setting.SyntaxEmail:
		return NewEmailEditor(b, d), nil
	case setting.SyntaxVerificationMethod:
		return NewVerificationEditor(b, d), nil
	case setting.SyntaxPassword:
		return NewPasswordEditor(b, d), nil
	case setting.SyntaxNamedSecret:
		return NewNamedSecretEditor(b, d), nil
	case setting.SyntaxX509Cert:
		return NewCertificateEditor(b, d), nil
	case setting.SyntaxPrivateKey:
		return NewPrivateKeyEditor(b, d), nil
	case setting.SyntaxFile:
		return NewFileEditor(b, d), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSyntax, d.Syntax)
	}
}

// base holds the state shared by every editor. Fields are guarded by mu.
type base struct {
	backend Backend
	desc    setting.Descriptor

	mu       sync.Mutex
	state    State
	rendered bool
	modified bool
	visible  bool
	result   service.WriteResult
}

func (b *base) Key() string                    { return b.desc.Key }
func (b *base) Syntax() setting.Syntax         { return b.desc.Syntax }
func (b *base) Descriptor() setting.Descriptor { return b.desc }

func (b *base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *base) Modified() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.modified
}

func (b *base) Visible() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.visible
}

func (b *base) LastWrite() service.WriteResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.result
}

func (b *base) Edit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateRendered, StateEditing:
		b.state = StateEditing
		return nil
	case StateWriting, StateLoading:
		return ErrBusy
	default:
		return ErrNotLoaded
	}
}

func (b *base) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateEditing {
		b.state = StateRendered
	}
}

// settle returns to the last rendered state. Caller holds mu.
func (b *base) settle() {
	if b.rendered {
		b.state = StateRendered
	} else {
		b.state = StateUninitialized
	}
}

// acquire takes the write slot. Caller holds mu.
func (b *base) acquire() error {
	switch b.state {
	case StateWriting, StateLoading:
		return ErrBusy
	case StateUninitialized:
		return ErrNotLoaded
	}
	b.state = StateWriting
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidValue, fmt.Sprintf(format, args...))
}
