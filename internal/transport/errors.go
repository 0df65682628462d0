package transport

import (
	"errors"
	"fmt"
)

// Kind classifies a request failure.
type Kind int

const (
	// KindTransport covers network failures, timeouts and non-200 responses.
	KindTransport Kind = iota
	// KindApplication is an HTTP 200 response whose envelope has error=true.
	KindApplication
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindApplication:
		return "application"
	default:
		return "unknown"
	}
}

// Error is returned for every failed request.
type Error struct {
	Kind    Kind
	Action  string
	Status  int    // HTTP status, 0 when no response was received
	Code    int    // server error code for application errors
	Message string // server errorMessage or a transport description
	Detail  string
	Err     error // underlying cause for transport errors

	fatal bool
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindApplication:
		if e.Code != 0 {
			return fmt.Sprintf("%s: server error %d: %s", e.Action, e.Code, e.Message)
		}
		return fmt.Sprintf("%s: server error: %s", e.Action, e.Message)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Action, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Action, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fatal reports whether the server declared the error fatal for the editor
// session. The console re-bootstraps after a fatal error.
func (e *Error) Fatal() bool {
	return e.fatal
}

// IsFatal reports whether err wraps a fatal *Error.
func IsFatal(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Fatal()
}

// IsApplication reports whether err wraps an application error.
func IsApplication(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == KindApplication
}
