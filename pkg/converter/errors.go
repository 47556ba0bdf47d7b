package converter

import (
	"errors"
	"fmt"

	"github.com/hepdata/hepdata-converter-ws-client/internal/transport"
)

// Kinds of PreconditionError. Match them with errors.Is.
var (
	ErrInvalidInput       = errors.New("input is not a path or a readable stream")
	ErrNotFound           = errors.New("input path does not exist")
	ErrUnseekable         = errors.New("input stream does not support seeking")
	ErrInvalidOutput      = errors.New("output is not a path or a writable stream")
	ErrInvalidCombination = errors.New("extract requires a path output")
	ErrInvalidOptions     = errors.New("options cannot be encoded as JSON")
)

// PreconditionError reports caller misuse detected before any network activity.
type PreconditionError struct {
	Kind   error
	Detail string
	Err    error
}

func newPreconditionError(kind error, detail string, err error) *PreconditionError {
	return &PreconditionError{Kind: kind, Detail: detail, Err: err}
}

func (e *PreconditionError) Error() string {
	msg := e.Kind.Error()
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *PreconditionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// TransportError reports a failed HTTP exchange: connection errors, timeouts and
// non-2xx statuses. The message names the request URL and Unwrap returns the cause.
type TransportError = transport.TransportError

// StatusError is the cause of a TransportError for non-2xx responses.
type StatusError = transport.StatusError
