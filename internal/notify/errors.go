// Package notify holds the panel's error taxonomy and turns errors into
// user-visible, non-blocking notifications.
package notify

import (
	"errors"
	"fmt"
)

// Kind classifies errors the way they are presented to the user.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConnection: socket or REST endpoint unreachable.
	KindConnection
	// KindProtocol: a stream message could not be parsed or has an unknown variant.
	KindProtocol
	// KindValidation: the chosen camera or hardware is no longer available.
	KindValidation
	// KindStaleState: acting on a resource that has not been loaded yet.
	KindStaleState
	// KindServer: an error message pushed by the backend itself.
	KindServer
)

var kindNames = map[Kind]string{
	KindUnknown:    "unknown",
	KindConnection: "connection",
	KindProtocol:   "protocol",
	KindValidation: "validation",
	KindStaleState: "stale_state",
	KindServer:     "server",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error is a classified error. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ConnectionError wraps err as a KindConnection error.
func ConnectionError(op string, err error) error {
	return &Error{Kind: KindConnection, Op: op, Err: err}
}

// ProtocolError builds a KindProtocol error.
func ProtocolError(op string, format string, args ...any) error {
	return &Error{Kind: KindProtocol, Op: op, Err: fmt.Errorf(format, args...)}
}

// ValidationError builds a KindValidation error.
func ValidationError(op string, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

// StaleStateError builds a KindStaleState error.
func StaleStateError(op string, format string, args ...any) error {
	return &Error{Kind: KindStaleState, Op: op, Err: fmt.Errorf(format, args...)}
}

// ServerError wraps an error message pushed by the backend.
func ServerError(op string, message string) error {
	return &Error{Kind: KindServer, Op: op, Err: errors.New(message)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
