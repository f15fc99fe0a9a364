// Package autderr defines the error taxonomy used across the host
// controller so callers can branch on failure class rather than on
// error strings.
package autderr

import "fmt"

// Kind classifies a failure so callers can branch on recoverability
// without string matching.
type Kind int

const (
	// TransportOpen covers socket-missing, slave-count-mismatch and
	// not-responding failures. Always fatal at open time.
	TransportOpen Kind = iota
	// TransportIO covers send/read failures on an already-open transport.
	TransportIO
	// ProtocolTimeout is returned, not raised as an error, by
	// wait-for-ack helpers that exhaust their trial budget; the Kind
	// exists so callers that do want to treat it as an error can wrap it
	// consistently.
	ProtocolTimeout
	// InputValidation covers malformed caller input: point-sequence
	// overflow, AmsNetId parse failures, and similar.
	InputValidation
	// StateMisuse covers contract violations such as starting STM with
	// an empty gain list or addressing a device index out of range.
	StateMisuse
)

func (k Kind) String() string {
	switch k {
	case TransportOpen:
		return "transport-open"
	case TransportIO:
		return "transport-io"
	case ProtocolTimeout:
		return "protocol-timeout"
	case InputValidation:
		return "input-validation"
	case StateMisuse:
		return "state-misuse"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind and a short message.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, msg: msg, err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Is reports whether target is an *Error with the same Kind, so callers
// can do errors.Is(err, autderr.New(autderr.TransportIO, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}
