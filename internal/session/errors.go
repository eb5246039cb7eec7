package session

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedSubject is returned by New when no model handles the
	// subject's record type.
	ErrUnsupportedSubject = errors.New("no barcode model for this record type")

	// ErrInvalidTransition is returned when a screen cannot be reached from
	// the current one.
	ErrInvalidTransition = errors.New("invalid view transition")

	// ErrSuperseded is returned when the operator navigated elsewhere while a
	// guarded transition was waiting for its save.
	ErrSuperseded = errors.New("transition superseded by a newer navigation")

	// ErrNoTransport is returned when an operation needs the backend but the
	// session has no transport.
	ErrNoTransport = errors.New("session has no transport")

	// ErrUnsupported is returned when the model lacks an optional capability.
	ErrUnsupported = errors.New("operation not supported for this record type")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
)

// Operator-facing messages.
const (
	MsgScanAgain          = "Please, scan again!"
	MsgUnknownBarcode     = "No picking or location or product corresponding to barcode %s"
	MsgNoMatchingProducts = "No matching products were found."
	MsgSearchFailed       = "An error occurred while searching."
	MsgCancelled          = "The operation has been cancelled."
	MsgRefreshFailed      = "Could not reload the operation from the server."
)

// UserError is a domain rejection with a message meant for the operator.
type UserError struct {
	Message string
	Err     error
}

// NewUserError creates a UserError with a formatted message.
func NewUserError(format string, args ...any) *UserError {
	return &UserError{Message: fmt.Sprintf(format, args...)}
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// UserMessage implements the operator message lookup used by UserMessage.
func (e *UserError) UserMessage() string {
	return e.Message
}

func (e *UserError) Unwrap() error {
	return e.Err
}

type userMessager interface {
	UserMessage() string
}

// UserMessage returns the first non-empty operator message found in err's
// chain, or "" when there is none.
func UserMessage(err error) string {
	for err != nil {
		if m, ok := err.(userMessager); ok {
			if msg := m.UserMessage(); msg != "" {
				return msg
			}
		}
		err = errors.Unwrap(err)
	}
	return ""
}

// ScanFailureMessage builds the notice shown when a barcode was rejected.
func ScanFailureMessage(err error, barcode string) string {
	if msg := UserMessage(err); msg != "" {
		return msg
	}
	return fmt.Sprintf(MsgUnknownBarcode, barcode)
}
