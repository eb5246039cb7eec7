package demo

import "fmt"

// Exception names carried in JSON-RPC error data, as clients of the real
// backend expect them.
const (
	ErrNameUser           = "odoo.exceptions.UserError"
	ErrNameMissing        = "odoo.exceptions.MissingError"
	ErrNameAccessDenied   = "odoo.exceptions.AccessDenied"
	ErrNameSessionExpired = "odoo.http.SessionExpiredException"
)

// Error is a backend exception reported to the client.
type Error struct {
	Name    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func userError(format string, args ...any) *Error {
	return &Error{Name: ErrNameUser, Message: fmt.Sprintf(format, args...)}
}

func missingError(model string, id int64) *Error {
	return &Error{
		Name:    ErrNameMissing,
		Message: fmt.Sprintf("Record does not exist or has been deleted. (Record: %s(%d,))", model, id),
	}
}
