package errs

import (
	"errors"
	"net/http"
)

// Code is an application error code.
type Code string

const (
	InvalidInput     Code = "invalid_input"
	NotFound         Code = "not_found"
	PermissionDenied Code = "permission_denied"
	ServerError      Code = "server_error"
	SetupRequired    Code = "setup_required"
)

// Degraded setup codes. These are not failures: they report that the
// remote backend is unusable and the session fell back to local storage.
// Only Session.Setup produces them.
const (
	NotFoundUseLocal         Code = "not_found_use_local"
	PermissionDeniedUseLocal Code = "permission_denied_use_local"
	ServerErrorUseLocal      Code = "server_error_use_local"
)

// Error is a coded application error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// CodeOf returns the error code, defaulting to server_error.
func CodeOf(err error) Code {
	if err == nil {
		return ServerError
	}
	var coded *Error
	if errors.As(err, &coded) {
		if coded.Code == "" {
			return ServerError
		}
		return coded.Code
	}
	return ServerError
}

// MessageOf returns a user-facing error message.
// If the error has no typed wrapper, returns "internal error" to prevent
// leaking raw S3 errors or file paths to API responses.
func MessageOf(err error) string {
	if err == nil {
		return string(ServerError)
	}
	var coded *Error
	if errors.As(err, &coded) && coded.Message != "" {
		return coded.Message
	}
	return "internal error"
}

// HTTPStatus maps error code to HTTP status. SetupRequired maps to 403:
// note operations are forbidden until setup has run.
func HTTPStatus(code Code) int {
	switch code {
	case InvalidInput:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case PermissionDenied, SetupRequired:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
