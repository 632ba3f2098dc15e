package liveChat

import (
	"errors"
)

var (
	ErrValidation  = errors.New("validation")
	ErrConflict    = errors.New("conflict")
	ErrNotFound    = errors.New("not found")
	ErrAuth        = errors.New("auth")
	ErrPersistence = errors.New("persistence")
	ErrUpload      = errors.New("upload")
)

// Error carries the message shown to the user. Kind is one of the Err*
// sentinels and Err, when set, is the backend failure behind it.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// userMessage is what the notification shows: the custom message if there
// is one, the backend error text otherwise.
func userMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message != "" {
			return e.Message
		}
		if e.Err != nil {
			return e.Err.Error()
		}
	}
	return err.Error()
}

func kindName(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrUpload):
		return "upload"
	}
	return "other"
}
