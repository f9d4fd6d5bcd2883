package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the stable, machine-readable class of a domain error.
type Kind string

const (
	KindInvalidCredentials Kind = "invalid_credentials"
	KindUnauthenticated    Kind = "unauthenticated"
	KindInvalidToken       Kind = "invalid_token"
	KindExpiredToken       Kind = "expired_token"
	KindAccountNotActive   Kind = "account_not_active"
	KindForbiddenRole      Kind = "forbidden_role"
	KindNotLectureMember   Kind = "not_lecture_member"
	KindNotLectureOwner    Kind = "not_lecture_owner"
	KindCodeNotFound       Kind = "code_not_found"
	KindOwnerCannotJoin    Kind = "owner_cannot_join"
	KindCodeSpaceExhausted Kind = "code_space_exhausted"
	KindConflict           Kind = "conflict"
	KindInvalidTransition  Kind = "invalid_transition"
	KindNotFound           Kind = "not_found"
	KindValidationFailed   Kind = "validation_failed"
	KindRateLimited        Kind = "rate_limited"
	KindInternal           Kind = "internal"
)

// Error is a domain error. errors.Is matches an Error against the sentinel it was derived from,
// use KindOf to compare kinds.
type Error struct {
	Kind    Kind
	Message string
	base    *Error
}

func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) root() *Error {
	if e.base != nil {
		return e.base
	}
	return e
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.root() == e.root()
}

// Errorf returns a copy of e with a more specific message. The copy still matches e.
func (e *Error) Errorf(format string, args ...interface{}) *Error {
	return &Error{Kind: e.Kind, Message: fmt.Sprintf(format, args...), base: e.root()}
}

// KindOf returns the Kind of the domain error wrapped in err, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return "validation failed"
	}
	return err.Err.Error()
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
