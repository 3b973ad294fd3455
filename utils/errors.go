package utils

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindInvalidArgument
	KindNotFound
	KindForbidden
	KindConflict
	KindUnauthorized
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	}
	return "internal"
}

// Status maps the kind to its HTTP status code.
func (k ErrorKind) Status() int {
	switch k {
	case KindInvalidArgument:
		return fiber.StatusBadRequest
	case KindNotFound:
		return fiber.StatusNotFound
	case KindForbidden:
		return fiber.StatusForbidden
	case KindConflict:
		return fiber.StatusConflict
	case KindUnauthorized:
		return fiber.StatusUnauthorized
	}
	return fiber.StatusInternalServerError
}

// AppError carries a client-safe message. For KindInternal the message is
// replaced with a generic one before it reaches the client; Err keeps the cause.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func InvalidArgument(msg string) error { return &AppError{Kind: KindInvalidArgument, Message: msg} }
func NotFound(msg string) error        { return &AppError{Kind: KindNotFound, Message: msg} }
func Forbidden(msg string) error       { return &AppError{Kind: KindForbidden, Message: msg} }
func Conflict(msg string) error        { return &AppError{Kind: KindConflict, Message: msg} }
func Unauthorized(msg string) error    { return &AppError{Kind: KindUnauthorized, Message: msg} }

// Internal wraps an infrastructure failure; msg describes the operation.
func Internal(msg string, err error) error {
	return &AppError{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf returns the kind of err, treating anything unclassified as internal.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

const genericErrorMessage = "Something went wrong"

// PublicMessage is the single-line message safe to show to a client.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind != KindInternal {
		return appErr.Message
	}
	return genericErrorMessage
}
