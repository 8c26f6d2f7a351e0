package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeUnknown          Code = "UNKNOWN"
	CodeNotFound         Code = "NOT_FOUND"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeAlreadyExpired   Code = "ALREADY_EXPIRED"
	CodeBlocked          Code = "BLOCKED"
	CodeInvalidReference Code = "INVALID_REFERENCE"
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeUnauthenticated  Code = "UNAUTHENTICATED"
	CodeInternal         Code = "INTERNAL"
)

type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches on code so errors.Is(err, ErrRoomNotFound) holds for any NotFound.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func NotFound(msg string) error         { return New(CodeNotFound, msg) }
func Unauthorized(msg string) error     { return New(CodeUnauthorized, msg) }
func AlreadyExpired(msg string) error   { return New(CodeAlreadyExpired, msg) }
func Blocked(msg string) error          { return New(CodeBlocked, msg) }
func InvalidReference(msg string) error { return New(CodeInvalidReference, msg) }
func InvalidArg(msg string) error       { return New(CodeInvalidArgument, msg) }
func Unauthenticated(msg string) error  { return New(CodeUnauthenticated, msg) }

func Internal(msg string, cause error) error {
	return Wrap(CodeInternal, msg, cause)
}

var (
	ErrRoomNotFound     = NotFound("room not found")
	ErrMessageNotFound  = NotFound("message not found")
	ErrSnapNotFound     = NotFound("snap not found")
	ErrNotRecipient     = Unauthorized("not a recipient of this snap")
	ErrSnapExpired      = AlreadyExpired("snap has expired")
	ErrRoomBlocked      = Blocked("room is blocked")
	ErrForeignMessage   = InvalidReference("message does not belong to this room")
	ErrSelfRoom         = InvalidArg("cannot open a room with yourself")
	ErrEmptyPayload     = InvalidArg("message payload is empty")
	ErrUnknownType      = InvalidArg("unknown message type")
	ErrNoRecipients     = InvalidArg("snap needs at least one recipient")
	ErrTooManyReceivers = InvalidArg("too many snap recipients")
	ErrMissingMedia     = InvalidArg("media_ref is required")
	ErrInvalidToken     = Unauthenticated("invalid or expired token")
)

// CodeOf returns the code carried by err, CodeInternal for foreign errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// Message is safe to send to clients: internal causes are not exposed.
func Message(err error) string {
	var ae *AppError
	if errors.As(err, &ae) && ae.Code != CodeInternal {
		return ae.Message
	}
	return "internal error"
}

func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeAlreadyExpired:
		return http.StatusGone
	case CodeBlocked:
		return http.StatusConflict
	case CodeInvalidReference:
		return http.StatusUnprocessableEntity
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
