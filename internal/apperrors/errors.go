package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindPersistence
	KindExternalService
)

// AppError carries a kind and a user-facing message. ExternalService
// errors are never returned to clients; they exist for logging only.
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func Validation(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Persistence(err error, msg string) *AppError {
	return &AppError{Kind: KindPersistence, Message: msg, Err: err}
}

func ExternalService(err error, msg string) *AppError {
	return &AppError{Kind: KindExternalService, Message: msg, Err: err}
}

func IsValidation(err error) bool  { return hasKind(err, KindValidation) }
func IsNotFound(err error) bool    { return hasKind(err, KindNotFound) }
func IsPersistence(err error) bool { return hasKind(err, KindPersistence) }

func hasKind(err error, k Kind) bool {
	var ae *AppError
	return errors.As(err, &ae) && ae.Kind == k
}

// HTTPStatus maps the taxonomy to a response code.
func HTTPStatus(err error) int {
	var ae *AppError
	if errors.As(err, &ae) {
		switch ae.Kind {
		case KindValidation:
			return http.StatusBadRequest
		case KindNotFound:
			return http.StatusNotFound
		}
	}
	return http.StatusInternalServerError
}
