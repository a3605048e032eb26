package loans

import (
	"errors"
	"fmt"
	"net/http"
)

// ===== Error model =====
type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeMalformedFile   Code = "MALFORMED_FILE"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code
	Message string
	cause   error
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func (e *APIError) Unwrap() error { return e.cause }

func ErrInvalid(msg string) *APIError   { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError  { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrConflict(msg string) *APIError  { return &APIError{Code: CodeConflict, Message: msg} }
func ErrMalformed(msg string) *APIError { return &APIError{Code: CodeMalformedFile, Message: msg} }
func ErrInternal(msg string) *APIError  { return &APIError{Code: CodeInternal, Message: msg} }

// errPersistence wraps a data-access failure; the cause stays reachable via errors.Is/As.
func errPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var api *APIError
	if errors.As(err, &api) {
		return err
	}
	return &APIError{Code: CodeInternal, Message: op + ": " + err.Error(), cause: err}
}

// errSequenceTaken is returned when the generator moved between allocation and commit.
var errSequenceTaken = ErrConflict("transaction number already issued")

func IsCode(err error, code Code) bool {
	var api *APIError
	return errors.As(err, &api) && api.Code == code
}

func ToHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return http.StatusBadRequest
		case CodeNotFound:
			return http.StatusNotFound
		case CodeConflict:
			return http.StatusConflict
		case CodeMalformedFile:
			return http.StatusUnprocessableEntity
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
