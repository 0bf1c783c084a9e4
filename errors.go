package bloggy

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorResponder interface {
	RespondError(w http.ResponseWriter, r *http.Request) bool
}

// NotFoundError responds with not found status code. It is returned when a referenced
// record, an article most of the time, does not exist.
type NotFoundError struct {
	kind string
	key  string
}

func NotFound(kind string, key string) *NotFoundError {
	return &NotFoundError{kind: kind, key: key}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("NotFound: %v %q", e.kind, e.key)
}

func (e *NotFoundError) RespondError(w http.ResponseWriter, r *http.Request) bool {
	msg := strings.Title(e.kind) + " not found"
	http.Error(w, msg, http.StatusNotFound)
	return true
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// UnauthorizedError responds with unauthorized status code.
type UnauthorizedError struct {
	path string
}

func Unauthorized(path string) *UnauthorizedError {
	return &UnauthorizedError{path: path}
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("UnauthorizedError: %v", e.path)
}

func (e *UnauthorizedError) RespondError(w http.ResponseWriter, r *http.Request) bool {
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	return true
}

func IsUnauthorized(err error) bool {
	var e *UnauthorizedError
	return errors.As(err, &e)
}

// ConflictRetryError responds with conflict status code. It wraps a transient storage
// failure, lock contention or a serialization failure, after which the whole operation
// can be attempted again.
type ConflictRetryError struct {
	err error
}

func ConflictRetry(err error) *ConflictRetryError {
	return &ConflictRetryError{err: err}
}

func (e *ConflictRetryError) Error() string {
	return fmt.Sprintf("ConflictRetry: %v", e.err)
}

func (e *ConflictRetryError) Unwrap() error {
	return e.err
}

func (e *ConflictRetryError) RespondError(w http.ResponseWriter, r *http.Request) bool {
	w.Header().Set("Retry-After", "1")
	http.Error(w, "Conflicting update, please retry", http.StatusConflict)
	return true
}

func IsConflictRetry(err error) bool {
	var e *ConflictRetryError
	return errors.As(err, &e)
}

// BadRequestError responds with bad request status code
type BadRequestError struct {
	err error
}

func BadRequest(err error) *BadRequestError {
	return &BadRequestError{err: err}
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("BadRequestError: %v", e.err)
}

func (e *BadRequestError) Unwrap() error {
	return e.err
}

func (e *BadRequestError) RespondError(w http.ResponseWriter, r *http.Request) bool {
	http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
	return true
}

// UnprocessableEntityError responds with unprocessable entity status code, listing
// fields that are invalid.
type UnprocessableEntityError struct {
	fieldNames []string
	err        error
}

func UnprocessableEntity(fieldNames ...string) *UnprocessableEntityError {
	return &UnprocessableEntityError{
		fieldNames: fieldNames,
	}
}

func UnprocessableEntityWithError(err error, fieldNames ...string) *UnprocessableEntityError {
	return &UnprocessableEntityError{
		err:        err,
		fieldNames: fieldNames,
	}
}

func (e *UnprocessableEntityError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("UnprocessableEntityError: error %v, %v", e.err, e.fieldNames)
	}

	return fmt.Sprintf("UnprocessableEntityError: %v", e.fieldNames)
}

// Fields returns the names of the invalid fields.
func (e *UnprocessableEntityError) Fields() []string {
	return e.fieldNames
}

func (e *UnprocessableEntityError) RespondError(w http.ResponseWriter, r *http.Request) bool {
	msg := fmt.Sprintf("%s: invalid %v", http.StatusText(http.StatusUnprocessableEntity), e.fieldNames)
	http.Error(w, msg, http.StatusUnprocessableEntity)
	return true
}

func IsUnprocessable(err error) bool {
	var e *UnprocessableEntityError
	return errors.As(err, &e)
}

// MethodNotAllowedError responds with a method not allowed status code.
type MethodNotAllowedError struct {
	method string
	path   string
}

func MethodNotAllowed(method string, path string) *MethodNotAllowedError {
	return &MethodNotAllowedError{
		method: method,
		path:   path,
	}
}

func (e *MethodNotAllowedError) Error() string {
	return fmt.Sprintf("MethodNotAllowed: %v %v", e.method, e.path)
}

func (e *MethodNotAllowedError) RespondError(w http.ResponseWriter, r *http.Request) bool {
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	return true
}
