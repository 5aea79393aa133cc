package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// DomainError is an error with a stable code that clients can match on.
//
// Codes read SDB-<AREA>-<NNNN>; the four digits are the HTTP status times
// ten plus a discriminator (4011 is the second 401 of its area).
type DomainError struct {
	Code    string
	Message string
	Details string
	Cause   error
}

// NewDomainError creates an error with code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

func (e *DomainError) Error() string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(e.Code)
	b.WriteString("] ")
	b.WriteString(e.Message)
	if e.Details != "" {
		b.WriteString(": ")
		b.WriteString(e.Details)
	}
	return b.String()
}

func (e *DomainError) Unwrap() error { return e.Cause }

// Is matches any DomainError with the same code, so errors.Is(err,
// ErrNotFound) holds for copies carrying details.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

// HTTPStatus returns the status encoded in the code. Codes without a
// valid numeric suffix map to 500.
func (e *DomainError) HTTPStatus() int {
	_, digits, ok := cutLast(e.Code, '-')
	if !ok || len(digits) != 4 {
		return http.StatusInternalServerError
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1000 {
		return http.StatusInternalServerError
	}
	return n / 10
}

func cutLast(s string, sep byte) (before, after string, found bool) {
	if i := strings.LastIndexByte(s, sep); i >= 0 {
		return s[:i], s[i+1:], true
	}
	return s, "", false
}

// WithDetails returns a copy carrying details.
func (e *DomainError) WithDetails(details string) *DomainError {
	c := *e
	c.Details = details
	return &c
}

// Detailf is WithDetails with formatting.
func (e *DomainError) Detailf(format string, args ...any) *DomainError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// WithCause returns a copy wrapping cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	c := *e
	c.Cause = cause
	return &c
}

// As returns the DomainError in err's chain. Other errors come back as
// ErrInternal wrapping err, with ok false.
func As(err error) (de *DomainError, ok bool) {
	if errors.As(err, &de) {
		return de, true
	}
	return ErrInternal.WithCause(err), false
}

// IsDomainError reports whether err's chain holds a DomainError with code,
// or any DomainError when code is empty.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if !errors.As(err, &de) {
		return false
	}
	return code == "" || de.Code == code
}

// HTTPStatusOf returns the status for err; non-domain errors map to 500.
func HTTPStatusOf(err error) int {
	de, _ := As(err)
	return de.HTTPStatus()
}

// GetErrorCode returns the code of the DomainError in err's chain, or "".
func GetErrorCode(err error) string {
	if de, ok := As(err); ok {
		return de.Code
	}
	return ""
}

// Authentication.
var (
	ErrAPIKeyMissing    = NewDomainError("SDB-AUTH-4010", "Please add the API key in the Authorization headers.")
	ErrAPIKeyNotFound   = NewDomainError("SDB-AUTH-4011", "API key not found.")
	ErrPermissionDenied = NewDomainError("SDB-AUTH-4030", "permission denied")
)

// Requests.
var (
	ErrBadRequest = NewDomainError("SDB-REQ-4000", "bad request")
	// ErrMalformedValue is a value that is not unpadded base64url.
	ErrMalformedValue   = NewDomainError("SDB-REQ-4001", "Invalid base64 encoding (base64 url with non padding) value")
	ErrInvalidNamespace = NewDomainError("SDB-REQ-4002", "invalid namespace")
	// ErrInvalidAPIKey is a key that cannot form an ACL namespace segment.
	ErrInvalidAPIKey = NewDomainError("SDB-REQ-4003", "invalid api key")
	ErrMissingValue  = NewDomainError("SDB-REQ-4004", "Did not received a val= argument in the query string.")
	ErrBodyTooLarge  = NewDomainError("SDB-REQ-4130", "request body too large")
	ErrRateLimited   = NewDomainError("SDB-REQ-4290", "too many requests")
)

// Data.
var (
	ErrNotFound          = NewDomainError("SDB-DATA-4040", "value not found")
	ErrNamespaceNotFound = NewDomainError("SDB-DATA-4041", "Namespace not found, nothing was deleted.")
)

// System.
var (
	ErrInternal = NewDomainError("SDB-SYS-5000", "internal server error")
	// ErrDurability means the WAL append failed and the operation was not
	// applied.
	ErrDurability = NewDomainError("SDB-SYS-5030", "durability log append failed")
	// ErrReadOnly means the engine stopped accepting writes after repeated
	// WAL failures.
	ErrReadOnly = NewDomainError("SDB-SYS-5031", "engine is read-only")
)
