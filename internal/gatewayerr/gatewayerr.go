// Package gatewayerr implements the gateway's canonical error taxonomy: a
// small numeric code space shared by every external interface (REST, SSE,
// and the bidirectional stream), each code carrying its HTTP status and
// whether the failure is recoverable within an ongoing stream turn.
//
// Errors are constructed with the New* functions below and wrapped with
// fmt.Errorf("...: %w", err) as they cross layers, same as anywhere else in
// this codebase — there is no exception hierarchy. Callers match with
// errors.As at the transport boundary to recover the code and HTTP status.
package gatewayerr

import "fmt"

// Code is one of the canonical error codes from the gateway's error table.
type Code int

const (
	CodeSuccess Code = 0

	CodeInvalidParam    Code = 1001
	CodeAuthFailed      Code = 1002
	CodeSessionNotFound Code = 1003
	CodeSessionExpired  Code = 1004

	CodeSTTError Code = 2001
	CodeLLMError Code = 2002
	CodeTimeout  Code = 2003

	CodeRateLimit     Code = 3001
	CodeQuotaExceeded Code = 3002

	CodeInternal Code = 5000

	// CodeLLMRecoverable marks an LLM turn failure that does not end the
	// surrounding stream — the next sentence may attempt again. Only
	// meaningful on the streaming transport; REST/SSE never emit it.
	CodeLLMRecoverable Code = 5001
)

// httpStatus maps each code to its REST/SSE HTTP status. Codes with no
// natural HTTP mapping (CodeLLMRecoverable, stream-only) map to 0.
var httpStatus = map[Code]int{
	CodeSuccess:         200,
	CodeInvalidParam:    400,
	CodeAuthFailed:      401,
	CodeSessionNotFound: 404,
	CodeSessionExpired:  410,
	CodeSTTError:        502,
	CodeLLMError:        502,
	CodeTimeout:         504,
	CodeRateLimit:       429,
	CodeQuotaExceeded:   429,
	CodeInternal:        500,
	CodeLLMRecoverable:  0,
}

// HTTPStatus returns the HTTP status this code maps to, or 0 for codes with
// no REST mapping (the stream-only recoverable code).
func (c Code) HTTPStatus() int {
	return httpStatus[c]
}

// Recoverable reports whether this code represents a failure that does not
// terminate the surrounding stream or session — only CodeLLMRecoverable
// currently qualifies.
func (c Code) Recoverable() bool {
	return c == CodeLLMRecoverable
}

// Error is the gateway's canonical error type: a code, a human-readable
// message, and an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// newError builds an *Error with the given code and message, wrapping cause
// if non-nil.
func newError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// NewInvalidParam builds a 1001 invalid-parameter error.
func NewInvalidParam(message string, cause error) *Error {
	return newError(CodeInvalidParam, message, cause)
}

// NewAuthFailed builds a 1002 authentication-failed error.
func NewAuthFailed(message string, cause error) *Error {
	return newError(CodeAuthFailed, message, cause)
}

// NewSessionNotFound builds a 1003 session-not-found error.
func NewSessionNotFound(sessionID string) *Error {
	return newError(CodeSessionNotFound, fmt.Sprintf("session not found: %s", sessionID), nil)
}

// NewSessionExpired builds a 1004 session-expired error.
func NewSessionExpired(sessionID string) *Error {
	return newError(CodeSessionExpired, fmt.Sprintf("session expired: %s", sessionID), nil)
}

// NewSTTError builds a 2001 upstream STT error.
func NewSTTError(cause error) *Error {
	return newError(CodeSTTError, "speech-to-text upstream error", cause)
}

// NewLLMError builds a 2002 upstream LLM error.
func NewLLMError(cause error) *Error {
	return newError(CodeLLMError, "llm upstream error", cause)
}

// NewTimeout builds a 2003 deadline-exceeded error.
func NewTimeout(operation string, cause error) *Error {
	return newError(CodeTimeout, fmt.Sprintf("timed out: %s", operation), cause)
}

// NewRateLimit builds a 3001 rate-limit error.
func NewRateLimit(message string) *Error {
	return newError(CodeRateLimit, message, nil)
}

// NewQuotaExceeded builds a 3002 quota-exceeded error.
func NewQuotaExceeded(message string) *Error {
	return newError(CodeQuotaExceeded, message, nil)
}

// NewInternal builds a 5000 fatal internal error.
func NewInternal(message string, cause error) *Error {
	return newError(CodeInternal, message, cause)
}

// NewLLMRecoverable builds a 5001 recoverable LLM turn error. Only
// meaningful on the bidirectional stream — the worker loop continues after
// emitting it.
func NewLLMRecoverable(cause error) *Error {
	return newError(CodeLLMRecoverable, "llm turn failed, you may try again", cause)
}
