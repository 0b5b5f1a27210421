// Package dErrors provides code-carrying domain errors.
//
// Services wrap infrastructure failures and validation problems with a
// stable code so callers can branch on error class without string
// matching. Codes survive wrapping: HasCode walks the chain.
package dErrors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error class.
type Code string

const (
	// CodeInvalidInput marks malformed or missing caller input.
	CodeInvalidInput Code = "invalid_input"

	// CodeSchema marks malformed, incompatible, or failed schema
	// registration. Never retried.
	CodeSchema Code = "schema_error"

	// CodeSchemaNotFound marks a schema that does not exist in the registry.
	CodeSchemaNotFound Code = "schema_not_found"

	// CodeRateLimited marks a denied issuance due to recipient windows.
	// The caller must back off; the engine never retries these.
	CodeRateLimited Code = "rate_limit_exceeded"

	// CodeCreation marks a transform/encode/submit/extraction failure on
	// the issuance path.
	CodeCreation Code = "attestation_creation_error"

	// CodeVerification marks a read-path predicate or decode failure.
	CodeVerification Code = "attestation_verification_error"

	// CodeNotFound marks a missing attestation or on-chain record.
	CodeNotFound Code = "not_found"

	// CodeBlockchain marks an RPC or network-layer failure. Retried only
	// inside the ledger gateway's bounded policy.
	CodeBlockchain Code = "blockchain_error"

	// CodeMaxRetries marks an exhausted retry budget. Terminal.
	CodeMaxRetries Code = "max_retries_exceeded"

	// CodeUnauthorized marks an operation the configuration forbids,
	// such as revocation when it is disabled.
	CodeUnauthorized Code = "unauthorized"

	// CodeConflict marks a state conflict (duplicate registration, stale
	// update).
	CodeConflict Code = "conflict"

	// CodeInternal is the fallback for unexpected failures.
	CodeInternal Code = "internal"
)

// Error is a domain error with a stable code and optional structured details.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates an existing error with a code and message. The original
// error stays reachable via errors.Is/As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// WithDetails attaches structured details and returns the same error so
// constructors chain: dErrors.New(code, msg).WithDetails("limit", 10).
// Details are stored as [key, value, ...] pairs.
func (e *Error) WithDetails(kv ...any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any, len(kv)/2)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e.Details[key] = kv[i+1]
	}
	return e
}

// Detail returns a named detail from the nearest *Error in the chain.
func Detail(err error, key string) (any, bool) {
	var de *Error
	if !errors.As(err, &de) || de.Details == nil {
		return nil, false
	}
	v, ok := de.Details[key]
	return v, ok
}

// CodeOf returns the code of the nearest *Error in the chain, or
// CodeInternal when the error carries no code.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Unwrap()
	}
	return false
}
