// Package errors defines the error taxonomy for the stablecoin SDK.
//
// All SDK errors are represented as StablecoinError, which provides:
//   - Code: Machine-readable error identifier
//   - Message: Human-readable error description
//   - Kind: Which failure domain produced the error (config, capability, business, transport, ledger, store)
//   - Cause: Underlying error, if any
//   - Context: Structured details (token id, attempted amount, current limit, ...)
//
// The kind decides how a caller reacts. Only transport errors are worth retrying,
// and the SDK never retries a mutating call on its own.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code is a machine-readable error identifier.
type Code string

// Kind classifies an error by failure domain.
type Kind string

const (
	KindConfig     Kind = "config"
	KindCapability Kind = "capability"
	KindBusiness   Kind = "business"
	KindTransport  Kind = "transport"
	KindLedger     Kind = "ledger"
	KindStore      Kind = "store"
)

// Error codes - Configuration
const (
	UNRECOGNIZED_SIGNATURE_STRATEGY Code = "UNRECOGNIZED_SIGNATURE_STRATEGY"
	UNRECOGNIZED_BACKEND            Code = "UNRECOGNIZED_BACKEND"
	MISSING_ALLOWANCE_SPECIFICATION Code = "MISSING_ALLOWANCE_SPECIFICATION"
	INVALID_ARGUMENT                Code = "INVALID_ARGUMENT"
	INVALID_AMOUNT                  Code = "INVALID_AMOUNT"
)

// Error codes - Capability
const (
	OPERATION_UNSUPPORTED Code = "OPERATION_UNSUPPORTED"
)

// Error codes - Business invariants
const (
	SUPPLY_CAP_EXCEEDED           Code = "SUPPLY_CAP_EXCEEDED"
	INSUFFICIENT_TREASURY_BALANCE Code = "INSUFFICIENT_TREASURY_BALANCE"
	INSUFFICIENT_ACCOUNT_BALANCE  Code = "INSUFFICIENT_ACCOUNT_BALANCE"
	INSUFFICIENT_BALANCE          Code = "INSUFFICIENT_BALANCE"
	DECREASE_EXCEEDS_LIMIT        Code = "DECREASE_EXCEEDS_LIMIT"
	ALLOWANCE_UNLIMITED           Code = "ALLOWANCE_UNLIMITED"
	RESERVE_DENIED                Code = "RESERVE_DENIED"
	TOKEN_NOT_ASSOCIATED          Code = "TOKEN_NOT_ASSOCIATED"
	ACCOUNT_FROZEN                Code = "ACCOUNT_FROZEN"
	KYC_NOT_GRANTED               Code = "KYC_NOT_GRANTED"
	TOKEN_PAUSED                  Code = "TOKEN_PAUSED"
	TOKEN_DELETED                 Code = "TOKEN_DELETED"
	THRESHOLD_NOT_MET             Code = "THRESHOLD_NOT_MET"
	UNAUTHORIZED_KEY              Code = "UNAUTHORIZED_KEY"
	INVALID_SIGNATURE             Code = "INVALID_SIGNATURE"
	MULTISIG_NOT_FOUND            Code = "MULTISIG_NOT_FOUND"
	TRANSITION_INVALID            Code = "TRANSITION_INVALID"
)

// Error codes - Transport
const (
	NETWORK_ERROR    Code = "NETWORK_ERROR"
	MIRROR_NOT_FOUND Code = "MIRROR_NOT_FOUND"
	SIGNER_ERROR     Code = "SIGNER_ERROR"
	SIGNER_TIMEOUT   Code = "SIGNER_TIMEOUT"
)

// Error codes - Ledger
const (
	LEDGER_REJECTED Code = "LEDGER_REJECTED"
)

// Error codes - Store
const (
	STORE_ERROR Code = "STORE_ERROR"
)

// StablecoinError is the base error type for all SDK errors.
type StablecoinError struct {
	Code    Code
	Message string
	Kind    Kind
	Cause   error
	Context map[string]any
}

// Error returns a formatted error string.
func (e *StablecoinError) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", e.Kind, e.Code, e.Message)
	if e.Cause != nil {
		msg += fmt.Sprintf(" (caused by: %v)", e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause error, enabling error chain inspection.
func (e *StablecoinError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a structured detail and returns the same error.
func (e *StablecoinError) WithContext(key string, value any) *StablecoinError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func newError(kind Kind, code Code, message string, cause error) *StablecoinError {
	return &StablecoinError{
		Code:    code,
		Message: message,
		Kind:    kind,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// NewConfigError creates a configuration error. These are programming or setup
// mistakes and are never retried.
func NewConfigError(code Code, message string, cause error) *StablecoinError {
	return newError(KindConfig, code, message, cause)
}

// NewCapabilityError creates a capability error.
func NewCapabilityError(code Code, message string, cause error) *StablecoinError {
	return newError(KindCapability, code, message, cause)
}

// NewBusinessError creates a business-invariant error. Raised before any
// mutating ledger call.
func NewBusinessError(code Code, message string, cause error) *StablecoinError {
	return newError(KindBusiness, code, message, cause)
}

// NewTransportError creates a retryable network or signing-service error.
func NewTransportError(code Code, message string, cause error) *StablecoinError {
	return newError(KindTransport, code, message, cause)
}

// NewLedgerError creates a ledger-rejected error. The native status is kept in
// Context["status"].
func NewLedgerError(status string, message string, cause error) *StablecoinError {
	return newError(KindLedger, LEDGER_REJECTED, message, cause).WithContext("status", status)
}

// NewStoreError creates a persistence error.
func NewStoreError(code Code, message string, cause error) *StablecoinError {
	return newError(KindStore, code, message, cause)
}

// Is checks if the target error is a StablecoinError with the same code.
func (e *StablecoinError) Is(target error) bool {
	if target == nil {
		return false
	}
	other, ok := target.(*StablecoinError)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

// As finds the first StablecoinError in err's chain and assigns it.
func As(err error, target **StablecoinError) bool {
	if err == nil {
		return false
	}
	return stderrors.As(err, target)
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	var se *StablecoinError
	if !As(err, &se) {
		return false
	}
	return se.Code == code
}

// KindOf returns the kind of err, or "" when err is not an SDK error.
func KindOf(err error) Kind {
	var se *StablecoinError
	if !As(err, &se) {
		return ""
	}
	return se.Kind
}

// Retryable reports whether the caller may retry the failed operation.
func Retryable(err error) bool {
	return KindOf(err) == KindTransport
}
