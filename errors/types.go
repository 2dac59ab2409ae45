package errors

import (
	"fmt"
)

// Code categorizes payment-pipeline errors.
type Code string

const (
	// CodeConfig indicates missing or invalid configuration. Fatal to the
	// ingestion path only; the process keeps serving its health endpoint.
	CodeConfig Code = "CONFIG"

	// CodeBalance indicates an insufficient settlement or gas-asset balance.
	CodeBalance Code = "BALANCE"

	// CodeEstimation indicates gas estimation failed, which usually means the
	// call would revert on chain.
	CodeEstimation Code = "ESTIMATION"

	// CodeSubmission indicates a transaction was rejected before a handle was
	// obtained.
	CodeSubmission Code = "SUBMISSION"

	// CodeTimeout indicates a confirmation wait exceeded its bound. The
	// transaction may still land; the outcome is unknown, not failed.
	CodeTimeout Code = "TIMEOUT"

	// CodeQuery indicates a transient read failure (balance, receipt, block).
	CodeQuery Code = "QUERY"

	// CodeRoute indicates a routing-service transport failure. A clean
	// "no route" answer is ErrNoRoute in the router package, not this.
	CodeRoute Code = "ROUTE"

	// CodeInternal indicates an unexpected internal failure.
	CodeInternal Code = "INTERNAL"
)

// PaymentError is the error type carried across the payment pipeline. It keeps
// the classification the engine needs to pick a terminal state, plus free-form
// diagnostic context for operator notifications.
type PaymentError struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Cause   error          `json:"-"`
	Context map[string]any `json:"context,omitempty"`
}

// New creates a PaymentError.
func New(code Code, message string, cause error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// Error implements the error interface.
func (e *PaymentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *PaymentError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a diagnostic key/value to the error.
func (e *PaymentError) WithContext(key string, value any) *PaymentError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// IsRetryable reports whether the operation that produced the error can be
// retried safely. Submission and timeout errors are never retryable: the
// transaction may already be in flight.
func (e *PaymentError) IsRetryable() bool {
	switch e.Code {
	case CodeQuery, CodeRoute:
		return true
	default:
		return false
	}
}

// Convenience constructors for the common taxonomy entries.

func NewConfigError(message string) *PaymentError {
	return New(CodeConfig, message, nil)
}

func NewBalanceError(message string, cause error) *PaymentError {
	return New(CodeBalance, message, cause)
}

func NewEstimationError(message string, cause error) *PaymentError {
	return New(CodeEstimation, message, cause)
}

func NewSubmissionError(message string, cause error) *PaymentError {
	return New(CodeSubmission, message, cause)
}

func NewTimeoutError(message string) *PaymentError {
	return New(CodeTimeout, message, nil)
}

func NewQueryError(message string, cause error) *PaymentError {
	return New(CodeQuery, message, cause)
}

func NewRouteError(message string, cause error) *PaymentError {
	return New(CodeRoute, message, cause)
}

func NewInternalError(message string, cause error) *PaymentError {
	return New(CodeInternal, message, cause)
}
