package errors

import (
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether err matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain matching target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// HasCode reports whether err is a PaymentError carrying the given code.
func HasCode(err error, code Code) bool {
	var perr *PaymentError
	if errors.As(err, &perr) {
		return perr.Code == code
	}
	return false
}

// IsRetryable reports whether err may be retried. Non-PaymentError values are
// treated as non-retryable: unknown failures around money movement must not be
// replayed blindly.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var perr *PaymentError
	if errors.As(err, &perr) {
		return perr.IsRetryable()
	}
	return false
}
