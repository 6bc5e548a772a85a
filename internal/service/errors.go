package service

import "errors"

// Workflow errors.  Store-level sentinels (not found, forbidden, conflict,
// unavailable, exhausted) come from the repository package and pass
// through unchanged.
var (
	ErrValidation   = errors.New("validation failed")
	ErrInvalidState = errors.New("invalid state")
	ErrTokenInvalid = errors.New("access link is invalid or expired")
	ErrPayment      = errors.New("payment failed")
)

// PaymentError wraps an error returned by the payment processor.  Its
// message is the processor's message, unchanged, and it matches ErrPayment.
type PaymentError struct {
	Err error
}

func (e *PaymentError) Error() string { return e.Err.Error() }

func (e *PaymentError) Unwrap() error { return e.Err }

func (e *PaymentError) Is(target error) bool { return target == ErrPayment }
