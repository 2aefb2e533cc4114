package domain

import "github.com/pkg/errors"

// Error is a sentinel error kind. Details are attached by wrapping, e.g.
// errors.Wrapf(ErrValidation, "player %s not found", id), and recovered with
// errors.Is.
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrValidation         = Error("validation error")
	ErrInsufficientFunds  = Error("insufficient funds")
	ErrInsufficientShares = Error("insufficient shares")
	ErrSubmissionCap      = Error("submission cap exceeded")
	ErrUnknownGame        = Error("unknown game")
	ErrInternal           = Error("internal error")
)

// Kind labels used in ERROR replies and metrics.
const (
	KindValidation         = "VALIDATION"
	KindInsufficientFunds  = "INSUFFICIENT_FUNDS"
	KindInsufficientShares = "INSUFFICIENT_SHARES"
	KindSubmissionCap      = "SUBMISSION_CAP_EXCEEDED"
	KindInternal           = "INTERNAL"
)

// KindOf classifies err into one of the Kind labels. Unknown games are
// reported as validation errors.
func KindOf(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrInsufficientShares):
		return KindInsufficientShares
	case errors.Is(err, ErrSubmissionCap):
		return KindSubmissionCap
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnknownGame):
		return KindValidation
	default:
		return KindInternal
	}
}

// Invalid is shorthand for a formatted validation error.
func Invalid(format string, args ...any) error {
	return errors.Wrapf(ErrValidation, format, args...)
}
