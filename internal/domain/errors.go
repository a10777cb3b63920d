package domain

import "errors"

var (
	ErrAmountMismatch = errors.New("deposited amount does not match insured amount")
	ErrBelowMinimum   = errors.New("insured amount is below the minimum")
	ErrInvalidPolicy  = errors.New("invalid policy")

	ErrOracleNotConfigured       = errors.New("oracle is not configured")
	ErrUnknownOrFulfilledRequest = errors.New("unknown or already fulfilled request")

	ErrMalformedReading = errors.New("malformed reading")

	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrTransferFailed    = errors.New("transfer failed")
)

// Error kinds used as log fields and metric labels.
const (
	KindValidation  = "validation"
	KindCorrelation = "correlation"
	KindDecoding    = "decoding"
	KindResource    = "resource"
	KindInternal    = "internal"
)

// ErrorKind classifies err into one of the Kind constants.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrAmountMismatch), errors.Is(err, ErrBelowMinimum), errors.Is(err, ErrInvalidPolicy):
		return KindValidation
	case errors.Is(err, ErrOracleNotConfigured), errors.Is(err, ErrUnknownOrFulfilledRequest):
		return KindCorrelation
	case errors.Is(err, ErrMalformedReading):
		return KindDecoding
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrTransferFailed):
		return KindResource
	}
	return KindInternal
}
