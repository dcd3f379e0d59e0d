package service

import (
	"errors"
	"fmt"

	"commissionledger/internal/repository"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrWalletNotFound      = repository.ErrWalletNotFound
	ErrOrderNotFound       = repository.ErrOrderNotFound
	ErrTransactionNotFound = repository.ErrTransactionNotFound
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrBelowMinimum        = fmt.Errorf("%w: amount below minimum withdrawal", ErrValidation)
	ErrTransient           = errors.New("transient failure")
	ErrInvariantViolation  = errors.New("ledger invariant violated")
	ErrTxRequired          = errors.New("caller must supply an open transaction")
)

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsRetryable reports whether err may succeed on a later attempt. Anything not known
// to be permanent is treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrWalletNotFound),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrTransactionNotFound),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInvariantViolation),
		errors.Is(err, ErrTxRequired):
		return false
	}
	return true
}
