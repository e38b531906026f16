package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound means the user id resolves to no account.
	ErrNotFound = errors.New("user not found")

	// ErrSelfTransfer rejects transfers where sender and receiver match.
	ErrSelfTransfer = errors.New("cannot transfer to yourself")

	// ErrDuplicateKey rejects registration of an existing user id.
	ErrDuplicateKey = errors.New("user id already registered")

	// ErrInvalidAmount rejects non-positive amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrStoreUnavailable means the store could not be reached within the
	// operation deadline.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// InsufficientFundsError reports a rejected debit together with the balance
// at the time of the check, so callers can display it.
type InsufficientFundsError struct {
	Balance decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %s", e.Balance.String())
}
