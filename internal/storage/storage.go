package storage

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/bank-website/backend/internal/domain/models"
)

var (
	// ErrNotFound means no account exists for the requested user id.
	ErrNotFound = errors.New("account not found")

	// ErrDuplicateKey means an account with the same user id already exists.
	ErrDuplicateKey = errors.New("account already exists")

	// ErrUnavailable means the store could not be reached within the
	// operation deadline, or the connection was lost mid-operation.
	ErrUnavailable = errors.New("store unavailable")
)

// AccountStore is the persistence capability the ledger runs on: accounts
// keyed by user id plus an append-only transaction history per account.
// Implementations must never branch on engine type above this interface.
type AccountStore interface {
	GetAccount(ctx context.Context, userID string) (*models.Account, error)

	// GetAccountForUpdate reads an account and locks its row for the
	// remainder of the enclosing atomic unit. Only valid inside RunAtomic.
	GetAccountForUpdate(ctx context.Context, userID string) (*models.Account, error)

	CreateAccount(ctx context.Context, account models.Account) error

	SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error

	AppendRecord(ctx context.Context, record models.TransactionRecord) error

	// ListRecords returns up to limit records for the account, most
	// recently dated first. Ordering among equal dates is unspecified.
	ListRecords(ctx context.Context, userID string, limit int) ([]models.TransactionRecord, error)

	// RunAtomic executes fn against a store view whose writes commit as one
	// all-or-nothing unit. Any error from fn rolls the unit back and is
	// returned unchanged.
	RunAtomic(ctx context.Context, fn func(AccountStore) error) error
}
