package models

import "github.com/shopspring/decimal"

// Transaction record types as stored in the transactions table.
const (
	TypeWithdrawal = "Withdrawal"
	TypeTransfer   = "Transfer"
)

// DateLayout is the format transaction dates are stored in. Lexicographic
// order of the stored string matches chronological order, which the
// newest-first history query relies on.
const DateLayout = "2006-01-02 15:04:05"

// TransactionRecord is one append-only entry of an account's history.
// Amount is always positive; direction is implied by Type and by which
// side of a transfer the record belongs to.
type TransactionRecord struct {
	ID          int64           `json:"-"`
	UserID      string          `json:"-"`
	Type        string          `json:"type"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}
