package models

import "github.com/shopspring/decimal"

// Account is a registered user together with their current balance.
// Profile fields are opaque payload; only UserID and Balance take part
// in ledger arithmetic.
type Account struct {
	UserID       string          `json:"user_id"`
	FirstName    string          `json:"first_name"`
	LastName     string          `json:"last_name"`
	Email        string          `json:"email"`
	PasswordHash string          `json:"-"`
	Gender       string          `json:"gender"`
	BirthDate    string          `json:"birth_date"`
	PhoneNumber  string          `json:"phone_number"`
	Address      string          `json:"address"`
	Balance      decimal.Decimal `json:"balance"`
}
