// Package ledger owns every balance and transaction-history mutation.
// All rules around withdrawals, transfers and registration live here; the
// HTTP layer and the store adapters are collaborators on either side.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bank-website/backend/internal/domain/models"
	"github.com/bank-website/backend/internal/events"
	"github.com/bank-website/backend/internal/lib/passwords"
	"github.com/bank-website/backend/internal/storage"
)

const (
	// historyLimit caps how many records GetRecentHistory returns.
	historyLimit = 4

	defaultOpTimeout = 3 * time.Second
)

// Ledger enforces the account invariants: balances never go negative, and
// every balance change commits together with its history record. It holds
// no state between calls; the store is the only shared resource.
type Ledger struct {
	store     storage.AccountStore
	hasher    passwords.Hasher
	publisher events.Publisher
	logger    *slog.Logger
	opTimeout time.Duration
	now       func() time.Time
}

// New builds a Ledger. publisher may be nil, in which case no events are
// emitted. A zero opTimeout falls back to the default.
func New(store storage.AccountStore, hasher passwords.Hasher, publisher events.Publisher, logger *slog.Logger, opTimeout time.Duration) *Ledger {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &Ledger{
		store:     store,
		hasher:    hasher,
		publisher: publisher,
		logger:    logger,
		opTimeout: opTimeout,
		now:       time.Now,
	}
}

// WithdrawResult carries the committed balance and the account's most
// recent history, oldest-first.
type WithdrawResult struct {
	Balance decimal.Decimal
	History []models.TransactionRecord
}

// RegisterParams are the registration inputs. Password is plaintext from
// the request and is hashed before it reaches the store.
type RegisterParams struct {
	UserID          string
	FirstName       string
	LastName        string
	Email           string
	Password        string
	Gender          string
	BirthDate       string
	PhoneNumber     string
	Address         string
	StartingBalance decimal.Decimal
}

// Withdraw debits amount from the account and appends one Withdrawal
// record, as a single atomic unit. The returned history reflects the
// committed state.
func (l *Ledger) Withdraw(ctx context.Context, userID string, amount decimal.Decimal, description string) (*WithdrawResult, error) {
	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	var res WithdrawResult
	err := l.store.RunAtomic(ctx, func(s storage.AccountStore) error {
		acct, err := s.GetAccountForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(acct.Balance) {
			return &InsufficientFundsError{Balance: acct.Balance}
		}

		record := models.TransactionRecord{
			UserID:      userID,
			Type:        models.TypeWithdrawal,
			Date:        l.now().Format(models.DateLayout),
			Description: description,
			Amount:      amount,
		}
		if err := s.AppendRecord(ctx, record); err != nil {
			return err
		}

		newBalance := acct.Balance.Sub(amount)
		if err := s.SetBalance(ctx, userID, newBalance); err != nil {
			return err
		}

		history, err := s.ListRecords(ctx, userID, historyLimit)
		if err != nil {
			return err
		}

		res.Balance = newBalance
		res.History = reverse(history)
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	l.logger.Info("withdrawal committed",
		slog.String("user_id", userID),
		slog.String("amount", amount.String()),
	)
	l.publish(ctx, events.TransactionCompleted{
		Type:        models.TypeWithdrawal,
		FromUserID:  userID,
		Amount:      amount,
		Description: description,
		OccurredAt:  l.now(),
	})

	return &res, nil
}

// Transfer moves amount between two accounts: two records sharing one
// timestamp plus both balance updates commit as one unit or not at all.
// It intentionally returns no balances; callers query state separately.
func (l *Ledger) Transfer(ctx context.Context, fromID, toID string, amount decimal.Decimal, description string) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	err := l.store.RunAtomic(ctx, func(s storage.AccountStore) error {
		if fromID == toID {
			if _, err := s.GetAccountForUpdate(ctx, fromID); err != nil {
				return err
			}
			return ErrSelfTransfer
		}

		// Lock rows in lexicographic order so two opposite-direction
		// transfers cannot deadlock.
		first, second := fromID, toID
		if second < first {
			first, second = second, first
		}
		a, err := s.GetAccountForUpdate(ctx, first)
		if err != nil {
			return err
		}
		b, err := s.GetAccountForUpdate(ctx, second)
		if err != nil {
			return err
		}
		from, to := a, b
		if first != fromID {
			from, to = b, a
		}

		if amount.GreaterThan(from.Balance) {
			return &InsufficientFundsError{Balance: from.Balance}
		}

		date := l.now().Format(models.DateLayout)
		for _, record := range []models.TransactionRecord{
			{UserID: fromID, Type: models.TypeTransfer, Date: date, Description: description, Amount: amount},
			{UserID: toID, Type: models.TypeTransfer, Date: date, Description: description, Amount: amount},
		} {
			if err := s.AppendRecord(ctx, record); err != nil {
				return err
			}
		}

		if err := s.SetBalance(ctx, fromID, from.Balance.Sub(amount)); err != nil {
			return err
		}
		return s.SetBalance(ctx, toID, to.Balance.Add(amount))
	})
	if err != nil {
		return mapStoreErr(err)
	}

	l.logger.Info("transfer committed",
		slog.String("from", fromID),
		slog.String("to", toID),
		slog.String("amount", amount.String()),
	)
	l.publish(ctx, events.TransactionCompleted{
		Type:        models.TypeTransfer,
		FromUserID:  fromID,
		ToUserID:    toID,
		Amount:      amount,
		Description: description,
		OccurredAt:  l.now(),
	})

	return nil
}

// GetBalance is a pure read.
func (l *Ledger) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	acct, err := l.store.GetAccount(ctx, userID)
	if err != nil {
		return decimal.Zero, mapStoreErr(err)
	}
	return acct.Balance, nil
}

// GetRecentHistory returns at most the 4 most-recently-dated records,
// reversed to oldest-first display order. An account with no history
// yields an empty result.
func (l *Ledger) GetRecentHistory(ctx context.Context, userID string) ([]models.TransactionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	records, err := l.store.ListRecords(ctx, userID, historyLimit)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return reverse(records), nil
}

// Register creates the account with its starting balance. No transaction
// record is written for the initial deposit. Uniqueness is enforced by the
// store's primary key and surfaces as ErrDuplicateKey.
func (l *Ledger) Register(ctx context.Context, p RegisterParams) error {
	hash, err := l.hasher.Hash(p.Password)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	err = l.store.CreateAccount(ctx, models.Account{
		UserID:       p.UserID,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Email:        p.Email,
		PasswordHash: hash,
		Gender:       p.Gender,
		BirthDate:    p.BirthDate,
		PhoneNumber:  p.PhoneNumber,
		Address:      p.Address,
		Balance:      p.StartingBalance,
	})
	if err != nil {
		return mapStoreErr(err)
	}

	l.logger.Info("account registered", slog.String("user_id", p.UserID))
	return nil
}

// CheckCredentials reports whether an account exists with a matching
// password. An unknown user id is false, not an error.
func (l *Ledger) CheckCredentials(ctx context.Context, userID, password string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	acct, err := l.store.GetAccount(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, mapStoreErr(err)
	}
	return l.hasher.Verify(acct.PasswordHash, password), nil
}

func (l *Ledger) publish(ctx context.Context, ev events.TransactionCompleted) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		l.logger.Error("failed to publish transaction event", "error", err)
	}
}

// reverse flips a newest-first page into oldest-first display order.
func reverse(records []models.TransactionRecord) []models.TransactionRecord {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records
}

// mapStoreErr translates storage sentinels into the ledger's error
// taxonomy; domain errors pass through unchanged.
func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, storage.ErrDuplicateKey):
		return ErrDuplicateKey
	case errors.Is(err, storage.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return ErrStoreUnavailable
	}
	return err
}
