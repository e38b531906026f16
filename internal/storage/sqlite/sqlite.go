package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/bank-website/backend/internal/domain/models"
	"github.com/bank-website/backend/internal/storage"
)

// querier is satisfied by both *sql.DB and *sql.Tx, so the same statement
// code serves plain calls and calls inside an atomic unit.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Storage implements storage.AccountStore over a SQLite database file.
type Storage struct {
	db *sql.DB
	q  querier
}

// New opens the database file at path. Transactions are opened in immediate
// mode so a RunAtomic unit takes the write lock up front; combined with the
// busy timeout this serializes concurrent mutations instead of failing them.
func New(path string) (*Storage, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate&_fk=1", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("database connection error %s", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect database error %s", err)
	}

	return &Storage{db: db, q: db}, nil
}

func (s *Storage) Stop() error {
	return s.db.Close()
}

func (s *Storage) GetAccount(ctx context.Context, userID string) (*models.Account, error) {
	const op = "storage.sqlite.GetAccount"

	const query = `SELECT user_id, first_name, last_name, email, password, gender, birth_date, phone_number, address, balance
		FROM users WHERE user_id = ?`

	var a models.Account
	err := s.q.QueryRowContext(ctx, query, userID).Scan(
		&a.UserID, &a.FirstName, &a.LastName, &a.Email, &a.PasswordHash,
		&a.Gender, &a.BirthDate, &a.PhoneNumber, &a.Address, &a.Balance,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapErr(err))
	}

	return &a, nil
}

// GetAccountForUpdate is a plain read here: the immediate transaction opened
// by RunAtomic already holds the database write lock, which in SQLite covers
// every row.
func (s *Storage) GetAccountForUpdate(ctx context.Context, userID string) (*models.Account, error) {
	return s.GetAccount(ctx, userID)
}

func (s *Storage) CreateAccount(ctx context.Context, account models.Account) error {
	const op = "storage.sqlite.CreateAccount"

	const query = `INSERT INTO users (user_id, first_name, last_name, email, password, gender, birth_date, phone_number, address, balance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.q.ExecContext(ctx, query,
		account.UserID, account.FirstName, account.LastName, account.Email,
		account.PasswordHash, account.Gender, account.BirthDate,
		account.PhoneNumber, account.Address, account.Balance,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapErr(err))
	}

	return nil
}

func (s *Storage) SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	const op = "storage.sqlite.SetBalance"

	res, err := s.q.ExecContext(ctx, "UPDATE users SET balance = ? WHERE user_id = ?", balance, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapErr(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}

	return nil
}

func (s *Storage) AppendRecord(ctx context.Context, record models.TransactionRecord) error {
	const op = "storage.sqlite.AppendRecord"

	const query = `INSERT INTO transactions (user_id, type, date, description, amount)
		VALUES (?, ?, ?, ?, ?)`

	_, err := s.q.ExecContext(ctx, query,
		record.UserID, record.Type, record.Date, record.Description, record.Amount,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapErr(err))
	}

	return nil
}

func (s *Storage) ListRecords(ctx context.Context, userID string, limit int) ([]models.TransactionRecord, error) {
	const op = "storage.sqlite.ListRecords"

	const query = `SELECT id, user_id, type, date, description, amount
		FROM transactions WHERE user_id = ?
		ORDER BY date DESC, id DESC LIMIT ?`

	rows, err := s.q.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapErr(err))
	}
	defer rows.Close()

	var records []models.TransactionRecord
	for rows.Next() {
		var r models.TransactionRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.Type, &r.Date, &r.Description, &r.Amount); err != nil {
			return nil, fmt.Errorf("%s: %w", op, mapErr(err))
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapErr(err))
	}

	return records, nil
}

func (s *Storage) RunAtomic(ctx context.Context, fn func(storage.AccountStore) error) error {
	const op = "storage.sqlite.RunAtomic"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapErr(err))
	}

	if err := fn(&Storage{db: s.db, q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, mapErr(err))
	}

	return nil
}

// mapErr translates driver failures into the storage sentinels the ledger
// understands. Anything unrecognized passes through unchanged.
func mapErr(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, driver.ErrBadConn):
		return storage.ErrUnavailable
	}

	var se sqlite3.Error
	if errors.As(err, &se) {
		switch {
		case se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey,
			se.ExtendedCode == sqlite3.ErrConstraintUnique:
			return storage.ErrDuplicateKey
		case se.Code == sqlite3.ErrBusy, se.Code == sqlite3.ErrLocked:
			return storage.ErrUnavailable
		}
	}

	return err
}

var _ storage.AccountStore = (*Storage)(nil)
