package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/bank-website/backend/internal/domain/models"
	"github.com/bank-website/backend/internal/storage"
)

// Config holds the MySQL connection settings.
type Config struct {
	Host string
	Port int
	User string
	Pass string
	Db   string
}

// DSN renders the go-sql-driver connection string. clientFoundRows makes
// RowsAffected count matched rows, so an update that leaves a column at its
// current value is not mistaken for a missing row.
func (c Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&clientFoundRows=true",
		c.User, c.Pass, c.Host, c.Port, c.Db)
}

const (
	// mysqlErrDuplicateEntry is server error 1062 (ER_DUP_ENTRY).
	mysqlErrDuplicateEntry = 1062

	connectRetries       = 10
	connectRetryInterval = 2 * time.Second
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Storage implements storage.AccountStore over a MySQL database.
type Storage struct {
	db *sql.DB
	q  querier
}

// New connects to MySQL, retrying for a bounded time so the service can
// start before the database container is ready.
func New(cfg Config, log *slog.Logger) (*Storage, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database connection error %s", err)
	}

	for i := 0; i < connectRetries; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		log.Warn("mysql not ready, retrying",
			slog.Int("attempt", i+1),
			slog.Int("max_attempts", connectRetries),
			"error", err,
		)
		time.Sleep(connectRetryInterval)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect database after %d attempts: %w", connectRetries, err)
	}

	return &Storage{db: db, q: db}, nil
}

func (s *Storage) Stop() error {
	return s.db.Close()
}

const accountColumns = `user_id, first_name, last_name, email, password, gender, birth_date, phone_number, address, balance`

func (s *Storage) getAccount(ctx context.Context, userID string, forUpdate bool) (*models.Account, error) {
	const op = "storage.mysql.GetAccount"

	query := `SELECT ` + accountColumns + ` FROM users WHERE user_id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}

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

func (s *Storage) GetAccount(ctx context.Context, userID string) (*models.Account, error) {
	return s.getAccount(ctx, userID, false)
}

// GetAccountForUpdate takes a row lock that is held until the enclosing
// transaction commits or rolls back.
func (s *Storage) GetAccountForUpdate(ctx context.Context, userID string) (*models.Account, error) {
	return s.getAccount(ctx, userID, true)
}

func (s *Storage) CreateAccount(ctx context.Context, account models.Account) error {
	const op = "storage.mysql.CreateAccount"

	const query = `INSERT INTO users (` + accountColumns + `)
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
	const op = "storage.mysql.SetBalance"

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
	const op = "storage.mysql.AppendRecord"

	const query = "INSERT INTO transactions (user_id, type, `date`, description, amount) VALUES (?, ?, ?, ?, ?)"

	_, err := s.q.ExecContext(ctx, query,
		record.UserID, record.Type, record.Date, record.Description, record.Amount,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapErr(err))
	}

	return nil
}

func (s *Storage) ListRecords(ctx context.Context, userID string, limit int) ([]models.TransactionRecord, error) {
	const op = "storage.mysql.ListRecords"

	const query = "SELECT id, user_id, type, `date`, description, amount FROM transactions WHERE user_id = ? ORDER BY `date` DESC, id DESC LIMIT ?"

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
	const op = "storage.mysql.RunAtomic"

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

func mapErr(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, gomysql.ErrInvalidConn):
		return storage.ErrUnavailable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return storage.ErrUnavailable
	}

	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlErrDuplicateEntry {
		return storage.ErrDuplicateKey
	}

	return err
}

var _ storage.AccountStore = (*Storage)(nil)
