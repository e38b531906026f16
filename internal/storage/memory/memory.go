package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/bank-website/backend/internal/domain/models"
	"github.com/bank-website/backend/internal/storage"
)

// Store is an in-memory implementation of storage.AccountStore, used by
// tests. A single mutex serializes atomic units, and a snapshot taken at
// the start of RunAtomic gives all-or-nothing semantics.
type Store struct {
	mu       sync.Mutex
	accounts map[string]models.Account
	records  []models.TransactionRecord
	nextID   int64
}

func NewStore() *Store {
	return &Store{accounts: make(map[string]models.Account)}
}

func (m *Store) GetAccount(ctx context.Context, userID string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&view{m}).GetAccount(ctx, userID)
}

func (m *Store) GetAccountForUpdate(ctx context.Context, userID string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&view{m}).GetAccount(ctx, userID)
}

func (m *Store) CreateAccount(ctx context.Context, account models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&view{m}).CreateAccount(ctx, account)
}

func (m *Store) SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&view{m}).SetBalance(ctx, userID, balance)
}

func (m *Store) AppendRecord(ctx context.Context, record models.TransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&view{m}).AppendRecord(ctx, record)
}

func (m *Store) ListRecords(ctx context.Context, userID string, limit int) ([]models.TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&view{m}).ListRecords(ctx, userID, limit)
}

// RunAtomic holds the store lock for the whole unit, so concurrent units
// are serialized. On error the pre-unit state is restored.
func (m *Store) RunAtomic(ctx context.Context, fn func(storage.AccountStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapAccounts := make(map[string]models.Account, len(m.accounts))
	for k, v := range m.accounts {
		snapAccounts[k] = v
	}
	snapRecords := len(m.records)
	snapNextID := m.nextID

	if err := fn(&view{m}); err != nil {
		m.accounts = snapAccounts
		m.records = m.records[:snapRecords]
		m.nextID = snapNextID
		return err
	}
	return nil
}

// view operates on the store with the mutex already held.
type view struct {
	s *Store
}

func (v *view) GetAccount(_ context.Context, userID string) (*models.Account, error) {
	a, ok := v.s.accounts[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := a
	return &cp, nil
}

func (v *view) GetAccountForUpdate(ctx context.Context, userID string) (*models.Account, error) {
	return v.GetAccount(ctx, userID)
}

func (v *view) CreateAccount(_ context.Context, account models.Account) error {
	if _, ok := v.s.accounts[account.UserID]; ok {
		return storage.ErrDuplicateKey
	}
	v.s.accounts[account.UserID] = account
	return nil
}

func (v *view) SetBalance(_ context.Context, userID string, balance decimal.Decimal) error {
	a, ok := v.s.accounts[userID]
	if !ok {
		return storage.ErrNotFound
	}
	a.Balance = balance
	v.s.accounts[userID] = a
	return nil
}

func (v *view) AppendRecord(_ context.Context, record models.TransactionRecord) error {
	v.s.nextID++
	record.ID = v.s.nextID
	v.s.records = append(v.s.records, record)
	return nil
}

func (v *view) ListRecords(_ context.Context, userID string, limit int) ([]models.TransactionRecord, error) {
	var matched []models.TransactionRecord
	for _, r := range v.s.records {
		if r.UserID == userID {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Date != matched[j].Date {
			return matched[i].Date > matched[j].Date
		}
		return matched[i].ID > matched[j].ID
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (v *view) RunAtomic(_ context.Context, fn func(storage.AccountStore) error) error {
	return fn(v)
}

var _ storage.AccountStore = (*Store)(nil)
var _ storage.AccountStore = (*view)(nil)
