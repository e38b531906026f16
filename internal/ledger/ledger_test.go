package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bank-website/backend/internal/domain/models"
	"github.com/bank-website/backend/internal/lib/passwords"
	"github.com/bank-website/backend/internal/storage"
	"github.com/bank-website/backend/internal/storage/memory"
)

// tickingClock hands out strictly increasing timestamps so history ordering
// is deterministic in tests.
type tickingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := New(memory.NewStore(), passwords.Bcrypt{Cost: 4}, nil, logger, time.Second)
	l.now = (&tickingClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}).Now
	return l
}

func register(t *testing.T, l *Ledger, userID string) {
	t.Helper()
	err := l.Register(context.Background(), RegisterParams{
		UserID:          userID,
		FirstName:       "Test",
		LastName:        "User",
		Password:        "secret",
		StartingBalance: decimal.NewFromInt(5000),
	})
	if err != nil {
		t.Fatalf("Register(%s) err=%v", userID, err)
	}
}

func balance(t *testing.T, l *Ledger, userID string) decimal.Decimal {
	t.Helper()
	b, err := l.GetBalance(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetBalance(%s) err=%v", userID, err)
	}
	return b
}

// TestWorkedExample walks the reference scenario: start at 5000, withdraw
// 2000, fail a 3500 transfer, succeed a 1000 transfer.
func TestWorkedExample(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	register(t, l, "alice")
	register(t, l, "bob")

	res, err := l.Withdraw(ctx, "alice", decimal.NewFromInt(2000), "rent")
	if err != nil {
		t.Fatalf("Withdraw err=%v", err)
	}
	if !res.Balance.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("balance=%s want=3000", res.Balance)
	}
	if len(res.History) != 1 || res.History[0].Type != models.TypeWithdrawal || !res.History[0].Amount.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("unexpected history: %+v", res.History)
	}

	err = l.Transfer(ctx, "alice", "bob", decimal.NewFromInt(3500), "too much")
	var insufficient *InsufficientFundsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("want InsufficientFundsError, got %v", err)
	}
	if !insufficient.Balance.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("reported balance=%s want=3000", insufficient.Balance)
	}

	if err := l.Transfer(ctx, "alice", "bob", decimal.NewFromInt(1000), "present"); err != nil {
		t.Fatalf("Transfer err=%v", err)
	}
	if got := balance(t, l, "alice"); !got.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("alice balance=%s want=2000", got)
	}
	if got := balance(t, l, "bob"); !got.Equal(decimal.NewFromInt(6000)) {
		t.Fatalf("bob balance=%s want=6000", got)
	}

	aliceHist, err := l.GetRecentHistory(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	bobHist, err := l.GetRecentHistory(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(bobHist) != 1 || bobHist[0].Type != models.TypeTransfer {
		t.Fatalf("bob history=%+v want one Transfer", bobHist)
	}
	last := aliceHist[len(aliceHist)-1]
	if last.Type != models.TypeTransfer || last.Date != bobHist[0].Date {
		t.Fatalf("transfer records should share a timestamp: %q vs %q", last.Date, bobHist[0].Date)
	}
}

func TestWithdrawInsufficientLeavesBalanceUnchanged(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	register(t, l, "alice")

	_, err := l.Withdraw(ctx, "alice", decimal.NewFromInt(5001), "")
	var insufficient *InsufficientFundsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("want InsufficientFundsError, got %v", err)
	}
	if got := balance(t, l, "alice"); !got.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("balance=%s want=5000", got)
	}
	hist, err := l.GetRecentHistory(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 0 {
		t.Fatalf("rejected withdrawal must not append records, got %+v", hist)
	}
}

func TestWithdrawUnknownUser(t *testing.T) {
	l := newTestLedger(t)
	if _, err := l.Withdraw(context.Background(), "ghost", decimal.NewFromInt(10), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestWithdrawNonPositiveAmount(t *testing.T) {
	l := newTestLedger(t)
	register(t, l, "alice")
	for _, amt := range []int64{0, -5} {
		if _, err := l.Withdraw(context.Background(), "alice", decimal.NewFromInt(amt), ""); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount=%d want ErrInvalidAmount, got %v", amt, err)
		}
	}
}

func TestTransferConservesTotal(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	register(t, l, "alice")
	register(t, l, "bob")

	before := balance(t, l, "alice").Add(balance(t, l, "bob"))
	if err := l.Transfer(ctx, "alice", "bob", decimal.NewFromInt(1234), ""); err != nil {
		t.Fatal(err)
	}
	after := balance(t, l, "alice").Add(balance(t, l, "bob"))
	if !before.Equal(after) {
		t.Fatalf("total changed: before=%s after=%s", before, after)
	}
}

func TestTransferToSelf(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	register(t, l, "alice")

	if err := l.Transfer(ctx, "alice", "alice", decimal.NewFromInt(1), ""); !errors.Is(err, ErrSelfTransfer) {
		t.Fatalf("want ErrSelfTransfer, got %v", err)
	}
	// Existence is checked first, like every other precondition.
	if err := l.Transfer(ctx, "ghost", "ghost", decimal.NewFromInt(1), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if got := balance(t, l, "alice"); !got.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("balance=%s want=5000", got)
	}
}

func TestTransferUnknownParty(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	register(t, l, "alice")

	if err := l.Transfer(ctx, "alice", "ghost", decimal.NewFromInt(1), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := l.Transfer(ctx, "ghost", "alice", decimal.NewFromInt(1), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestRecentHistoryLimitAndOrder(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	register(t, l, "alice")

	for i := int64(1); i <= 6; i++ {
		if _, err := l.Withdraw(ctx, "alice", decimal.NewFromInt(i), ""); err != nil {
			t.Fatalf("withdraw %d err=%v", i, err)
		}
	}

	hist, err := l.GetRecentHistory(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 4 {
		t.Fatalf("len=%d want=4", len(hist))
	}
	// The four most recent withdrawals (3..6), oldest first.
	for i, want := range []int64{3, 4, 5, 6} {
		if !hist[i].Amount.Equal(decimal.NewFromInt(want)) {
			t.Fatalf("hist[%d].Amount=%s want=%d (full: %+v)", i, hist[i].Amount, want, hist)
		}
	}
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	register(t, l, "alice")

	const workers = 10
	amount := decimal.NewFromInt(1000)

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.Withdraw(ctx, "alice", amount, "race")
		}(i)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		var insufficient *InsufficientFundsError
		switch {
		case err == nil:
			succeeded++
		case errors.As(err, &insufficient):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 5 || rejected != 5 {
		t.Fatalf("succeeded=%d rejected=%d want 5/5", succeeded, rejected)
	}
	if got := balance(t, l, "alice"); !got.Equal(decimal.Zero) {
		t.Fatalf("balance=%s want=0", got)
	}
}

// stallStore blocks every operation until the caller's deadline expires,
// standing in for an unreachable database.
type stallStore struct{}

func (stallStore) GetAccount(ctx context.Context, userID string) (*models.Account, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s stallStore) GetAccountForUpdate(ctx context.Context, userID string) (*models.Account, error) {
	return s.GetAccount(ctx, userID)
}

func (stallStore) CreateAccount(ctx context.Context, account models.Account) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stallStore) SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stallStore) AppendRecord(ctx context.Context, record models.TransactionRecord) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stallStore) ListRecords(ctx context.Context, userID string, limit int) ([]models.TransactionRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s stallStore) RunAtomic(ctx context.Context, fn func(storage.AccountStore) error) error {
	return fn(s)
}

func TestStoreTimeoutMapsToUnavailable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := New(stallStore{}, passwords.Bcrypt{Cost: 4}, nil, logger, 50*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	if _, err := l.Withdraw(ctx, "alice", decimal.NewFromInt(1), ""); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Withdraw: want ErrStoreUnavailable, got %v", err)
	}
	if _, err := l.GetBalance(ctx, "alice"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("GetBalance: want ErrStoreUnavailable, got %v", err)
	}
	if err := l.Transfer(ctx, "alice", "bob", decimal.NewFromInt(1), ""); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Transfer: want ErrStoreUnavailable, got %v", err)
	}
	// Each call fails at its own deadline instead of hanging.
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("operations took %s, expected failure at the 50ms deadlines", elapsed)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	register(t, l, "alice")

	err := l.Register(ctx, RegisterParams{
		UserID:          "alice",
		Password:        "other",
		StartingBalance: decimal.NewFromInt(9999),
	})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("want ErrDuplicateKey, got %v", err)
	}

	// The original account is untouched.
	if got := balance(t, l, "alice"); !got.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("balance=%s want=5000", got)
	}
	ok, err := l.CheckCredentials(ctx, "alice", "secret")
	if err != nil || !ok {
		t.Fatalf("original credentials should still hold: ok=%v err=%v", ok, err)
	}
}

func TestCheckCredentials(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	register(t, l, "alice")

	ok, err := l.CheckCredentials(ctx, "alice", "secret")
	if err != nil || !ok {
		t.Fatalf("valid credentials: ok=%v err=%v", ok, err)
	}
	ok, err = l.CheckCredentials(ctx, "alice", "wrong")
	if err != nil || ok {
		t.Fatalf("wrong password: ok=%v err=%v", ok, err)
	}
	ok, err = l.CheckCredentials(ctx, "ghost", "secret")
	if err != nil || ok {
		t.Fatalf("unknown user: ok=%v err=%v", ok, err)
	}
}
