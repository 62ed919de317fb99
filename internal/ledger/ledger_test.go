package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/halladj/vtc-sahra/internal/apperr"
	"github.com/halladj/vtc-sahra/internal/logging"
	"github.com/halladj/vtc-sahra/internal/models"
)

func newTestLedger(t *testing.T, owners ...string) (*Ledger, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	l := New(store, logging.Discard())
	for _, o := range owners {
		if _, err := l.OpenWallet(context.Background(), o); err != nil {
			t.Fatalf("open wallet %s: %v", o, err)
		}
	}
	return l, store
}

func reconcile(t *testing.T, l *Ledger, owner string) {
	t.Helper()
	ctx := context.Background()
	bal, err := l.Balance(ctx, owner)
	if err != nil {
		t.Fatal(err)
	}
	txs, err := l.Transactions(ctx, owner, 0)
	if err != nil {
		t.Fatal(err)
	}
	var sum int64
	for _, tr := range txs {
		sum += tr.Signed()
	}
	if sum != bal {
		t.Fatalf("log sums to %d but balance is %d", sum, bal)
	}
}

func TestCreditThenDebitRestoresBalance(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, "d1")
	if _, err := l.Credit(ctx, "d1", 700, "seed"); err != nil {
		t.Fatal(err)
	}
	for _, a := range []int64{1, 250, 99999} {
		before, _ := l.Balance(ctx, "d1")
		txsBefore, _ := l.Transactions(ctx, "d1", 0)
		if _, err := l.Credit(ctx, "d1", a, "c"); err != nil {
			t.Fatal(err)
		}
		if _, err := l.Debit(ctx, "d1", a, "d"); err != nil {
			t.Fatal(err)
		}
		after, _ := l.Balance(ctx, "d1")
		txsAfter, _ := l.Transactions(ctx, "d1", 0)
		if after != before {
			t.Fatalf("amount %d: balance %d -> %d", a, before, after)
		}
		if len(txsAfter)-len(txsBefore) != 2 {
			t.Fatalf("amount %d: expected two new transactions, got %d", a, len(txsAfter)-len(txsBefore))
		}
	}
	reconcile(t, l, "d1")
}

func TestDebitBeyondBalanceFails(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, "d1")
	_, _ = l.Credit(ctx, "d1", 3000, "seed")

	_, err := l.Debit(ctx, "d1", 3001, "too much")
	if !errors.Is(err, apperr.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if bal, _ := l.Balance(ctx, "d1"); bal != 3000 {
		t.Fatalf("balance changed to %d", bal)
	}
	if txs, _ := l.Transactions(ctx, "d1", 0); len(txs) != 1 {
		t.Fatalf("failed debit must not append, got %d entries", len(txs))
	}
}

func TestInvalidAmountsAndMissingWallet(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, "d1")
	for _, a := range []int64{0, -5} {
		if _, err := l.Credit(ctx, "d1", a, "x"); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Fatalf("credit %d: expected invalid input, got %v", a, err)
		}
		if _, err := l.Debit(ctx, "d1", a, "x"); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Fatalf("debit %d: expected invalid input, got %v", a, err)
		}
	}
	if _, err := l.Balance(ctx, "ghost"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := l.Credit(ctx, "ghost", 10, "x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOpenWalletIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, "d1")
	_, _ = l.Credit(ctx, "d1", 10, "seed")
	w, err := l.OpenWallet(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if w.Balance != 10 {
		t.Fatalf("reopening must not reset balance, got %d", w.Balance)
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLedger(t, "d1")
	_, _ = l.Credit(ctx, "d1", 500, "seed")

	boom := errors.New("commission insert failed")
	err := l.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := l.DebitTx(ctx, tx, "d1", 200, "commission:r1"); err != nil {
			return err
		}
		_ = tx.InsertCommission(ctx, &models.Commission{ID: "c1", RideID: "r1", Amount: 200})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if bal, _ := l.Balance(ctx, "d1"); bal != 500 {
		t.Fatalf("rollback failed, balance %d", bal)
	}
	if len(store.Commissions()) != 0 {
		t.Fatal("commission must be rolled back with the debit")
	}
	reconcile(t, l, "d1")
}

func TestConcurrentMutationsReconcile(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, "d1")
	_, _ = l.Credit(ctx, "d1", 1000, "seed")

	var wg sync.WaitGroup
	var mu sync.Mutex
	debited := 0
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = l.Credit(ctx, "d1", 10, "c")
		}()
		go func() {
			defer wg.Done()
			if _, err := l.Debit(ctx, "d1", 30, "d"); err == nil {
				mu.Lock()
				debited++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	bal, _ := l.Balance(ctx, "d1")
	want := int64(1000 + 50*10 - debited*30)
	if bal != want {
		t.Fatalf("lost update: balance %d, want %d", bal, want)
	}
	if bal < 0 {
		t.Fatalf("negative balance %d", bal)
	}
	reconcile(t, l, "d1")
}

func TestTransactionsNewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, "d1")
	_, _ = l.Credit(ctx, "d1", 1, "first")
	_, _ = l.Credit(ctx, "d1", 2, "second")
	_, _ = l.Credit(ctx, "d1", 3, "third")

	txs, err := l.Transactions(ctx, "d1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 2 || txs[0].Reference != "third" || txs[1].Reference != "second" {
		t.Fatalf("unexpected order %+v", txs)
	}
}
