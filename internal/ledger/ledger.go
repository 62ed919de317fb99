// Package ledger keeps per-account wallet balances together with their
// append-only transaction log. Every balance change and the transaction row
// that explains it are written in one store transaction, serialized per account.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/halladj/vtc-sahra/internal/apperr"
	"github.com/halladj/vtc-sahra/internal/models"
	"github.com/halladj/vtc-sahra/internal/observability"
)

// Tx is the store as seen from inside one atomic unit. A wallet returned by
// LockWallet stays locked against other units until this one ends.
type Tx interface {
	LockWallet(ctx context.Context, ownerID string) (*models.Wallet, error)
	SetBalance(ctx context.Context, walletID string, balance int64) error
	AppendTransaction(ctx context.Context, t *models.Transaction) error
	InsertCommission(ctx context.Context, c *models.Commission) error
}

// Store persists wallets. WithinTx commits when fn returns nil and rolls
// back every write made through tx otherwise.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Wallet(ctx context.Context, ownerID string) (*models.Wallet, error)
	Transactions(ctx context.Context, ownerID string, limit int) ([]models.Transaction, error)
	CreateWallet(ctx context.Context, w *models.Wallet) (*models.Wallet, error)
}

type Ledger struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func New(store Store, logger *slog.Logger) *Ledger {
	return &Ledger{store: store, logger: logger, now: time.Now}
}

// OpenWallet creates a zero-balance wallet for ownerID, or returns the existing one.
func (l *Ledger) OpenWallet(ctx context.Context, ownerID string) (*models.Wallet, error) {
	if ownerID == "" {
		return nil, apperr.InvalidInput("ledger.open_wallet", "owner id is required")
	}
	w, err := l.store.CreateWallet(ctx, &models.Wallet{ID: uuid.NewString(), OwnerID: ownerID})
	if err != nil {
		return nil, wrapStoreErr("ledger.open_wallet", err)
	}
	return w, nil
}

func (l *Ledger) Credit(ctx context.Context, ownerID string, amount int64, reference string) (*models.Transaction, error) {
	var out *models.Transaction
	err := l.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err := l.CreditTx(ctx, tx, ownerID, amount, reference)
		out = t
		return err
	})
	l.record(models.TxCredit, err)
	if err != nil {
		return nil, err
	}
	l.logger.Info("wallet_credited", "owner_id", ownerID, "amount", amount, "reference", reference)
	return out, nil
}

func (l *Ledger) Debit(ctx context.Context, ownerID string, amount int64, reference string) (*models.Transaction, error) {
	var out *models.Transaction
	err := l.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err := l.DebitTx(ctx, tx, ownerID, amount, reference)
		out = t
		return err
	})
	l.record(models.TxDebit, err)
	if err != nil {
		return nil, err
	}
	l.logger.Info("wallet_debited", "owner_id", ownerID, "amount", amount, "reference", reference)
	return out, nil
}

// CreditTx applies a credit inside a unit opened by WithinTx.
func (l *Ledger) CreditTx(ctx context.Context, tx Tx, ownerID string, amount int64, reference string) (*models.Transaction, error) {
	const op = "ledger.credit"
	if amount <= 0 {
		return nil, apperr.InvalidInput(op, "amount must be > 0, got %d", amount)
	}
	w, err := tx.LockWallet(ctx, ownerID)
	if err != nil {
		return nil, wrapStoreErr(op, err)
	}
	return l.apply(ctx, tx, w, models.TxCredit, amount, reference, w.Balance+amount)
}

// DebitTx applies a debit inside a unit opened by WithinTx. Overdraft is refused.
func (l *Ledger) DebitTx(ctx context.Context, tx Tx, ownerID string, amount int64, reference string) (*models.Transaction, error) {
	const op = "ledger.debit"
	if amount <= 0 {
		return nil, apperr.InvalidInput(op, "amount must be > 0, got %d", amount)
	}
	w, err := tx.LockWallet(ctx, ownerID)
	if err != nil {
		return nil, wrapStoreErr(op, err)
	}
	if w.Balance < amount {
		return nil, apperr.InsufficientBalance(op, "balance %d is below %d", w.Balance, amount)
	}
	return l.apply(ctx, tx, w, models.TxDebit, amount, reference, w.Balance-amount)
}

func (l *Ledger) apply(ctx context.Context, tx Tx, w *models.Wallet, kind models.TxKind, amount int64, reference string, balance int64) (*models.Transaction, error) {
	op := "ledger." + strings.ToLower(string(kind))
	if err := tx.SetBalance(ctx, w.ID, balance); err != nil {
		return nil, wrapStoreErr(op, err)
	}
	t := &models.Transaction{
		ID:        uuid.NewString(),
		WalletID:  w.ID,
		Kind:      kind,
		Amount:    amount,
		Reference: reference,
		CreatedAt: l.now().UTC(),
	}
	if err := tx.AppendTransaction(ctx, t); err != nil {
		return nil, wrapStoreErr(op, err)
	}
	w.Balance = balance
	return t, nil
}

// WithinTx runs fn as one atomic unit against the store.
func (l *Ledger) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return l.store.WithinTx(ctx, fn)
}

func (l *Ledger) Balance(ctx context.Context, ownerID string) (int64, error) {
	w, err := l.store.Wallet(ctx, ownerID)
	if err != nil {
		return 0, wrapStoreErr("ledger.balance", err)
	}
	return w.Balance, nil
}

// Transactions returns the newest entries first. limit <= 0 means all.
func (l *Ledger) Transactions(ctx context.Context, ownerID string, limit int) ([]models.Transaction, error) {
	if _, err := l.store.Wallet(ctx, ownerID); err != nil {
		return nil, wrapStoreErr("ledger.transactions", err)
	}
	out, err := l.store.Transactions(ctx, ownerID, limit)
	if err != nil {
		return nil, wrapStoreErr("ledger.transactions", err)
	}
	return out, nil
}

func (l *Ledger) record(kind models.TxKind, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
	}
	observability.LedgerOps.WithLabelValues(string(kind), outcome).Inc()
}

// wrapStoreErr keeps typed errors as they are and marks the rest internal.
func wrapStoreErr(op string, err error) error {
	var typed *apperr.Error
	if errors.As(err, &typed) {
		return err
	}
	return apperr.Internal(op, err)
}
