package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halladj/vtc-sahra/internal/apperr"
	"github.com/halladj/vtc-sahra/internal/models"
)

// PostgresStore persists wallets with pgx. Account serialization comes from
// SELECT ... FOR UPDATE on the wallet row inside a read-committed transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// WithinTx executes fn within a database transaction.
//   - If fn returns an error, the transaction is rolled back and the error is returned.
//   - If fn panics, the transaction is rolled back and the panic is rethrown.
//   - On success, the transaction is committed.
func (p *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

func (p *PostgresStore) CreateWallet(ctx context.Context, w *models.Wallet) (*models.Wallet, error) {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO wallets (id, owner_id, balance)
		VALUES ($1, $2, 0)
		ON CONFLICT (owner_id) DO NOTHING
	`, w.ID, w.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("insert wallet: %w", err)
	}
	return p.Wallet(ctx, w.OwnerID)
}

func (p *PostgresStore) Wallet(ctx context.Context, ownerID string) (*models.Wallet, error) {
	var w models.Wallet
	err := p.pool.QueryRow(ctx, `
		SELECT id, owner_id, balance FROM wallets WHERE owner_id = $1
	`, ownerID).Scan(&w.ID, &w.OwnerID, &w.Balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("ledger.wallet", "no wallet for owner %s", ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("select wallet: %w", err)
	}
	return &w, nil
}

func (p *PostgresStore) Transactions(ctx context.Context, ownerID string, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 1 << 30
	}
	rows, err := p.pool.Query(ctx, `
		SELECT t.id, t.wallet_id, t.kind, t.amount, t.reference, t.created_at
		FROM wallet_transactions t
		JOIN wallets w ON w.id = t.wallet_id
		WHERE w.owner_id = $1
		ORDER BY t.created_at DESC, t.seq DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var t models.Transaction
		var kind string
		if err := rows.Scan(&t.ID, &t.WalletID, &kind, &t.Amount, &t.Reference, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Kind = models.TxKind(kind)
		out = append(out, t)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockWallet(ctx context.Context, ownerID string) (*models.Wallet, error) {
	var w models.Wallet
	err := t.tx.QueryRow(ctx, `
		SELECT id, owner_id, balance
		FROM wallets
		WHERE owner_id = $1
		FOR UPDATE
	`, ownerID).Scan(&w.ID, &w.OwnerID, &w.Balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("ledger.wallet", "no wallet for owner %s", ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	return &w, nil
}

func (t *pgTx) SetBalance(ctx context.Context, walletID string, balance int64) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE wallets SET balance = $1, updated_at = now() WHERE id = $2
	`, balance, walletID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23514" {
		return apperr.InsufficientBalance("ledger.set_balance", "balance would become %d", balance)
	}
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return nil
}

func (t *pgTx) AppendTransaction(ctx context.Context, tr *models.Transaction) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO wallet_transactions (id, wallet_id, kind, amount, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, tr.ID, tr.WalletID, string(tr.Kind), tr.Amount, tr.Reference, tr.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (t *pgTx) InsertCommission(ctx context.Context, c *models.Commission) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO commissions (id, ride_id, percent, amount)
		VALUES ($1, $2, $3::numeric, $4)
	`, c.ID, c.RideID, c.Percent, c.Amount)
	if err != nil {
		return fmt.Errorf("insert commission: %w", err)
	}
	return nil
}
