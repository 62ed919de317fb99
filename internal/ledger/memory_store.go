package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/halladj/vtc-sahra/internal/apperr"
	"github.com/halladj/vtc-sahra/internal/models"
)

// MemoryStore is a process-local Store. Each account has its own mutex held
// for the whole unit that locked it; writes are staged and applied on commit.
type MemoryStore struct {
	mu           sync.Mutex
	wallets      map[string]*models.Wallet // by owner id
	byID         map[string]string         // wallet id -> owner id
	transactions map[string][]models.Transaction
	commissions  []models.Commission
	locks        map[string]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:      make(map[string]*models.Wallet),
		byID:         make(map[string]string),
		transactions: make(map[string][]models.Transaction),
		locks:        make(map[string]*sync.Mutex),
	}
}

func (m *MemoryStore) CreateWallet(_ context.Context, w *models.Wallet) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.wallets[w.OwnerID]; ok {
		c := *existing
		return &c, nil
	}
	c := *w
	m.wallets[w.OwnerID] = &c
	m.byID[w.ID] = w.OwnerID
	out := c
	return &out, nil
}

func (m *MemoryStore) Wallet(_ context.Context, ownerID string) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[ownerID]
	if !ok {
		return nil, apperr.NotFound("ledger.wallet", "no wallet for owner %s", ownerID)
	}
	c := *w
	return &c, nil
}

func (m *MemoryStore) Transactions(_ context.Context, ownerID string, limit int) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[ownerID]
	if !ok {
		return nil, apperr.NotFound("ledger.transactions", "no wallet for owner %s", ownerID)
	}
	src := m.transactions[w.ID]
	out := make([]models.Transaction, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Commissions returns every commission row, ordered by ride id.
func (m *MemoryStore) Commissions() []models.Commission {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]models.Commission(nil), m.commissions...)
	sort.Slice(out, func(i, j int) bool { return out[i].RideID < out[j].RideID })
	return out
}

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memTx{store: m, held: make(map[string]*sync.Mutex), balances: make(map[string]int64)}
	defer tx.release()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (m *MemoryStore) lockFor(ownerID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[ownerID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[ownerID] = l
	}
	return l
}

type memTx struct {
	store        *MemoryStore
	held         map[string]*sync.Mutex
	balances     map[string]int64
	transactions []models.Transaction
	commissions  []models.Commission
}

func (t *memTx) LockWallet(_ context.Context, ownerID string) (*models.Wallet, error) {
	if _, ok := t.held[ownerID]; !ok {
		l := t.store.lockFor(ownerID)
		l.Lock()
		t.held[ownerID] = l
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	w, ok := t.store.wallets[ownerID]
	if !ok {
		return nil, apperr.NotFound("ledger.wallet", "no wallet for owner %s", ownerID)
	}
	c := *w
	if b, staged := t.balances[w.ID]; staged {
		c.Balance = b
	}
	return &c, nil
}

func (t *memTx) SetBalance(_ context.Context, walletID string, balance int64) error {
	if balance < 0 {
		return apperr.InsufficientBalance("ledger.set_balance", "balance would become %d", balance)
	}
	t.balances[walletID] = balance
	return nil
}

func (t *memTx) AppendTransaction(_ context.Context, tr *models.Transaction) error {
	t.transactions = append(t.transactions, *tr)
	return nil
}

func (t *memTx) InsertCommission(_ context.Context, c *models.Commission) error {
	t.commissions = append(t.commissions, *c)
	return nil
}

func (t *memTx) commit() {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for walletID, b := range t.balances {
		if owner, ok := s.byID[walletID]; ok {
			s.wallets[owner].Balance = b
		}
	}
	for _, tr := range t.transactions {
		s.transactions[tr.WalletID] = append(s.transactions[tr.WalletID], tr)
	}
	s.commissions = append(s.commissions, t.commissions...)
}

func (t *memTx) release() {
	for _, l := range t.held {
		l.Unlock()
	}
}
