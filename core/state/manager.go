package state

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"agora/core/types"
	"agora/native/auction"
	"agora/native/escrow"
	"agora/native/multisig"
	"agora/native/payments"
	"agora/storage"
)

// Manager persists accounts, settlement records and pause flags in the
// backing database. It satisfies the narrow state interfaces of every
// settlement engine; records are stored as JSON under keccak-hashed,
// prefix-scoped keys so unrelated record families can never collide.
//
// Each method guards its own read-modify-write; callers that need a
// whole multi-step operation to be atomic serialize at a higher level.
type Manager struct {
	mu sync.Mutex
	db storage.Database
}

// NewManager creates a state manager over the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func prefixedKey(prefix, suffix []byte) []byte {
	buf := make([]byte, 0, len(prefix)+len(suffix))
	buf = append(buf, prefix...)
	buf = append(buf, suffix...)
	return ethcrypto.Keccak256(buf)
}

func (m *Manager) put(key []byte, v any) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

// get decodes the record at key into out, reporting whether it exists.
func (m *Manager) get(key []byte, out any) (bool, error) {
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func accountKey(addr [20]byte) []byte {
	return prefixedKey(accountPrefix, addr[:])
}

// GetAccount loads the account for addr, returning a zeroed account when
// none has been stored yet.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account := new(types.Account)
	if _, err := m.get(accountKey(addr), account); err != nil {
		return nil, err
	}
	return account.Normalize(), nil
}

// PutAccount stores the account record for addr.
func (m *Manager) PutAccount(addr [20]byte, account *types.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(accountKey(addr), account.Normalize())
}

// AccountExists reports whether addr has ever been written.
func (m *Manager) AccountExists(addr [20]byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Has(accountKey(addr))
}

// EscrowPut stores an escrow record.
func (m *Manager) EscrowPut(esc *escrow.Escrow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(prefixedKey(escrowPrefix, esc.ID[:]), esc)
}

// EscrowGet loads the escrow record for id.
func (m *Manager) EscrowGet(id [32]byte) (*escrow.Escrow, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	esc := new(escrow.Escrow)
	ok, err := m.get(prefixedKey(escrowPrefix, id[:]), esc)
	if !ok || err != nil {
		return nil, false, err
	}
	return esc, true, nil
}

// WalletPut stores a multisig wallet record.
func (m *Manager) WalletPut(w *multisig.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(prefixedKey(walletPrefix, w.ID[:]), w)
}

// WalletGet loads the wallet record for id.
func (m *Manager) WalletGet(id [32]byte) (*multisig.Wallet, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := new(multisig.Wallet)
	ok, err := m.get(prefixedKey(walletPrefix, id[:]), w)
	if !ok || err != nil {
		return nil, false, err
	}
	return w, true, nil
}

func walletTxKey(walletID [32]byte, txID uint64) []byte {
	suffix := make([]byte, len(walletID)+8)
	copy(suffix, walletID[:])
	binary.BigEndian.PutUint64(suffix[len(walletID):], txID)
	return prefixedKey(walletTxPrefix, suffix)
}

// WalletTxPut stores a pending wallet transaction under its wallet scope.
func (m *Manager) WalletTxPut(tx *multisig.PendingTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(walletTxKey(tx.WalletID, tx.ID), tx)
}

// WalletTxGet loads a wallet transaction by wallet id and scoped tx id.
func (m *Manager) WalletTxGet(walletID [32]byte, txID uint64) (*multisig.PendingTransaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := new(multisig.PendingTransaction)
	ok, err := m.get(walletTxKey(walletID, txID), tx)
	if !ok || err != nil {
		return nil, false, err
	}
	return tx, true, nil
}

// AuctionPut stores an English auction record.
func (m *Manager) AuctionPut(a *auction.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(prefixedKey(englishPrefix, a.ID[:]), a)
}

// AuctionGet loads the English auction record for id.
func (m *Manager) AuctionGet(id [32]byte) (*auction.Auction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := new(auction.Auction)
	ok, err := m.get(prefixedKey(englishPrefix, id[:]), a)
	if !ok || err != nil {
		return nil, false, err
	}
	return a, true, nil
}

// DutchPut stores a Dutch auction record.
func (m *Manager) DutchPut(a *auction.DutchAuction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(prefixedKey(dutchPrefix, a.ID[:]), a)
}

// DutchGet loads the Dutch auction record for id.
func (m *Manager) DutchGet(id [32]byte) (*auction.DutchAuction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := new(auction.DutchAuction)
	ok, err := m.get(prefixedKey(dutchPrefix, id[:]), a)
	if !ok || err != nil {
		return nil, false, err
	}
	return a, true, nil
}

// PaymentPut stores a payment record.
func (m *Manager) PaymentPut(p *payments.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(prefixedKey(paymentPrefix, []byte(p.ID)), p)
}

// PaymentGet loads the payment record for id.
func (m *Manager) PaymentGet(id string) (*payments.Payment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := new(payments.Payment)
	ok, err := m.get(prefixedKey(paymentPrefix, []byte(id)), p)
	if !ok || err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// SetPaused flips the administrative pause flag for a module.
func (m *Manager) SetPaused(module string, paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(prefixedKey(pausePrefix, []byte(module)), paused)
}

// IsPaused reports whether a module is administratively paused. Read
// failures count as not paused so a corrupt flag cannot wedge the node.
func (m *Manager) IsPaused(module string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	var paused bool
	if _, err := m.get(prefixedKey(pausePrefix, []byte(module)), &paused); err != nil {
		return false
	}
	return paused
}
