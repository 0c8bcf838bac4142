package tx

import (
	"sync"

	"github.com/LiskArchive/lisk-sdk-sub000/core/state"
	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
)

// Handler implements the state machine of one transaction type. The registry
// performs the shared checks and the sender balance movement; handlers only
// see the type specific step.
type Handler interface {
	Type() types.TxType
	CalculateFee(tx *types.Transaction, sender *types.Account) int64
	Verify(s state.Store, tx *types.Transaction, sender *types.Account) error
	Process(s state.Store, tx *types.Transaction, sender *types.Account) error
	// GetBytes returns the asset bytes appended to the signed payload.
	GetBytes(tx *types.Transaction) ([]byte, error)
	ApplyConfirmed(s state.Store, tx *types.Transaction, block *types.Block, sender *types.Account) error
	UndoConfirmed(s state.Store, tx *types.Transaction, block *types.Block, sender *types.Account) error
	ApplyUnconfirmed(s state.Store, tx *types.Transaction, sender *types.Account) error
	UndoUnconfirmed(s state.Store, tx *types.Transaction, sender *types.Account) error
	ObjectNormalize(tx *types.Transaction) error
	// DBRead rebuilds the asset from a persisted row. A nil asset means the
	// row carries no payload for this type.
	DBRead(row *types.TxRow) (*types.Asset, error)
	Ready(tx *types.Transaction, sender *types.Account) bool
}

// releaser is implemented by handlers holding in-memory reservations for
// unconfirmed transactions.
type releaser interface {
	release(tx *types.Transaction)
}

// Freezable is implemented by handlers whose type stops accepting new
// instances at the configured freeze height.
type Freezable interface {
	Frozen() bool
}

// TransactionStore answers questions about persisted transactions.
type TransactionStore interface {
	TransactionExists(id string) (bool, error)
	// Dapp returns the registration transaction of an application or nil.
	Dapp(id string) (*types.Transaction, error)
	DappNameExists(name string) (bool, error)
	DappLinkExists(link string) (bool, error)
	OutTransferExists(transactionID string) (bool, error)
}

// MemoryTransactions is an in-memory TransactionStore.
type MemoryTransactions struct {
	mu  sync.RWMutex
	txs map[string]*types.Transaction
}

// NewMemoryTransactions returns an empty store.
func NewMemoryTransactions() *MemoryTransactions {
	return &MemoryTransactions{txs: make(map[string]*types.Transaction)}
}

// Add records a confirmed transaction.
func (m *MemoryTransactions) Add(tx *types.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[tx.ID] = tx
}

// Remove forgets a transaction.
func (m *MemoryTransactions) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.txs, id)
}

func (m *MemoryTransactions) TransactionExists(id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.txs[id]
	return ok, nil
}

func (m *MemoryTransactions) Dapp(id string) (*types.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txs[id]
	if !ok || tx.Type != types.TxTypeDapp {
		return nil, nil
	}
	return tx, nil
}

func (m *MemoryTransactions) DappNameExists(name string) (bool, error) {
	return m.anyDapp(func(a *types.DappAsset) bool { return a.Name == name }), nil
}

func (m *MemoryTransactions) DappLinkExists(link string) (bool, error) {
	return m.anyDapp(func(a *types.DappAsset) bool { return a.Link == link }), nil
}

func (m *MemoryTransactions) OutTransferExists(transactionID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, tx := range m.txs {
		if tx.Type == types.TxTypeOutTransfer && tx.Asset.OutTransfer != nil && tx.Asset.OutTransfer.TransactionID == transactionID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryTransactions) anyDapp(match func(*types.DappAsset) bool) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, tx := range m.txs {
		if tx.Type == types.TxTypeDapp && tx.Asset.Dapp != nil && match(tx.Asset.Dapp) {
			return true
		}
	}
	return false
}

// reservations is a mutex guarded string set owned by a handler.
type reservations struct {
	mu  sync.Mutex
	set map[string]struct{}
}

func newReservations() *reservations {
	return &reservations{set: make(map[string]struct{})}
}

func (r *reservations) has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.set[key]
	return ok
}

// reserve adds key and reports false when it was already present.
func (r *reservations) reserve(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.set[key]; ok {
		return false
	}
	r.set[key] = struct{}{}
	return true
}

func (r *reservations) release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.set, key)
}

// defaultReady accepts transactions from plain accounts and requires the
// group minimum of cosignatures from multisignature accounts.
func defaultReady(tx *types.Transaction, sender *types.Account) bool {
	if sender == nil || !sender.Confirmed.HasMultisignatures() {
		return true
	}
	if tx.Signatures == nil {
		return false
	}
	return int64(len(tx.Signatures)) >= sender.Confirmed.MultiMin
}

// tag returns a diff carrying the block tags.
func tag(block *types.Block, slots int) types.Diff {
	if block == nil {
		return types.Diff{}
	}
	return types.Diff{BlockID: block.ID, Round: types.RoundOf(block.Height, slots)}
}
