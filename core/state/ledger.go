package state

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
	"github.com/LiskArchive/lisk-sdk-sub000/storage"
)

// Store is the account view shared by transaction handlers and the round
// accountant. Both the Ledger and an open Batch satisfy it.
type Store interface {
	// Account returns a copy of the account or nil when it does not exist.
	Account(address string) (*types.Account, error)
	// AccountByPublicKey resolves the account owning the public key.
	AccountByPublicKey(publicKey []byte) (*types.Account, error)
	// AccountByUsername resolves a confirmed delegate username.
	AccountByUsername(username string) (*types.Account, error)
	// AccountByUnconfirmedUsername resolves a pending delegate username.
	AccountByUnconfirmedUsername(username string) (*types.Account, error)
	// Accounts returns copies of every account ordered by address.
	Accounts() ([]*types.Account, error)
	// Merge applies diff to the account, creating it when absent.
	Merge(address string, diff types.Diff) (*types.Account, error)
	// Atomic runs fn against a staged view. Merges made through the view
	// take effect only when fn returns nil.
	Atomic(fn func(Store) error) error
}

// view is the unlocked read path shared by the ledger and nested batches.
// Returned accounts must not be mutated.
type view interface {
	lookup(address string) *types.Account
	lookupUsername(username string, unconfirmed bool) string
	addresses() []string
}

// Ledger is the persistent account store. All writes are serialised through a
// single mutex and reach the database as one batch per atomic unit.
type Ledger struct {
	mu         sync.Mutex
	db         storage.Database
	logger     *slog.Logger
	accounts   map[string]*types.Account
	usernames  map[string]string
	uUsernames map[string]string
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithLogger sets the ledger logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLedger loads every persisted account from db.
func NewLedger(db storage.Database, opts ...Option) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("ledger: nil database")
	}
	l := &Ledger{
		db:         db,
		logger:     slog.Default(),
		accounts:   make(map[string]*types.Account),
		usernames:  make(map[string]string),
		uUsernames: make(map[string]string),
	}
	for _, opt := range opts {
		opt(l)
	}
	err := db.Iterate(accountPrefix, func(_, value []byte) error {
		acc, err := DecodeAccount(value)
		if err != nil {
			return err
		}
		l.install(acc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: load accounts: %w", err)
	}
	l.logger.Debug("ledger loaded", slog.Int("accounts", len(l.accounts)))
	return l, nil
}

func (l *Ledger) install(acc *types.Account) {
	if prev, ok := l.accounts[acc.Address]; ok {
		if prev.Confirmed.Username != "" && l.usernames[prev.Confirmed.Username] == acc.Address {
			delete(l.usernames, prev.Confirmed.Username)
		}
		if prev.Unconfirmed.Username != "" && l.uUsernames[prev.Unconfirmed.Username] == acc.Address {
			delete(l.uUsernames, prev.Unconfirmed.Username)
		}
	}
	l.accounts[acc.Address] = acc
	if acc.Confirmed.Username != "" {
		l.usernames[acc.Confirmed.Username] = acc.Address
	}
	if acc.Unconfirmed.Username != "" {
		l.uUsernames[acc.Unconfirmed.Username] = acc.Address
	}
}

func (l *Ledger) lookup(address string) *types.Account {
	return l.accounts[address]
}

func (l *Ledger) lookupUsername(username string, unconfirmed bool) string {
	if unconfirmed {
		return l.uUsernames[username]
	}
	return l.usernames[username]
}

func (l *Ledger) addresses() []string {
	out := make([]string, 0, len(l.accounts))
	for addr := range l.accounts {
		out = append(out, addr)
	}
	return out
}

// Len returns the number of accounts.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.accounts)
}

func (l *Ledger) Account(address string) (*types.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lookup(address).Clone(), nil
}

func (l *Ledger) AccountByPublicKey(publicKey []byte) (*types.Account, error) {
	if len(publicKey) == 0 {
		return nil, nil
	}
	return l.Account(types.AddressFromPublicKey(publicKey))
}

func (l *Ledger) AccountByUsername(username string) (*types.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lookup(l.lookupUsername(username, false)).Clone(), nil
}

func (l *Ledger) AccountByUnconfirmedUsername(username string) (*types.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lookup(l.lookupUsername(username, true)).Clone(), nil
}

func (l *Ledger) Accounts() ([]*types.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return collect(l), nil
}

func (l *Ledger) Merge(address string, diff types.Diff) (*types.Account, error) {
	var out *types.Account
	err := l.Atomic(func(s Store) error {
		acc, err := s.Merge(address, diff)
		out = acc
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Put stores the account as is. It is meant for genesis loading.
func (l *Ledger) Put(acc *types.Account) error {
	if acc == nil || acc.Address == "" {
		return ErrEmptyAddress
	}
	return l.Atomic(func(s Store) error {
		b := s.(*Batch)
		b.staged[acc.Address] = acc.Clone()
		return nil
	})
}

// Atomic opens a batch on top of the ledger. The batch is written to the
// database in one storage batch when fn succeeds; on any error neither the
// database nor the in-memory view changes.
func (l *Ledger) Atomic(fn func(Store) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := newBatch(l)
	if err := fn(b); err != nil {
		return err
	}
	return l.commit(b)
}

func (l *Ledger) commit(b *Batch) error {
	if len(b.staged) == 0 {
		return nil
	}
	addrs := make([]string, 0, len(b.staged))
	for addr := range b.staged {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	batch := l.db.NewBatch()
	for _, addr := range addrs {
		encoded, err := EncodeAccount(b.staged[addr])
		if err != nil {
			return fmt.Errorf("ledger: encode %s: %w", addr, err)
		}
		batch.Put(accountKey(addr), encoded)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("ledger: write batch: %w", err)
	}
	for _, addr := range addrs {
		l.install(b.staged[addr])
	}
	return nil
}

// Batch is a staged overlay over a ledger or a parent batch.
type Batch struct {
	parent view
	staged map[string]*types.Account
}

func newBatch(parent view) *Batch {
	return &Batch{parent: parent, staged: make(map[string]*types.Account)}
}

// Len returns the number of staged accounts.
func (b *Batch) Len() int { return len(b.staged) }

func (b *Batch) lookup(address string) *types.Account {
	if acc, ok := b.staged[address]; ok {
		return acc
	}
	return b.parent.lookup(address)
}

func usernameOf(acc *types.Account, unconfirmed bool) string {
	if unconfirmed {
		return acc.Unconfirmed.Username
	}
	return acc.Confirmed.Username
}

func (b *Batch) lookupUsername(username string, unconfirmed bool) string {
	if username == "" {
		return ""
	}
	var found []string
	for addr, acc := range b.staged {
		if usernameOf(acc, unconfirmed) == username {
			found = append(found, addr)
		}
	}
	if len(found) > 0 {
		sort.Strings(found)
		return found[0]
	}
	addr := b.parent.lookupUsername(username, unconfirmed)
	if addr == "" {
		return ""
	}
	if acc, ok := b.staged[addr]; ok && usernameOf(acc, unconfirmed) != username {
		return ""
	}
	return addr
}

func (b *Batch) addresses() []string {
	seen := make(map[string]struct{}, len(b.staged))
	out := b.parent.addresses()
	for _, addr := range out {
		seen[addr] = struct{}{}
	}
	for addr := range b.staged {
		if _, ok := seen[addr]; !ok {
			out = append(out, addr)
		}
	}
	return out
}

func (b *Batch) Account(address string) (*types.Account, error) {
	return b.lookup(address).Clone(), nil
}

func (b *Batch) AccountByPublicKey(publicKey []byte) (*types.Account, error) {
	if len(publicKey) == 0 {
		return nil, nil
	}
	return b.lookup(types.AddressFromPublicKey(publicKey)).Clone(), nil
}

func (b *Batch) AccountByUsername(username string) (*types.Account, error) {
	return b.lookup(b.lookupUsername(username, false)).Clone(), nil
}

func (b *Batch) AccountByUnconfirmedUsername(username string) (*types.Account, error) {
	return b.lookup(b.lookupUsername(username, true)).Clone(), nil
}

func (b *Batch) Accounts() ([]*types.Account, error) {
	return collect(b), nil
}

func (b *Batch) Merge(address string, diff types.Diff) (*types.Account, error) {
	if address == "" {
		return nil, ErrEmptyAddress
	}
	acc := b.lookup(address).Clone()
	if acc == nil {
		acc = types.NewAccount(address)
	}
	if err := applyDiff(acc, diff); err != nil {
		return nil, err
	}
	b.staged[address] = acc
	return acc.Clone(), nil
}

// Atomic nests a batch. On success the child's staged accounts are folded
// into b; on error they are dropped.
func (b *Batch) Atomic(fn func(Store) error) error {
	child := newBatch(b)
	if err := fn(child); err != nil {
		return err
	}
	for addr, acc := range child.staged {
		b.staged[addr] = acc
	}
	return nil
}

func collect(v view) []*types.Account {
	addrs := v.addresses()
	sort.Strings(addrs)
	out := make([]*types.Account, 0, len(addrs))
	for _, addr := range addrs {
		if acc := v.lookup(addr); acc != nil {
			out = append(out, acc.Clone())
		}
	}
	return out
}

// IsLedgerError reports whether err originates from a merge rule rather than
// from storage.
func IsLedgerError(err error) bool {
	for _, target := range []error{ErrInsaneNumber, ErrInsufficientBalance, ErrInvalidToken, ErrDuplicateEntry, ErrMissingEntry, ErrPublicKeyMismatch, ErrEmptyAddress} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
