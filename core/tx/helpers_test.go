package tx

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"testing"
	"time"

	"github.com/LiskArchive/lisk-sdk-sub000/core/state"
	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
	"github.com/LiskArchive/lisk-sdk-sub000/storage"
)

type keypair struct {
	pub     ed25519.PublicKey
	priv    ed25519.PrivateKey
	address string
}

func newKey(seed byte) keypair {
	priv := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{seed}, ed25519.SeedSize))
	pub := priv.Public().(ed25519.PublicKey)
	return keypair{pub: pub, priv: priv, address: types.AddressFromPublicKey(pub)}
}

func (k keypair) hex() string { return hex.EncodeToString(k.pub) }

type fixture struct {
	t      *testing.T
	reg    *Registry
	ledger *state.Ledger
	txs    *MemoryTransactions
}

func testParams() Params {
	params := DefaultParams()
	epoch := params.EpochTime
	params.Now = func() time.Time { return epoch.Add(1000 * time.Second) }
	return params
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, testParams())
}

func newFixtureWith(t *testing.T, params Params) *fixture {
	t.Helper()
	ledger, err := state.NewLedger(storage.NewMemDB())
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	txs := NewMemoryTransactions()
	reg, err := NewRegistry(params, txs)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return &fixture{t: t, reg: reg, ledger: ledger, txs: txs}
}

// fund installs an account holding balance in both sub-records.
func (f *fixture) fund(k keypair, balance int64) *types.Account {
	f.t.Helper()
	acc := types.NewAccount(k.address)
	acc.PublicKey = append([]byte(nil), k.pub...)
	acc.Confirmed.Balance = balance
	acc.Unconfirmed.Balance = balance
	if err := f.ledger.Put(acc); err != nil {
		f.t.Fatalf("fund %s: %v", k.address, err)
	}
	return f.account(k.address)
}

// delegate installs a registered delegate.
func (f *fixture) delegate(k keypair, username string) {
	f.t.Helper()
	acc := types.NewAccount(k.address)
	acc.PublicKey = append([]byte(nil), k.pub...)
	acc.Confirmed.IsDelegate = true
	acc.Confirmed.Username = username
	acc.Unconfirmed.IsDelegate = true
	acc.Unconfirmed.Username = username
	if err := f.ledger.Put(acc); err != nil {
		f.t.Fatalf("delegate %s: %v", username, err)
	}
}

func (f *fixture) account(address string) *types.Account {
	f.t.Helper()
	acc, err := f.ledger.Account(address)
	if err != nil {
		f.t.Fatalf("account %s: %v", address, err)
	}
	return acc
}

// sign fills the sender fields and fee, signs and assigns the id.
func (f *fixture) sign(k keypair, tx *types.Transaction) *types.Transaction {
	f.t.Helper()
	tx.SenderPublicKey = append([]byte(nil), k.pub...)
	tx.SenderID = k.address
	if tx.Timestamp == 0 {
		tx.Timestamp = 100
	}
	fee, err := f.reg.CalculateFee(tx, nil)
	if err != nil {
		f.t.Fatalf("fee: %v", err)
	}
	tx.Fee = fee
	tx.Signature = nil
	sig, err := f.reg.Sign(k.priv, tx)
	if err != nil {
		f.t.Fatalf("sign: %v", err)
	}
	tx.Signature = sig
	id, err := f.reg.GetID(tx)
	if err != nil {
		f.t.Fatalf("id: %v", err)
	}
	tx.ID = id
	return tx
}

// admit runs the pool admission sequence against the ledger.
func (f *fixture) admit(tx *types.Transaction, height uint64) error {
	f.t.Helper()
	pk := tx.SenderPublicKey
	sender, err := f.ledger.AccountByPublicKey(pk)
	if err != nil {
		return err
	}
	if sender == nil {
		sender = types.NewAccount(types.AddressFromPublicKey(pk))
	}
	if err := f.reg.Process(f.ledger, tx, sender); err != nil {
		return err
	}
	if err := f.reg.ObjectNormalize(tx); err != nil {
		return err
	}
	if err := f.reg.Verify(f.ledger, tx, sender, height); err != nil {
		return err
	}
	return f.reg.ApplyUnconfirmed(f.ledger, tx, sender)
}

func (f *fixture) confirm(tx *types.Transaction, block *types.Block) error {
	f.t.Helper()
	sender := f.account(types.AddressFromPublicKey(tx.SenderPublicKey))
	if err := f.reg.ApplyConfirmed(f.ledger, tx, block, sender); err != nil {
		return err
	}
	f.txs.Add(tx)
	return nil
}

func (f *fixture) undo(tx *types.Transaction, block *types.Block) {
	f.t.Helper()
	sender := f.account(types.AddressFromPublicKey(tx.SenderPublicKey))
	if err := f.reg.UndoConfirmed(f.ledger, tx, block, sender); err != nil {
		f.t.Fatalf("undo confirmed: %v", err)
	}
	f.txs.Remove(tx.ID)
	if err := f.reg.UndoUnconfirmed(f.ledger, tx, f.account(sender.Address)); err != nil {
		f.t.Fatalf("undo unconfirmed: %v", err)
	}
}

func testBlock(height uint64) *types.Block {
	return &types.Block{ID: "9000000000000000001", Height: height}
}
