package tx

import (
	"github.com/LiskArchive/lisk-sdk-sub000/core/state"
	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
)

type verifyFunc func(tx *types.Transaction, publicKey, signature []byte) (bool, error)

// base carries what every handler shares and the no-op steps most types
// inherit.
type base struct {
	params *Params
	txs    TransactionStore
	verify verifyFunc
}

func (base) Process(state.Store, *types.Transaction, *types.Account) error { return nil }

func (base) ApplyUnconfirmed(state.Store, *types.Transaction, *types.Account) error { return nil }

func (base) UndoUnconfirmed(state.Store, *types.Transaction, *types.Account) error { return nil }

func (base) ObjectNormalize(*types.Transaction) error { return nil }

func (base) DBRead(*types.TxRow) (*types.Asset, error) { return nil, nil }

func (base) Ready(tx *types.Transaction, sender *types.Account) bool {
	return defaultReady(tx, sender)
}

func (b base) tag(block *types.Block) types.Diff {
	return tag(block, b.params.ActiveDelegates)
}

// credit moves amount into both balances of address.
func (b base) credit(s state.Store, address string, amount int64, block *types.Block) error {
	d := b.tag(block)
	d.Confirmed.Balance = amount
	d.Unconfirmed.Balance = amount
	_, err := s.Merge(address, d)
	return err
}
