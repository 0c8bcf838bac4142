package tx

import (
	"fmt"

	"github.com/LiskArchive/lisk-sdk-sub000/core/state"
	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
)

type transfer struct{ base }

func (*transfer) Type() types.TxType { return types.TxTypeTransfer }

func (h *transfer) CalculateFee(*types.Transaction, *types.Account) int64 {
	return h.params.Fees.Transfer
}

func (*transfer) Verify(_ state.Store, tx *types.Transaction, _ *types.Account) error {
	if tx.RecipientID == "" {
		return fmt.Errorf("%w: missing recipient", ErrInvalidRecipient)
	}
	if tx.Amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, tx.Amount)
	}
	return nil
}

func (*transfer) GetBytes(*types.Transaction) ([]byte, error) { return nil, nil }

func (h *transfer) ApplyConfirmed(s state.Store, tx *types.Transaction, block *types.Block, _ *types.Account) error {
	return h.credit(s, tx.RecipientID, tx.Amount, block)
}

func (h *transfer) UndoConfirmed(s state.Store, tx *types.Transaction, block *types.Block, _ *types.Account) error {
	return h.credit(s, tx.RecipientID, -tx.Amount, block)
}
