package tx

import (
	"fmt"

	"github.com/LiskArchive/lisk-sdk-sub000/core/state"
	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
)

// inTransfer moves funds from the sender to the owner of an application.
type inTransfer struct{ base }

func (*inTransfer) Type() types.TxType { return types.TxTypeInTransfer }

func (*inTransfer) Frozen() bool { return true }

func (h *inTransfer) CalculateFee(*types.Transaction, *types.Account) int64 {
	return h.params.Fees.InTransfer
}

func (h *inTransfer) Verify(_ state.Store, tx *types.Transaction, _ *types.Account) error {
	if tx.RecipientID != "" {
		return ErrInvalidRecipient
	}
	if tx.Amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, tx.Amount)
	}
	if tx.Asset.InTransfer == nil || tx.Asset.InTransfer.DappID == "" {
		return ErrInvalidAsset
	}
	_, err := h.owner(tx.Asset.InTransfer.DappID)
	return err
}

func (h *inTransfer) owner(dappID string) (string, error) {
	reg, err := h.txs.Dapp(dappID)
	if err != nil {
		return "", err
	}
	if reg == nil {
		return "", fmt.Errorf("%w: %s", ErrDappNotFound, dappID)
	}
	return reg.SenderID, nil
}

func (*inTransfer) GetBytes(tx *types.Transaction) ([]byte, error) {
	if tx.Asset.InTransfer == nil {
		return nil, ErrInvalidAsset
	}
	return []byte(tx.Asset.InTransfer.DappID), nil
}

func (h *inTransfer) ApplyConfirmed(s state.Store, tx *types.Transaction, block *types.Block, _ *types.Account) error {
	owner, err := h.owner(tx.Asset.InTransfer.DappID)
	if err != nil {
		return err
	}
	return h.credit(s, owner, tx.Amount, block)
}

func (h *inTransfer) UndoConfirmed(s state.Store, tx *types.Transaction, block *types.Block, _ *types.Account) error {
	owner, err := h.owner(tx.Asset.InTransfer.DappID)
	if err != nil {
		return err
	}
	return h.credit(s, owner, -tx.Amount, block)
}

func (*inTransfer) ObjectNormalize(tx *types.Transaction) error {
	if tx.Asset.InTransfer == nil {
		return invalid("asset.inTransfer", "required")
	}
	if !idPattern.MatchString(tx.Asset.InTransfer.DappID) {
		return invalid("asset.inTransfer.dappId", "must be a transaction id")
	}
	return nil
}

func (*inTransfer) DBRead(row *types.TxRow) (*types.Asset, error) {
	if row.InDappID == "" {
		return nil, nil
	}
	return &types.Asset{InTransfer: &types.InTransferAsset{DappID: row.InDappID}}, nil
}

// outTransfer pays a recipient out of an application. Withdrawals are keyed
// by the application side transaction id, which may be processed once.
type outTransfer struct {
	base
	inFlight *reservations
}

func newOutTransfer(b base) *outTransfer {
	return &outTransfer{base: b, inFlight: newReservations()}
}

func (*outTransfer) Type() types.TxType { return types.TxTypeOutTransfer }

func (*outTransfer) Frozen() bool { return true }

func (h *outTransfer) CalculateFee(*types.Transaction, *types.Account) int64 {
	return h.params.Fees.OutTransfer
}

func (*outTransfer) Verify(_ state.Store, tx *types.Transaction, _ *types.Account) error {
	if tx.RecipientID == "" {
		return fmt.Errorf("%w: missing recipient", ErrInvalidRecipient)
	}
	if tx.Amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, tx.Amount)
	}
	a := tx.Asset.OutTransfer
	if a == nil || a.DappID == "" || a.TransactionID == "" {
		return ErrInvalidAsset
	}
	return nil
}

func (h *outTransfer) Process(_ state.Store, tx *types.Transaction, _ *types.Account) error {
	a := tx.Asset.OutTransfer
	if a == nil {
		return ErrInvalidAsset
	}
	reg, err := h.txs.Dapp(a.DappID)
	if err != nil {
		return err
	}
	if reg == nil {
		return fmt.Errorf("%w: %s", ErrDappNotFound, a.DappID)
	}
	if h.inFlight.has(a.TransactionID) {
		return fmt.Errorf("%w: %s", ErrOutTransferInFlight, a.TransactionID)
	}
	done, err := h.txs.OutTransferExists(a.TransactionID)
	if err != nil {
		return err
	}
	if done {
		return fmt.Errorf("%w: %s", ErrOutTransferConfirmed, a.TransactionID)
	}
	return nil
}

func (*outTransfer) GetBytes(tx *types.Transaction) ([]byte, error) {
	a := tx.Asset.OutTransfer
	if a == nil {
		return nil, ErrInvalidAsset
	}
	return []byte(a.DappID + a.TransactionID), nil
}

func (h *outTransfer) ApplyConfirmed(s state.Store, tx *types.Transaction, block *types.Block, _ *types.Account) error {
	h.inFlight.release(tx.Asset.OutTransfer.TransactionID)
	return h.credit(s, tx.RecipientID, tx.Amount, block)
}

func (h *outTransfer) UndoConfirmed(s state.Store, tx *types.Transaction, block *types.Block, _ *types.Account) error {
	h.inFlight.release(tx.Asset.OutTransfer.TransactionID)
	return h.credit(s, tx.RecipientID, -tx.Amount, block)
}

func (h *outTransfer) ApplyUnconfirmed(_ state.Store, tx *types.Transaction, _ *types.Account) error {
	id := tx.Asset.OutTransfer.TransactionID
	if !h.inFlight.reserve(id) {
		return fmt.Errorf("%w: %s", ErrOutTransferInFlight, id)
	}
	return nil
}

func (h *outTransfer) UndoUnconfirmed(_ state.Store, tx *types.Transaction, _ *types.Account) error {
	h.inFlight.release(tx.Asset.OutTransfer.TransactionID)
	return nil
}

func (*outTransfer) ObjectNormalize(tx *types.Transaction) error {
	a := tx.Asset.OutTransfer
	if a == nil {
		return invalid("asset.outTransfer", "required")
	}
	if !idPattern.MatchString(a.DappID) {
		return invalid("asset.outTransfer.dappId", "must be a transaction id")
	}
	if !idPattern.MatchString(a.TransactionID) {
		return invalid("asset.outTransfer.transactionId", "must be a transaction id")
	}
	return nil
}

func (*outTransfer) DBRead(row *types.TxRow) (*types.Asset, error) {
	if row.OutDappID == "" {
		return nil, nil
	}
	return &types.Asset{OutTransfer: &types.OutTransferAsset{
		DappID:        row.OutDappID,
		TransactionID: row.OutTransactionID,
	}}, nil
}

func (h *outTransfer) release(tx *types.Transaction) {
	if a := tx.Asset.OutTransfer; a != nil {
		h.inFlight.release(a.TransactionID)
	}
}
