package tx

import (
	"encoding/hex"
	"fmt"

	"github.com/LiskArchive/lisk-sdk-sub000/core/state"
	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
)

// secondSignature registers a second public key that must co-sign every
// later transaction of the account.
type secondSignature struct{ base }

func (*secondSignature) Type() types.TxType { return types.TxTypeSecondSignature }

func (h *secondSignature) CalculateFee(*types.Transaction, *types.Account) int64 {
	return h.params.Fees.SecondSignature
}

func (*secondSignature) Verify(_ state.Store, tx *types.Transaction, sender *types.Account) error {
	if tx.Asset.Signature == nil {
		return ErrInvalidAsset
	}
	if tx.RecipientID != "" {
		return ErrInvalidRecipient
	}
	if tx.Amount != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, tx.Amount)
	}
	if len(tx.Asset.Signature.PublicKey) != 32 {
		return fmt.Errorf("%w: invalid public key", ErrInvalidAsset)
	}
	if sender.Confirmed.SecondSignature {
		return ErrSecondSigEnabled
	}
	return nil
}

func (*secondSignature) GetBytes(tx *types.Transaction) ([]byte, error) {
	if tx.Asset.Signature == nil {
		return nil, ErrInvalidAsset
	}
	return append([]byte(nil), tx.Asset.Signature.PublicKey...), nil
}

func (h *secondSignature) ApplyConfirmed(s state.Store, tx *types.Transaction, block *types.Block, sender *types.Account) error {
	if sender.Confirmed.SecondSignature {
		return ErrSecondSigEnabled
	}
	d := h.tag(block)
	d.SecondPublicKey = types.Bytes(tx.Asset.Signature.PublicKey)
	d.Confirmed.SecondSignature = types.Bool(true)
	_, err := s.Merge(sender.Address, d)
	return err
}

func (h *secondSignature) UndoConfirmed(s state.Store, _ *types.Transaction, block *types.Block, sender *types.Account) error {
	d := h.tag(block)
	d.SecondPublicKey = types.Bytes(nil)
	d.Confirmed.SecondSignature = types.Bool(false)
	_, err := s.Merge(sender.Address, d)
	return err
}

func (*secondSignature) ApplyUnconfirmed(s state.Store, _ *types.Transaction, sender *types.Account) error {
	if sender.Unconfirmed.SecondSignature || sender.Confirmed.SecondSignature {
		return ErrSecondSigEnabled
	}
	var d types.Diff
	d.Unconfirmed.SecondSignature = types.Bool(true)
	_, err := s.Merge(sender.Address, d)
	return err
}

func (*secondSignature) UndoUnconfirmed(s state.Store, _ *types.Transaction, sender *types.Account) error {
	var d types.Diff
	d.Unconfirmed.SecondSignature = types.Bool(false)
	_, err := s.Merge(sender.Address, d)
	return err
}

func (*secondSignature) ObjectNormalize(tx *types.Transaction) error {
	if tx.Asset.Signature == nil {
		return invalid("asset.signature", "required")
	}
	if len(tx.Asset.Signature.PublicKey) != 32 {
		return invalid("asset.signature.publicKey", "must be 32 bytes")
	}
	return nil
}

func (*secondSignature) DBRead(row *types.TxRow) (*types.Asset, error) {
	if row.SignaturePublicKey == "" {
		return nil, nil
	}
	pk, err := hex.DecodeString(row.SignaturePublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode second public key: %w", err)
	}
	return &types.Asset{Signature: &types.SignatureAsset{PublicKey: pk}}, nil
}
