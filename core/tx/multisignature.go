package tx

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/LiskArchive/lisk-sdk-sub000/core/state"
	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
)

var keysgroupPattern = regexp.MustCompile(`^[+-][0-9a-f]{64}$`)

const (
	multisigMinBound = 1
	multisigMaxMin   = 15
)

// multisignature turns the sender into an m-of-n account. Registrations
// awaiting confirmation are tracked per sender address.
type multisignature struct {
	base
	pending *reservations
}

func newMultisignature(b base) *multisignature {
	return &multisignature{base: b, pending: newReservations()}
}

func (*multisignature) Type() types.TxType { return types.TxTypeMultisignature }

func (h *multisignature) CalculateFee(tx *types.Transaction, _ *types.Account) int64 {
	members := 0
	if tx.Asset.Multisignature != nil {
		members = len(tx.Asset.Multisignature.Keysgroup)
	}
	return int64(members+1) * h.params.Fees.Multisignature
}

// Pending reports whether a registration from address awaits confirmation.
func (h *multisignature) Pending(address string) bool {
	return h.pending.has(address)
}

func (h *multisignature) Verify(_ state.Store, tx *types.Transaction, sender *types.Account) error {
	m := tx.Asset.Multisignature
	if m == nil {
		return ErrInvalidAsset
	}
	if len(m.Keysgroup) == 0 {
		return fmt.Errorf("%w: keysgroup must not be empty", ErrInvalidKeysgroup)
	}
	if len(m.Keysgroup) > h.params.MultisigMaxKeysgroup {
		return fmt.Errorf("%w: at most %d members", ErrInvalidKeysgroup, h.params.MultisigMaxKeysgroup)
	}
	if m.Min < multisigMinBound || m.Min > multisigMaxMin {
		return fmt.Errorf("%w: must be between %d and %d", ErrInvalidMultisigMin, multisigMinBound, multisigMaxMin)
	}
	if m.Min > int64(len(m.Keysgroup)) {
		return fmt.Errorf("%w: must be less than or equal to keysgroup size", ErrInvalidMultisigMin)
	}
	if m.Lifetime < h.params.MultisigMinLifetime || m.Lifetime > h.params.MultisigMaxLifetime {
		return fmt.Errorf("%w: must be between %d and %d", ErrInvalidLifetime, h.params.MultisigMinLifetime, h.params.MultisigMaxLifetime)
	}
	if sender.Confirmed.HasMultisignatures() {
		return ErrMultisigEnabled
	}

	seen := make(map[string]struct{}, len(m.Keysgroup))
	for _, entry := range m.Keysgroup {
		if len(entry) < 2 || (entry[0] != types.TokenAdd && entry[0] != types.TokenRemove) {
			return fmt.Errorf("%w: invalid math operator in %q", ErrInvalidKeysgroup, entry)
		}
		if entry[0] == types.TokenRemove {
			return fmt.Errorf("%w: can not remove %s from an empty group", ErrInvalidKeysgroup, entry[1:])
		}
		pk, ok := decodePublicKey(entry[1:])
		if !ok {
			return fmt.Errorf("%w: invalid public key %q", ErrInvalidKeysgroup, entry[1:])
		}
		if bytes.Equal(pk, tx.SenderPublicKey) {
			return fmt.Errorf("%w: invalid multisignature keysgroup, can not contain sender", ErrInvalidKeysgroup)
		}
		if _, dup := seen[entry[1:]]; dup {
			return fmt.Errorf("%w: encountered duplicate public key %s", ErrInvalidKeysgroup, entry[1:])
		}
		seen[entry[1:]] = struct{}{}
	}

	if h.Ready(tx, sender) {
		for _, entry := range m.Keysgroup {
			if !h.signedBy(tx, entry[1:]) {
				return fmt.Errorf("%w: failed to verify signature in multisignature keysgroup", ErrInvalidMultisig)
			}
		}
	}
	return nil
}

func (h *multisignature) signedBy(tx *types.Transaction, key string) bool {
	pk, err := hex.DecodeString(key)
	if err != nil {
		return false
	}
	for _, sig := range tx.Signatures {
		raw, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if ok, _ := h.verify(tx, pk, raw); ok {
			return true
		}
	}
	return false
}

func (*multisignature) GetBytes(tx *types.Transaction) ([]byte, error) {
	m := tx.Asset.Multisignature
	if m == nil {
		return nil, ErrInvalidAsset
	}
	if m.Min < 0 || m.Min > 0xff || m.Lifetime < 0 || m.Lifetime > 0xff {
		return nil, fmt.Errorf("%w: min/lifetime out of byte range", ErrInvalidAsset)
	}
	keys := strings.Join(m.Keysgroup, "")
	out := make([]byte, 0, 2+len(keys))
	out = append(out, byte(m.Min), byte(m.Lifetime))
	return append(out, keys...), nil
}

func (h *multisignature) ApplyConfirmed(s state.Store, tx *types.Transaction, block *types.Block, sender *types.Account) error {
	h.pending.release(sender.Address)
	m := tx.Asset.Multisignature
	d := h.tag(block)
	d.Confirmed.Multisignatures = append([]string(nil), m.Keysgroup...)
	d.Confirmed.MultiMin = m.Min
	d.Confirmed.MultiLifetime = m.Lifetime
	_, err := s.Merge(sender.Address, d)
	return err
}

func (h *multisignature) UndoConfirmed(s state.Store, tx *types.Transaction, block *types.Block, sender *types.Account) error {
	h.pending.release(sender.Address)
	m := tx.Asset.Multisignature
	d := h.tag(block)
	d.Confirmed.Multisignatures = types.NegateTokens(m.Keysgroup)
	d.Confirmed.MultiMin = -m.Min
	d.Confirmed.MultiLifetime = -m.Lifetime
	_, err := s.Merge(sender.Address, d)
	return err
}

func (h *multisignature) ApplyUnconfirmed(s state.Store, tx *types.Transaction, sender *types.Account) error {
	if h.pending.has(sender.Address) {
		return ErrMultisigPending
	}
	if sender.Unconfirmed.HasMultisignatures() {
		return ErrMultisigEnabled
	}
	m := tx.Asset.Multisignature
	var d types.Diff
	d.Unconfirmed.Multisignatures = append([]string(nil), m.Keysgroup...)
	d.Unconfirmed.MultiMin = m.Min
	d.Unconfirmed.MultiLifetime = m.Lifetime
	if _, err := s.Merge(sender.Address, d); err != nil {
		return err
	}
	h.pending.reserve(sender.Address)
	return nil
}

func (h *multisignature) UndoUnconfirmed(s state.Store, tx *types.Transaction, sender *types.Account) error {
	h.pending.release(sender.Address)
	m := tx.Asset.Multisignature
	var d types.Diff
	d.Unconfirmed.Multisignatures = types.NegateTokens(m.Keysgroup)
	d.Unconfirmed.MultiMin = -m.Min
	d.Unconfirmed.MultiLifetime = -m.Lifetime
	_, err := s.Merge(sender.Address, d)
	return err
}

// Ready requires a signature from every member for a new group and the
// group minimum once the account already has one.
func (*multisignature) Ready(tx *types.Transaction, sender *types.Account) bool {
	if tx.Signatures == nil || tx.Asset.Multisignature == nil {
		return false
	}
	if sender == nil || !sender.Confirmed.HasMultisignatures() {
		return len(tx.Signatures) == len(tx.Asset.Multisignature.Keysgroup)
	}
	return int64(len(tx.Signatures)) >= sender.Confirmed.MultiMin
}

func (h *multisignature) ObjectNormalize(tx *types.Transaction) error {
	m := tx.Asset.Multisignature
	if m == nil {
		return invalid("asset.multisignature", "required")
	}
	if m.Min < multisigMinBound || m.Min > multisigMaxMin {
		return invalid("asset.multisignature.min", "must be %d..%d", multisigMinBound, multisigMaxMin)
	}
	if m.Lifetime < h.params.MultisigMinLifetime || m.Lifetime > h.params.MultisigMaxLifetime {
		return invalid("asset.multisignature.lifetime", "must be %d..%d", h.params.MultisigMinLifetime, h.params.MultisigMaxLifetime)
	}
	if len(m.Keysgroup) == 0 || len(m.Keysgroup) > h.params.MultisigMaxKeysgroup {
		return invalid("asset.multisignature.keysgroup", "must hold 1..%d keys", h.params.MultisigMaxKeysgroup)
	}
	seen := make(map[string]struct{}, len(m.Keysgroup))
	for i, k := range m.Keysgroup {
		if !keysgroupPattern.MatchString(k) {
			return invalid(fmt.Sprintf("asset.multisignature.keysgroup[%d]", i), "must match %s", keysgroupPattern)
		}
		if _, dup := seen[k]; dup {
			return invalid("asset.multisignature.keysgroup", "items must be unique")
		}
		seen[k] = struct{}{}
	}
	return nil
}

func (*multisignature) DBRead(row *types.TxRow) (*types.Asset, error) {
	if row.MultiKeysgroup == "" {
		return nil, nil
	}
	return &types.Asset{Multisignature: &types.MultisignatureAsset{
		Min:       row.MultiMin,
		Lifetime:  row.MultiLifetime,
		Keysgroup: strings.Split(row.MultiKeysgroup, ","),
	}}, nil
}

func (h *multisignature) release(tx *types.Transaction) {
	h.pending.release(types.AddressFromPublicKey(tx.SenderPublicKey))
}
