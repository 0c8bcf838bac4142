package tx

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/LiskArchive/lisk-sdk-sub000/core/state"
	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
)

const maxUsernameLength = 20

var usernamePattern = regexp.MustCompile(`^[a-z0-9!@$&_.]+$`)

// delegate registers the sender as a forging candidate under a username.
type delegate struct{ base }

func (*delegate) Type() types.TxType { return types.TxTypeDelegate }

func (h *delegate) CalculateFee(*types.Transaction, *types.Account) int64 {
	return h.params.Fees.Delegate
}

// checkUsername validates the username shape.
func checkUsername(username string) error {
	if username == "" {
		return fmt.Errorf("%w: username is undefined", ErrInvalidUsername)
	}
	if username != strings.ToLower(username) {
		return fmt.Errorf("%w: username must be lowercase", ErrInvalidUsername)
	}
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("%w: empty username", ErrInvalidUsername)
	}
	if len(username) > maxUsernameLength {
		return fmt.Errorf("%w: username is too long, maximum is %d characters", ErrInvalidUsername, maxUsernameLength)
	}
	if types.IsAddress(username) {
		return fmt.Errorf("%w: username can not be a potential address", ErrInvalidUsername)
	}
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("%w: username can only contain alphanumeric characters with the exception of !@$&_.", ErrInvalidUsername)
	}
	return nil
}

func (h *delegate) Verify(s state.Store, tx *types.Transaction, sender *types.Account) error {
	if tx.RecipientID != "" {
		return ErrInvalidRecipient
	}
	if tx.Amount != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, tx.Amount)
	}
	if tx.Asset.Delegate == nil {
		return ErrInvalidAsset
	}
	if err := checkUsername(tx.Asset.Delegate.Username); err != nil {
		return err
	}
	return h.checkConfirmed(s, tx, sender)
}

func (*delegate) checkConfirmed(s state.Store, tx *types.Transaction, sender *types.Account) error {
	if sender.Confirmed.IsDelegate {
		return ErrAlreadyDelegate
	}
	owner, err := s.AccountByUsername(tx.Asset.Delegate.Username)
	if err != nil {
		return err
	}
	if owner != nil {
		return fmt.Errorf("%w: %s", ErrUsernameTaken, tx.Asset.Delegate.Username)
	}
	return nil
}

func (*delegate) checkUnconfirmed(s state.Store, tx *types.Transaction, sender *types.Account) error {
	if sender.Unconfirmed.IsDelegate {
		return ErrAlreadyDelegate
	}
	owner, err := s.AccountByUnconfirmedUsername(tx.Asset.Delegate.Username)
	if err != nil {
		return err
	}
	if owner != nil {
		return fmt.Errorf("%w: %s", ErrUsernameTaken, tx.Asset.Delegate.Username)
	}
	return nil
}

func (*delegate) GetBytes(tx *types.Transaction) ([]byte, error) {
	if tx.Asset.Delegate == nil || tx.Asset.Delegate.Username == "" {
		return nil, nil
	}
	return []byte(tx.Asset.Delegate.Username), nil
}

func (h *delegate) ApplyConfirmed(s state.Store, tx *types.Transaction, block *types.Block, sender *types.Account) error {
	if err := h.checkConfirmed(s, tx, sender); err != nil {
		return err
	}
	d := h.tag(block)
	d.Confirmed.IsDelegate = types.Bool(true)
	d.Confirmed.Username = types.String(tx.Asset.Delegate.Username)
	_, err := s.Merge(sender.Address, d)
	return err
}

// UndoConfirmed also clears the vote weight gathered while registered.
func (h *delegate) UndoConfirmed(s state.Store, _ *types.Transaction, block *types.Block, sender *types.Account) error {
	current, err := s.Account(sender.Address)
	if err != nil {
		return err
	}
	d := h.tag(block)
	d.Confirmed.IsDelegate = types.Bool(false)
	d.Confirmed.Username = types.String("")
	if current != nil {
		d.Vote = -current.Vote
	}
	_, err = s.Merge(sender.Address, d)
	return err
}

func (h *delegate) ApplyUnconfirmed(s state.Store, tx *types.Transaction, sender *types.Account) error {
	if err := h.checkUnconfirmed(s, tx, sender); err != nil {
		return err
	}
	var d types.Diff
	d.Unconfirmed.IsDelegate = types.Bool(true)
	d.Unconfirmed.Username = types.String(tx.Asset.Delegate.Username)
	_, err := s.Merge(sender.Address, d)
	return err
}

func (*delegate) UndoUnconfirmed(s state.Store, _ *types.Transaction, sender *types.Account) error {
	var d types.Diff
	d.Unconfirmed.IsDelegate = types.Bool(false)
	d.Unconfirmed.Username = types.String("")
	_, err := s.Merge(sender.Address, d)
	return err
}

func (*delegate) ObjectNormalize(tx *types.Transaction) error {
	if tx.Asset.Delegate == nil {
		return invalid("asset.delegate", "required")
	}
	name := tx.Asset.Delegate.Username
	if len(name) < 1 || len(name) > maxUsernameLength {
		return invalid("asset.delegate.username", "length must be 1..%d", maxUsernameLength)
	}
	if pk := tx.Asset.Delegate.PublicKey; len(pk) != 0 && len(pk) != 32 {
		return invalid("asset.delegate.publicKey", "must be 32 bytes")
	}
	return nil
}

func (*delegate) DBRead(row *types.TxRow) (*types.Asset, error) {
	if row.DelegateUsername == "" {
		return nil, nil
	}
	pk, _ := decodePublicKey(row.SenderPublicKey)
	return &types.Asset{Delegate: &types.DelegateAsset{
		Username:  row.DelegateUsername,
		PublicKey: pk,
		Address:   row.SenderID,
	}}, nil
}
