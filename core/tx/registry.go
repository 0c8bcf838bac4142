package tx

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/LiskArchive/lisk-sdk-sub000/core/state"
	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
)

// Registry dispatches transactions to the handler of their type and owns the
// checks every type shares.
type Registry struct {
	params   Params
	handlers map[types.TxType]Handler
	txs      TransactionStore
	logger   *slog.Logger
}

// Option customises a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry builds a registry with a handler for every known type. txs may
// be nil, in which case an empty in-memory store is used.
func NewRegistry(params Params, txs TransactionStore, opts ...Option) (*Registry, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if txs == nil {
		txs = NewMemoryTransactions()
	}
	r := &Registry{
		params:   params,
		handlers: make(map[types.TxType]Handler),
		txs:      txs,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	b := base{params: &r.params, txs: txs, verify: r.VerifySignature}
	r.attach(
		&transfer{b},
		&secondSignature{b},
		&delegate{b},
		&vote{b},
		newMultisignature(b),
		newDapp(b),
		&inTransfer{b},
		newOutTransfer(b),
	)
	return r, nil
}

func (r *Registry) attach(handlers ...Handler) {
	for _, h := range handlers {
		r.handlers[h.Type()] = h
	}
}

// Params returns the chain constants the registry was built with.
func (r *Registry) Params() Params { return r.params }

// Handler returns the handler of a type.
func (r *Registry) Handler(t types.TxType) (Handler, error) {
	h, ok := r.handlers[t]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
	return h, nil
}

// Frozen reports whether new instances of the type are refused at height.
func (r *Registry) Frozen(t types.TxType, height uint64) bool {
	h, ok := r.handlers[t]
	if !ok {
		return false
	}
	f, ok := h.(Freezable)
	if !ok || !f.Frozen() {
		return false
	}
	return r.params.FreezeHeight > 0 && height >= r.params.FreezeHeight
}

// CalculateFee returns the fee the transaction must carry.
func (r *Registry) CalculateFee(tx *types.Transaction, sender *types.Account) (int64, error) {
	h, err := r.Handler(tx.Type)
	if err != nil {
		return 0, err
	}
	return h.CalculateFee(tx, sender), nil
}

// Ready reports whether the transaction has gathered every signature it needs.
func (r *Registry) Ready(tx *types.Transaction, sender *types.Account) bool {
	h, err := r.Handler(tx.Type)
	if err != nil {
		return false
	}
	return h.Ready(tx, sender)
}

// Process assigns the transaction id and sender address and runs the type
// specific preprocessing. Transactions already on chain are refused.
func (r *Registry) Process(s state.Store, tx *types.Transaction, sender *types.Account) error {
	h, err := r.Handler(tx.Type)
	if err != nil {
		return err
	}
	if sender == nil {
		return ErrMissingSender
	}
	id, err := r.GetID(tx)
	if err != nil {
		return fmt.Errorf("failed to get transaction id: %w", err)
	}
	if tx.ID != "" && tx.ID != id {
		return fmt.Errorf("%w: %s", ErrInvalidID, tx.ID)
	}
	tx.ID = id
	tx.SenderID = sender.Address
	if len(tx.RequesterPublicKey) > 0 {
		if !containsKey(sender.Confirmed.Multisignatures, tx.RequesterPublicKey) {
			return ErrInvalidRequester
		}
	}
	if err := h.Process(s, tx, sender); err != nil {
		return err
	}
	confirmed, err := r.txs.TransactionExists(tx.ID)
	if err != nil {
		return fmt.Errorf("lookup transaction %s: %w", tx.ID, err)
	}
	if confirmed {
		return fmt.Errorf("%w: %s", ErrAlreadyConfirmed, tx.ID)
	}
	return nil
}

// Verify runs the shared checks followed by the type specific rules. height
// is the height the transaction is verified for and gates frozen types.
func (r *Registry) Verify(s state.Store, tx *types.Transaction, sender *types.Account, height uint64) error {
	h, err := r.Handler(tx.Type)
	if err != nil {
		return err
	}
	if sender == nil {
		return ErrMissingSender
	}
	if r.Frozen(tx.Type, height) {
		return fmt.Errorf("%w: %s at height %d", ErrFrozen, tx.Type, height)
	}

	var requester *types.Account
	if len(tx.RequesterPublicKey) > 0 {
		requester, err = s.AccountByPublicKey(tx.RequesterPublicKey)
		if err != nil {
			return err
		}
		if requester == nil {
			return ErrInvalidRequester
		}
	}

	hasSignSignature := len(tx.SignSignature) > 0
	switch {
	case requester == nil && sender.Confirmed.SecondSignature && !hasSignSignature:
		return ErrMissingSecondSig
	case requester == nil && !sender.Confirmed.SecondSignature && hasSignSignature:
		return ErrUnexpectedSecondSig
	case requester != nil && requester.Confirmed.SecondSignature && !hasSignSignature:
		return fmt.Errorf("missing requester second signature: %w", ErrMissingSecondSig)
	case requester != nil && !requester.Confirmed.SecondSignature && hasSignSignature:
		return fmt.Errorf("requester does not have a second signature: %w", ErrUnexpectedSecondSig)
	}

	if len(sender.PublicKey) > 0 && !bytes.Equal(sender.PublicKey, tx.SenderPublicKey) {
		return ErrInvalidSenderKey
	}
	if types.AddressFromPublicKey(tx.SenderPublicKey) != sender.Address {
		return ErrInvalidSenderKey
	}
	if !strings.EqualFold(tx.SenderID, sender.Address) {
		return fmt.Errorf("%w: %s", ErrInvalidSenderID, tx.SenderID)
	}

	group := sender.Confirmed.Multisignatures
	if len(group) == 0 {
		group = sender.Unconfirmed.Multisignatures
	}
	if len(group) == 0 && tx.Asset.Multisignature != nil {
		for _, key := range tx.Asset.Multisignature.Keysgroup {
			if len(key) > 1 {
				group = append(group, key[1:])
			}
		}
	}
	if requester != nil {
		if !containsKey(sender.Confirmed.Multisignatures, tx.RequesterPublicKey) {
			return fmt.Errorf("account does not belong to multisignature group: %w", ErrInvalidRequester)
		}
		group = append(append([]string(nil), group...), hex.EncodeToString(tx.SenderPublicKey))
	}

	signer := tx.SenderPublicKey
	if requester != nil {
		signer = tx.RequesterPublicKey
	}
	if ok, err := r.VerifySignature(tx, signer, tx.Signature); err != nil || !ok {
		return ErrInvalidSignature
	}
	if (requester != nil && requester.Confirmed.SecondSignature) || (requester == nil && sender.Confirmed.SecondSignature) {
		second := sender.SecondPublicKey
		if requester != nil {
			second = requester.SecondPublicKey
		}
		if ok, err := r.VerifySecondSignature(tx, second, tx.SignSignature); err != nil || !ok {
			return ErrInvalidSecondSig
		}
	}

	seen := make(map[string]struct{}, len(tx.Signatures))
	for _, sig := range tx.Signatures {
		if _, dup := seen[sig]; dup {
			return ErrDuplicateSignature
		}
		seen[sig] = struct{}{}
	}
	for _, sig := range tx.Signatures {
		raw, err := hex.DecodeString(sig)
		if err != nil {
			return ErrInvalidMultisig
		}
		verified := false
		for _, key := range group {
			pk, err := hex.DecodeString(key)
			if err != nil {
				continue
			}
			if ok, _ := r.VerifySignature(tx, pk, raw); ok {
				verified = true
				break
			}
		}
		if !verified {
			return ErrInvalidMultisig
		}
	}

	if fee := h.CalculateFee(tx, sender); fee <= 0 || tx.Fee != fee {
		return fmt.Errorf("%w: got %d want %d", ErrInvalidFee, tx.Fee, fee)
	}
	if tx.Amount < 0 || tx.Amount > r.params.TotalAmount {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, tx.Amount)
	}
	if err := checkBalance(sender.Address, sender.Confirmed.Balance, tx.Amount+tx.Fee); err != nil {
		return err
	}
	if r.params.Slot(tx.Timestamp) > r.params.Slot(r.params.EpochNow()) {
		return ErrInvalidTimestamp
	}
	return h.Verify(s, tx, sender)
}

// ApplyConfirmed debits amount and fee from the confirmed balance, tags the
// sender with the block and runs the type specific step. Nothing is kept when
// any step fails.
func (r *Registry) ApplyConfirmed(s state.Store, tx *types.Transaction, block *types.Block, sender *types.Account) error {
	h, err := r.Handler(tx.Type)
	if err != nil {
		return err
	}
	return s.Atomic(func(b state.Store) error {
		current, err := r.refresh(b, sender)
		if err != nil {
			return err
		}
		if !h.Ready(tx, current) {
			return fmt.Errorf("%w: %s", ErrNotReady, tx.ID)
		}
		amount := tx.Amount + tx.Fee
		if err := checkBalance(current.Address, current.Confirmed.Balance, amount); err != nil {
			return err
		}
		d := tag(block, r.params.ActiveDelegates)
		d.PublicKey = tx.SenderPublicKey
		d.Confirmed.Balance = -amount
		if current, err = b.Merge(current.Address, d); err != nil {
			return err
		}
		return h.ApplyConfirmed(b, tx, block, current)
	})
}

// UndoConfirmed reverses ApplyConfirmed.
func (r *Registry) UndoConfirmed(s state.Store, tx *types.Transaction, block *types.Block, sender *types.Account) error {
	h, err := r.Handler(tx.Type)
	if err != nil {
		return err
	}
	return s.Atomic(func(b state.Store) error {
		current, err := r.refresh(b, sender)
		if err != nil {
			return err
		}
		d := tag(block, r.params.ActiveDelegates)
		d.Confirmed.Balance = tx.Amount + tx.Fee
		if current, err = b.Merge(current.Address, d); err != nil {
			return err
		}
		return h.UndoConfirmed(b, tx, block, current)
	})
}

// ApplyUnconfirmed debits amount and fee from the unconfirmed balance and
// runs the type specific provisional step.
func (r *Registry) ApplyUnconfirmed(s state.Store, tx *types.Transaction, sender *types.Account) error {
	h, err := r.Handler(tx.Type)
	if err != nil {
		return err
	}
	return s.Atomic(func(b state.Store) error {
		current, err := r.refresh(b, sender)
		if err != nil {
			return err
		}
		if len(tx.RequesterPublicKey) == 0 && current.Confirmed.SecondSignature && len(tx.SignSignature) == 0 {
			return ErrMissingSecondSig
		}
		amount := tx.Amount + tx.Fee
		if err := checkBalance(current.Address, current.Unconfirmed.Balance, amount); err != nil {
			return err
		}
		var d types.Diff
		d.PublicKey = tx.SenderPublicKey
		d.Unconfirmed.Balance = -amount
		if current, err = b.Merge(current.Address, d); err != nil {
			return err
		}
		return h.ApplyUnconfirmed(b, tx, current)
	})
}

// UndoUnconfirmed reverses ApplyUnconfirmed.
func (r *Registry) UndoUnconfirmed(s state.Store, tx *types.Transaction, sender *types.Account) error {
	h, err := r.Handler(tx.Type)
	if err != nil {
		return err
	}
	return s.Atomic(func(b state.Store) error {
		current, err := r.refresh(b, sender)
		if err != nil {
			return err
		}
		var d types.Diff
		d.Unconfirmed.Balance = tx.Amount + tx.Fee
		if current, err = b.Merge(current.Address, d); err != nil {
			return err
		}
		return h.UndoUnconfirmed(b, tx, current)
	})
}

// refresh re-reads the sender so handlers act on the state they mutate.
func (r *Registry) refresh(s state.Store, sender *types.Account) (*types.Account, error) {
	if sender == nil {
		return nil, ErrMissingSender
	}
	current, err := s.Account(sender.Address)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingSender, sender.Address)
	}
	return current, nil
}

// Release drops the handler-held reservations of a transaction whose
// unconfirmed effects were discarded with their batch instead of undone.
func (r *Registry) Release(tx *types.Transaction) {
	h, ok := r.handlers[tx.Type]
	if !ok {
		return
	}
	if rel, ok := h.(releaser); ok {
		rel.release(tx)
	}
}

// DBRead rebuilds a transaction from its persisted row.
func (r *Registry) DBRead(row *types.TxRow) (*types.Transaction, error) {
	if row == nil || row.ID == "" {
		return nil, nil
	}
	txType := types.TxType(row.Type)
	h, err := r.Handler(txType)
	if err != nil {
		return nil, err
	}
	tx := &types.Transaction{
		ID:          row.ID,
		Type:        txType,
		Timestamp:   row.Timestamp,
		SenderID:    row.SenderID,
		RecipientID: row.RecipientID,
		Amount:      row.Amount,
		Fee:         row.Fee,
		BlockID:     row.BlockID,
		Height:      row.Height,
	}
	fields := []struct {
		name string
		src  string
		dst  *[]byte
	}{
		{"senderPublicKey", row.SenderPublicKey, &tx.SenderPublicKey},
		{"requesterPublicKey", row.RequesterPublicKey, &tx.RequesterPublicKey},
		{"signature", row.Signature, &tx.Signature},
		{"signSignature", row.SignSignature, &tx.SignSignature},
	}
	for _, f := range fields {
		if f.src == "" {
			continue
		}
		raw, err := hex.DecodeString(f.src)
		if err != nil {
			return nil, fmt.Errorf("row %s: decode %s: %w", row.ID, f.name, err)
		}
		*f.dst = raw
	}
	if row.Signatures != "" {
		tx.Signatures = strings.Split(row.Signatures, ",")
	}
	asset, err := h.DBRead(row)
	if err != nil {
		return nil, fmt.Errorf("row %s: %w", row.ID, err)
	}
	if asset != nil {
		tx.Asset = *asset
	}
	return tx, nil
}

// Row flattens a transaction into its persistence row.
func (r *Registry) Row(tx *types.Transaction) *types.TxRow {
	row := &types.TxRow{
		ID:                 tx.ID,
		BlockID:            tx.BlockID,
		Height:             tx.Height,
		Type:               uint8(tx.Type),
		Timestamp:          tx.Timestamp,
		SenderPublicKey:    hex.EncodeToString(tx.SenderPublicKey),
		RequesterPublicKey: hex.EncodeToString(tx.RequesterPublicKey),
		SenderID:           tx.SenderID,
		RecipientID:        tx.RecipientID,
		Amount:             tx.Amount,
		Fee:                tx.Fee,
		Signature:          hex.EncodeToString(tx.Signature),
		SignSignature:      hex.EncodeToString(tx.SignSignature),
		Signatures:         strings.Join(tx.Signatures, ","),
	}
	a := tx.Asset
	if a.Signature != nil {
		row.SignaturePublicKey = hex.EncodeToString(a.Signature.PublicKey)
	}
	if a.Delegate != nil {
		row.DelegateUsername = a.Delegate.Username
	}
	if len(a.Votes) > 0 {
		row.Votes = strings.Join(a.Votes, ",")
	}
	if m := a.Multisignature; m != nil {
		row.MultiMin = m.Min
		row.MultiLifetime = m.Lifetime
		row.MultiKeysgroup = strings.Join(m.Keysgroup, ",")
	}
	if d := a.Dapp; d != nil {
		row.DappName = d.Name
		row.DappDescription = d.Description
		row.DappTags = d.Tags
		row.DappType = d.Type
		row.DappLink = d.Link
		row.DappCategory = d.Category
		row.DappIcon = d.Icon
	}
	if a.InTransfer != nil {
		row.InDappID = a.InTransfer.DappID
	}
	if a.OutTransfer != nil {
		row.OutDappID = a.OutTransfer.DappID
		row.OutTransactionID = a.OutTransfer.TransactionID
	}
	return row
}

// Types returns the registered types in ascending order.
func (r *Registry) Types() []types.TxType {
	out := make([]types.TxType, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func checkBalance(address string, balance, amount int64) error {
	if balance < amount {
		return fmt.Errorf("%w: %s balance: %d", ErrInsufficientFunds, address, balance)
	}
	return nil
}

func containsKey(group []string, key []byte) bool {
	encoded := hex.EncodeToString(key)
	for _, k := range group {
		if k == encoded {
			return true
		}
	}
	return false
}

// IsValidationError reports whether err is a structural rejection rather
// than a conflict with current state.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) || errors.Is(err, ErrSchema)
}
