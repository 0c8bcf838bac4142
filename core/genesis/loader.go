package genesis

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/LiskArchive/lisk-sdk-sub000/core/state"
	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
)

// ErrLedgerNotEmpty is returned when genesis is loaded over existing state.
var ErrLedgerNotEmpty = errors.New("genesis: ledger is not empty")

type record struct {
	Address   string
	PublicKey []byte
	Balance   uint64
	Username  string
	Delegate  bool
	Votes     []string
}

// LedgerAccounts materialises the genesis accounts in address order. Confirmed and
// unconfirmed sub-records are equal.
func (s *Spec) LedgerAccounts() []*types.Account {
	byAddress := make(map[string]*types.Account)
	get := func(address string) *types.Account {
		acc, ok := byAddress[address]
		if !ok {
			acc = types.NewAccount(address)
			byAddress[address] = acc
		}
		return acc
	}
	for _, a := range s.Accounts {
		acc := get(a.Address)
		if a.PublicKey != "" {
			acc.PublicKey, _ = decodeKey(a.PublicKey)
		}
		acc.Confirmed.Balance = a.Balance
	}
	for _, d := range s.Delegates {
		key, _ := hex.DecodeString(d.PublicKey)
		acc := get(types.AddressFromPublicKey(key))
		acc.PublicKey = key
		acc.Confirmed.IsDelegate = true
		acc.Confirmed.Username = d.Username
	}
	for _, v := range s.Votes {
		key, _ := hex.DecodeString(v.PublicKey)
		acc := get(types.AddressFromPublicKey(key))
		acc.PublicKey = key
		acc.Confirmed.Delegates = append([]string(nil), v.Delegates...)
	}

	out := make([]*types.Account, 0, len(byAddress))
	for _, acc := range byAddress {
		acc.Unconfirmed = acc.Confirmed.Clone()
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Build loads the genesis accounts into an empty ledger and returns the
// genesis block header carrying reward. The block has no transactions; its
// id is derived from the loaded state.
func Build(spec *Spec, ledger *state.Ledger, reward int64) (*types.Block, error) {
	if spec == nil || ledger == nil {
		return nil, fmt.Errorf("genesis: spec and ledger are required")
	}
	if spec.generator == nil {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
	}
	if ledger.Len() > 0 {
		return nil, ErrLedgerNotEmpty
	}
	accounts := spec.LedgerAccounts()
	id, err := blockID(spec.generator, accounts)
	if err != nil {
		return nil, err
	}
	for _, acc := range accounts {
		if err := ledger.Put(acc); err != nil {
			return nil, fmt.Errorf("genesis: account %s: %w", acc.Address, err)
		}
	}
	return &types.Block{
		ID:                 id,
		Height:             1,
		GeneratorPublicKey: append([]byte(nil), spec.generator...),
		Reward:             reward,
	}, nil
}

func blockID(generator []byte, accounts []*types.Account) (string, error) {
	records := make([]record, len(accounts))
	for i, acc := range accounts {
		records[i] = record{
			Address:   acc.Address,
			PublicKey: acc.PublicKey,
			Balance:   uint64(acc.Confirmed.Balance),
			Username:  acc.Confirmed.Username,
			Delegate:  acc.Confirmed.IsDelegate,
			Votes:     acc.Confirmed.Delegates,
		}
	}
	payload, err := rlp.EncodeToBytes(struct {
		Generator []byte
		Accounts  []record
	}{generator, records})
	if err != nil {
		return "", fmt.Errorf("genesis: encode: %w", err)
	}
	sum := sha256.Sum256(payload)
	return strconv.FormatUint(binary.LittleEndian.Uint64(sum[:8]), 10), nil
}
