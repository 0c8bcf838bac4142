package state

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
)

var accountPrefix = []byte("account:")

type stateRecord struct {
	Balance         uint64
	IsDelegate      bool
	SecondSignature bool
	Username        string
	Delegates       []string
	Multisignatures []string
	MultiMin        uint64
	MultiLifetime   uint64
}

type accountRecord struct {
	Address         string
	PublicKey       []byte
	SecondPublicKey []byte
	Confirmed       stateRecord
	Unconfirmed     stateRecord
	Vote            uint64
	Rank            uint64
	ProducedBlocks  uint64
	MissedBlocks    uint64
	Fees            uint64
	Rewards         uint64
	BlockID         string
	Round           uint64
}

func accountKey(address string) []byte {
	hashed := ethcrypto.Keccak256([]byte(address))
	key := make([]byte, len(accountPrefix)+len(hashed))
	copy(key, accountPrefix)
	copy(key[len(accountPrefix):], hashed)
	return key
}

func unsigned(field string, v int64) (uint64, error) {
	if v < 0 {
		return 0, fmt.Errorf("%w: %s is negative (%d)", ErrInsaneNumber, field, v)
	}
	return uint64(v), nil
}

func signed(field string, v uint64) (int64, error) {
	if v > uint64(maxInt64) {
		return 0, fmt.Errorf("%w: %s overflows (%d)", ErrInsaneNumber, field, v)
	}
	return int64(v), nil
}

func toStateRecord(s types.AccountState) (stateRecord, error) {
	var (
		rec stateRecord
		err error
	)
	if rec.Balance, err = unsigned("balance", s.Balance); err != nil {
		return rec, err
	}
	if rec.MultiMin, err = unsigned("multimin", s.MultiMin); err != nil {
		return rec, err
	}
	if rec.MultiLifetime, err = unsigned("multilifetime", s.MultiLifetime); err != nil {
		return rec, err
	}
	rec.IsDelegate = s.IsDelegate
	rec.SecondSignature = s.SecondSignature
	rec.Username = s.Username
	rec.Delegates = s.Delegates
	rec.Multisignatures = s.Multisignatures
	return rec, nil
}

func fromStateRecord(rec stateRecord) (types.AccountState, error) {
	var (
		s   types.AccountState
		err error
	)
	if s.Balance, err = signed("balance", rec.Balance); err != nil {
		return s, err
	}
	if s.MultiMin, err = signed("multimin", rec.MultiMin); err != nil {
		return s, err
	}
	if s.MultiLifetime, err = signed("multilifetime", rec.MultiLifetime); err != nil {
		return s, err
	}
	s.IsDelegate = rec.IsDelegate
	s.SecondSignature = rec.SecondSignature
	s.Username = rec.Username
	if len(rec.Delegates) > 0 {
		s.Delegates = append([]string(nil), rec.Delegates...)
	}
	if len(rec.Multisignatures) > 0 {
		s.Multisignatures = append([]string(nil), rec.Multisignatures...)
	}
	return s, nil
}

// EncodeAccount serialises the account with RLP.
func EncodeAccount(acc *types.Account) ([]byte, error) {
	if acc == nil {
		return nil, fmt.Errorf("nil account")
	}
	confirmed, err := toStateRecord(acc.Confirmed)
	if err != nil {
		return nil, err
	}
	unconfirmed, err := toStateRecord(acc.Unconfirmed)
	if err != nil {
		return nil, err
	}
	rec := accountRecord{
		Address:         acc.Address,
		PublicKey:       acc.PublicKey,
		SecondPublicKey: acc.SecondPublicKey,
		Confirmed:       confirmed,
		Unconfirmed:     unconfirmed,
		BlockID:         acc.BlockID,
		Round:           acc.Round,
	}
	counters := []struct {
		name string
		src  int64
		dst  *uint64
	}{
		{"vote", acc.Vote, &rec.Vote},
		{"rank", acc.Rank, &rec.Rank},
		{"producedblocks", acc.ProducedBlocks, &rec.ProducedBlocks},
		{"missedblocks", acc.MissedBlocks, &rec.MissedBlocks},
		{"fees", acc.Fees, &rec.Fees},
		{"rewards", acc.Rewards, &rec.Rewards},
	}
	for _, c := range counters {
		if *c.dst, err = unsigned(c.name, c.src); err != nil {
			return nil, err
		}
	}
	return rlp.EncodeToBytes(&rec)
}

// DecodeAccount restores an account encoded by EncodeAccount.
func DecodeAccount(data []byte) (*types.Account, error) {
	var rec accountRecord
	if err := rlp.DecodeBytes(data, &rec); err != nil {
		return nil, err
	}
	confirmed, err := fromStateRecord(rec.Confirmed)
	if err != nil {
		return nil, err
	}
	unconfirmed, err := fromStateRecord(rec.Unconfirmed)
	if err != nil {
		return nil, err
	}
	acc := &types.Account{
		Address:     rec.Address,
		Confirmed:   confirmed,
		Unconfirmed: unconfirmed,
		BlockID:     rec.BlockID,
		Round:       rec.Round,
	}
	if len(rec.PublicKey) > 0 {
		acc.PublicKey = append([]byte(nil), rec.PublicKey...)
	}
	if len(rec.SecondPublicKey) > 0 {
		acc.SecondPublicKey = append([]byte(nil), rec.SecondPublicKey...)
	}
	counters := []struct {
		name string
		src  uint64
		dst  *int64
	}{
		{"vote", rec.Vote, &acc.Vote},
		{"rank", rec.Rank, &acc.Rank},
		{"producedblocks", rec.ProducedBlocks, &acc.ProducedBlocks},
		{"missedblocks", rec.MissedBlocks, &acc.MissedBlocks},
		{"fees", rec.Fees, &acc.Fees},
		{"rewards", rec.Rewards, &acc.Rewards},
	}
	for _, c := range counters {
		if *c.dst, err = signed(c.name, c.src); err != nil {
			return nil, err
		}
	}
	return acc, nil
}
