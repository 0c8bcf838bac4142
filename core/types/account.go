package types

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"regexp"
	"strconv"
)

// AccountState groups the fields that exist both in confirmed form (effects
// of committed blocks) and in unconfirmed form (effects of pool-pending
// transactions). The two copies live side by side on Account.
type AccountState struct {
	Balance         int64    `json:"balance"`
	IsDelegate      bool     `json:"isDelegate"`
	SecondSignature bool     `json:"secondSignature"`
	Username        string   `json:"username,omitempty"`
	Delegates       []string `json:"delegates,omitempty"`
	Multisignatures []string `json:"multisignatures,omitempty"`
	MultiMin        int64    `json:"multimin"`
	MultiLifetime   int64    `json:"multilifetime"`
}

// Clone returns a deep copy of the state.
func (s AccountState) Clone() AccountState {
	out := s
	out.Delegates = cloneStrings(s.Delegates)
	out.Multisignatures = cloneStrings(s.Multisignatures)
	return out
}

// HasDelegate reports whether the public key is present in the vote list.
func (s AccountState) HasDelegate(publicKey string) bool {
	return containsString(s.Delegates, publicKey)
}

// HasMultisignatures reports whether a multisignature group is registered.
func (s AccountState) HasMultisignatures() bool {
	return len(s.Multisignatures) > 0
}

// Account is the ledger record keyed by address.
type Account struct {
	Address         string `json:"address"`
	PublicKey       []byte `json:"publicKey,omitempty"`
	SecondPublicKey []byte `json:"secondPublicKey,omitempty"`

	Confirmed   AccountState `json:"confirmed"`
	Unconfirmed AccountState `json:"unconfirmed"`

	Vote           int64  `json:"vote"`
	Rank           int64  `json:"rank"`
	ProducedBlocks int64  `json:"producedBlocks"`
	MissedBlocks   int64  `json:"missedBlocks"`
	Fees           int64  `json:"fees"`
	Rewards        int64  `json:"rewards"`
	BlockID        string `json:"blockId,omitempty"`
	Round          uint64 `json:"round"`
}

// NewAccount returns an empty account for the address.
func NewAccount(address string) *Account {
	return &Account{Address: address}
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.PublicKey = cloneBytes(a.PublicKey)
	out.SecondPublicKey = cloneBytes(a.SecondPublicKey)
	out.Confirmed = a.Confirmed.Clone()
	out.Unconfirmed = a.Unconfirmed.Clone()
	return &out
}

// Equal reports whether two accounts hold identical values.
func (a *Account) Equal(b *Account) bool {
	if !a.SameState(b) {
		return false
	}
	return a == nil || (a.BlockID == b.BlockID && a.Round == b.Round)
}

// SameState is Equal without the BlockID and Round tags, which record the last
// block that touched the account rather than its state.
func (a *Account) SameState(b *Account) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Address != b.Address || !bytes.Equal(a.PublicKey, b.PublicKey) || !bytes.Equal(a.SecondPublicKey, b.SecondPublicKey) {
		return false
	}
	if a.Vote != b.Vote || a.Rank != b.Rank || a.ProducedBlocks != b.ProducedBlocks || a.MissedBlocks != b.MissedBlocks {
		return false
	}
	if a.Fees != b.Fees || a.Rewards != b.Rewards {
		return false
	}
	return a.Confirmed.equal(b.Confirmed) && a.Unconfirmed.equal(b.Unconfirmed)
}

func (s AccountState) equal(o AccountState) bool {
	if s.Balance != o.Balance || s.IsDelegate != o.IsDelegate || s.SecondSignature != o.SecondSignature {
		return false
	}
	if s.Username != o.Username || s.MultiMin != o.MultiMin || s.MultiLifetime != o.MultiLifetime {
		return false
	}
	return equalStrings(s.Delegates, o.Delegates) && equalStrings(s.Multisignatures, o.Multisignatures)
}

var addressPattern = regexp.MustCompile(`^[0-9]{1,21}[Ll]$`)

// IsAddress reports whether the value has the shape of an account address.
func IsAddress(value string) bool {
	return addressPattern.MatchString(value)
}

// AddressFromPublicKey derives the account address: the first eight bytes of
// sha256(publicKey) read little-endian, rendered in decimal with an L suffix.
func AddressFromPublicKey(publicKey []byte) string {
	sum := sha256.Sum256(publicKey)
	return strconv.FormatUint(binary.LittleEndian.Uint64(sum[:8]), 10) + "L"
}

// AddressNumber parses the numeric part of an address.
func AddressNumber(address string) (uint64, bool) {
	if !IsAddress(address) {
		return 0, false
	}
	n, err := strconv.ParseUint(address[:len(address)-1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
