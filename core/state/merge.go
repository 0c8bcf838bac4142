package state

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
)

const maxInt64 = math.MaxInt64

var (
	// ErrInsaneNumber reports numeric input that overflows or cannot be
	// represented. It is never coerced.
	ErrInsaneNumber = errors.New("insane number")
	// ErrInsufficientBalance reports a merge that would drive a balance
	// below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidToken reports a list diff token without a +/- sign.
	ErrInvalidToken = errors.New("invalid list diff token")
	// ErrDuplicateEntry reports an insert of an element already present.
	ErrDuplicateEntry = errors.New("list entry already present")
	// ErrMissingEntry reports a removal of an element that is absent.
	ErrMissingEntry = errors.New("list entry not present")
	// ErrPublicKeyMismatch reports an attempt to replace a set public key.
	ErrPublicKeyMismatch = errors.New("public key mismatch")
	// ErrEmptyAddress reports a merge without an address.
	ErrEmptyAddress = errors.New("address must not be empty")
)

func addChecked(field string, a, b int64) (int64, error) {
	if (b > 0 && a > maxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, fmt.Errorf("%w: %s %d%+d", ErrInsaneNumber, field, a, b)
	}
	return a + b, nil
}

// applyTokens applies signed tokens to a sorted list. The list stays sorted
// so an inverse token sequence restores it exactly.
func applyTokens(field string, list []string, tokens []string) ([]string, error) {
	if len(tokens) == 0 {
		return list, nil
	}
	out := append([]string(nil), list...)
	for _, token := range tokens {
		if len(token) < 2 {
			return nil, fmt.Errorf("%w: %s %q", ErrInvalidToken, field, token)
		}
		value := token[1:]
		idx := sort.SearchStrings(out, value)
		present := idx < len(out) && out[idx] == value
		switch token[0] {
		case types.TokenAdd:
			if present {
				return nil, fmt.Errorf("%w: %s %s", ErrDuplicateEntry, field, value)
			}
			out = append(out, "")
			copy(out[idx+1:], out[idx:])
			out[idx] = value
		case types.TokenRemove:
			if !present {
				return nil, fmt.Errorf("%w: %s %s", ErrMissingEntry, field, value)
			}
			out = append(out[:idx], out[idx+1:]...)
		default:
			return nil, fmt.Errorf("%w: %s %q", ErrInvalidToken, field, token)
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func applyStateDiff(prefix string, s *types.AccountState, d types.StateDiff) error {
	var err error
	if s.Balance, err = addChecked(prefix+"balance", s.Balance, d.Balance); err != nil {
		return err
	}
	if s.Balance < 0 {
		return fmt.Errorf("%w: %sbalance would be %d", ErrInsufficientBalance, prefix, s.Balance)
	}
	if s.MultiMin, err = addChecked(prefix+"multimin", s.MultiMin, d.MultiMin); err != nil {
		return err
	}
	if s.MultiLifetime, err = addChecked(prefix+"multilifetime", s.MultiLifetime, d.MultiLifetime); err != nil {
		return err
	}
	if s.MultiMin < 0 || s.MultiLifetime < 0 {
		return fmt.Errorf("%w: %smultimin/multilifetime below zero", ErrInsaneNumber, prefix)
	}
	if s.Delegates, err = applyTokens(prefix+"delegates", s.Delegates, d.Delegates); err != nil {
		return err
	}
	if s.Multisignatures, err = applyTokens(prefix+"multisignatures", s.Multisignatures, d.Multisignatures); err != nil {
		return err
	}
	if d.IsDelegate != nil {
		s.IsDelegate = *d.IsDelegate
	}
	if d.SecondSignature != nil {
		s.SecondSignature = *d.SecondSignature
	}
	if d.Username != nil {
		s.Username = *d.Username
	}
	return nil
}

// applyDiff mutates acc in place. Callers pass a private copy so a failed
// merge leaves no trace.
func applyDiff(acc *types.Account, d types.Diff) error {
	if len(d.PublicKey) > 0 {
		if len(acc.PublicKey) == 0 {
			acc.PublicKey = append([]byte(nil), d.PublicKey...)
		} else if !bytes.Equal(acc.PublicKey, d.PublicKey) {
			return fmt.Errorf("%w: account %s", ErrPublicKeyMismatch, acc.Address)
		}
	}
	if d.SecondPublicKey != nil {
		if len(*d.SecondPublicKey) == 0 {
			acc.SecondPublicKey = nil
		} else {
			acc.SecondPublicKey = append([]byte(nil), (*d.SecondPublicKey)...)
		}
	}
	if err := applyStateDiff("", &acc.Confirmed, d.Confirmed); err != nil {
		return err
	}
	if err := applyStateDiff("u_", &acc.Unconfirmed, d.Unconfirmed); err != nil {
		return err
	}
	counters := []struct {
		name  string
		dst   *int64
		delta int64
	}{
		{"vote", &acc.Vote, d.Vote},
		{"producedblocks", &acc.ProducedBlocks, d.ProducedBlocks},
		{"missedblocks", &acc.MissedBlocks, d.MissedBlocks},
		{"fees", &acc.Fees, d.Fees},
		{"rewards", &acc.Rewards, d.Rewards},
	}
	for _, c := range counters {
		v, err := addChecked(c.name, *c.dst, c.delta)
		if err != nil {
			return err
		}
		*c.dst = v
	}
	if d.Rank != nil {
		acc.Rank = *d.Rank
	}
	if d.BlockID != "" {
		acc.BlockID = d.BlockID
	}
	if d.Round != 0 {
		acc.Round = d.Round
	}
	return nil
}
