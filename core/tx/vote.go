package tx

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/LiskArchive/lisk-sdk-sub000/core/state"
	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
)

var votePattern = regexp.MustCompile(`^[+-][0-9a-f]{64}$`)

// vote adds and removes delegates from the sender's vote list.
type vote struct{ base }

func (*vote) Type() types.TxType { return types.TxTypeVote }

func (h *vote) CalculateFee(*types.Transaction, *types.Account) int64 {
	return h.params.Fees.Vote
}

func (h *vote) Verify(s state.Store, tx *types.Transaction, sender *types.Account) error {
	if tx.RecipientID != tx.SenderID {
		return fmt.Errorf("%w: recipient must equal sender", ErrInvalidRecipient)
	}
	if err := h.checkShape(tx.Asset.Votes); err != nil {
		return err
	}
	return h.checkDelegates(s, tx.Asset.Votes, sender.Confirmed.Delegates)
}

func (h *vote) checkShape(votes []string) error {
	if len(votes) == 0 {
		return ErrEmptyVotes
	}
	if len(votes) > h.params.MaxVotesPerTransaction {
		return fmt.Errorf("%w: maximum is %d votes per transaction", ErrTooManyVotes, h.params.MaxVotesPerTransaction)
	}
	targets := make(map[string]struct{}, len(votes))
	for _, v := range votes {
		if !votePattern.MatchString(v) {
			return fmt.Errorf("%w: %q", ErrInvalidVote, v)
		}
		if _, dup := targets[v[1:]]; dup {
			return ErrDuplicateVote
		}
		targets[v[1:]] = struct{}{}
	}
	return nil
}

// checkDelegates validates the tokens against the current vote list.
func (h *vote) checkDelegates(s state.Store, votes []string, current []string) error {
	held := make(map[string]struct{}, len(current))
	for _, k := range current {
		held[k] = struct{}{}
	}
	adds, removes := 0, 0
	for _, v := range votes {
		if len(v) < 2 {
			return fmt.Errorf("%w: %q", ErrInvalidVote, v)
		}
		key := v[1:]
		_, voted := held[key]
		switch v[0] {
		case types.TokenAdd:
			if voted {
				return fmt.Errorf("%w: %s", ErrAlreadyVoted, key)
			}
			adds++
		case types.TokenRemove:
			if !voted {
				return fmt.Errorf("%w: %s", ErrNotVoted, key)
			}
			removes++
		default:
			return fmt.Errorf("%w: %q", ErrInvalidVote, v)
		}
		pk, ok := decodePublicKey(key)
		if !ok {
			return fmt.Errorf("%w: %q", ErrInvalidVote, v)
		}
		target, err := s.AccountByPublicKey(pk)
		if err != nil {
			return err
		}
		if target == nil || !target.Confirmed.IsDelegate || !bytes.Equal(target.PublicKey, pk) {
			return fmt.Errorf("%w: %s", ErrDelegateNotFound, key)
		}
	}
	if total := len(current) + adds - removes; total > h.params.MaxVotesPerAccount {
		return fmt.Errorf("%w: %d/%d", ErrVoteLimit, total, h.params.MaxVotesPerAccount)
	}
	return nil
}

func (*vote) GetBytes(tx *types.Transaction) ([]byte, error) {
	if len(tx.Asset.Votes) == 0 {
		return nil, nil
	}
	return []byte(strings.Join(tx.Asset.Votes, "")), nil
}

func (h *vote) ApplyConfirmed(s state.Store, tx *types.Transaction, block *types.Block, sender *types.Account) error {
	if err := h.checkDelegates(s, tx.Asset.Votes, sender.Confirmed.Delegates); err != nil {
		return err
	}
	d := h.tag(block)
	d.Confirmed.Delegates = append([]string(nil), tx.Asset.Votes...)
	_, err := s.Merge(sender.Address, d)
	return err
}

func (h *vote) UndoConfirmed(s state.Store, tx *types.Transaction, block *types.Block, sender *types.Account) error {
	d := h.tag(block)
	d.Confirmed.Delegates = types.NegateTokens(tx.Asset.Votes)
	_, err := s.Merge(sender.Address, d)
	return err
}

func (h *vote) ApplyUnconfirmed(s state.Store, tx *types.Transaction, sender *types.Account) error {
	if err := h.checkDelegates(s, tx.Asset.Votes, sender.Unconfirmed.Delegates); err != nil {
		return err
	}
	var d types.Diff
	d.Unconfirmed.Delegates = append([]string(nil), tx.Asset.Votes...)
	_, err := s.Merge(sender.Address, d)
	return err
}

func (*vote) UndoUnconfirmed(s state.Store, tx *types.Transaction, sender *types.Account) error {
	var d types.Diff
	d.Unconfirmed.Delegates = types.NegateTokens(tx.Asset.Votes)
	_, err := s.Merge(sender.Address, d)
	return err
}

func (h *vote) ObjectNormalize(tx *types.Transaction) error {
	votes := tx.Asset.Votes
	if len(votes) == 0 {
		return invalid("asset.votes", "must contain at least one vote")
	}
	if len(votes) > h.params.MaxVotesPerTransaction {
		return invalid("asset.votes", "at most %d votes", h.params.MaxVotesPerTransaction)
	}
	seen := make(map[string]struct{}, len(votes))
	for i, v := range votes {
		if !votePattern.MatchString(v) {
			return invalid(fmt.Sprintf("asset.votes[%d]", i), "must match %s", votePattern)
		}
		if _, dup := seen[v]; dup {
			return invalid("asset.votes", "items must be unique")
		}
		seen[v] = struct{}{}
	}
	return nil
}

func (*vote) DBRead(row *types.TxRow) (*types.Asset, error) {
	if row.Votes == "" {
		return nil, nil
	}
	return &types.Asset{Votes: strings.Split(row.Votes, ",")}, nil
}
