package state

import (
	"context"
	"encoding/hex"
	"sort"
)

// BalanceVoteWeights derives each delegate's vote weight as the sum of the
// confirmed balances of the accounts voting for it.
type BalanceVoteWeights struct{}

// VoteWeights returns the weight per delegate public key (hex). Every
// registered delegate is present, with zero weight when nobody votes for it.
func (BalanceVoteWeights) VoteWeights(ctx context.Context, s Store) (map[string]int64, error) {
	accounts, err := s.Accounts()
	if err != nil {
		return nil, err
	}
	weights := make(map[string]int64)
	for _, acc := range accounts {
		if acc.Confirmed.IsDelegate && len(acc.PublicKey) > 0 {
			key := hex.EncodeToString(acc.PublicKey)
			if _, ok := weights[key]; !ok {
				weights[key] = 0
			}
		}
	}
	for _, acc := range accounts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, delegate := range acc.Confirmed.Delegates {
			if _, ok := weights[delegate]; !ok {
				continue
			}
			sum, err := addChecked("vote", weights[delegate], acc.Confirmed.Balance)
			if err != nil {
				return nil, err
			}
			weights[delegate] = sum
		}
	}
	return weights, nil
}

// DelegateWeight pairs a delegate public key with its vote weight.
type DelegateWeight struct {
	PublicKey string
	Vote      int64
}

// RankDelegates orders delegates by descending vote with ascending public key
// as tie-breaker.
func RankDelegates(weights map[string]int64) []DelegateWeight {
	out := make([]DelegateWeight, 0, len(weights))
	for key, vote := range weights {
		out = append(out, DelegateWeight{PublicKey: key, Vote: vote})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Vote != out[j].Vote {
			return out[i].Vote > out[j].Vote
		}
		return out[i].PublicKey < out[j].PublicKey
	})
	return out
}
