package round

import (
	"encoding/hex"
	"fmt"

	"github.com/LiskArchive/lisk-sdk-sub000/core/state"
	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
)

// settlement is the ordered list of credits made when a round closes:
// missed block counters for outsiders first, then one credit per block
// generator in height order. The fee remainder goes to the last generator.
type settlement struct {
	round      uint64
	blockID    string
	delegates  []string
	generators []string
	rewards    []int64
	totalFees  int64
	share      int64
	remainder  int64
	outsiders  []string
	entries    []entry
	// votes are the delegate weights before closure, next the list
	// generated for the following round.
	votes []types.DelegateVote
	next  []string
}

func newSettlement(round uint64, blockID string, delegates []string, blocks []*types.Block) (*settlement, error) {
	s := &settlement{
		round:      round,
		blockID:    blockID,
		delegates:  delegates,
		generators: make([]string, len(blocks)),
		rewards:    make([]int64, len(blocks)),
	}
	forged := make(map[string]struct{}, len(blocks))
	for i, b := range blocks {
		key := hex.EncodeToString(b.GeneratorPublicKey)
		s.generators[i] = key
		s.rewards[i] = b.Reward
		forged[key] = struct{}{}
		if s.totalFees > 1<<63-1-b.TotalFee {
			return nil, fmt.Errorf("%w: round %d fees overflow", state.ErrInsaneNumber, round)
		}
		s.totalFees += b.TotalFee
	}
	n := int64(len(blocks))
	s.share = s.totalFees / n
	s.remainder = s.totalFees - s.share*n

	for _, key := range delegates {
		if _, ok := forged[key]; ok {
			continue
		}
		address, err := addressOf(key)
		if err != nil {
			return nil, err
		}
		s.outsiders = append(s.outsiders, address)
		s.entries = append(s.entries, entry{Address: address, Missed: 1})
	}
	for i, key := range s.generators {
		address, err := addressOf(key)
		if err != nil {
			return nil, err
		}
		fees := s.share
		if i == len(s.generators)-1 {
			fees += s.remainder
		}
		s.entries = append(s.entries, entry{
			Address: address,
			Balance: uint64(s.rewards[i]) + uint64(fees),
			Fees:    uint64(fees),
			Rewards: uint64(s.rewards[i]),
		})
	}
	return s, nil
}

func fromSnapshot(snap *snapshot) (*settlement, error) {
	votes, err := fromVoteRecords(snap.Votes)
	if err != nil {
		return nil, err
	}
	s := &settlement{
		round:      snap.Round,
		blockID:    snap.BlockID,
		delegates:  snap.Delegates,
		generators: snap.Generators,
		entries:    snap.Entries,
		votes:      votes,
		next:       snap.Next,
	}
	for _, e := range snap.Entries {
		if e.Missed > 0 {
			s.outsiders = append(s.outsiders, e.Address)
			continue
		}
		s.totalFees += int64(e.Fees)
		s.rewards = append(s.rewards, int64(e.Rewards))
	}
	return s, nil
}

func addressOf(publicKeyHex string) (string, error) {
	publicKey, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(publicKey) == 0 {
		return "", fmt.Errorf("%w: delegate key %q", ErrInvalidBlock, publicKeyHex)
	}
	return types.AddressFromPublicKey(publicKey), nil
}

// apply merges the entries in order, or their inverses in reverse order.
func (s *settlement) apply(store state.Store, backward bool) error {
	for i := range s.entries {
		e := s.entries[i]
		if backward {
			e = s.entries[len(s.entries)-1-i]
		}
		d, err := e.diff(s.blockID, s.round)
		if err != nil {
			return err
		}
		if backward {
			d = d.Negate()
		}
		if _, err := store.Merge(e.Address, d); err != nil {
			return fmt.Errorf("round %d: settle %s: %w", s.round, e.Address, err)
		}
	}
	return nil
}

func (s *settlement) totalRewards() int64 {
	var sum int64
	for _, r := range s.rewards {
		sum += r
	}
	return sum
}

func (s *settlement) snapshot() (*snapshot, error) {
	votes, err := toVoteRecords(s.votes)
	if err != nil {
		return nil, err
	}
	return &snapshot{
		Round:      s.round,
		BlockID:    s.blockID,
		Delegates:  s.delegates,
		Generators: s.generators,
		Entries:    s.entries,
		Votes:      votes,
		Next:       s.next,
	}, nil
}

func (s *settlement) summary() *types.Round {
	return &types.Round{
		Number:        s.round,
		Delegates:     append([]string(nil), s.delegates...),
		Generators:    append([]string(nil), s.generators...),
		Rewards:       append([]int64(nil), s.rewards...),
		TotalFees:     s.totalFees,
		LastBlockID:   s.blockID,
		Votes:         append([]types.DelegateVote(nil), s.votes...),
		NextDelegates: append([]string(nil), s.next...),
	}
}
