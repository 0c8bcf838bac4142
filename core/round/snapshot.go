package round

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
	"github.com/LiskArchive/lisk-sdk-sub000/storage"
)

// SnapshotStore persists the settlement applied at the close of a round so
// it can be reverted without recomputing it from the round's blocks.
// storage.BoltSnapshots and storage.MemSnapshots implement it.
type SnapshotStore interface {
	Save(round uint64, data []byte) error
	Load(round uint64) ([]byte, error)
	Delete(round uint64) error
}

// entry is one credited account in a settlement. All amounts are
// non-negative on the forward path.
type entry struct {
	Address string
	Balance uint64
	Fees    uint64
	Rewards uint64
	Missed  uint64
}

// voteRecord is a delegate's vote weight and rank before the round closed.
type voteRecord struct {
	PublicKey string
	Vote      uint64
	Rank      uint64
}

type snapshot struct {
	Round      uint64
	BlockID    string
	Delegates  []string
	Generators []string
	Entries    []entry
	Votes      []voteRecord `rlp:"optional"`
	Next       []string     `rlp:"optional"`
}

func toVoteRecords(votes []types.DelegateVote) ([]voteRecord, error) {
	out := make([]voteRecord, len(votes))
	for i, v := range votes {
		if v.Vote < 0 || v.Rank < 0 {
			return nil, fmt.Errorf("%w: delegate %s has vote %d rank %d", ErrSnapshot, v.PublicKey, v.Vote, v.Rank)
		}
		out[i] = voteRecord{PublicKey: v.PublicKey, Vote: uint64(v.Vote), Rank: uint64(v.Rank)}
	}
	return out, nil
}

func fromVoteRecords(recs []voteRecord) ([]types.DelegateVote, error) {
	out := make([]types.DelegateVote, len(recs))
	for i, r := range recs {
		vote, err := toInt64("vote", r.Vote)
		if err != nil {
			return nil, err
		}
		rank, err := toInt64("rank", r.Rank)
		if err != nil {
			return nil, err
		}
		out[i] = types.DelegateVote{PublicKey: r.PublicKey, Vote: vote, Rank: rank}
	}
	return out, nil
}

func encodeSnapshot(s *snapshot) ([]byte, error) {
	data, err := rlp.EncodeToBytes(s)
	if err != nil {
		return nil, fmt.Errorf("encode round snapshot: %w", err)
	}
	return data, nil
}

func decodeSnapshot(data []byte) (*snapshot, error) {
	var s snapshot
	if err := rlp.DecodeBytes(data, &s); err != nil {
		return nil, fmt.Errorf("decode round snapshot: %w", err)
	}
	return &s, nil
}

// loadSnapshot returns the stored settlement for the round when it was
// produced by blockID, or nil when the slow path must be taken.
func loadSnapshot(store SnapshotStore, round uint64, blockID string) (*snapshot, error) {
	if store == nil {
		return nil, nil
	}
	data, err := store.Load(round)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap, err := decodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	if snap.Round != round || snap.BlockID != blockID {
		return nil, nil
	}
	return snap, nil
}

func (e entry) diff(blockID string, round uint64) (types.Diff, error) {
	balance, err := toInt64("balance", e.Balance)
	if err != nil {
		return types.Diff{}, err
	}
	fees, err := toInt64("fees", e.Fees)
	if err != nil {
		return types.Diff{}, err
	}
	rewards, err := toInt64("rewards", e.Rewards)
	if err != nil {
		return types.Diff{}, err
	}
	missed, err := toInt64("missedBlocks", e.Missed)
	if err != nil {
		return types.Diff{}, err
	}
	d := types.Diff{
		Confirmed:    types.StateDiff{Balance: balance},
		Unconfirmed:  types.StateDiff{Balance: balance},
		Fees:         fees,
		Rewards:      rewards,
		MissedBlocks: missed,
	}
	if e.Missed == 0 {
		d.BlockID = blockID
		d.Round = round
	}
	return d, nil
}

func toInt64(field string, v uint64) (int64, error) {
	if v > 1<<63-1 {
		return 0, fmt.Errorf("%w: %s %d", ErrSnapshot, field, v)
	}
	return int64(v), nil
}
