package round

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LiskArchive/lisk-sdk-sub000/core/events"
	"github.com/LiskArchive/lisk-sdk-sub000/core/state"
	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
	"github.com/LiskArchive/lisk-sdk-sub000/storage"
)

// memChain holds committed blocks and settled round records the way the
// SQL store does.
type memChain struct {
	blocks map[uint64]*types.Block
	rounds map[uint64]*types.Round
}

func newMemChain() *memChain {
	return &memChain{blocks: make(map[uint64]*types.Block), rounds: make(map[uint64]*types.Round)}
}

func (m *memChain) BlocksByHeight(_ context.Context, from, to uint64) ([]*types.Block, error) {
	var out []*types.Block
	for h := from; h <= to; h++ {
		if b, ok := m.blocks[h]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memChain) Round(_ context.Context, number uint64) (*types.Round, error) {
	r, ok := m.rounds[number]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return r, nil
}

func delegateKey(seed byte) []byte { return bytes.Repeat([]byte{seed}, 32) }

func delegateAddress(seed byte) string { return types.AddressFromPublicKey(delegateKey(seed)) }

const voterAddress = "12345L"

// newLedger registers four delegates ranked d1 > d2 > d3 > d4 and one voter
// backing d1 and d2.
func newLedger(t *testing.T) *state.Ledger {
	t.Helper()
	ledger, err := state.NewLedger(storage.NewMemDB())
	require.NoError(t, err)
	for i, seed := range []byte{1, 2, 3, 4} {
		acc := types.NewAccount(delegateAddress(seed))
		acc.PublicKey = delegateKey(seed)
		acc.Confirmed.IsDelegate = true
		acc.Unconfirmed.IsDelegate = true
		acc.Confirmed.Username = fmt.Sprintf("delegate_%d", seed)
		acc.Unconfirmed.Username = acc.Confirmed.Username
		acc.Vote = int64(400 - 100*i)
		acc.Rank = int64(i + 1)
		require.NoError(t, ledger.Put(acc))
	}
	voter := types.NewAccount(voterAddress)
	voter.Confirmed.Balance = 1_000
	voter.Unconfirmed.Balance = 1_000
	voter.Confirmed.Delegates = []string{hex.EncodeToString(delegateKey(1)), hex.EncodeToString(delegateKey(2))}
	voter.Unconfirmed.Delegates = append([]string(nil), voter.Confirmed.Delegates...)
	require.NoError(t, ledger.Put(voter))
	return ledger
}

// roundTwo returns blocks 4..6 forged by d1, d1 and d2 with fees 10, 10, 3.
func roundTwo() []*types.Block {
	gens := []byte{1, 1, 2}
	fees := []int64{10, 10, 3}
	blocks := make([]*types.Block, 3)
	for i := range blocks {
		blocks[i] = &types.Block{
			ID:                 fmt.Sprintf("b%d", i+4),
			Height:             uint64(i + 4),
			GeneratorPublicKey: delegateKey(gens[i]),
			TotalFee:           fees[i],
			Reward:             5,
		}
	}
	return blocks
}

// tickAll applies blocks in order and persists each block and settled round
// before committing the tick.
func tickAll(t *testing.T, a *Accountant, s state.Store, src *memChain, blocks []*types.Block) *types.Round {
	t.Helper()
	var settled *types.Round
	for _, b := range blocks {
		res, err := a.Tick(context.Background(), s, b)
		require.NoError(t, err)
		src.blocks[b.Height] = b
		if res.Round != nil {
			src.rounds[res.Round.Number] = res.Round
			settled = res.Round
		}
		res.Commit()
	}
	return settled
}

func backAll(t *testing.T, a *Accountant, s state.Store, src *memChain, blocks []*types.Block) {
	t.Helper()
	for i := len(blocks) - 1; i >= 0; i-- {
		b := blocks[i]
		res, err := a.Backward(context.Background(), s, b)
		require.NoError(t, err)
		delete(src.blocks, b.Height)
		if res.Round != nil {
			delete(src.rounds, res.Round.Number)
		}
		res.Commit()
	}
}

// backVoter points the voter's confirmed votes at the given delegates.
func backVoter(t *testing.T, ledger *state.Ledger, seeds ...byte) {
	t.Helper()
	voter := account(t, ledger, voterAddress)
	voter.Confirmed.Delegates = nil
	for _, seed := range seeds {
		voter.Confirmed.Delegates = append(voter.Confirmed.Delegates, hex.EncodeToString(delegateKey(seed)))
	}
	voter.Unconfirmed.Delegates = append([]string(nil), voter.Confirmed.Delegates...)
	require.NoError(t, ledger.Put(voter))
}

// requireNetZero checks every counter the round touches against before.
func requireNetZero(t *testing.T, s state.Store, before []*types.Account) {
	t.Helper()
	for _, prev := range before {
		acc := account(t, s, prev.Address)
		require.Equal(t, prev.Confirmed.Balance, acc.Confirmed.Balance, prev.Address)
		require.Equal(t, prev.Unconfirmed.Balance, acc.Unconfirmed.Balance, prev.Address)
		require.Equal(t, prev.Fees, acc.Fees, prev.Address)
		require.Equal(t, prev.Rewards, acc.Rewards, prev.Address)
		require.Equal(t, prev.ProducedBlocks, acc.ProducedBlocks, prev.Address)
		require.Equal(t, prev.MissedBlocks, acc.MissedBlocks, prev.Address)
		require.Equal(t, prev.Vote, acc.Vote, prev.Address)
		require.Equal(t, prev.Rank, acc.Rank, prev.Address)
	}
}

func account(t *testing.T, s state.Store, address string) *types.Account {
	t.Helper()
	acc, err := s.Account(address)
	require.NoError(t, err)
	require.NotNil(t, acc, address)
	return acc
}

func TestRoundMath(t *testing.T) {
	a, err := New(101, newMemChain())
	require.NoError(t, err)
	cases := []struct {
		height uint64
		round  uint64
		last   bool
	}{
		{0, 0, false},
		{1, 1, false},
		{100, 1, false},
		{101, 1, true},
		{102, 2, false},
		{202, 2, true},
		{203, 3, false},
	}
	for _, tc := range cases {
		if got := a.Round(tc.height); got != tc.round {
			t.Fatalf("height %d: round %d, want %d", tc.height, got, tc.round)
		}
		if got := a.IsLastOfRound(tc.height); got != tc.last {
			t.Fatalf("height %d: last %v, want %v", tc.height, got, tc.last)
		}
	}
	if _, err := New(0, newMemChain()); err == nil {
		t.Fatalf("expected error for zero slots")
	}
}

func TestShuffleIsDeterministicPermutation(t *testing.T) {
	list := make([]string, 101)
	for i := range list {
		list[i] = fmt.Sprintf("%064x", i)
	}
	first := Shuffle(list, 7)
	again := Shuffle(list, 7)
	require.Equal(t, first, again)
	require.ElementsMatch(t, list, first)
	require.NotEqual(t, list, first)
	require.Equal(t, fmt.Sprintf("%064x", 0), list[0], "input must not be modified")
	require.Empty(t, Shuffle(nil, 1))
}

func TestTickSettlesFeeSplitWithRemainderToLastGenerator(t *testing.T) {
	ledger := newLedger(t)
	src := newMemChain()
	rec := &events.Recorder{}
	a, err := New(3, src, WithEmitter(rec))
	require.NoError(t, err)

	settled := tickAll(t, a, ledger, src, roundTwo())
	require.NotNil(t, settled)
	require.Equal(t, uint64(2), settled.Number)
	require.Equal(t, int64(23), settled.TotalFees)
	require.Equal(t, "b6", settled.LastBlockID)

	d1 := account(t, ledger, delegateAddress(1))
	d2 := account(t, ledger, delegateAddress(2))
	d3 := account(t, ledger, delegateAddress(3))
	d4 := account(t, ledger, delegateAddress(4))

	// share 7, remainder 2 to d2 which forged the last block.
	require.Equal(t, int64(24), d1.Confirmed.Balance)
	require.Equal(t, int64(24), d1.Unconfirmed.Balance)
	require.Equal(t, int64(14), d1.Fees)
	require.Equal(t, int64(10), d1.Rewards)
	require.Equal(t, int64(14), d2.Confirmed.Balance)
	require.Equal(t, int64(9), d2.Fees)
	require.Equal(t, d1.Fees+d2.Fees, settled.TotalFees)

	require.Equal(t, int64(2), d1.ProducedBlocks)
	require.Equal(t, int64(1), d2.ProducedBlocks)
	require.Equal(t, int64(1), d3.MissedBlocks, "active delegate without a block")
	require.Zero(t, d4.MissedBlocks, "standby delegate is not an outsider")
	require.Equal(t, "b6", d2.BlockID)
	require.Equal(t, uint64(2), d2.Round)

	// Votes recomputed from the voter balance: d1 and d2 hold 1000 each.
	require.Equal(t, int64(1_000), d1.Vote)
	require.Equal(t, int64(1_000), d2.Vote)
	require.Zero(t, d3.Vote)

	// The record keeps the weights from before closure and the next list.
	require.Len(t, settled.Votes, 4)
	for _, v := range settled.Votes {
		if v.PublicKey == hex.EncodeToString(delegateKey(1)) {
			require.Equal(t, int64(400), v.Vote)
			require.Equal(t, int64(1), v.Rank)
		}
	}
	require.Len(t, settled.NextDelegates, 3)

	require.Len(t, rec.OfType(events.TypeRoundSettled), 1)
	require.Len(t, rec.OfType(events.TypeDelegateMissed), 1)
	lists := rec.OfType(events.TypeDelegateList)
	require.Len(t, lists, 1)
	require.Equal(t, "3", lists[0].Attributes["round"])
}

func TestForwardBackwardNetsToZero(t *testing.T) {
	ledger := newLedger(t)
	before, err := ledger.Accounts()
	require.NoError(t, err)

	src := newMemChain()
	a, err := New(3, src)
	require.NoError(t, err)
	blocks := roundTwo()
	tickAll(t, a, ledger, src, blocks)
	require.Equal(t, int64(1_000), account(t, ledger, delegateAddress(1)).Vote)
	backAll(t, a, ledger, src, blocks)

	requireNetZero(t, ledger, before)
}

func TestBackwardAfterRestartUsesRoundRecord(t *testing.T) {
	ledger := newLedger(t)
	backVoter(t, ledger, 4)
	before, err := ledger.Accounts()
	require.NoError(t, err)

	src := newMemChain()
	a, err := New(3, src)
	require.NoError(t, err)
	blocks := roundTwo()
	tickAll(t, a, ledger, src, blocks)
	require.Equal(t, int64(1), account(t, ledger, delegateAddress(3)).MissedBlocks)
	require.Equal(t, int64(1), account(t, ledger, delegateAddress(4)).Rank, "closure ranks the backed delegate first")

	// A fresh accountant has no cached lists; the closing votes would put
	// d4 in the round's list instead of d3.
	restarted, err := New(3, src)
	require.NoError(t, err)
	backAll(t, restarted, ledger, src, blocks)

	requireNetZero(t, ledger, before)
}

func TestColdListCacheReadsRoundRecord(t *testing.T) {
	ledger := newLedger(t)
	src := newMemChain()
	a, err := New(3, src)
	require.NoError(t, err)
	settled := tickAll(t, a, ledger, src, roundTwo())
	require.NotNil(t, settled)

	// Later vote changes must not leak into a list that was already fixed.
	for _, seed := range []byte{3, 4} {
		_, err := ledger.Merge(delegateAddress(seed), types.Diff{Vote: 5_000})
		require.NoError(t, err)
	}
	restarted, err := New(3, src)
	require.NoError(t, err)
	list, err := restarted.DelegateList(context.Background(), ledger, 3)
	require.NoError(t, err)
	require.Equal(t, settled.NextDelegates, list)
}

func TestBackwardWithoutRecordFails(t *testing.T) {
	ledger := newLedger(t)
	src := newMemChain()
	a, err := New(3, src)
	require.NoError(t, err)
	blocks := roundTwo()
	tickAll(t, a, ledger, src, blocks)
	delete(src.rounds, 2)

	before := account(t, ledger, delegateAddress(3))
	_, err = a.Backward(context.Background(), ledger, blocks[2])
	require.ErrorIs(t, err, ErrMissingRound)
	if after := account(t, ledger, delegateAddress(3)); !before.Equal(after) {
		t.Fatalf("failed reversal changed the ledger: %+v -> %+v", before, after)
	}
}

func TestTickSideEffectsWaitForCommit(t *testing.T) {
	ledger := newLedger(t)
	src := newMemChain()
	snaps := storage.NewMemSnapshots()
	rec := &events.Recorder{}
	a, err := New(3, src, WithSnapshots(snaps), WithEmitter(rec))
	require.NoError(t, err)

	blocks := roundTwo()
	tickAll(t, a, ledger, src, blocks[:2])
	src.blocks[blocks[2].Height] = blocks[2]
	res, err := a.Tick(context.Background(), ledger, blocks[2])
	require.NoError(t, err)
	require.NotNil(t, res.Round)

	_, err = snaps.Load(2)
	require.ErrorIs(t, err, storage.ErrNotFound, "snapshot written before commit")
	require.Empty(t, rec.OfType(events.TypeRoundSettled))
	require.Empty(t, rec.OfType(events.TypeDelegateList))
	a.mu.Lock()
	_, cached := a.lists[3]
	a.mu.Unlock()
	require.False(t, cached, "next list cached before commit")

	res.Commit()
	res.Commit()
	_, err = snaps.Load(2)
	require.NoError(t, err)
	require.Len(t, rec.OfType(events.TypeRoundSettled), 1)
	require.Len(t, rec.OfType(events.TypeDelegateList), 1)
}

func TestSnapshotMatchesReplay(t *testing.T) {
	fast := newLedger(t)
	slow := newLedger(t)
	fastSrc, slowSrc := newMemChain(), newMemChain()
	snaps := storage.NewMemSnapshots()
	rec := &events.Recorder{}

	withSnap, err := New(3, fastSrc, WithSnapshots(snaps), WithEmitter(rec))
	require.NoError(t, err)
	replay, err := New(3, slowSrc)
	require.NoError(t, err)

	blocks := roundTwo()
	tickAll(t, withSnap, fast, fastSrc, blocks)
	tickAll(t, replay, slow, slowSrc, blocks)
	_, err = snaps.Load(2)
	require.NoError(t, err, "closing the round stores a snapshot")

	// The fast path needs neither the round's blocks nor its record.
	fastSrc.blocks = map[uint64]*types.Block{}
	fastSrc.rounds = map[uint64]*types.Round{}
	res, err := withSnap.Backward(context.Background(), fast, blocks[2])
	require.NoError(t, err)
	res.Commit()
	res, err = replay.Backward(context.Background(), slow, blocks[2])
	require.NoError(t, err)
	res.Commit()

	reverted := rec.OfType(events.TypeRoundReverted)
	require.Len(t, reverted, 1)
	require.Equal(t, "true", reverted[0].Attributes["snapshot"])
	_, err = snaps.Load(2)
	require.ErrorIs(t, err, storage.ErrNotFound)

	fastAccounts, err := fast.Accounts()
	require.NoError(t, err)
	slowAccounts, err := slow.Accounts()
	require.NoError(t, err)
	require.Len(t, fastAccounts, len(slowAccounts))
	for i := range fastAccounts {
		if !fastAccounts[i].Equal(slowAccounts[i]) {
			t.Fatalf("account %s differs:\nsnapshot %+v\nreplay   %+v", fastAccounts[i].Address, fastAccounts[i], slowAccounts[i])
		}
	}
}

func TestStaleSnapshotFallsBackToReplay(t *testing.T) {
	ledger := newLedger(t)
	src := newMemChain()
	snaps := storage.NewMemSnapshots()
	rec := &events.Recorder{}
	a, err := New(3, src, WithSnapshots(snaps), WithEmitter(rec))
	require.NoError(t, err)

	blocks := roundTwo()
	tickAll(t, a, ledger, src, blocks)
	data, err := encodeSnapshot(&snapshot{Round: 2, BlockID: "other"})
	require.NoError(t, err)
	require.NoError(t, snaps.Save(2, data))

	res, err := a.Backward(context.Background(), ledger, blocks[2])
	require.NoError(t, err)
	res.Commit()
	reverted := rec.OfType(events.TypeRoundReverted)
	require.Len(t, reverted, 1)
	require.Equal(t, "false", reverted[0].Attributes["snapshot"])
	require.Zero(t, account(t, ledger, delegateAddress(3)).MissedBlocks)
	require.Equal(t, int64(200), account(t, ledger, delegateAddress(3)).Vote)
}

func TestMissingBlocksLeaveLedgerUntouched(t *testing.T) {
	ledger := newLedger(t)
	src := newMemChain()
	a, err := New(3, src)
	require.NoError(t, err)
	before := account(t, ledger, delegateAddress(2))

	blocks := roundTwo()
	_, err = a.Tick(context.Background(), ledger, blocks[2])
	if !errors.Is(err, ErrMissingBlocks) {
		t.Fatalf("expected ErrMissingBlocks, got %v", err)
	}
	after := account(t, ledger, delegateAddress(2))
	if !before.Equal(after) {
		t.Fatalf("failed settlement changed the ledger: %+v -> %+v", before, after)
	}
}

func TestGenesisBlockGeneratesFirstList(t *testing.T) {
	ledger := newLedger(t)
	rec := &events.Recorder{}
	a, err := New(3, newMemChain(), WithEmitter(rec))
	require.NoError(t, err)

	genesis := &types.Block{ID: "genesis", Height: 1, GeneratorPublicKey: delegateKey(1)}
	res, err := a.Tick(context.Background(), ledger, genesis)
	require.NoError(t, err)
	require.Nil(t, res.Round)
	res.Commit()

	lists := rec.OfType(events.TypeDelegateList)
	require.Len(t, lists, 1)
	require.Equal(t, "1", lists[0].Attributes["round"])
	require.Equal(t, "3", lists[0].Attributes["count"])

	list, err := a.DelegateList(context.Background(), ledger, 1)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.NotContains(t, list, hex.EncodeToString(delegateKey(4)))
	require.Equal(t, int64(1), account(t, ledger, delegateAddress(1)).Rank)

	_, err = a.Backward(context.Background(), ledger, genesis)
	require.ErrorIs(t, err, ErrIrreversible)
}

func TestInvalidBlockRejected(t *testing.T) {
	ledger := newLedger(t)
	a, err := New(3, newMemChain())
	require.NoError(t, err)
	_, err = a.Tick(context.Background(), ledger, &types.Block{ID: "x", Height: 2})
	require.ErrorIs(t, err, ErrInvalidBlock)
	_, err = a.Tick(context.Background(), ledger, &types.Block{ID: "x", Height: 2, GeneratorPublicKey: delegateKey(1), Reward: -1})
	require.ErrorIs(t, err, ErrInvalidBlock)
}
