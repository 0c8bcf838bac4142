package round

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/LiskArchive/lisk-sdk-sub000/core/events"
	"github.com/LiskArchive/lisk-sdk-sub000/core/state"
	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
	"github.com/LiskArchive/lisk-sdk-sub000/observability"
	"github.com/LiskArchive/lisk-sdk-sub000/storage"
)

var (
	// ErrMissingBlocks is returned when the block source cannot provide
	// every block of the round being settled.
	ErrMissingBlocks = errors.New("round: missing round blocks")
	// ErrInvalidBlock is returned for blocks without generator or with
	// negative fee or reward.
	ErrInvalidBlock = errors.New("round: invalid block")
	// ErrSnapshot is returned for unusable stored settlements.
	ErrSnapshot = errors.New("round: invalid snapshot")
	// ErrMissingRound is returned when a closed round is reverted without a
	// matching snapshot or round record.
	ErrMissingRound = errors.New("round: no record of settled round")
	// ErrIrreversible is returned for ticks that cannot be reverted.
	ErrIrreversible = errors.New("round: tick cannot be reverted")
)

const (
	directionForward  = "forward"
	directionBackward = "backward"
	pathReplay        = "replay"
	pathSnapshot      = "snapshot"
)

// BlockSource returns committed blocks with heights in [from, to] ordered by
// height.
type BlockSource interface {
	BlocksByHeight(ctx context.Context, from, to uint64) ([]*types.Block, error)
}

// RoundSource returns the record of a settled round, or an error matching
// storage.ErrNotFound. *sqlstore.Store implements it.
type RoundSource interface {
	Round(ctx context.Context, number uint64) (*types.Round, error)
}

// VoteWeightStore computes the vote weight of every registered delegate.
type VoteWeightStore interface {
	VoteWeights(ctx context.Context, s state.Store) (map[string]int64, error)
}

type metricsSink interface {
	Settled(direction, path string, round uint64, seconds float64)
	Distributed(fees, rewards int64)
}

// Option customises an Accountant.
type Option func(*Accountant)

// WithLogger sets the accountant logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Accountant) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithSnapshots enables the snapshot fast path for backward settlement.
func WithSnapshots(store SnapshotStore) Option {
	return func(a *Accountant) { a.snapshots = store }
}

// WithRounds sets where settled round records are read from. A block
// source that is also a RoundSource is used by default.
func WithRounds(rounds RoundSource) Option {
	return func(a *Accountant) { a.rounds = rounds }
}

// WithVoteWeights replaces the default balance derived vote weights.
func WithVoteWeights(store VoteWeightStore) Option {
	return func(a *Accountant) {
		if store != nil {
			a.weights = store
		}
	}
}

// WithEmitter sets the destination of round events.
func WithEmitter(emitter events.Emitter) Option {
	return func(a *Accountant) {
		if emitter != nil {
			a.emitter = emitter
		}
	}
}

// Accountant settles fees and rewards at the close of every round and keeps
// delegate counters, votes and ranks up to date.
type Accountant struct {
	slots     int
	blocks    BlockSource
	rounds    RoundSource
	snapshots SnapshotStore
	weights   VoteWeightStore
	emitter   events.Emitter
	logger    *slog.Logger
	metrics   metricsSink
	tracer    trace.Tracer

	mu    sync.Mutex
	lists map[uint64][]string
}

// New returns an accountant for rounds of slots blocks.
func New(slots int, blocks BlockSource, opts ...Option) (*Accountant, error) {
	if slots <= 0 {
		return nil, fmt.Errorf("round: slots must be positive, got %d", slots)
	}
	if blocks == nil {
		return nil, fmt.Errorf("round: block source is required")
	}
	a := &Accountant{
		slots:   slots,
		blocks:  blocks,
		weights: state.BalanceVoteWeights{},
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		metrics: observability.Rounds(),
		tracer:  otel.Tracer("ledger/round"),
		lists:   make(map[uint64][]string),
	}
	if rounds, ok := blocks.(RoundSource); ok {
		a.rounds = rounds
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(slog.String("component", "round"))
	return a, nil
}

// Round returns the round a height belongs to.
func (a *Accountant) Round(height uint64) uint64 {
	return types.RoundOf(height, a.slots)
}

// IsLastOfRound reports whether the block at height closes its round.
func (a *Accountant) IsLastOfRound(height uint64) bool {
	return height > 0 && height%uint64(a.slots) == 0
}

// listRound is the round whose delegate list is generated after the block
// at height: the next round when the block closes one, otherwise the first
// round for the genesis block.
func (a *Accountant) listRound(height uint64) uint64 {
	if a.IsLastOfRound(height) {
		return a.Round(height) + 1
	}
	return a.Round(height)
}

func (a *Accountant) firstHeight(round uint64) uint64 {
	return (round-1)*uint64(a.slots) + 1
}

// Result is the outcome of Tick or Backward. Round is the settled or
// reverted round, nil when the block does not close one. The delegate list
// cache, the snapshot store, metrics and events are left untouched until
// Commit, which the caller runs once its ledger batch is durable.
type Result struct {
	Round *types.Round

	a         *Accountant
	backward  bool
	round     uint64
	blockID   string
	listRound uint64
	list      []string
	plan      *settlement
	path      string
	started   time.Time
	done      bool
}

// Commit publishes the side effects of a durable Tick or Backward. It is
// safe to call on a nil Result and runs at most once.
func (r *Result) Commit() {
	if r == nil || r.done {
		return
	}
	r.done = true
	if r.backward {
		r.a.commitBackward(r)
		return
	}
	r.a.commitForward(r)
}

// Tick accounts for a newly applied block: the generator's produced counter
// always, and the whole round settlement when the block closes the round.
// Every change is made in one atomic unit of s.
func (a *Accountant) Tick(ctx context.Context, s state.Store, block *types.Block) (*Result, error) {
	if err := checkBlock(block); err != nil {
		return nil, err
	}
	round := a.Round(block.Height)
	ctx, span := a.tracer.Start(ctx, "round.tick", trace.WithAttributes(
		attribute.Int64("height", int64(block.Height)),
		attribute.Int64("round", int64(round)),
	))
	defer span.End()

	closing := a.IsLastOfRound(block.Height)
	res := &Result{
		a:         a,
		round:     round,
		blockID:   block.ID,
		listRound: a.listRound(block.Height),
		path:      pathReplay,
		started:   time.Now(),
	}
	err := s.Atomic(func(b state.Store) error {
		if err := a.mergeGenerator(b, block, round, 1); err != nil {
			return err
		}
		if !closing && block.Height != 1 {
			return nil
		}
		var plan *settlement
		if closing {
			p, err := a.plan(ctx, b, block, round)
			if err != nil {
				return err
			}
			if err := p.apply(b, false); err != nil {
				return err
			}
			plan = p
		}
		prior, err := captureVotes(ctx, b)
		if err != nil {
			return err
		}
		if err := a.updateVotes(ctx, b); err != nil {
			return err
		}
		list, err := a.generateList(ctx, b, res.listRound)
		if err != nil {
			return err
		}
		res.list = list
		if plan != nil {
			plan.votes = prior
			plan.next = list
			res.plan = plan
			res.Round = plan.summary()
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("settled", res.plan != nil))
	return res, nil
}

func (a *Accountant) commitForward(r *Result) {
	if r.list != nil {
		a.cacheList(r.listRound, r.list)
		a.emitter.Emit(events.DelegateList{Round: r.listRound, Delegates: r.list})
	}
	settled := r.plan
	if settled == nil {
		return
	}
	a.saveSnapshot(settled)
	a.metrics.Distributed(settled.totalFees, settled.totalRewards())
	a.metrics.Settled(directionForward, pathReplay, r.round, time.Since(r.started).Seconds())
	for _, address := range settled.outsiders {
		a.emitter.Emit(events.DelegateMissed{Round: r.round, Address: address})
	}
	a.emitter.Emit(events.RoundSettled{
		Round:      r.round,
		BlockID:    r.blockID,
		TotalFees:  settled.totalFees,
		FeeShare:   settled.share,
		Remainder:  settled.remainder,
		Rewards:    settled.totalRewards(),
		Generators: len(settled.generators),
	})
	a.logger.Info("round settled",
		slog.Uint64("round", r.round),
		slog.String("block_id", r.blockID),
		slog.Int64("fees", settled.totalFees),
		slog.Int64("rewards", settled.totalRewards()),
		slog.Int("missed", len(settled.outsiders)))
}

// Backward reverts Tick for the block being undone. When the block closed a
// round, the settlement, the delegate list it was paid against and the
// vote weights from before closure come from the round's snapshot if one
// matches the block, otherwise from the round record and the round's
// blocks. Both paths apply the same deltas.
func (a *Accountant) Backward(ctx context.Context, s state.Store, block *types.Block) (*Result, error) {
	if err := checkBlock(block); err != nil {
		return nil, err
	}
	closing := a.IsLastOfRound(block.Height)
	if block.Height == 1 && !closing {
		return nil, fmt.Errorf("%w: genesis block %s", ErrIrreversible, block.ID)
	}
	round := a.Round(block.Height)
	ctx, span := a.tracer.Start(ctx, "round.backward", trace.WithAttributes(
		attribute.Int64("height", int64(block.Height)),
		attribute.Int64("round", int64(round)),
	))
	defer span.End()

	res := &Result{
		a:         a,
		backward:  true,
		round:     round,
		blockID:   block.ID,
		listRound: a.listRound(block.Height),
		path:      pathReplay,
		started:   time.Now(),
	}
	err := s.Atomic(func(b state.Store) error {
		if closing {
			plan, path, err := a.recorded(ctx, block, round)
			if err != nil {
				return err
			}
			if err := plan.apply(b, true); err != nil {
				return err
			}
			if err := restoreVotes(b, plan.votes); err != nil {
				return err
			}
			res.plan, res.path = plan, path
			res.Round = plan.summary()
		}
		return a.mergeGenerator(b, block, round, -1)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("path", res.path))
	return res, nil
}

func (a *Accountant) commitBackward(r *Result) {
	if r.plan == nil {
		return
	}
	a.dropList(r.listRound)
	if a.snapshots != nil {
		if err := a.snapshots.Delete(r.round); err != nil {
			a.logger.Warn("failed to delete round snapshot", slog.Uint64("round", r.round), slog.Any("error", err))
		}
	}
	a.metrics.Settled(directionBackward, r.path, r.round, time.Since(r.started).Seconds())
	a.emitter.Emit(events.RoundReverted{Round: r.round, BlockID: r.blockID, Snapshot: r.path == pathSnapshot})
	a.logger.Info("round reverted", slog.Uint64("round", r.round), slog.String("block_id", r.blockID), slog.String("path", r.path))
}

// recorded rebuilds the settlement made by block from the round snapshot,
// or from the round record and the round's blocks.
func (a *Accountant) recorded(ctx context.Context, block *types.Block, round uint64) (*settlement, string, error) {
	snap, err := loadSnapshot(a.snapshots, round, block.ID)
	if err != nil {
		return nil, "", err
	}
	if snap != nil {
		plan, err := fromSnapshot(snap)
		if err != nil {
			return nil, "", err
		}
		return plan, pathSnapshot, nil
	}
	rec, err := a.roundRecord(ctx, round)
	if err != nil {
		return nil, "", err
	}
	if rec == nil || rec.LastBlockID != block.ID {
		return nil, "", fmt.Errorf("%w: round %d closed by %s", ErrMissingRound, round, block.ID)
	}
	blocks, err := a.roundBlocks(ctx, block, round)
	if err != nil {
		return nil, "", err
	}
	plan, err := newSettlement(round, block.ID, rec.Delegates, blocks)
	if err != nil {
		return nil, "", err
	}
	plan.votes = rec.Votes
	plan.next = rec.NextDelegates
	return plan, pathReplay, nil
}

// roundRecord returns the persisted record of a settled round, or nil when
// there is none.
func (a *Accountant) roundRecord(ctx context.Context, number uint64) (*types.Round, error) {
	if a.rounds == nil || number == 0 {
		return nil, nil
	}
	rec, err := a.rounds.Round(ctx, number)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("round %d: load record: %w", number, err)
	}
	return rec, nil
}

func checkBlock(block *types.Block) error {
	if block == nil {
		return fmt.Errorf("%w: nil block", ErrInvalidBlock)
	}
	if len(block.GeneratorPublicKey) == 0 {
		return fmt.Errorf("%w: block %s has no generator", ErrInvalidBlock, block.ID)
	}
	if block.Height == 0 {
		return fmt.Errorf("%w: block %s has height 0", ErrInvalidBlock, block.ID)
	}
	if block.TotalFee < 0 || block.Reward < 0 {
		return fmt.Errorf("%w: block %s has negative fee or reward", ErrInvalidBlock, block.ID)
	}
	return nil
}

func (a *Accountant) mergeGenerator(s state.Store, block *types.Block, round uint64, delta int64) error {
	address := types.AddressFromPublicKey(block.GeneratorPublicKey)
	_, err := s.Merge(address, types.Diff{
		PublicKey:      block.GeneratorPublicKey,
		ProducedBlocks: delta,
		BlockID:        block.ID,
		Round:          round,
	})
	if err != nil {
		return fmt.Errorf("round: generator %s: %w", address, err)
	}
	return nil
}

// roundBlocks returns every block of the round closed by block, in height
// order, with block itself last.
func (a *Accountant) roundBlocks(ctx context.Context, block *types.Block, round uint64) ([]*types.Block, error) {
	first := a.firstHeight(round)
	var blocks []*types.Block
	if block.Height > first {
		stored, err := a.blocks.BlocksByHeight(ctx, first, block.Height-1)
		if err != nil {
			return nil, fmt.Errorf("round %d: load blocks: %w", round, err)
		}
		blocks = stored
	}
	blocks = append(blocks, block)
	if uint64(len(blocks)) != block.Height-first+1 {
		return nil, fmt.Errorf("%w: round %d has %d of %d blocks", ErrMissingBlocks, round, len(blocks), block.Height-first+1)
	}
	for i, b := range blocks {
		if err := checkBlock(b); err != nil {
			return nil, err
		}
		if b.Height != first+uint64(i) {
			return nil, fmt.Errorf("%w: round %d expected height %d, got %d", ErrMissingBlocks, round, first+uint64(i), b.Height)
		}
	}
	return blocks, nil
}

// plan computes the settlement of the round closed by block.
func (a *Accountant) plan(ctx context.Context, s state.Store, block *types.Block, round uint64) (*settlement, error) {
	blocks, err := a.roundBlocks(ctx, block, round)
	if err != nil {
		return nil, err
	}
	delegates, err := a.delegateList(ctx, s, round)
	if err != nil {
		return nil, err
	}
	return newSettlement(round, block.ID, delegates, blocks)
}

// DelegateList returns the forging order of a round: the active delegates
// ranked by vote, shuffled with the round seed. Votes only change when a
// round closes, so a list is generated once per round and then reused.
func (a *Accountant) DelegateList(ctx context.Context, s state.Store, round uint64) ([]string, error) {
	list, err := a.delegateList(ctx, s, round)
	if err != nil {
		return nil, err
	}
	a.cacheList(round, list)
	return append([]string(nil), list...), nil
}

// delegateList resolves a round's list from the cache, then from the list
// recorded when the previous round closed, and generates it from s only
// when neither is known.
func (a *Accountant) delegateList(ctx context.Context, s state.Store, round uint64) ([]string, error) {
	a.mu.Lock()
	cached, ok := a.lists[round]
	a.mu.Unlock()
	if ok {
		return append([]string(nil), cached...), nil
	}
	prev, err := a.roundRecord(ctx, round-1)
	if err != nil {
		return nil, err
	}
	if prev != nil && len(prev.NextDelegates) > 0 {
		return append([]string(nil), prev.NextDelegates...), nil
	}
	return a.generateList(ctx, s, round)
}

func (a *Accountant) generateList(ctx context.Context, s state.Store, round uint64) ([]string, error) {
	accounts, err := s.Accounts()
	if err != nil {
		return nil, err
	}
	votes := make(map[string]int64)
	for _, acc := range accounts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if acc.Confirmed.IsDelegate && len(acc.PublicKey) > 0 {
			votes[hex.EncodeToString(acc.PublicKey)] = acc.Vote
		}
	}
	ranked := state.RankDelegates(votes)
	if len(ranked) > a.slots {
		ranked = ranked[:a.slots]
	}
	keys := make([]string, len(ranked))
	for i, d := range ranked {
		keys[i] = d.PublicKey
	}
	return Shuffle(keys, round), nil
}

func (a *Accountant) cacheList(round uint64, list []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lists[round] = list
	for r := range a.lists {
		if r+2 < round {
			delete(a.lists, r)
		}
	}
}

func (a *Accountant) dropList(round uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.lists, round)
}

// updateVotes recomputes every delegate's vote weight and rank.
func (a *Accountant) updateVotes(ctx context.Context, s state.Store) error {
	weights, err := a.weights.VoteWeights(ctx, s)
	if err != nil {
		return fmt.Errorf("round: vote weights: %w", err)
	}
	for i, d := range state.RankDelegates(weights) {
		publicKey, err := hex.DecodeString(d.PublicKey)
		if err != nil {
			return fmt.Errorf("round: delegate key %q: %w", d.PublicKey, err)
		}
		address := types.AddressFromPublicKey(publicKey)
		acc, err := s.Account(address)
		if err != nil {
			return err
		}
		if acc == nil {
			continue
		}
		rank := int64(i + 1)
		if acc.Vote == d.Vote && acc.Rank == rank {
			continue
		}
		if _, err := s.Merge(address, types.Diff{Vote: d.Vote - acc.Vote, Rank: types.Int64(rank)}); err != nil {
			return fmt.Errorf("round: update vote of %s: %w", address, err)
		}
	}
	return nil
}

// captureVotes returns the vote weight and rank of every registered
// delegate, ordered by public key.
func captureVotes(ctx context.Context, s state.Store) ([]types.DelegateVote, error) {
	accounts, err := s.Accounts()
	if err != nil {
		return nil, err
	}
	var out []types.DelegateVote
	for _, acc := range accounts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !acc.Confirmed.IsDelegate || len(acc.PublicKey) == 0 {
			continue
		}
		out = append(out, types.DelegateVote{
			PublicKey: hex.EncodeToString(acc.PublicKey),
			Vote:      acc.Vote,
			Rank:      acc.Rank,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublicKey < out[j].PublicKey })
	return out, nil
}

// restoreVotes puts back the weights and ranks captured by captureVotes.
func restoreVotes(s state.Store, votes []types.DelegateVote) error {
	for _, v := range votes {
		address, err := addressOf(v.PublicKey)
		if err != nil {
			return err
		}
		acc, err := s.Account(address)
		if err != nil {
			return err
		}
		if acc == nil || (acc.Vote == v.Vote && acc.Rank == v.Rank) {
			continue
		}
		if _, err := s.Merge(address, types.Diff{Vote: v.Vote - acc.Vote, Rank: types.Int64(v.Rank)}); err != nil {
			return fmt.Errorf("round: restore vote of %s: %w", address, err)
		}
	}
	return nil
}

func (a *Accountant) saveSnapshot(plan *settlement) {
	if a.snapshots == nil {
		return
	}
	snap, err := plan.snapshot()
	var data []byte
	if err == nil {
		data, err = encodeSnapshot(snap)
	}
	if err == nil {
		err = a.snapshots.Save(plan.round, data)
	}
	if err != nil {
		a.logger.Warn("failed to save round snapshot", slog.Uint64("round", plan.round), slog.Any("error", err))
	}
}
