package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/LiskArchive/lisk-sdk-sub000/core/events"
	"github.com/LiskArchive/lisk-sdk-sub000/core/rewards"
	"github.com/LiskArchive/lisk-sdk-sub000/core/round"
	"github.com/LiskArchive/lisk-sdk-sub000/core/state"
	"github.com/LiskArchive/lisk-sdk-sub000/core/tx"
	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
	"github.com/LiskArchive/lisk-sdk-sub000/mempool"
	"github.com/LiskArchive/lisk-sdk-sub000/observability"
	"github.com/LiskArchive/lisk-sdk-sub000/storage/sqlstore"
)

var (
	// ErrHeightMismatch is returned for a block that does not extend the tip.
	ErrHeightMismatch = errors.New("chain: unexpected block height")
	// ErrPreviousBlock is returned when the block does not reference the tip.
	ErrPreviousBlock = errors.New("chain: previous block mismatch")
	// ErrInvalidBlock is returned for inconsistent block headers.
	ErrInvalidBlock = errors.New("chain: invalid block")
	// ErrDuplicateTransaction is returned when a block repeats a transaction.
	ErrDuplicateTransaction = errors.New("chain: duplicate transaction in block")
	// ErrEmptyChain is returned when there is no block to undo.
	ErrEmptyChain = errors.New("chain: no block to undo")
	// ErrGenesis is returned when undoing the genesis block.
	ErrGenesis = errors.New("chain: genesis block cannot be undone")
)

// BlockStore persists committed blocks. *sqlstore.Store implements it.
type BlockStore interface {
	SaveBlock(ctx context.Context, block *types.Block, settled *types.Round) error
	DeleteBlock(ctx context.Context, id string, round uint64) error
	LastBlock(ctx context.Context) (*types.Block, error)
}

type chainSink interface {
	Block(direction string, height uint64, err error)
	Transaction(txType string)
}

// Config holds the block level limits.
type Config struct {
	Schedule       rewards.Schedule
	MaxTxsPerBlock int
}

// Option customises a Chain.
type Option func(*Chain)

// WithLogger sets the chain logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chain) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithEmitter sets the destination of block events.
func WithEmitter(emitter events.Emitter) Option {
	return func(c *Chain) {
		if emitter != nil {
			c.emitter = emitter
		}
	}
}

// Chain applies and reverts blocks against the ledger. Each block is one
// atomic unit: its transactions, the round tick and the persisted rows
// either all land or the height does not move.
type Chain struct {
	cfg        Config
	registry   *tx.Registry
	ledger     *state.Ledger
	pool       *mempool.Pool
	accountant *round.Accountant
	store      BlockStore
	emitter    events.Emitter
	logger     *slog.Logger
	metrics    chainSink
	tracer     trace.Tracer

	mu     sync.Mutex
	height atomic.Uint64
	last   *types.Block
}

// NewChain wires the block processor and loads the tip from store.
func NewChain(ctx context.Context, cfg Config, registry *tx.Registry, ledger *state.Ledger, pool *mempool.Pool, accountant *round.Accountant, store BlockStore, opts ...Option) (*Chain, error) {
	if registry == nil || ledger == nil || pool == nil || accountant == nil || store == nil {
		return nil, fmt.Errorf("chain: registry, ledger, pool, accountant and store are required")
	}
	if err := cfg.Schedule.Validate(); err != nil {
		return nil, fmt.Errorf("chain: %w", err)
	}
	if cfg.MaxTxsPerBlock <= 0 {
		return nil, fmt.Errorf("chain: max transactions per block must be positive")
	}
	c := &Chain{
		cfg:        cfg,
		registry:   registry,
		ledger:     ledger,
		pool:       pool,
		accountant: accountant,
		store:      store,
		emitter:    events.NoopEmitter{},
		logger:     slog.Default(),
		metrics:    observability.Chain(),
		tracer:     otel.Tracer("ledger/chain"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "chain"))
	last, err := store.LastBlock(ctx)
	switch {
	case errors.Is(err, sqlstore.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("chain: load tip: %w", err)
	default:
		c.last = header(last)
		c.height.Store(last.Height)
	}
	return c, nil
}

// Height returns the height of the tip, 0 before genesis.
func (c *Chain) Height() uint64 {
	if c == nil {
		return 0
	}
	return c.height.Load()
}

// LastBlock returns the tip header or nil before genesis.
func (c *Chain) LastBlock() *types.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return header(c.last)
}

func header(b *types.Block) *types.Block {
	if b == nil {
		return nil
	}
	h := *b
	h.Transactions = nil
	return &h
}

// ApplyBlock verifies and commits a block extending the tip. The pool's
// unconfirmed state is undone first and reapplied afterwards, without the
// transactions the block included. On error nothing is committed and the
// height does not move.
func (c *Chain) ApplyBlock(ctx context.Context, block *types.Block) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if block == nil {
		return fmt.Errorf("%w: nil block", ErrInvalidBlock)
	}
	ctx, span := c.tracer.Start(ctx, "chain.apply_block", trace.WithAttributes(
		attribute.Int64("height", int64(block.Height)),
		attribute.Int("txs", len(block.Transactions)),
	))
	defer span.End()
	defer func() {
		c.metrics.Block("apply", block.Height, err)
		if err != nil {
			span.RecordError(err)
		}
	}()

	if err := c.checkBlock(block); err != nil {
		return err
	}
	var settled *types.Round
	err = c.pool.WithLock(func(pool *mempool.Locked) error {
		undone, err := pool.UndoUnconfirmedList(ctx)
		if err != nil {
			pool.ApplyUnconfirmedIDs(ctx, undone)
			return fmt.Errorf("chain: undo unconfirmed: %w", err)
		}
		result, err := c.commit(ctx, block)
		if err != nil {
			for _, t := range block.Transactions {
				c.registry.Release(t)
			}
			pool.ApplyUnconfirmedIDs(ctx, undone)
			c.logger.Warn("block rejected", slog.String("id", block.ID), slog.Uint64("height", block.Height), slog.Any("error", err))
			return err
		}
		result.Commit()
		settled = result.Round

		c.height.Store(block.Height)
		c.last = header(block)
		included := make(map[string]struct{}, len(block.Transactions))
		for _, t := range block.Transactions {
			included[t.ID] = struct{}{}
			pool.RemoveUnconfirmedTransaction(t.ID)
			c.metrics.Transaction(t.Type.String())
		}
		remaining := undone[:0]
		for _, id := range undone {
			if _, ok := included[id]; !ok {
				remaining = append(remaining, id)
			}
		}
		pool.ApplyUnconfirmedIDs(ctx, remaining)
		pool.FillPool(ctx)
		return nil
	})
	if err != nil {
		return err
	}

	c.emitter.Emit(events.BlockApplied{
		ID:           block.ID,
		Height:       block.Height,
		Transactions: len(block.Transactions),
		TotalFee:     block.TotalFee,
		Reward:       block.Reward,
	})
	attrs := []any{slog.String("id", block.ID), slog.Uint64("height", block.Height), slog.Int("txs", len(block.Transactions))}
	if settled != nil {
		attrs = append(attrs, slog.Uint64("settled_round", settled.Number))
	}
	c.logger.Info("block applied", attrs...)
	return nil
}

func (c *Chain) checkBlock(block *types.Block) error {
	if want := c.height.Load() + 1; block.Height != want {
		return fmt.Errorf("%w: got %d, want %d", ErrHeightMismatch, block.Height, want)
	}
	if c.last != nil && block.PreviousBlock != c.last.ID {
		return fmt.Errorf("%w: block %s references %q, tip is %s", ErrPreviousBlock, block.ID, block.PreviousBlock, c.last.ID)
	}
	if block.ID == "" || len(block.GeneratorPublicKey) == 0 {
		return fmt.Errorf("%w: missing id or generator", ErrInvalidBlock)
	}
	if len(block.Transactions) > c.cfg.MaxTxsPerBlock {
		return fmt.Errorf("%w: %d transactions exceed %d", ErrInvalidBlock, len(block.Transactions), c.cfg.MaxTxsPerBlock)
	}
	var fees, amount int64
	for _, t := range block.Transactions {
		if t == nil {
			return fmt.Errorf("%w: nil transaction", ErrInvalidBlock)
		}
		if t.Fee < 0 || t.Amount < 0 || fees > 1<<63-1-t.Fee || amount > 1<<63-1-t.Amount {
			return fmt.Errorf("%w: transaction %s totals overflow", ErrInvalidBlock, t.ID)
		}
		fees += t.Fee
		amount += t.Amount
	}
	if fees != block.TotalFee || amount != block.TotalAmount {
		return fmt.Errorf("%w: totals fee=%d amount=%d, header fee=%d amount=%d", ErrInvalidBlock, fees, amount, block.TotalFee, block.TotalAmount)
	}
	if reward := c.cfg.Schedule.CalcReward(block.Height); block.Reward < 0 || uint64(block.Reward) != reward {
		return fmt.Errorf("%w: reward %d, want %d", ErrInvalidBlock, block.Reward, reward)
	}
	return nil
}

// commit applies the block inside one ledger batch and persists it as the
// batch's last step. The round result is returned uncommitted.
func (c *Chain) commit(ctx context.Context, block *types.Block) (*round.Result, error) {
	var (
		result *round.Result
		saved  bool
	)
	err := c.ledger.Atomic(func(s state.Store) error {
		seen := make(map[string]struct{}, len(block.Transactions))
		for _, t := range block.Transactions {
			sender, err := c.verify(s, t, block.Height)
			if err != nil {
				return fmt.Errorf("transaction %s: %w", t.ID, err)
			}
			if _, dup := seen[t.ID]; dup {
				return fmt.Errorf("%w: %s", ErrDuplicateTransaction, t.ID)
			}
			seen[t.ID] = struct{}{}
			if err := c.registry.ApplyUnconfirmed(s, t, sender); err != nil {
				return fmt.Errorf("transaction %s: apply unconfirmed: %w", t.ID, err)
			}
		}
		for _, t := range block.Transactions {
			sender, err := s.AccountByPublicKey(t.SenderPublicKey)
			if err != nil {
				return err
			}
			if err := c.registry.ApplyConfirmed(s, t, block, sender); err != nil {
				return fmt.Errorf("transaction %s: apply: %w", t.ID, err)
			}
			t.BlockID = block.ID
			t.Height = block.Height
		}
		r, err := c.accountant.Tick(ctx, s, block)
		if err != nil {
			return err
		}
		result = r
		if err := c.store.SaveBlock(ctx, block, result.Round); err != nil {
			return err
		}
		saved = true
		return nil
	})
	if err != nil && saved {
		if derr := c.store.DeleteBlock(ctx, block.ID, roundNumber(result.Round)); derr != nil {
			c.logger.Error("failed to remove block after ledger commit failure", slog.String("id", block.ID), slog.Any("error", derr))
		}
	}
	if err != nil {
		for _, t := range block.Transactions {
			t.BlockID = ""
			t.Height = 0
		}
		return nil, err
	}
	return result, nil
}

func (c *Chain) verify(s state.Store, t *types.Transaction, height uint64) (*types.Account, error) {
	sender, err := s.AccountByPublicKey(t.SenderPublicKey)
	if err != nil {
		return nil, err
	}
	if sender == nil {
		if len(t.SenderPublicKey) == 0 {
			return nil, tx.ErrMissingSender
		}
		sender = types.NewAccount(types.AddressFromPublicKey(t.SenderPublicKey))
		sender.PublicKey = append([]byte(nil), t.SenderPublicKey...)
	}
	if err := c.registry.Process(s, t, sender); err != nil {
		return nil, err
	}
	if err := c.registry.ObjectNormalize(t); err != nil {
		return nil, err
	}
	if err := c.registry.Verify(s, t, sender, height); err != nil {
		return nil, err
	}
	return sender, nil
}

func roundNumber(r *types.Round) uint64 {
	if r == nil {
		return 0
	}
	return r.Number
}

// UndoBlock reverts the tip: the round tick first, then the transactions in
// reverse order. The reverted transactions return to the pool's waiting
// queues. The genesis block cannot be undone.
func (c *Chain) UndoBlock(ctx context.Context) (undoneBlock *types.Block, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, span := c.tracer.Start(ctx, "chain.undo_block", trace.WithAttributes(attribute.Int64("height", int64(c.height.Load()))))
	defer span.End()
	defer func() {
		c.metrics.Block("undo", c.height.Load(), err)
		if err != nil {
			span.RecordError(err)
		}
	}()

	last, err := c.store.LastBlock(ctx)
	if errors.Is(err, sqlstore.ErrNotFound) {
		return nil, ErrEmptyChain
	}
	if err != nil {
		return nil, fmt.Errorf("chain: load tip: %w", err)
	}
	if last.Height != c.height.Load() {
		return nil, fmt.Errorf("%w: stored tip %d, chain height %d", ErrHeightMismatch, last.Height, c.height.Load())
	}
	if last.Height <= 1 {
		return nil, ErrGenesis
	}

	err = c.pool.WithLock(func(pool *mempool.Locked) error {
		undone, err := pool.UndoUnconfirmedList(ctx)
		if err != nil {
			pool.ApplyUnconfirmedIDs(ctx, undone)
			return fmt.Errorf("chain: undo unconfirmed: %w", err)
		}
		if err := c.revert(ctx, last); err != nil {
			pool.ApplyUnconfirmedIDs(ctx, undone)
			return err
		}

		tip, err := c.store.LastBlock(ctx)
		if err != nil {
			return fmt.Errorf("chain: load new tip: %w", err)
		}
		c.last = header(tip)
		c.height.Store(tip.Height)

		for _, t := range last.Transactions {
			t.BlockID = ""
			t.Height = 0
			if err := pool.QueueTransaction(t, false); err != nil && !errors.Is(err, mempool.ErrAlreadyInPool) {
				c.logger.Warn("failed to requeue transaction", slog.String("id", t.ID), slog.Any("error", err))
			}
		}
		pool.ApplyUnconfirmedIDs(ctx, undone)
		pool.FillPool(ctx)
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.emitter.Emit(events.BlockUndone{ID: last.ID, Height: last.Height})
	c.logger.Info("block undone", slog.String("id", last.ID), slog.Uint64("height", last.Height))
	return last, nil
}

// revert undoes last inside one ledger batch: the round first, then the
// transactions in reverse order, then the persisted rows.
func (c *Chain) revert(ctx context.Context, last *types.Block) error {
	var (
		result  *round.Result
		deleted bool
	)
	err := c.ledger.Atomic(func(s state.Store) error {
		r, err := c.accountant.Backward(ctx, s, last)
		if err != nil {
			return err
		}
		result = r
		for i := len(last.Transactions) - 1; i >= 0; i-- {
			t := last.Transactions[i]
			sender, err := s.AccountByPublicKey(t.SenderPublicKey)
			if err != nil {
				return err
			}
			if sender == nil {
				return fmt.Errorf("transaction %s: %w", t.ID, tx.ErrMissingSender)
			}
			if err := c.registry.UndoConfirmed(s, t, last, sender); err != nil {
				return fmt.Errorf("transaction %s: undo: %w", t.ID, err)
			}
			sender, err = s.AccountByPublicKey(t.SenderPublicKey)
			if err != nil {
				return err
			}
			if err := c.registry.UndoUnconfirmed(s, t, sender); err != nil {
				return fmt.Errorf("transaction %s: undo unconfirmed: %w", t.ID, err)
			}
		}
		if err := c.store.DeleteBlock(ctx, last.ID, roundNumber(result.Round)); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil && deleted {
		if serr := c.store.SaveBlock(ctx, last, result.Round); serr != nil {
			c.logger.Error("failed to restore block after ledger commit failure", slog.String("id", last.ID), slog.Any("error", serr))
		}
	}
	if err != nil {
		return err
	}
	result.Commit()
	return nil
}
