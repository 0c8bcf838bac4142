package mempool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/LiskArchive/lisk-sdk-sub000/core/state"
	"github.com/LiskArchive/lisk-sdk-sub000/core/tx"
	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
	"github.com/LiskArchive/lisk-sdk-sub000/observability"
)

var (
	// ErrAlreadyInPool reports a transaction the pool already holds.
	ErrAlreadyInPool = errors.New("transaction is already processed")
	// ErrInFlight reports an apply or undo racing another one for the same id.
	ErrInFlight = errors.New("transaction is already being applied or undone")
	// ErrNotInPool reports an id the pool does not hold.
	ErrNotInPool = errors.New("transaction not in pool")
)

const (
	queueBundled        = "bundled"
	queueQueued         = "queued"
	queueMultisignature = "multisignature"
	queueUnconfirmed    = "unconfirmed"
)

// Broadcaster relays transaction ids to peers. Delivery is best effort.
type Broadcaster interface {
	Broadcast(ctx context.Context, ids []string) error
}

type metricsSink interface {
	SetDepth(queue string, n int)
	Admitted(txType string)
	Rejected(stage string)
	Evicted(queue string)
	Expired(queue string)
	Unconfirmed(op string, err error)
	Batch(op string, n int)
}

// Config tunes queue ceilings and promotion cadence.
type Config struct {
	MaxTxsPerQueue     int
	MaxTxsPerBlock     int
	MaxSharedTxs       int
	ReleaseLimit       int
	BundleInterval     time.Duration
	ExpiryInterval     time.Duration
	UnconfirmedTimeout time.Duration
}

// DefaultConfig returns the mainnet pool settings.
func DefaultConfig() Config {
	return Config{
		MaxTxsPerQueue:     1000,
		MaxTxsPerBlock:     25,
		MaxSharedTxs:       100,
		ReleaseLimit:       25,
		BundleInterval:     5 * time.Second,
		ExpiryInterval:     30 * time.Second,
		UnconfirmedTimeout: 10800 * time.Second,
	}
}

// Validate checks the pool settings.
func (c Config) Validate() error {
	if c.MaxTxsPerQueue <= 0 || c.MaxTxsPerBlock <= 0 || c.ReleaseLimit <= 0 || c.MaxSharedTxs <= 0 {
		return fmt.Errorf("pool limits must be positive")
	}
	if c.BundleInterval <= 0 || c.ExpiryInterval <= 0 || c.UnconfirmedTimeout <= 0 {
		return fmt.Errorf("pool intervals must be positive")
	}
	return nil
}

// Option customises a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithBroadcaster sets the relay used after unconfirmed application.
func WithBroadcaster(b Broadcaster) Option {
	return func(p *Pool) { p.broadcaster = b }
}

// WithHeight sets the source of the current chain height.
func WithHeight(height func() uint64) Option {
	return func(p *Pool) {
		if height != nil {
			p.height = height
		}
	}
}

// WithClock overrides the wall clock used for admission and expiry.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		if now != nil {
			p.now = now
		}
	}
}

// Pool stages transactions between receipt and block inclusion.
type Pool struct {
	cfg         Config
	registry    *tx.Registry
	ledger      state.Store
	broadcaster Broadcaster
	height      func() uint64
	now         func() time.Time
	logger      *slog.Logger
	metrics     metricsSink
	tracer      trace.Tracer

	mu          sync.Mutex
	bundled     *queue
	queued      *queue
	multisig    *queue
	unconfirmed *queue
	inFlight    map[string]struct{}
	relay       map[string]struct{}

	// processing serialises every path that mutates unconfirmed state.
	processing sync.Mutex
}

// New constructs a pool applying transactions through registry against ledger.
func New(cfg Config, registry *tx.Registry, ledger state.Store, opts ...Option) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if registry == nil || ledger == nil {
		return nil, fmt.Errorf("pool: registry and ledger are required")
	}
	p := &Pool{
		cfg:         cfg,
		registry:    registry,
		ledger:      ledger,
		height:      func() uint64 { return 0 },
		now:         time.Now,
		logger:      slog.Default(),
		metrics:     observability.Pool(),
		tracer:      otel.Tracer("ledger/mempool"),
		bundled:     newQueue(queueBundled),
		queued:      newQueue(queueQueued),
		multisig:    newQueue(queueMultisignature),
		unconfirmed: newQueue(queueUnconfirmed),
		inFlight:    make(map[string]struct{}),
		relay:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(slog.String("component", "mempool"))
	return p, nil
}

func (p *Pool) queues() []*queue {
	return []*queue{p.bundled, p.queued, p.multisig, p.unconfirmed}
}

func (p *Pool) observeDepth() {
	for _, q := range p.queues() {
		p.metrics.SetDepth(q.name, q.len())
	}
}

// TransactionInPool reports whether any queue holds the id.
func (p *Pool) TransactionInPool(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inPoolLocked(id)
}

func (p *Pool) inPoolLocked(id string) bool {
	for _, q := range p.queues() {
		if q.has(id) {
			return true
		}
	}
	return false
}

func (p *Pool) getFrom(q *queue, id string) *types.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return q.get(id)
}

// GetUnconfirmedTransaction returns an applied transaction or nil.
func (p *Pool) GetUnconfirmedTransaction(id string) *types.Transaction {
	return p.getFrom(p.unconfirmed, id)
}

// GetBundledTransaction returns a bundled transaction or nil.
func (p *Pool) GetBundledTransaction(id string) *types.Transaction {
	return p.getFrom(p.bundled, id)
}

// GetQueuedTransaction returns a queued transaction or nil.
func (p *Pool) GetQueuedTransaction(id string) *types.Transaction {
	return p.getFrom(p.queued, id)
}

// GetMultisignatureTransaction returns a transaction awaiting signatures or nil.
func (p *Pool) GetMultisignatureTransaction(id string) *types.Transaction {
	return p.getFrom(p.multisig, id)
}

func (p *Pool) listFrom(q *queue, reverse bool, limit int, keep func(*types.Transaction) bool) []*types.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return q.list(reverse, limit, keep)
}

// GetUnconfirmedTransactionList lists applied transactions.
func (p *Pool) GetUnconfirmedTransactionList(reverse bool, limit int) []*types.Transaction {
	return p.listFrom(p.unconfirmed, reverse, limit, nil)
}

// GetBundledTransactionList lists bundled transactions.
func (p *Pool) GetBundledTransactionList(reverse bool, limit int) []*types.Transaction {
	return p.listFrom(p.bundled, reverse, limit, nil)
}

// GetQueuedTransactionList lists verified transactions awaiting application.
func (p *Pool) GetQueuedTransactionList(reverse bool, limit int) []*types.Transaction {
	return p.listFrom(p.queued, reverse, limit, nil)
}

// GetMultisignatureTransactionList lists transactions awaiting signatures.
// With ready set only those that gathered enough signatures are returned.
func (p *Pool) GetMultisignatureTransactionList(reverse, ready bool, limit int) []*types.Transaction {
	var keep func(*types.Transaction) bool
	if ready {
		keep = p.isReady
	}
	return p.listFrom(p.multisig, reverse, limit, keep)
}

func (p *Pool) isReady(t *types.Transaction) bool {
	sender, err := p.ledger.AccountByPublicKey(t.SenderPublicKey)
	if err != nil {
		return false
	}
	return p.registry.Ready(t, sender)
}

// GetMergedTransactionList returns the transactions shared with peers:
// unconfirmed first, then multisignature, then queued.
func (p *Pool) GetMergedTransactionList(reverse bool, limit int) []*types.Transaction {
	minLimit := p.cfg.MaxTxsPerBlock + 2
	if limit <= minLimit || limit > p.cfg.MaxSharedTxs {
		limit = minLimit
	}
	out := p.GetUnconfirmedTransactionList(reverse, p.cfg.MaxTxsPerBlock)
	limit -= len(out)
	multi := p.GetMultisignatureTransactionList(reverse, false, p.cfg.MaxTxsPerBlock)
	out = append(out, multi...)
	limit -= len(multi)
	if limit > 0 {
		out = append(out, p.GetQueuedTransactionList(reverse, limit)...)
	}
	return out
}

// CountUnconfirmed returns the size of the unconfirmed queue.
func (p *Pool) CountUnconfirmed() int { return p.count(p.unconfirmed) }

// CountBundled returns the size of the bundled queue.
func (p *Pool) CountBundled() int { return p.count(p.bundled) }

// CountQueued returns the size of the queued queue.
func (p *Pool) CountQueued() int { return p.count(p.queued) }

// CountMultisignature returns the size of the multisignature queue.
func (p *Pool) CountMultisignature() int { return p.count(p.multisig) }

func (p *Pool) count(q *queue) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return q.len()
}

// RemoveUnconfirmedTransaction drops the id from the unconfirmed, queued and
// multisignature queues. State already applied is not undone.
func (p *Pool) RemoveUnconfirmedTransaction(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(id)
}

func (p *Pool) removeLocked(id string) {
	p.unconfirmed.remove(id)
	p.queued.remove(id)
	p.multisig.remove(id)
	delete(p.relay, id)
	p.observeDepth()
}

// dropFailed evicts a transaction whose unconfirmed application failed.
// Entries already applied, or being applied elsewhere, stay where they are.
func (p *Pool) dropFailed(id string, err error) {
	if errors.Is(err, ErrInFlight) || errors.Is(err, ErrAlreadyInPool) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unconfirmed.has(id) {
		return
	}
	p.queued.remove(id)
	p.multisig.remove(id)
	delete(p.relay, id)
	p.observeDepth()
}

// addUnconfirmed moves an applied transaction into the unconfirmed queue.
func (p *Pool) addUnconfirmed(t *types.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t.Type == types.TxTypeMultisignature || t.HasCosignatures() {
		p.multisig.remove(t.ID)
	} else {
		p.queued.remove(t.ID)
	}
	p.unconfirmed.add(t)
	p.observeDepth()
}

func (p *Pool) beginFlight(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inFlight[id]; busy {
		return false
	}
	p.inFlight[id] = struct{}{}
	return true
}

func (p *Pool) endFlight(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, id)
}

// ItemError is the rejection of one transaction within a batch.
type ItemError struct {
	Index int
	ID    string
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("transaction %d (%s): %v", e.Index, e.ID, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// ReceiveTransactions admits each transaction independently. Accepted
// transactions are returned in input order; every rejection is reported as
// an *ItemError without aborting the batch.
func (p *Pool) ReceiveTransactions(ctx context.Context, txs []*types.Transaction, broadcast bool) ([]*types.Transaction, []error) {
	if len(txs) == 0 {
		return nil, nil
	}
	ctx, span := p.tracer.Start(ctx, "mempool.receive", trace.WithAttributes(attribute.Int("txs", len(txs))))
	defer span.End()

	var (
		accepted []*types.Transaction
		errs     []error
	)
	for i, t := range txs {
		if t == nil {
			errs = append(errs, &ItemError{Index: i, Err: fmt.Errorf("%w: nil transaction", tx.ErrSchema)})
			continue
		}
		if err := p.ProcessUnconfirmedTransaction(ctx, t, broadcast); err != nil {
			errs = append(errs, &ItemError{Index: i, ID: t.ID, Err: err})
			continue
		}
		accepted = append(accepted, t)
	}
	span.SetAttributes(attribute.Int("accepted", len(accepted)), attribute.Int("rejected", len(errs)))
	return accepted, errs
}

// ProcessUnconfirmedTransaction verifies a transaction and queues it.
// Bundled transactions are queued unverified and checked on promotion.
func (p *Pool) ProcessUnconfirmedTransaction(ctx context.Context, t *types.Transaction, broadcast bool) error {
	if t.ID != "" && p.TransactionInPool(t.ID) {
		p.metrics.Rejected("duplicate")
		return fmt.Errorf("%w: %s", ErrAlreadyInPool, t.ID)
	}
	if t.Bundled {
		if t.ID == "" {
			id, err := p.registry.GetID(t)
			if err != nil {
				p.metrics.Rejected("id")
				return err
			}
			t.ID = id
		}
		return p.QueueTransaction(t, broadcast)
	}
	if _, err := p.processVerify(ctx, t); err != nil {
		return err
	}
	return p.QueueTransaction(t, broadcast)
}

// processVerify runs process, schema normalisation and verification.
func (p *Pool) processVerify(_ context.Context, t *types.Transaction) (*types.Account, error) {
	if len(t.SenderPublicKey) == 0 {
		p.metrics.Rejected("schema")
		return nil, fmt.Errorf("%w: missing sender public key", tx.ErrSchema)
	}
	sender, err := p.ledger.AccountByPublicKey(t.SenderPublicKey)
	if err != nil {
		return nil, err
	}
	if sender == nil {
		sender = types.NewAccount(types.AddressFromPublicKey(t.SenderPublicKey))
		sender.PublicKey = append([]byte(nil), t.SenderPublicKey...)
	}
	if err := p.registry.Process(p.ledger, t, sender); err != nil {
		p.metrics.Rejected("process")
		return nil, err
	}
	if err := p.registry.ObjectNormalize(t); err != nil {
		p.metrics.Rejected("schema")
		return nil, err
	}
	if err := p.registry.Verify(p.ledger, t, sender, p.height()+1); err != nil {
		p.metrics.Rejected("verify")
		return nil, err
	}
	return sender, nil
}

// QueueTransaction places a transaction in the bundled, multisignature or
// queued queue. A full queue evicts its oldest entry.
func (p *Pool) QueueTransaction(t *types.Transaction, broadcast bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inPoolLocked(t.ID) {
		return fmt.Errorf("%w: %s", ErrAlreadyInPool, t.ID)
	}
	t.ReceivedAt = p.now()
	q := p.queueFor(t)
	if q.len() >= p.cfg.MaxTxsPerQueue {
		if victim := q.oldest(); victim != nil {
			q.remove(victim.ID)
			delete(p.relay, victim.ID)
			p.metrics.Evicted(q.name)
			p.logger.Warn("evicted transaction", slog.String("queue", q.name), slog.String("id", victim.ID))
		}
	}
	q.add(t)
	if broadcast {
		p.relay[t.ID] = struct{}{}
	}
	p.metrics.Admitted(t.Type.String())
	p.observeDepth()
	return nil
}

func (p *Pool) queueFor(t *types.Transaction) *queue {
	switch {
	case t.Bundled:
		return p.bundled
	case t.Type == types.TxTypeMultisignature || t.HasCosignatures():
		return p.multisig
	default:
		return p.queued
	}
}

// ApplyUnconfirmedList applies transactions one after another. A failure
// is logged and evicts that transaction only.
func (p *Pool) ApplyUnconfirmedList(ctx context.Context, txs []*types.Transaction) {
	p.processing.Lock()
	defer p.processing.Unlock()
	p.applyListLocked(ctx, txs)
}

// ApplyUnconfirmedIDs applies the pooled transactions with the given ids.
func (p *Pool) ApplyUnconfirmedIDs(ctx context.Context, ids []string) {
	p.processing.Lock()
	defer p.processing.Unlock()
	p.applyIDsLocked(ctx, ids)
}

func (p *Pool) applyIDsLocked(ctx context.Context, ids []string) {
	txs := make([]*types.Transaction, 0, len(ids))
	p.mu.Lock()
	for _, id := range ids {
		for _, q := range []*queue{p.queued, p.multisig} {
			if t := q.get(id); t != nil {
				txs = append(txs, t)
				break
			}
		}
	}
	p.mu.Unlock()
	p.applyListLocked(ctx, txs)
}

func (p *Pool) applyListLocked(ctx context.Context, txs []*types.Transaction) {
	if len(txs) == 0 {
		return
	}
	ctx, span := p.tracer.Start(ctx, "mempool.apply_unconfirmed", trace.WithAttributes(attribute.Int("txs", len(txs))))
	defer span.End()
	p.metrics.Batch("apply", len(txs))

	var relay []string
	for _, t := range txs {
		if t == nil {
			continue
		}
		if err := p.applyOne(ctx, t); err != nil {
			p.logger.Error("failed to apply unconfirmed transaction",
				slog.String("id", t.ID), slog.String("type", t.Type.String()), slog.Any("error", err))
			p.dropFailed(t.ID, err)
			continue
		}
		p.mu.Lock()
		if _, ok := p.relay[t.ID]; ok {
			relay = append(relay, t.ID)
			delete(p.relay, t.ID)
		}
		p.mu.Unlock()
	}
	if len(relay) > 0 && p.broadcaster != nil {
		if err := p.broadcaster.Broadcast(ctx, relay); err != nil {
			p.logger.Warn("broadcast failed", slog.Int("txs", len(relay)), slog.Any("error", err))
		}
	}
}

func (p *Pool) applyOne(ctx context.Context, t *types.Transaction) (err error) {
	if !p.beginFlight(t.ID) {
		return fmt.Errorf("%w: %s", ErrInFlight, t.ID)
	}
	defer p.endFlight(t.ID)
	defer func() { p.metrics.Unconfirmed("apply", err) }()

	if p.GetUnconfirmedTransaction(t.ID) != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyInPool, t.ID)
	}
	sender, err := p.processVerify(ctx, t)
	if err != nil {
		return err
	}
	if err := p.registry.ApplyUnconfirmed(p.ledger, t, sender); err != nil {
		return err
	}
	p.addUnconfirmed(t)
	return nil
}

// UndoUnconfirmedList reverts every unconfirmed transaction, newest first,
// and returns them to their waiting queue. The ids are returned in their
// original application order.
func (p *Pool) UndoUnconfirmedList(ctx context.Context) ([]string, error) {
	p.processing.Lock()
	defer p.processing.Unlock()
	return p.undoListLocked(ctx)
}

func (p *Pool) undoListLocked(ctx context.Context) ([]string, error) {
	txs := p.GetUnconfirmedTransactionList(true, 0)
	_, span := p.tracer.Start(ctx, "mempool.undo_unconfirmed", trace.WithAttributes(attribute.Int("txs", len(txs))))
	defer span.End()
	p.metrics.Batch("undo", len(txs))

	ids := make([]string, len(txs))
	var firstErr error
	for i, t := range txs {
		ids[len(txs)-1-i] = t.ID
		err := p.undoOne(t)
		p.metrics.Unconfirmed("undo", err)
		if err != nil {
			p.logger.Error("failed to undo unconfirmed transaction", slog.String("id", t.ID), slog.Any("error", err))
			p.RemoveUnconfirmedTransaction(t.ID)
			if firstErr == nil && !tx.IsValidationError(err) {
				firstErr = err
			}
		}
	}
	p.mu.Lock()
	for i := len(txs) - 1; i >= 0; i-- {
		t := txs[i]
		if p.unconfirmed.remove(t.ID) == nil {
			continue
		}
		p.queueFor(t).add(t)
	}
	p.observeDepth()
	p.mu.Unlock()
	return ids, firstErr
}

func (p *Pool) undoOne(t *types.Transaction) error {
	if !p.beginFlight(t.ID) {
		return fmt.Errorf("%w: %s", ErrInFlight, t.ID)
	}
	defer p.endFlight(t.ID)
	sender, err := p.ledger.AccountByPublicKey(t.SenderPublicKey)
	if err != nil {
		return err
	}
	if sender == nil {
		return fmt.Errorf("%w: %s", tx.ErrMissingSender, types.AddressFromPublicKey(t.SenderPublicKey))
	}
	return p.registry.UndoUnconfirmed(p.ledger, t, sender)
}

// ProcessBundled verifies up to the release limit of bundled transactions
// and queues the valid ones for broadcast.
func (p *Pool) ProcessBundled(ctx context.Context) {
	bundled := p.GetBundledTransactionList(false, p.cfg.ReleaseLimit)
	if len(bundled) == 0 {
		return
	}
	ctx, span := p.tracer.Start(ctx, "mempool.process_bundled", trace.WithAttributes(attribute.Int("txs", len(bundled))))
	defer span.End()
	for _, t := range bundled {
		p.mu.Lock()
		p.bundled.remove(t.ID)
		delete(p.relay, t.ID)
		p.mu.Unlock()
		t.Bundled = false

		if _, err := p.processVerify(ctx, t); err != nil {
			p.logger.Debug("dropped bundled transaction", slog.String("id", t.ID), slog.Any("error", err))
			continue
		}
		if err := p.QueueTransaction(t, true); err != nil {
			p.logger.Debug("failed to queue bundled transaction", slog.String("id", t.ID), slog.Any("error", err))
		}
	}
	p.mu.Lock()
	p.observeDepth()
	p.mu.Unlock()
}

// FillPool tops the unconfirmed queue up to one block worth of
// transactions: ready multisignature transactions first, then queued ones.
func (p *Pool) FillPool(ctx context.Context) {
	p.processing.Lock()
	defer p.processing.Unlock()
	p.fillLocked(ctx)
}

func (p *Pool) fillLocked(ctx context.Context) {
	spare := p.cfg.MaxTxsPerBlock - p.CountUnconfirmed()
	if spare <= 0 {
		return
	}
	limit := spare
	if limit > p.cfg.ReleaseLimit {
		limit = p.cfg.ReleaseLimit
	}
	txs := p.GetMultisignatureTransactionList(false, true, limit)
	if rest := limit - len(txs); rest > 0 {
		txs = append(txs, p.GetQueuedTransactionList(false, rest)...)
	}
	p.applyListLocked(ctx, txs)
}

// Locked is the pool as seen by WithLock callers. Its methods assume the
// processing lock is held, so nothing else touches unconfirmed state
// between them.
type Locked struct {
	p *Pool
}

// WithLock runs fn while holding the lock that serialises unconfirmed state
// changes, promotion and expiry included.
func (p *Pool) WithLock(fn func(*Locked) error) error {
	p.processing.Lock()
	defer p.processing.Unlock()
	return fn(&Locked{p: p})
}

// UndoUnconfirmedList is Pool.UndoUnconfirmedList under the held lock.
func (l *Locked) UndoUnconfirmedList(ctx context.Context) ([]string, error) {
	return l.p.undoListLocked(ctx)
}

// ApplyUnconfirmedIDs is Pool.ApplyUnconfirmedIDs under the held lock.
func (l *Locked) ApplyUnconfirmedIDs(ctx context.Context, ids []string) {
	l.p.applyIDsLocked(ctx, ids)
}

// FillPool is Pool.FillPool under the held lock.
func (l *Locked) FillPool(ctx context.Context) {
	l.p.fillLocked(ctx)
}

// RemoveUnconfirmedTransaction drops the id without undoing its state.
func (l *Locked) RemoveUnconfirmedTransaction(id string) {
	l.p.RemoveUnconfirmedTransaction(id)
}

// QueueTransaction places a transaction in its waiting queue.
func (l *Locked) QueueTransaction(t *types.Transaction, broadcast bool) error {
	return l.p.QueueTransaction(t, broadcast)
}

// timeout returns how long a transaction may wait in the pool.
func (p *Pool) timeout(t *types.Transaction) time.Duration {
	switch {
	case t.Type == types.TxTypeMultisignature && t.Asset.Multisignature != nil:
		return time.Duration(t.Asset.Multisignature.Lifetime) * time.Hour
	case t.HasCosignatures():
		return 8 * p.cfg.UnconfirmedTimeout
	default:
		return p.cfg.UnconfirmedTimeout
	}
}

// ExpireTransactions drops transactions that outstayed their timeout.
// Expired unconfirmed transactions are undone first. The expired ids are
// returned.
func (p *Pool) ExpireTransactions(ctx context.Context) []string {
	p.processing.Lock()
	defer p.processing.Unlock()

	_, span := p.tracer.Start(ctx, "mempool.expire")
	defer span.End()

	now := p.now()
	var expired []string
	for _, q := range p.queues() {
		for _, t := range p.listFrom(q, true, 0, nil) {
			if now.Sub(t.ReceivedAt) <= p.timeout(t) {
				continue
			}
			if q == p.unconfirmed {
				if err := p.undoOne(t); err != nil {
					p.logger.Error("failed to undo expired transaction", slog.String("id", t.ID), slog.Any("error", err))
				}
			}
			p.mu.Lock()
			q.remove(t.ID)
			delete(p.relay, t.ID)
			p.mu.Unlock()
			p.metrics.Expired(q.name)
			p.logger.Info("expired transaction", slog.String("id", t.ID), slog.String("queue", q.name))
			expired = append(expired, t.ID)
		}
	}
	if len(expired) > 0 {
		p.mu.Lock()
		p.observeDepth()
		p.mu.Unlock()
	}
	span.SetAttributes(attribute.Int("expired", len(expired)))
	return expired
}

// Run promotes bundled and queued transactions and expires stale ones until
// ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	bundle := time.NewTicker(p.cfg.BundleInterval)
	defer bundle.Stop()
	expiry := time.NewTicker(p.cfg.ExpiryInterval)
	defer expiry.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-bundle.C:
			p.ProcessBundled(ctx)
			p.FillPool(ctx)
		case <-expiry.C:
			p.ExpireTransactions(ctx)
		}
	}
}
