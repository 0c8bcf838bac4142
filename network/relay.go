package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBatchSize = 25
	defaultSeenTTL   = 10 * time.Minute
	defaultMaxSeen   = 10_000
)

// ErrNoSender is returned by NewRelay without a sender.
var ErrNoSender = errors.New("network relay: sender is required")

// Sender delivers transaction ids to peers.
type Sender interface {
	SendTransactions(ctx context.Context, ids []string) error
}

// Config controls relay throttling.
type Config struct {
	// BatchesPerSecond is the token bucket refill rate. Zero disables throttling.
	BatchesPerSecond float64
	Burst            int
	BatchSize        int
	// SeenTTL bounds how long a relayed id suppresses repeats.
	SeenTTL time.Duration
	MaxSeen int
}

// DefaultConfig matches a 5 second broadcast interval.
func DefaultConfig() Config {
	return Config{
		BatchesPerSecond: 0.2,
		Burst:            4,
		BatchSize:        defaultBatchSize,
		SeenTTL:          defaultSeenTTL,
		MaxSeen:          defaultMaxSeen,
	}
}

// Option customises a Relay.
type Option func(*Relay)

// WithLogger sets the relay logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the clock used for seen-id expiry.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

// Relay deduplicates and throttles outbound transaction announcements.
type Relay struct {
	sender  Sender
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *relayMetrics
	now     func() time.Time

	mu    sync.Mutex
	seen  map[string]time.Time
	order []string
}

// NewRelay constructs a relay in front of sender.
func NewRelay(sender Sender, cfg Config, opts ...Option) (*Relay, error) {
	if sender == nil {
		return nil, ErrNoSender
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.SeenTTL <= 0 {
		cfg.SeenTTL = defaultSeenTTL
	}
	if cfg.MaxSeen <= 0 {
		cfg.MaxSeen = defaultMaxSeen
	}
	limit := rate.Inf
	if cfg.BatchesPerSecond > 0 {
		limit = rate.Limit(cfg.BatchesPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	r := &Relay{
		sender:  sender,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		logger:  slog.Default(),
		metrics: defaultRelayMetrics(),
		now:     time.Now,
		seen:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(slog.String("component", "relay"))
	return r, nil
}

// Broadcast sends the ids not relayed within the seen window, in batches of
// at most BatchSize, waiting on the token bucket before each batch. Ids of
// batches that fail or are cancelled are forgotten so a later call retries
// them.
func (r *Relay) Broadcast(ctx context.Context, ids []string) error {
	fresh := r.claim(ids)
	for start := 0; start < len(fresh); start += r.cfg.BatchSize {
		end := start + r.cfg.BatchSize
		if end > len(fresh) {
			end = len(fresh)
		}
		batch := fresh[start:end]
		if err := r.limiter.Wait(ctx); err != nil {
			r.forget(fresh[start:])
			return fmt.Errorf("network relay: throttle: %w", err)
		}
		if err := r.sender.SendTransactions(ctx, batch); err != nil {
			r.metrics.failed.Inc()
			r.forget(fresh[start:])
			r.logger.Warn("broadcast failed", slog.Int("ids", len(batch)), slog.Any("error", err))
			return fmt.Errorf("network relay: send: %w", err)
		}
		r.metrics.sent.Add(float64(len(batch)))
		r.metrics.batches.Inc()
	}
	return nil
}

// Seen reports whether id was relayed within the seen window.
func (r *Relay) Seen(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.seen[id]
	return ok && r.now().Sub(at) < r.cfg.SeenTTL
}

func (r *Relay) claim(ids []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.expire(now)
	fresh := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := r.seen[id]; ok {
			r.metrics.duplicates.Inc()
			continue
		}
		r.seen[id] = now
		r.order = append(r.order, id)
		fresh = append(fresh, id)
	}
	for len(r.order) > r.cfg.MaxSeen {
		delete(r.seen, r.order[0])
		r.order = r.order[1:]
	}
	return fresh
}

func (r *Relay) expire(now time.Time) {
	drop := 0
	for _, id := range r.order {
		at, ok := r.seen[id]
		if ok && now.Sub(at) < r.cfg.SeenTTL {
			break
		}
		delete(r.seen, id)
		drop++
	}
	r.order = r.order[drop:]
}

func (r *Relay) forget(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		delete(r.seen, id)
		drop[id] = struct{}{}
	}
	kept := r.order[:0]
	for _, id := range r.order {
		if _, ok := drop[id]; !ok {
			kept = append(kept, id)
		}
	}
	r.order = kept
}
