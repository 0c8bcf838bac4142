package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/LiskArchive/lisk-sdk-sub000/config"
	"github.com/LiskArchive/lisk-sdk-sub000/core"
	"github.com/LiskArchive/lisk-sdk-sub000/core/events"
	"github.com/LiskArchive/lisk-sdk-sub000/core/genesis"
	"github.com/LiskArchive/lisk-sdk-sub000/core/round"
	"github.com/LiskArchive/lisk-sdk-sub000/core/state"
	"github.com/LiskArchive/lisk-sdk-sub000/core/tx"
	"github.com/LiskArchive/lisk-sdk-sub000/mempool"
	"github.com/LiskArchive/lisk-sdk-sub000/network"
	"github.com/LiskArchive/lisk-sdk-sub000/observability/logging"
	telemetry "github.com/LiskArchive/lisk-sdk-sub000/observability/otel"
	"github.com/LiskArchive/lisk-sdk-sub000/storage"
	"github.com/LiskArchive/lisk-sdk-sub000/storage/sqlstore"
)

const serviceName = "ledgerd"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	env := strings.TrimSpace(os.Getenv("LEDGER_ENV"))
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.Setup(serviceName, env, cfg.LoggingOptions()).With(slog.String("instance", uuid.NewString()))

	if err := run(cfg, logger); err != nil {
		logger.Error("ledgerd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// logSender stands in for the peer transport: announcements are logged.
type logSender struct {
	logger *slog.Logger
}

func (s logSender) SendTransactions(_ context.Context, ids []string) error {
	s.logger.Debug("announce transactions", slog.Int("count", len(ids)), slog.Any("ids", ids))
	return nil
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.TelemetryConfig(serviceName))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	}()

	n, err := openNode(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer n.Close()
	pool, chain, ledger := n.pool, n.chain, n.ledger

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           otelhttp.NewHandler(metricsRouter(), serviceName),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", slog.String("address", cfg.MetricsAddress))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	poolErr := make(chan error, 1)
	go func() { poolErr <- pool.Run(ctx) }()

	logger.Info("ledgerd started", slog.Uint64("height", chain.Height()), slog.Int("accounts", ledger.Len()))
	var runErr error
	poolStopped := false
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		runErr = fmt.Errorf("metrics server: %w", err)
		stop()
	case err := <-poolErr:
		poolStopped = true
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = fmt.Errorf("pool loop: %w", err)
		}
		stop()
	}
	if !poolStopped {
		<-poolErr
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", slog.Any("error", err))
	}
	return runErr
}

// node owns the stores and the components wired on top of them.
type node struct {
	ledger  *state.Ledger
	pool    *mempool.Pool
	chain   *core.Chain
	store   *sqlstore.Store
	closers []func() error
}

// Close releases the stores in reverse opening order.
func (n *node) Close() error {
	var errs []error
	for i := len(n.closers) - 1; i >= 0; i-- {
		errs = append(errs, n.closers[i]())
	}
	n.closers = nil
	return errors.Join(errs...)
}

func openNode(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *node, err error) {
	n := &node{}
	defer func() {
		if err != nil {
			_ = n.Close()
		}
	}()
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare data directory: %w", err)
	}
	params, err := cfg.Params()
	if err != nil {
		return nil, err
	}

	db, err := storage.NewLevelDB(cfg.Path(cfg.Storage.AccountsPath))
	if err != nil {
		return nil, fmt.Errorf("open account store: %w", err)
	}
	n.closers = append(n.closers, db.Close)
	snapshots, err := storage.OpenBoltSnapshots(cfg.Path(cfg.Storage.SnapshotsPath))
	if err != nil {
		return nil, err
	}
	n.closers = append(n.closers, snapshots.Close)
	n.store, err = sqlstore.Open(cfg.Storage.SQLDriver, cfg.Path(cfg.Storage.SQLDSN), nil, logger)
	if err != nil {
		return nil, err
	}
	n.closers = append(n.closers, n.store.Close)

	n.ledger, err = state.NewLedger(db, state.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	registry, err := tx.NewRegistry(params, n.store, tx.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	n.store.BindCodec(registry)

	emitter := events.LogEmitter{Logger: logger}
	relay, err := network.NewRelay(logSender{logger: logger}, cfg.RelayConfig(), network.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	n.pool, err = mempool.New(cfg.PoolConfig(), registry, n.ledger,
		mempool.WithLogger(logger),
		mempool.WithBroadcaster(relay),
		mempool.WithHeight(func() uint64 { return n.chain.Height() }),
	)
	if err != nil {
		return nil, err
	}
	accountant, err := round.New(cfg.Chain.ActiveDelegates, n.store,
		round.WithLogger(logger),
		round.WithSnapshots(snapshots),
		round.WithEmitter(emitter),
	)
	if err != nil {
		return nil, err
	}
	n.chain, err = core.NewChain(ctx, core.Config{Schedule: cfg.Schedule(), MaxTxsPerBlock: cfg.Chain.MaxTxsPerBlock},
		registry, n.ledger, n.pool, accountant, n.store,
		core.WithLogger(logger),
		core.WithEmitter(emitter),
	)
	if err != nil {
		return nil, err
	}
	if err := loadGenesis(ctx, cfg, n.ledger, n.chain, logger); err != nil {
		return nil, err
	}
	return n, nil
}

func metricsRouter() chi.Router {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

// loadGenesis populates an empty ledger from the genesis file and commits
// the genesis block. A ledger that already holds accounts is left alone.
func loadGenesis(ctx context.Context, cfg *config.Config, ledger *state.Ledger, chain *core.Chain, logger *slog.Logger) error {
	if chain.Height() > 0 {
		return nil
	}
	if ledger.Len() > 0 {
		return fmt.Errorf("ledger holds %d accounts but no block is stored", ledger.Len())
	}
	path := strings.TrimSpace(cfg.GenesisFile)
	if path == "" {
		logger.Warn("no genesis file configured; starting with an empty ledger")
		return nil
	}
	spec, err := genesis.Load(path)
	if err != nil {
		return err
	}
	block, err := genesis.Build(spec, ledger, int64(cfg.Schedule().CalcReward(1)))
	if err != nil {
		return err
	}
	if err := chain.ApplyBlock(ctx, block); err != nil {
		return fmt.Errorf("apply genesis block: %w", err)
	}
	logger.Info("genesis loaded", slog.String("block", block.ID), slog.Int("accounts", ledger.Len()))
	return nil
}
