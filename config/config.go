package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/LiskArchive/lisk-sdk-sub000/core/rewards"
	"github.com/LiskArchive/lisk-sdk-sub000/core/tx"
	"github.com/LiskArchive/lisk-sdk-sub000/mempool"
	"github.com/LiskArchive/lisk-sdk-sub000/network"
	"github.com/LiskArchive/lisk-sdk-sub000/observability/logging"
	"github.com/LiskArchive/lisk-sdk-sub000/observability/otel"
)

// Config is the node configuration file.
type Config struct {
	DataDir        string `toml:"DataDir"`
	GenesisFile    string `toml:"GenesisFile"`
	MetricsAddress string `toml:"MetricsAddress"`
	Environment    string `toml:"Environment"`

	Chain     Chain     `toml:"chain"`
	Fees      tx.Fees   `toml:"fees"`
	Rewards   Rewards   `toml:"rewards"`
	Pool      Pool      `toml:"pool"`
	Relay     Relay     `toml:"relay"`
	Storage   Storage   `toml:"storage"`
	Logging   Logging   `toml:"logging"`
	Telemetry Telemetry `toml:"telemetry"`
}

// Chain holds the consensus constants.
type Chain struct {
	ActiveDelegates        int    `toml:"ActiveDelegates"`
	MaxVotesPerTransaction int    `toml:"MaxVotesPerTransaction"`
	MaxVotesPerAccount     int    `toml:"MaxVotesPerAccount"`
	MultisigMaxKeysgroup   int    `toml:"MultisigMaxKeysgroup"`
	MultisigMinLifetime    int64  `toml:"MultisigMinLifetime"`
	MultisigMaxLifetime    int64  `toml:"MultisigMaxLifetime"`
	TotalAmount            int64  `toml:"TotalAmount"`
	FreezeHeight           uint64 `toml:"FreezeHeight"`
	MaxTxsPerBlock         int    `toml:"MaxTxsPerBlock"`
	// EpochTime is RFC 3339.
	EpochTime        string `toml:"EpochTime"`
	BlockTimeSeconds int    `toml:"BlockTimeSeconds"`
}

// Rewards is the block reward schedule.
type Rewards struct {
	Offset     uint64   `toml:"Offset"`
	Distance   uint64   `toml:"Distance"`
	Milestones []uint64 `toml:"Milestones"`
}

// Pool holds the transaction pool limits.
type Pool struct {
	MaxTxsPerQueue            int `toml:"MaxTxsPerQueue"`
	MaxSharedTxs              int `toml:"MaxSharedTxs"`
	ReleaseLimit              int `toml:"ReleaseLimit"`
	BundleIntervalSeconds     int `toml:"BundleIntervalSeconds"`
	ExpiryIntervalSeconds     int `toml:"ExpiryIntervalSeconds"`
	UnconfirmedTimeoutSeconds int `toml:"UnconfirmedTimeoutSeconds"`
}

// Relay holds the broadcast throttle.
type Relay struct {
	BatchesPerSecond float64 `toml:"BatchesPerSecond"`
	Burst            int     `toml:"Burst"`
	BatchSize        int     `toml:"BatchSize"`
}

// Storage locates the account store, the round snapshots and the SQL
// database. Relative paths resolve against DataDir.
type Storage struct {
	AccountsPath  string `toml:"AccountsPath"`
	SnapshotsPath string `toml:"SnapshotsPath"`
	SQLDriver     string `toml:"SQLDriver"`
	SQLDSN        string `toml:"SQLDSN"`
}

// Logging mirrors logging.Options.
type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Telemetry configures the OTLP exporter.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
	Headers  string `toml:"Headers"`
}

// Default returns the mainnet configuration.
func Default() *Config {
	params := tx.DefaultParams()
	schedule := rewards.DefaultSchedule()
	pool := mempool.DefaultConfig()
	relay := network.DefaultConfig()
	return &Config{
		DataDir:        "./ledger-data",
		GenesisFile:    "genesis.yaml",
		MetricsAddress: ":9100",
		Environment:    "local",
		Chain: Chain{
			ActiveDelegates:        params.ActiveDelegates,
			MaxVotesPerTransaction: params.MaxVotesPerTransaction,
			MaxVotesPerAccount:     params.MaxVotesPerAccount,
			MultisigMaxKeysgroup:   params.MultisigMaxKeysgroup,
			MultisigMinLifetime:    params.MultisigMinLifetime,
			MultisigMaxLifetime:    params.MultisigMaxLifetime,
			TotalAmount:            params.TotalAmount,
			MaxTxsPerBlock:         pool.MaxTxsPerBlock,
			EpochTime:              params.EpochTime.Format(time.RFC3339),
			BlockTimeSeconds:       int(params.BlockTime / time.Second),
		},
		Fees: params.Fees,
		Rewards: Rewards{
			Offset:     schedule.Offset,
			Distance:   schedule.Distance,
			Milestones: append([]uint64(nil), schedule.Milestones...),
		},
		Pool: Pool{
			MaxTxsPerQueue:            pool.MaxTxsPerQueue,
			MaxSharedTxs:              pool.MaxSharedTxs,
			ReleaseLimit:              pool.ReleaseLimit,
			BundleIntervalSeconds:     int(pool.BundleInterval / time.Second),
			ExpiryIntervalSeconds:     int(pool.ExpiryInterval / time.Second),
			UnconfirmedTimeoutSeconds: int(pool.UnconfirmedTimeout / time.Second),
		},
		Relay: Relay{
			BatchesPerSecond: relay.BatchesPerSecond,
			Burst:            relay.Burst,
			BatchSize:        relay.BatchSize,
		},
		Storage: Storage{
			AccountsPath:  "accounts",
			SnapshotsPath: "snapshots.db",
			SQLDriver:     "sqlite",
			SQLDSN:        "chain.db",
		},
		Logging: Logging{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 30},
		Telemetry: Telemetry{
			Endpoint: "localhost:4318",
			Insecure: true,
		},
	}
}

// Load loads the configuration from path, writing the defaults there first
// when the file does not exist. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./ledger-data"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// Params converts the chain section into handler parameters.
func (c *Config) Params() (tx.Params, error) {
	epoch, err := time.Parse(time.RFC3339, c.Chain.EpochTime)
	if err != nil {
		return tx.Params{}, fmt.Errorf("chain.EpochTime: %w", err)
	}
	params := tx.DefaultParams()
	params.ActiveDelegates = c.Chain.ActiveDelegates
	params.MaxVotesPerTransaction = c.Chain.MaxVotesPerTransaction
	params.MaxVotesPerAccount = c.Chain.MaxVotesPerAccount
	params.MultisigMaxKeysgroup = c.Chain.MultisigMaxKeysgroup
	params.MultisigMinLifetime = c.Chain.MultisigMinLifetime
	params.MultisigMaxLifetime = c.Chain.MultisigMaxLifetime
	params.TotalAmount = c.Chain.TotalAmount
	params.FreezeHeight = c.Chain.FreezeHeight
	params.Fees = c.Fees
	params.EpochTime = epoch
	params.BlockTime = time.Duration(c.Chain.BlockTimeSeconds) * time.Second
	return params, nil
}

// Schedule returns the reward schedule.
func (c *Config) Schedule() rewards.Schedule {
	return rewards.Schedule{
		Offset:      c.Rewards.Offset,
		Distance:    c.Rewards.Distance,
		Milestones:  append([]uint64(nil), c.Rewards.Milestones...),
		TotalAmount: uint64(c.Chain.TotalAmount),
	}
}

// PoolConfig returns the pool settings.
func (c *Config) PoolConfig() mempool.Config {
	return mempool.Config{
		MaxTxsPerQueue:     c.Pool.MaxTxsPerQueue,
		MaxTxsPerBlock:     c.Chain.MaxTxsPerBlock,
		MaxSharedTxs:       c.Pool.MaxSharedTxs,
		ReleaseLimit:       c.Pool.ReleaseLimit,
		BundleInterval:     time.Duration(c.Pool.BundleIntervalSeconds) * time.Second,
		ExpiryInterval:     time.Duration(c.Pool.ExpiryIntervalSeconds) * time.Second,
		UnconfirmedTimeout: time.Duration(c.Pool.UnconfirmedTimeoutSeconds) * time.Second,
	}
}

// RelayConfig returns the broadcast throttle.
func (c *Config) RelayConfig() network.Config {
	cfg := network.DefaultConfig()
	cfg.BatchesPerSecond = c.Relay.BatchesPerSecond
	cfg.Burst = c.Relay.Burst
	cfg.BatchSize = c.Relay.BatchSize
	return cfg
}

// LoggingOptions returns the logger options.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:      c.Logging.Level,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
	}
}

// TelemetryConfig returns the exporter settings for service.
func (c *Config) TelemetryConfig(service string) otel.Config {
	return otel.Config{
		ServiceName: service,
		Environment: c.Environment,
		Endpoint:    c.Telemetry.Endpoint,
		Insecure:    c.Telemetry.Insecure,
		Headers:     otel.ParseHeaders(c.Telemetry.Headers),
		Metrics:     c.Telemetry.Metrics,
		Traces:      c.Telemetry.Traces,
	}
}

// Path resolves a storage path against DataDir. DSNs that are not plain
// file paths are returned unchanged.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || strings.Contains(p, "://") || strings.Contains(p, "=") {
		return p
	}
	return filepath.Join(c.DataDir, p)
}
