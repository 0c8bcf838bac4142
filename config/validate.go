package config

import (
	"fmt"
	"strings"
)

// Validate checks the chain constants, the pool limits and the storage
// selection.
func (c *Config) Validate() error {
	params, err := c.Params()
	if err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("chain: %w", err)
	}
	if c.Chain.MaxVotesPerTransaction > c.Chain.MaxVotesPerAccount {
		return fmt.Errorf("chain: MaxVotesPerTransaction exceeds MaxVotesPerAccount")
	}
	if c.Chain.MaxTxsPerBlock <= 0 {
		return fmt.Errorf("chain: MaxTxsPerBlock must be positive")
	}
	if err := c.Schedule().Validate(); err != nil {
		return fmt.Errorf("rewards: %w", err)
	}
	if err := c.PoolConfig().Validate(); err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	if c.Relay.BatchesPerSecond < 0 {
		return fmt.Errorf("relay: BatchesPerSecond must not be negative")
	}
	switch strings.ToLower(c.Storage.SQLDriver) {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("storage: unsupported SQLDriver %q", c.Storage.SQLDriver)
	}
	if strings.TrimSpace(c.Storage.SQLDSN) == "" || strings.TrimSpace(c.Storage.AccountsPath) == "" || strings.TrimSpace(c.Storage.SnapshotsPath) == "" {
		return fmt.Errorf("storage: AccountsPath, SnapshotsPath and SQLDSN are required")
	}
	return nil
}
