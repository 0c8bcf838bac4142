package tx

import (
	"fmt"
	"time"
)

// Fees lists the flat fee of every transaction type in beddows. The
// multisignature fee is charged per keysgroup member plus one.
type Fees struct {
	Transfer        int64 `toml:"Transfer"`
	SecondSignature int64 `toml:"SecondSignature"`
	Delegate        int64 `toml:"Delegate"`
	Vote            int64 `toml:"Vote"`
	Multisignature  int64 `toml:"Multisignature"`
	Dapp            int64 `toml:"Dapp"`
	InTransfer      int64 `toml:"InTransfer"`
	OutTransfer     int64 `toml:"OutTransfer"`
}

// DefaultFees returns the mainnet fee table.
func DefaultFees() Fees {
	return Fees{
		Transfer:        10_000_000,
		SecondSignature: 500_000_000,
		Delegate:        2_500_000_000,
		Vote:            100_000_000,
		Multisignature:  500_000_000,
		Dapp:            2_500_000_000,
		InTransfer:      10_000_000,
		OutTransfer:     10_000_000,
	}
}

// Params are the chain constants consulted by the handlers.
type Params struct {
	ActiveDelegates        int
	MaxVotesPerTransaction int
	MaxVotesPerAccount     int
	MultisigMaxKeysgroup   int
	MultisigMinLifetime    int64
	MultisigMaxLifetime    int64
	TotalAmount            int64
	// FreezeHeight disables registration of frozen types at and above this
	// height. Zero keeps every type open.
	FreezeHeight uint64
	Fees         Fees
	// EpochTime is the chain epoch transaction timestamps count from.
	EpochTime time.Time
	BlockTime time.Duration
	Now       func() time.Time
}

// DefaultParams returns the mainnet constants.
func DefaultParams() Params {
	return Params{
		ActiveDelegates:        101,
		MaxVotesPerTransaction: 33,
		MaxVotesPerAccount:     101,
		MultisigMaxKeysgroup:   15,
		MultisigMinLifetime:    1,
		MultisigMaxLifetime:    72,
		TotalAmount:            10_000_000_000_000_000,
		Fees:                   DefaultFees(),
		EpochTime:              time.Date(2016, time.May, 24, 17, 0, 0, 0, time.UTC),
		BlockTime:              10 * time.Second,
		Now:                    time.Now,
	}
}

// Validate checks the constants for internal consistency.
func (p Params) Validate() error {
	if p.ActiveDelegates <= 0 {
		return fmt.Errorf("active delegates must be positive")
	}
	if p.MaxVotesPerTransaction <= 0 || p.MaxVotesPerAccount <= 0 {
		return fmt.Errorf("vote limits must be positive")
	}
	if p.MultisigMaxKeysgroup <= 0 {
		return fmt.Errorf("multisignature keysgroup limit must be positive")
	}
	if p.MultisigMinLifetime <= 0 || p.MultisigMaxLifetime < p.MultisigMinLifetime {
		return fmt.Errorf("invalid multisignature lifetime bounds [%d,%d]", p.MultisigMinLifetime, p.MultisigMaxLifetime)
	}
	if p.TotalAmount <= 0 {
		return fmt.Errorf("total amount must be positive")
	}
	if p.BlockTime <= 0 {
		return fmt.Errorf("block time must be positive")
	}
	fees := []int64{p.Fees.Transfer, p.Fees.SecondSignature, p.Fees.Delegate, p.Fees.Vote,
		p.Fees.Multisignature, p.Fees.Dapp, p.Fees.InTransfer, p.Fees.OutTransfer}
	for _, fee := range fees {
		if fee <= 0 {
			return fmt.Errorf("fees must be positive")
		}
	}
	return nil
}

// Slot returns the block slot a chain timestamp falls into.
func (p Params) Slot(timestamp uint32) uint64 {
	return uint64(time.Duration(timestamp)*time.Second) / uint64(p.BlockTime)
}

// EpochNow returns the current time as a chain timestamp.
func (p Params) EpochNow() uint32 {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	elapsed := now().Sub(p.EpochTime)
	if elapsed < 0 {
		return 0
	}
	return uint32(elapsed / time.Second)
}
