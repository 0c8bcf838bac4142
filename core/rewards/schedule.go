package rewards

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// ErrInvalidHeight is returned for heights that are not decimal integers.
var ErrInvalidHeight = errors.New("invalid block height")

// Schedule maps block heights to milestone rewards. Below Offset no reward is
// paid; from Offset every milestone applies for Distance blocks and the last
// milestone applies forever.
type Schedule struct {
	Offset      uint64
	Distance    uint64
	Milestones  []uint64
	TotalAmount uint64
}

// DefaultSchedule returns the mainnet reward schedule.
func DefaultSchedule() Schedule {
	return Schedule{
		Offset:   1_451_520,
		Distance: 3_000_000,
		Milestones: []uint64{
			500_000_000,
			400_000_000,
			300_000_000,
			200_000_000,
			100_000_000,
		},
		TotalAmount: 10_000_000_000_000_000,
	}
}

// Validate ensures the schedule is usable and non-increasing.
func (s Schedule) Validate() error {
	if s.Distance == 0 {
		return fmt.Errorf("reward distance must be greater than zero")
	}
	if len(s.Milestones) == 0 {
		return fmt.Errorf("reward schedule requires at least one milestone")
	}
	for i := 1; i < len(s.Milestones); i++ {
		if s.Milestones[i] > s.Milestones[i-1] {
			return fmt.Errorf("milestone %d (%d) exceeds milestone %d (%d)", i, s.Milestones[i], i-1, s.Milestones[i-1])
		}
	}
	return nil
}

// ParseHeight parses a textual height. Empty or non-numeric input is an
// error rather than a silent zero.
func ParseHeight(raw string) (uint64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidHeight)
	}
	height, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidHeight, raw)
	}
	return height, nil
}

// CalcMilestone returns the index of the milestone active at height.
func (s Schedule) CalcMilestone(height uint64) int {
	if height < s.Offset || len(s.Milestones) == 0 {
		return 0
	}
	location := (height - s.Offset) / s.Distance
	last := uint64(len(s.Milestones) - 1)
	if location > last {
		return int(last)
	}
	return int(location)
}

// CalcReward returns the block reward at height.
func (s Schedule) CalcReward(height uint64) uint64 {
	if height < s.Offset || len(s.Milestones) == 0 {
		return 0
	}
	return s.Milestones[s.CalcMilestone(height)]
}

// CalcSupply returns the circulating supply after the block at height: the
// genesis total plus every reward paid up to and including height.
func (s Schedule) CalcSupply(height uint64) (*uint256.Int, error) {
	supply := uint256.NewInt(s.TotalAmount)
	if height < s.Offset || len(s.Milestones) == 0 {
		return supply, nil
	}
	milestone := s.CalcMilestone(height)
	remaining := height - s.Offset + 1
	for i := 0; i <= milestone; i++ {
		var blocks uint64
		if remaining < s.Distance {
			blocks = remaining
			remaining = 0
		} else {
			blocks = s.Distance
			remaining -= s.Distance
			if i == len(s.Milestones)-1 && remaining > 0 {
				blocks += remaining
				remaining = 0
			}
		}
		paid, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(blocks), uint256.NewInt(s.Milestones[i]))
		if overflow {
			return nil, fmt.Errorf("supply overflow at milestone %d", i)
		}
		if _, overflow := supply.AddOverflow(supply, paid); overflow {
			return nil, fmt.Errorf("supply overflow at milestone %d", i)
		}
	}
	return supply, nil
}
