package events

import (
	"strconv"

	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
)

const (
	TypeBlockApplied = "block.applied"
	TypeBlockUndone  = "block.undone"
)

// BlockApplied is emitted after a block is committed.
type BlockApplied struct {
	ID           string
	Height       uint64
	Transactions int
	TotalFee     int64
	Reward       int64
}

func (BlockApplied) EventType() string { return TypeBlockApplied }

func (e BlockApplied) Event() *types.Event {
	return &types.Event{
		Type: TypeBlockApplied,
		Attributes: map[string]string{
			"id":           e.ID,
			"height":       uintToString(e.Height),
			"transactions": strconv.Itoa(e.Transactions),
			"totalFee":     intToString(e.TotalFee),
			"reward":       intToString(e.Reward),
		},
	}
}

// BlockUndone is emitted after the tip block is reverted.
type BlockUndone struct {
	ID     string
	Height uint64
}

func (BlockUndone) EventType() string { return TypeBlockUndone }

func (e BlockUndone) Event() *types.Event {
	return &types.Event{
		Type: TypeBlockUndone,
		Attributes: map[string]string{
			"id":     e.ID,
			"height": uintToString(e.Height),
		},
	}
}
