package events

import (
	"strconv"
	"strings"

	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
)

const (
	TypeRoundSettled   = "round.settled"
	TypeRoundReverted  = "round.reverted"
	TypeDelegateList   = "round.delegates"
	TypeDelegateMissed = "round.missed"
)

// RoundSettled is emitted when the last block of a round distributes fees
// and rewards.
type RoundSettled struct {
	Round       uint64
	BlockID     string
	TotalFees   int64
	FeeShare    int64
	Remainder   int64
	Rewards     int64
	Generators  int
	FromSummary bool
}

func (RoundSettled) EventType() string { return TypeRoundSettled }

func (e RoundSettled) Event() *types.Event {
	return &types.Event{
		Type: TypeRoundSettled,
		Attributes: map[string]string{
			"round":      uintToString(e.Round),
			"blockId":    e.BlockID,
			"totalFees":  intToString(e.TotalFees),
			"feeShare":   intToString(e.FeeShare),
			"remainder":  intToString(e.Remainder),
			"rewards":    intToString(e.Rewards),
			"generators": strconv.Itoa(e.Generators),
		},
	}
}

// RoundReverted is emitted when a settlement is undone. Snapshot reports
// whether the stored settlement was replayed instead of recomputing it.
type RoundReverted struct {
	Round    uint64
	BlockID  string
	Snapshot bool
}

func (RoundReverted) EventType() string { return TypeRoundReverted }

func (e RoundReverted) Event() *types.Event {
	return &types.Event{
		Type: TypeRoundReverted,
		Attributes: map[string]string{
			"round":    uintToString(e.Round),
			"blockId":  e.BlockID,
			"snapshot": strconv.FormatBool(e.Snapshot),
		},
	}
}

// DelegateList is emitted when the forging order for a round is generated.
type DelegateList struct {
	Round     uint64
	Delegates []string
}

func (DelegateList) EventType() string { return TypeDelegateList }

func (e DelegateList) Event() *types.Event {
	return &types.Event{
		Type: TypeDelegateList,
		Attributes: map[string]string{
			"round":     uintToString(e.Round),
			"count":     strconv.Itoa(len(e.Delegates)),
			"delegates": strings.Join(e.Delegates, ","),
		},
	}
}

// DelegateMissed is emitted for an active delegate that forged no block in
// a settled round.
type DelegateMissed struct {
	Round   uint64
	Address string
}

func (DelegateMissed) EventType() string { return TypeDelegateMissed }

func (e DelegateMissed) Event() *types.Event {
	return &types.Event{
		Type: TypeDelegateMissed,
		Attributes: map[string]string{
			"round":   uintToString(e.Round),
			"address": e.Address,
		},
	}
}

func intToString(v int64) string { return strconv.FormatInt(v, 10) }

func uintToString(v uint64) string { return strconv.FormatUint(v, 10) }
