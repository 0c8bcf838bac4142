package sqlstore

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
)

// BlockRow is the persisted block header.
type BlockRow struct {
	ID                   string `gorm:"column:b_id;primaryKey"`
	Height               uint64 `gorm:"column:b_height;uniqueIndex;not null"`
	Timestamp            uint32 `gorm:"column:b_timestamp"`
	PreviousBlock        string `gorm:"column:b_previous_block"`
	GeneratorPublicKey   string `gorm:"column:b_generator_public_key;index"`
	TotalFee             int64  `gorm:"column:b_total_fee"`
	TotalAmount          int64  `gorm:"column:b_total_amount"`
	Reward               int64  `gorm:"column:b_reward"`
	NumberOfTransactions int    `gorm:"column:b_number_of_transactions"`
}

func (BlockRow) TableName() string { return "blocks" }

// RoundRow records a settled round.
type RoundRow struct {
	Round       uint64 `gorm:"column:round;primaryKey;autoIncrement:false"`
	Delegates   string `gorm:"column:delegates"`
	Generators  string `gorm:"column:generators"`
	Rewards     string `gorm:"column:rewards"`
	TotalFees   int64  `gorm:"column:total_fees"`
	LastBlockID string `gorm:"column:last_block_id;index"`
	// Votes is a list of publicKey:vote:rank triples.
	Votes         string `gorm:"column:votes"`
	NextDelegates string `gorm:"column:next_delegates"`
}

func (RoundRow) TableName() string { return "rounds" }

// AutoMigrate creates or updates every table of the store.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&BlockRow{},
		&types.TxRow{},
		&RoundRow{},
	)
}

func blockRow(b *types.Block) BlockRow {
	return BlockRow{
		ID:                   b.ID,
		Height:               b.Height,
		Timestamp:            b.Timestamp,
		PreviousBlock:        b.PreviousBlock,
		GeneratorPublicKey:   hex.EncodeToString(b.GeneratorPublicKey),
		TotalFee:             b.TotalFee,
		TotalAmount:          b.TotalAmount,
		Reward:               b.Reward,
		NumberOfTransactions: len(b.Transactions),
	}
}

func (r BlockRow) block() (*types.Block, error) {
	generator, err := hex.DecodeString(r.GeneratorPublicKey)
	if err != nil {
		return nil, fmt.Errorf("block %s: decode generator: %w", r.ID, err)
	}
	return &types.Block{
		ID:                 r.ID,
		Height:             r.Height,
		Timestamp:          r.Timestamp,
		PreviousBlock:      r.PreviousBlock,
		GeneratorPublicKey: generator,
		TotalFee:           r.TotalFee,
		TotalAmount:        r.TotalAmount,
		Reward:             r.Reward,
	}, nil
}

func roundRow(r *types.Round) RoundRow {
	rewards := make([]string, len(r.Rewards))
	for i, v := range r.Rewards {
		rewards[i] = strconv.FormatInt(v, 10)
	}
	votes := make([]string, len(r.Votes))
	for i, v := range r.Votes {
		votes[i] = v.PublicKey + ":" + strconv.FormatInt(v.Vote, 10) + ":" + strconv.FormatInt(v.Rank, 10)
	}
	return RoundRow{
		Round:         r.Number,
		Delegates:     strings.Join(r.Delegates, ","),
		Generators:    strings.Join(r.Generators, ","),
		Rewards:       strings.Join(rewards, ","),
		TotalFees:     r.TotalFees,
		LastBlockID:   r.LastBlockID,
		Votes:         strings.Join(votes, ","),
		NextDelegates: strings.Join(r.NextDelegates, ","),
	}
}

func (r RoundRow) round() (*types.Round, error) {
	out := &types.Round{
		Number:        r.Round,
		Delegates:     splitList(r.Delegates),
		Generators:    splitList(r.Generators),
		TotalFees:     r.TotalFees,
		LastBlockID:   r.LastBlockID,
		NextDelegates: splitList(r.NextDelegates),
	}
	for _, raw := range splitList(r.Votes) {
		v, err := parseVote(raw)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", r.Round, err)
		}
		out.Votes = append(out.Votes, v)
	}
	for _, raw := range splitList(r.Rewards) {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("round %d: reward %q: %w", r.Round, raw, err)
		}
		out.Rewards = append(out.Rewards, v)
	}
	return out, nil
}

func parseVote(raw string) (types.DelegateVote, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return types.DelegateVote{}, fmt.Errorf("vote %q: want publicKey:vote:rank", raw)
	}
	vote, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return types.DelegateVote{}, fmt.Errorf("vote %q: %w", raw, err)
	}
	rank, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return types.DelegateVote{}, fmt.Errorf("vote %q: %w", raw, err)
	}
	return types.DelegateVote{PublicKey: parts[0], Vote: vote, Rank: rank}, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
