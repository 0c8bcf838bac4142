package types

// Block is a committed batch of transactions produced by one delegate.
type Block struct {
	ID                 string         `json:"id"`
	Height             uint64         `json:"height"`
	Timestamp          uint32         `json:"timestamp"`
	PreviousBlock      string         `json:"previousBlock,omitempty"`
	GeneratorPublicKey []byte         `json:"generatorPublicKey"`
	Transactions       []*Transaction `json:"transactions"`
	TotalFee           int64          `json:"totalFee"`
	TotalAmount        int64          `json:"totalAmount"`
	Reward             int64          `json:"reward"`
}

// Round is the settlement view of a fixed run of blocks.
type Round struct {
	Number uint64 `json:"round"`
	// Delegates is the ordered active delegate slot list (hex public keys).
	Delegates []string `json:"delegates"`
	// Generators holds the generator of each block in height order.
	Generators []string `json:"generators"`
	// Rewards holds the block reward of each block in height order.
	Rewards   []int64 `json:"rewards"`
	TotalFees int64   `json:"totalFees"`
	// LastBlockID is the id of the block closing the round.
	LastBlockID string `json:"lastBlockId"`
	// Votes holds every delegate's vote weight and rank as they were
	// before the round closed.
	Votes []DelegateVote `json:"votes"`
	// NextDelegates is the slot list generated for the following round.
	NextDelegates []string `json:"nextDelegates"`
}

// DelegateVote is a delegate's vote weight and rank at one point in time.
type DelegateVote struct {
	PublicKey string `json:"publicKey"`
	Vote      int64  `json:"vote"`
	Rank      int64  `json:"rank"`
}

// TxRow is the flattened persistence row for a transaction: the base columns
// plus one prefixed column group per transaction type.
type TxRow struct {
	ID                 string `gorm:"column:t_id;primaryKey"`
	BlockID            string `gorm:"column:b_id;index"`
	Height             uint64 `gorm:"column:b_height;index"`
	Position           int    `gorm:"column:t_position"`
	Type               uint8  `gorm:"column:t_type;index"`
	Timestamp          uint32 `gorm:"column:t_timestamp"`
	SenderPublicKey    string `gorm:"column:t_sender_public_key"`
	RequesterPublicKey string `gorm:"column:t_requester_public_key"`
	SenderID           string `gorm:"column:t_sender_id;index"`
	RecipientID        string `gorm:"column:t_recipient_id;index"`
	Amount             int64  `gorm:"column:t_amount"`
	Fee                int64  `gorm:"column:t_fee"`
	Signature          string `gorm:"column:t_signature"`
	SignSignature      string `gorm:"column:t_sign_signature"`
	Signatures         string `gorm:"column:t_signatures"`

	SignaturePublicKey string `gorm:"column:s_public_key"`
	DelegateUsername   string `gorm:"column:d_username"`
	Votes              string `gorm:"column:v_votes"`
	MultiMin           int64  `gorm:"column:m_min"`
	MultiLifetime      int64  `gorm:"column:m_lifetime"`
	MultiKeysgroup     string `gorm:"column:m_keysgroup"`
	DappName           string `gorm:"column:dapp_name"`
	DappDescription    string `gorm:"column:dapp_description"`
	DappTags           string `gorm:"column:dapp_tags"`
	DappType           uint32 `gorm:"column:dapp_type"`
	DappLink           string `gorm:"column:dapp_link"`
	DappCategory       uint32 `gorm:"column:dapp_category"`
	DappIcon           string `gorm:"column:dapp_icon"`
	InDappID           string `gorm:"column:in_dapp_id"`
	OutDappID          string `gorm:"column:ot_dapp_id"`
	OutTransactionID   string `gorm:"column:ot_out_transaction_id;index"`
}

// TableName pins the gorm table name.
func (TxRow) TableName() string { return "trs" }

// RoundOf returns the round number of a height for the given number of
// delegate slots per round. Height 0 belongs to no round.
func RoundOf(height uint64, slots int) uint64 {
	if height == 0 || slots <= 0 {
		return 0
	}
	n := uint64(slots)
	return (height + n - 1) / n
}
