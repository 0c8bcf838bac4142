package types

// Tokens in list diffs are a sign followed by the list element, for example
// "+<publicKey>" inserts and "-<publicKey>" removes.
const (
	TokenAdd    = '+'
	TokenRemove = '-'
)

// StateDiff is the delta for one AccountState sub-record. Numeric fields are
// added, list fields carry signed tokens and pointer fields replace the
// current value when set.
type StateDiff struct {
	Balance         int64
	MultiMin        int64
	MultiLifetime   int64
	Delegates       []string
	Multisignatures []string
	IsDelegate      *bool
	SecondSignature *bool
	Username        *string
}

// Diff is a keyed delta applied to one account by the ledger.
type Diff struct {
	PublicKey       []byte
	SecondPublicKey *[]byte

	Confirmed   StateDiff
	Unconfirmed StateDiff

	Vote           int64
	ProducedBlocks int64
	MissedBlocks   int64
	Fees           int64
	Rewards        int64
	Rank           *int64

	// BlockID and Round tag the account with the block that last touched it.
	BlockID string
	Round   uint64
}

// Negate returns the inverse delta: numeric fields change sign and list
// tokens flip. Scalar replacements cannot be inverted without the prior value
// and are dropped; the public key and block tags are kept.
func (d Diff) Negate() Diff {
	return Diff{
		PublicKey:      cloneBytes(d.PublicKey),
		Confirmed:      d.Confirmed.negate(),
		Unconfirmed:    d.Unconfirmed.negate(),
		Vote:           -d.Vote,
		ProducedBlocks: -d.ProducedBlocks,
		MissedBlocks:   -d.MissedBlocks,
		Fees:           -d.Fees,
		Rewards:        -d.Rewards,
		BlockID:        d.BlockID,
		Round:          d.Round,
	}
}

func (s StateDiff) negate() StateDiff {
	return StateDiff{
		Balance:         -s.Balance,
		MultiMin:        -s.MultiMin,
		MultiLifetime:   -s.MultiLifetime,
		Delegates:       NegateTokens(s.Delegates),
		Multisignatures: NegateTokens(s.Multisignatures),
	}
}

// NegateTokens flips the sign of every token and reverses their order so the
// inverse replays the original operations backwards.
func NegateTokens(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}
	out := make([]string, len(tokens))
	for i, token := range tokens {
		j := len(tokens) - 1 - i
		if len(token) == 0 {
			out[j] = token
			continue
		}
		switch token[0] {
		case TokenAdd:
			out[j] = string(TokenRemove) + token[1:]
		case TokenRemove:
			out[j] = string(TokenAdd) + token[1:]
		default:
			out[j] = token
		}
	}
	return out
}

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// Bytes returns a pointer to a copy of v.
func Bytes(v []byte) *[]byte {
	c := cloneBytes(v)
	return &c
}
