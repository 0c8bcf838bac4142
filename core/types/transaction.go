package types

import (
	"fmt"
	"time"
)

// TxType identifies the state transition a transaction performs.
type TxType uint8

const (
	TxTypeTransfer TxType = iota
	TxTypeSecondSignature
	TxTypeDelegate
	TxTypeVote
	TxTypeMultisignature
	TxTypeDapp
	TxTypeInTransfer
	TxTypeOutTransfer
)

var txTypeNames = map[TxType]string{
	TxTypeTransfer:        "transfer",
	TxTypeSecondSignature: "second_signature",
	TxTypeDelegate:        "delegate",
	TxTypeVote:            "vote",
	TxTypeMultisignature:  "multisignature",
	TxTypeDapp:            "dapp",
	TxTypeInTransfer:      "in_transfer",
	TxTypeOutTransfer:     "out_transfer",
}

// String returns a stable label for logs and metrics.
func (t TxType) String() string {
	if name, ok := txTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type_%d", uint8(t))
}

// SignatureAsset registers a second public key.
type SignatureAsset struct {
	PublicKey []byte `json:"publicKey"`
}

// DelegateAsset registers the sender as a delegate.
type DelegateAsset struct {
	Username  string `json:"username"`
	PublicKey []byte `json:"publicKey,omitempty"`
	Address   string `json:"address,omitempty"`
}

// MultisignatureAsset registers a multisignature group.
type MultisignatureAsset struct {
	Min       int64    `json:"min"`
	Lifetime  int64    `json:"lifetime"`
	Keysgroup []string `json:"keysgroup"`
}

// DappAsset registers a side-chain application.
type DappAsset struct {
	Category    uint32 `json:"category"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Tags        string `json:"tags,omitempty"`
	Type        uint32 `json:"type"`
	Link        string `json:"link"`
	Icon        string `json:"icon,omitempty"`
}

// InTransferAsset moves funds into an application.
type InTransferAsset struct {
	DappID string `json:"dappId"`
}

// OutTransferAsset moves funds out of an application.
type OutTransferAsset struct {
	DappID        string `json:"dappId"`
	TransactionID string `json:"transactionId"`
}

// Asset carries the type specific payload. Exactly one field is populated for
// types that have an asset.
type Asset struct {
	Signature      *SignatureAsset      `json:"signature,omitempty"`
	Delegate       *DelegateAsset       `json:"delegate,omitempty"`
	Votes          []string             `json:"votes,omitempty"`
	Multisignature *MultisignatureAsset `json:"multisignature,omitempty"`
	Dapp           *DappAsset           `json:"dapp,omitempty"`
	InTransfer     *InTransferAsset     `json:"inTransfer,omitempty"`
	OutTransfer    *OutTransferAsset    `json:"outTransfer,omitempty"`
}

// Transaction is a signed state transition request.
type Transaction struct {
	ID                 string   `json:"id"`
	Type               TxType   `json:"type"`
	Timestamp          uint32   `json:"timestamp"`
	SenderPublicKey    []byte   `json:"senderPublicKey"`
	RequesterPublicKey []byte   `json:"requesterPublicKey,omitempty"`
	SenderID           string   `json:"senderId"`
	RecipientID        string   `json:"recipientId,omitempty"`
	Amount             int64    `json:"amount"`
	Fee                int64    `json:"fee"`
	Signature          []byte   `json:"signature"`
	SignSignature      []byte   `json:"signSignature,omitempty"`
	Signatures         []string `json:"signatures,omitempty"`
	Asset              Asset    `json:"asset"`

	BlockID string `json:"blockId,omitempty"`
	Height  uint64 `json:"height,omitempty"`

	// Pool bookkeeping; not part of the signed payload.
	ReceivedAt time.Time `json:"-"`
	Bundled    bool      `json:"-"`
}

// HasCosignatures reports whether the transaction carries multisignature
// cosigner signatures.
func (tx *Transaction) HasCosignatures() bool {
	return tx.Signatures != nil
}
