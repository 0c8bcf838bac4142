package tx

import (
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
)

// ValidationError describes a schema violation on one field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrSchema, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrSchema }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

var (
	idPattern        = regexp.MustCompile(`^[0-9]{1,20}$`)
	publicKeyPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
	signaturePattern = regexp.MustCompile(`^[0-9a-f]{128}$`)
)

// ObjectNormalize validates the base schema and then the asset schema of the
// transaction's type.
func (r *Registry) ObjectNormalize(tx *types.Transaction) error {
	h, err := r.Handler(tx.Type)
	if err != nil {
		return err
	}
	if tx.ID != "" && !idPattern.MatchString(tx.ID) {
		return invalid("id", "must be numeric, got %q", tx.ID)
	}
	if len(tx.SenderPublicKey) != 32 {
		return invalid("senderPublicKey", "must be 32 bytes")
	}
	if n := len(tx.RequesterPublicKey); n != 0 && n != 32 {
		return invalid("requesterPublicKey", "must be 32 bytes")
	}
	if len(tx.Signature) != 64 {
		return invalid("signature", "must be 64 bytes")
	}
	if n := len(tx.SignSignature); n != 0 && n != 64 {
		return invalid("signSignature", "must be 64 bytes")
	}
	if tx.SenderID != "" && !types.IsAddress(tx.SenderID) {
		return invalid("senderId", "malformed address %q", tx.SenderID)
	}
	if tx.RecipientID != "" && !types.IsAddress(tx.RecipientID) {
		return invalid("recipientId", "malformed address %q", tx.RecipientID)
	}
	if tx.Amount < 0 || tx.Amount > r.params.TotalAmount {
		return invalid("amount", "out of range")
	}
	if tx.Fee < 0 || tx.Fee > r.params.TotalAmount {
		return invalid("fee", "out of range")
	}
	for i, sig := range tx.Signatures {
		if !signaturePattern.MatchString(sig) {
			return invalid(fmt.Sprintf("signatures[%d]", i), "must be 128 hex characters")
		}
	}
	return h.ObjectNormalize(tx)
}

func isPublicKey(s string) bool {
	return publicKeyPattern.MatchString(s)
}

func decodePublicKey(s string) ([]byte, bool) {
	if !isPublicKey(s) {
		return nil, false
	}
	b, err := hex.DecodeString(s)
	return b, err == nil
}
