package tx

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
)

// GetBytes encodes the signed payload: type, timestamp, sender key,
// requester key, recipient, amount, asset bytes and, unless skipped, the
// signature and second signature.
func (r *Registry) GetBytes(tx *types.Transaction, skipSignature, skipSecondSignature bool) ([]byte, error) {
	h, err := r.Handler(tx.Type)
	if err != nil {
		return nil, err
	}
	asset, err := h.GetBytes(tx)
	if err != nil {
		return nil, fmt.Errorf("%s asset bytes: %w", tx.Type, err)
	}

	var buf bytes.Buffer
	buf.Grow(1 + 4 + 32 + 32 + 8 + 8 + len(asset) + 64 + 64)
	buf.WriteByte(byte(tx.Type))
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], tx.Timestamp)
	buf.Write(u32[:])
	buf.Write(tx.SenderPublicKey)
	buf.Write(tx.RequesterPublicKey)

	var recipient [8]byte
	if tx.RecipientID != "" {
		n, ok := types.AddressNumber(tx.RecipientID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidRecipient, tx.RecipientID)
		}
		binary.BigEndian.PutUint64(recipient[:], n)
	}
	buf.Write(recipient[:])

	var amount [8]byte
	binary.LittleEndian.PutUint64(amount[:], uint64(tx.Amount))
	buf.Write(amount[:])
	buf.Write(asset)

	if !skipSignature {
		buf.Write(tx.Signature)
	}
	if !skipSecondSignature {
		buf.Write(tx.SignSignature)
	}
	return buf.Bytes(), nil
}

// GetHash returns sha256 of the full payload.
func (r *Registry) GetHash(tx *types.Transaction) ([32]byte, error) {
	payload, err := r.GetBytes(tx, false, false)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(payload), nil
}

// GetID derives the transaction id: the first eight bytes of the payload
// hash read little-endian, in decimal.
func (r *Registry) GetID(tx *types.Transaction) (string, error) {
	sum, err := r.GetHash(tx)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(binary.LittleEndian.Uint64(sum[:8]), 10), nil
}

func (r *Registry) digest(tx *types.Transaction, skipSignature, skipSecondSignature bool) ([]byte, error) {
	payload, err := r.GetBytes(tx, skipSignature, skipSecondSignature)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(payload)
	return sum[:], nil
}

// Sign returns the sender signature over the unsigned payload.
func (r *Registry) Sign(key ed25519.PrivateKey, tx *types.Transaction) ([]byte, error) {
	d, err := r.digest(tx, true, true)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(key, d), nil
}

// SecondSign returns the second signature, which also covers the first.
func (r *Registry) SecondSign(key ed25519.PrivateKey, tx *types.Transaction) ([]byte, error) {
	d, err := r.digest(tx, false, true)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(key, d), nil
}

// MultiSign returns a cosigner signature in the hex form carried by
// Transaction.Signatures.
func (r *Registry) MultiSign(key ed25519.PrivateKey, tx *types.Transaction) (string, error) {
	d, err := r.digest(tx, true, true)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(ed25519.Sign(key, d)), nil
}

// VerifySignature checks a signature over the unsigned payload.
func (r *Registry) VerifySignature(tx *types.Transaction, publicKey, signature []byte) (bool, error) {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false, nil
	}
	d, err := r.digest(tx, true, true)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(publicKey, d, signature), nil
}

// VerifySecondSignature checks a second signature over the singly signed
// payload.
func (r *Registry) VerifySecondSignature(tx *types.Transaction, publicKey, signature []byte) (bool, error) {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false, nil
	}
	d, err := r.digest(tx, false, true)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(publicKey, d, signature), nil
}
