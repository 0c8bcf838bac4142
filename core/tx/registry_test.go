package tx

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
)

func sampleTransactions(sender, other keypair) []*types.Transaction {
	return []*types.Transaction{
		{Type: types.TxTypeTransfer, RecipientID: other.address, Amount: 5},
		{Type: types.TxTypeSecondSignature, Asset: types.Asset{Signature: &types.SignatureAsset{PublicKey: other.pub}}},
		{Type: types.TxTypeDelegate, Asset: types.Asset{Delegate: &types.DelegateAsset{Username: "genesis_1"}}},
		{Type: types.TxTypeVote, RecipientID: sender.address, Asset: types.Asset{Votes: []string{"+" + other.hex()}}},
		{Type: types.TxTypeMultisignature, Asset: types.Asset{Multisignature: &types.MultisignatureAsset{
			Min: 1, Lifetime: 24, Keysgroup: []string{"+" + other.hex()},
		}}},
		{Type: types.TxTypeDapp, Asset: types.Asset{Dapp: &types.DappAsset{
			Name: "app", Link: "https://example.com/app.zip", Category: 1,
		}}},
		{Type: types.TxTypeInTransfer, Amount: 10, Asset: types.Asset{InTransfer: &types.InTransferAsset{DappID: "123"}}},
		{Type: types.TxTypeOutTransfer, RecipientID: other.address, Amount: 10, Asset: types.Asset{OutTransfer: &types.OutTransferAsset{
			DappID: "123", TransactionID: "456",
		}}},
	}
}

func TestSignVerifyRoundTripEveryType(t *testing.T) {
	f := newFixture(t)
	sender, other := newKey(1), newKey(2)
	for _, tx := range sampleTransactions(sender, other) {
		t.Run(tx.Type.String(), func(t *testing.T) {
			f.sign(sender, tx)
			ok, err := f.reg.VerifySignature(tx, sender.pub, tx.Signature)
			require.NoError(t, err)
			require.True(t, ok, "signature must verify")

			ok, err = f.reg.VerifySignature(tx, other.pub, tx.Signature)
			require.NoError(t, err)
			require.False(t, ok, "foreign key must not verify")

			tx.Timestamp++
			ok, err = f.reg.VerifySignature(tx, sender.pub, tx.Signature)
			require.NoError(t, err)
			require.False(t, ok, "tampered payload must not verify")
		})
	}
}

func TestSecondSignatureCoversFirst(t *testing.T) {
	f := newFixture(t)
	sender, second := newKey(1), newKey(2)
	tx := f.sign(sender, &types.Transaction{Type: types.TxTypeTransfer, RecipientID: second.address, Amount: 1})
	sig, err := f.reg.SecondSign(second.priv, tx)
	require.NoError(t, err)
	tx.SignSignature = sig

	ok, err := f.reg.VerifySecondSignature(tx, second.pub, sig)
	require.NoError(t, err)
	require.True(t, ok)

	tx.Signature[0] ^= 0xff
	ok, err = f.reg.VerifySecondSignature(tx, second.pub, sig)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTransferBytesLayout(t *testing.T) {
	f := newFixture(t)
	sender := newKey(1)
	tx := f.sign(sender, &types.Transaction{Type: types.TxTypeTransfer, RecipientID: "58191285901858109L", Amount: 1})
	raw, err := f.reg.GetBytes(tx, false, false)
	require.NoError(t, err)
	require.Len(t, raw, 1+4+32+8+8+64)
	require.Equal(t, byte(types.TxTypeTransfer), raw[0])
	require.Equal(t, byte(100), raw[1], "timestamp is little-endian")
	// 58191285901858109 = 0x00CEBCAA8D34153D big-endian
	require.Equal(t, []byte{0x00, 0xce, 0xbc, 0xaa, 0x8d, 0x34, 0x15, 0x3d}, raw[37:45])

	unsigned, err := f.reg.GetBytes(tx, true, true)
	require.NoError(t, err)
	require.Len(t, unsigned, len(raw)-64)
}

func TestGetIDChangesWithSignature(t *testing.T) {
	f := newFixture(t)
	sender := newKey(1)
	tx := f.sign(sender, &types.Transaction{Type: types.TxTypeTransfer, RecipientID: newKey(2).address, Amount: 1})
	id, err := f.reg.GetID(tx)
	require.NoError(t, err)
	require.Equal(t, tx.ID, id)
	require.Regexp(t, `^[0-9]+$`, id)

	tx.Signature[5] ^= 1
	changed, err := f.reg.GetID(tx)
	require.NoError(t, err)
	require.NotEqual(t, id, changed)
}

func TestProcessRejectsWrongID(t *testing.T) {
	f := newFixture(t)
	sender := newKey(1)
	acc := f.fund(sender, 1e9)
	tx := f.sign(sender, &types.Transaction{Type: types.TxTypeTransfer, RecipientID: newKey(2).address, Amount: 1})
	tx.ID = "1"
	if err := f.reg.Process(f.ledger, tx, acc); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestProcessRejectsConfirmed(t *testing.T) {
	f := newFixture(t)
	sender := newKey(1)
	acc := f.fund(sender, 1e9)
	tx := f.sign(sender, &types.Transaction{Type: types.TxTypeTransfer, RecipientID: newKey(2).address, Amount: 1})
	f.txs.Add(tx)
	if err := f.reg.Process(f.ledger, tx, acc); !errors.Is(err, ErrAlreadyConfirmed) {
		t.Fatalf("expected ErrAlreadyConfirmed, got %v", err)
	}
}

func TestVerifyCommonChecks(t *testing.T) {
	f := newFixture(t)
	sender, recipient := newKey(1), newKey(2)
	f.fund(sender, 100_000_000)

	cases := []struct {
		name   string
		mutate func(tx *types.Transaction)
		want   error
	}{
		{"fee", func(tx *types.Transaction) { tx.Fee = 1 }, ErrInvalidFee},
		{"future timestamp", func(tx *types.Transaction) { tx.Timestamp = 5000 }, ErrInvalidTimestamp},
		{"balance", func(tx *types.Transaction) { tx.Amount = 95_000_000 }, ErrInsufficientFunds},
		{"unexpected second signature", func(tx *types.Transaction) { tx.SignSignature = make([]byte, 64) }, ErrUnexpectedSecondSig},
		{"sender id", func(tx *types.Transaction) { tx.SenderID = recipient.address }, ErrInvalidSenderID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := &types.Transaction{Type: types.TxTypeTransfer, RecipientID: recipient.address, Amount: 1}
			f.sign(sender, tx)
			tc.mutate(tx)
			sig, err := f.reg.Sign(sender.priv, tx)
			require.NoError(t, err)
			tx.Signature = sig
			err = f.reg.Verify(f.ledger, tx, f.account(sender.address), 1)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	sender := newKey(1)
	f.fund(sender, 1e9)
	tx := f.sign(sender, &types.Transaction{Type: types.TxTypeTransfer, RecipientID: newKey(2).address, Amount: 1})
	tx.Amount = 2
	if err := f.reg.Verify(f.ledger, tx, f.account(sender.address), 1); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestTransferApplyUndoSymmetry(t *testing.T) {
	f := newFixture(t)
	sender, recipient := newKey(1), newKey(2)
	f.fund(sender, 1e9)
	f.fund(recipient, 7)
	senderBefore := f.account(sender.address)
	recipientBefore := f.account(recipient.address)

	tx := f.sign(sender, &types.Transaction{Type: types.TxTypeTransfer, RecipientID: recipient.address, Amount: 250})
	require.NoError(t, f.admit(tx, 1))
	require.Equal(t, int64(1e9-250-1e7), f.account(sender.address).Unconfirmed.Balance)
	require.Equal(t, int64(1e9), f.account(sender.address).Confirmed.Balance)

	block := testBlock(202)
	require.NoError(t, f.confirm(tx, block))
	got := f.account(recipient.address)
	require.Equal(t, int64(257), got.Confirmed.Balance)
	require.Equal(t, int64(257), got.Unconfirmed.Balance)
	require.Equal(t, block.ID, got.BlockID)
	require.Equal(t, uint64(2), got.Round)

	f.undo(tx, block)
	require.True(t, senderBefore.SameState(f.account(sender.address)), "sender state not restored")
	require.True(t, recipientBefore.SameState(f.account(recipient.address)), "recipient state not restored")
}

func TestApplyConfirmedRollsBackOnHandlerError(t *testing.T) {
	f := newFixture(t)
	sender := newKey(1)
	f.fund(sender, 1e10)
	f.delegate(newKey(3), "taken")
	before := f.account(sender.address)

	tx := f.sign(sender, &types.Transaction{Type: types.TxTypeDelegate, Asset: types.Asset{Delegate: &types.DelegateAsset{Username: "taken"}}})
	err := f.reg.ApplyConfirmed(f.ledger, tx, testBlock(1), before)
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	require.True(t, before.Equal(f.account(sender.address)), "balance debit leaked")
}

func TestSecondSignatureRequiredAfterRegistration(t *testing.T) {
	f := newFixture(t)
	sender, second := newKey(1), newKey(2)
	f.fund(sender, 1e10)

	reg := f.sign(sender, &types.Transaction{Type: types.TxTypeSecondSignature, Asset: types.Asset{Signature: &types.SignatureAsset{PublicKey: second.pub}}})
	require.NoError(t, f.admit(reg, 1))
	again := f.sign(sender, &types.Transaction{Type: types.TxTypeSecondSignature, Timestamp: 101, Asset: types.Asset{Signature: &types.SignatureAsset{PublicKey: second.pub}}})
	if err := f.admit(again, 1); !errors.Is(err, ErrSecondSigEnabled) {
		t.Fatalf("expected ErrSecondSigEnabled, got %v", err)
	}
	require.NoError(t, f.confirm(reg, testBlock(2)))
	acc := f.account(sender.address)
	require.True(t, acc.Confirmed.SecondSignature)
	require.Equal(t, []byte(second.pub), acc.SecondPublicKey)

	tx := f.sign(sender, &types.Transaction{Type: types.TxTypeTransfer, RecipientID: second.address, Amount: 1})
	if err := f.reg.Verify(f.ledger, tx, acc, 3); !errors.Is(err, ErrMissingSecondSig) {
		t.Fatalf("expected ErrMissingSecondSig, got %v", err)
	}
	sig, err := f.reg.SecondSign(second.priv, tx)
	require.NoError(t, err)
	tx.SignSignature = sig
	require.NoError(t, f.reg.Verify(f.ledger, tx, acc, 3))
}

func TestDelegateUsernameRules(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"genesis_1", true},
		{"a!@$&_.", true},
		{"Upper", false},
		{"", false},
		{"123L", false},
		{"has space", false},
		{strings.Repeat("a", 21), false},
		{strings.Repeat("a", 20), true},
	}
	for _, tc := range cases {
		err := checkUsername(tc.name)
		if tc.ok && err != nil {
			t.Fatalf("%q: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidUsername) {
			t.Fatalf("%q: expected ErrInvalidUsername, got %v", tc.name, err)
		}
	}
}

func TestDelegateNamespaces(t *testing.T) {
	f := newFixture(t)
	a, b := newKey(1), newKey(2)
	f.fund(a, 1e10)
	f.fund(b, 1e10)

	first := f.sign(a, &types.Transaction{Type: types.TxTypeDelegate, Asset: types.Asset{Delegate: &types.DelegateAsset{Username: "alice"}}})
	require.NoError(t, f.admit(first, 1))

	clash := f.sign(b, &types.Transaction{Type: types.TxTypeDelegate, Asset: types.Asset{Delegate: &types.DelegateAsset{Username: "alice"}}})
	if err := f.admit(clash, 1); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected unconfirmed username clash, got %v", err)
	}
	got, err := f.ledger.AccountByUsername("alice")
	require.NoError(t, err)
	require.Nil(t, got, "confirmed namespace must stay empty until confirmation")

	require.NoError(t, f.confirm(first, testBlock(5)))
	got, err = f.ledger.AccountByUsername("alice")
	require.NoError(t, err)
	require.Equal(t, a.address, got.Address)
	if err := f.reg.Verify(f.ledger, clash, f.account(b.address), 6); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected confirmed username clash, got %v", err)
	}
}

func TestDelegateUndoClearsVote(t *testing.T) {
	f := newFixture(t)
	a := newKey(1)
	f.fund(a, 1e10)

	reg := f.sign(a, &types.Transaction{Type: types.TxTypeDelegate, Asset: types.Asset{Delegate: &types.DelegateAsset{Username: "alice"}}})
	require.NoError(t, f.admit(reg, 1))
	require.NoError(t, f.confirm(reg, testBlock(5)))
	_, err := f.ledger.Merge(a.address, types.Diff{Vote: 7500})
	require.NoError(t, err)

	f.undo(reg, testBlock(5))
	acc := f.account(a.address)
	require.False(t, acc.Confirmed.IsDelegate)
	require.Empty(t, acc.Confirmed.Username)
	require.Zero(t, acc.Vote, "vote weight must not outlive the registration")
}

func TestVoteRejections(t *testing.T) {
	f := newFixture(t)
	voter, target := newKey(1), newKey(2)
	f.fund(voter, 1e10)
	f.delegate(target, "target")
	tooMany := make([]string, 34)
	for i := range tooMany {
		tooMany[i] = "+" + newKey(byte(10+i)).hex()
	}

	cases := []struct {
		name  string
		votes []string
		want  error
	}{
		{"empty", nil, ErrEmptyVotes},
		{"too many", tooMany, ErrTooManyVotes},
		{"add and remove same", []string{"+" + target.hex(), "-" + target.hex()}, ErrDuplicateVote},
		{"remove not held", []string{"-" + target.hex()}, ErrNotVoted},
		{"not a delegate", []string{"+" + newKey(9).hex()}, ErrDelegateNotFound},
		{"bad format", []string{"*" + target.hex()}, ErrInvalidVote},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := f.sign(voter, &types.Transaction{Type: types.TxTypeVote, RecipientID: voter.address, Asset: types.Asset{Votes: tc.votes}})
			err := f.reg.Verify(f.ledger, tx, f.account(voter.address), 1)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestVoteApplyUndoSymmetry(t *testing.T) {
	f := newFixture(t)
	voter, d1, d2 := newKey(1), newKey(2), newKey(3)
	f.fund(voter, 1e10)
	f.delegate(d1, "one")
	f.delegate(d2, "two")
	before := f.account(voter.address)

	tx := f.sign(voter, &types.Transaction{Type: types.TxTypeVote, RecipientID: voter.address, Asset: types.Asset{Votes: []string{"+" + d2.hex(), "+" + d1.hex()}}})
	require.NoError(t, f.admit(tx, 1))
	again := f.sign(voter, &types.Transaction{Type: types.TxTypeVote, RecipientID: voter.address, Timestamp: 120, Asset: types.Asset{Votes: []string{"+" + d1.hex()}}})
	if err := f.admit(again, 1); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted against unconfirmed votes, got %v", err)
	}

	block := testBlock(10)
	require.NoError(t, f.confirm(tx, block))
	require.ElementsMatch(t, []string{d1.hex(), d2.hex()}, f.account(voter.address).Confirmed.Delegates)

	f.undo(tx, block)
	require.True(t, before.SameState(f.account(voter.address)))
}

func TestVoteAccountLimit(t *testing.T) {
	params := testParams()
	params.MaxVotesPerAccount = 2
	f := newFixtureWith(t, params)
	voter := newKey(1)
	f.fund(voter, 1e10)
	keys := []keypair{newKey(2), newKey(3), newKey(4)}
	votes := make([]string, 0, len(keys))
	for i, k := range keys {
		f.delegate(k, "d"+string(rune('a'+i)))
		votes = append(votes, "+"+k.hex())
	}
	tx := f.sign(voter, &types.Transaction{Type: types.TxTypeVote, RecipientID: voter.address, Asset: types.Asset{Votes: votes}})
	if err := f.reg.Verify(f.ledger, tx, f.account(voter.address), 1); !errors.Is(err, ErrVoteLimit) {
		t.Fatalf("expected ErrVoteLimit, got %v", err)
	}
}

func TestMultisignatureRegistration(t *testing.T) {
	f := newFixture(t)
	owner, c1, c2 := newKey(1), newKey(2), newKey(3)
	f.fund(owner, 1e10)
	before := f.account(owner.address)

	tx := &types.Transaction{Type: types.TxTypeMultisignature, Asset: types.Asset{Multisignature: &types.MultisignatureAsset{
		Min: 2, Lifetime: 1, Keysgroup: []string{"+" + c1.hex(), "+" + c2.hex()},
	}}}
	f.sign(owner, tx)
	require.Equal(t, int64(3*5e8), tx.Fee)
	require.False(t, f.reg.Ready(tx, before), "no cosignatures yet")

	for _, k := range []keypair{c1, c2} {
		sig, err := f.reg.MultiSign(k.priv, tx)
		require.NoError(t, err)
		tx.Signatures = append(tx.Signatures, sig)
	}
	require.True(t, f.reg.Ready(tx, before))
	require.NoError(t, f.admit(tx, 1))

	h, err := f.reg.Handler(types.TxTypeMultisignature)
	require.NoError(t, err)
	ms := h.(*multisignature)
	require.True(t, ms.Pending(owner.address))

	other := f.sign(owner, &types.Transaction{Type: types.TxTypeMultisignature, Timestamp: 150, Asset: types.Asset{Multisignature: &types.MultisignatureAsset{
		Min: 1, Lifetime: 1, Keysgroup: []string{"+" + c1.hex()},
	}}})
	if err := f.reg.ApplyUnconfirmed(f.ledger, other, f.account(owner.address)); !errors.Is(err, ErrMultisigPending) {
		t.Fatalf("expected ErrMultisigPending, got %v", err)
	}

	block := testBlock(3)
	require.NoError(t, f.confirm(tx, block))
	require.False(t, ms.Pending(owner.address))
	acc := f.account(owner.address)
	require.Equal(t, int64(2), acc.Confirmed.MultiMin)
	require.Len(t, acc.Confirmed.Multisignatures, 2)

	f.undo(tx, block)
	require.True(t, before.SameState(f.account(owner.address)))
}

func TestMultisignatureKeysgroupRules(t *testing.T) {
	f := newFixture(t)
	owner, c1 := newKey(1), newKey(2)
	acc := f.fund(owner, 1e10)
	cases := []struct {
		name string
		ms   types.MultisignatureAsset
		want error
	}{
		{"empty", types.MultisignatureAsset{Min: 1, Lifetime: 1}, ErrInvalidKeysgroup},
		{"min above group", types.MultisignatureAsset{Min: 2, Lifetime: 1, Keysgroup: []string{"+" + c1.hex()}}, ErrInvalidMultisigMin},
		{"lifetime", types.MultisignatureAsset{Min: 1, Lifetime: 73, Keysgroup: []string{"+" + c1.hex()}}, ErrInvalidLifetime},
		{"contains sender", types.MultisignatureAsset{Min: 1, Lifetime: 1, Keysgroup: []string{"+" + owner.hex()}}, ErrInvalidKeysgroup},
		{"duplicate", types.MultisignatureAsset{Min: 1, Lifetime: 1, Keysgroup: []string{"+" + c1.hex(), "+" + c1.hex()}}, ErrInvalidKeysgroup},
		{"no operator", types.MultisignatureAsset{Min: 1, Lifetime: 1, Keysgroup: []string{c1.hex()}}, ErrInvalidKeysgroup},
	}
	h, err := f.reg.Handler(types.TxTypeMultisignature)
	require.NoError(t, err)
	for _, tc := range cases {
		ms := tc.ms
		tx := &types.Transaction{Type: types.TxTypeMultisignature, SenderPublicKey: owner.pub, Asset: types.Asset{Multisignature: &ms}}
		if err := h.Verify(f.ledger, tx, acc); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestFrozenTypesRejectedAtFreezeHeight(t *testing.T) {
	params := testParams()
	params.FreezeHeight = 10
	f := newFixtureWith(t, params)
	owner := newKey(1)
	f.fund(owner, 1e10)
	tx := f.sign(owner, &types.Transaction{Type: types.TxTypeDapp, Asset: types.Asset{Dapp: &types.DappAsset{
		Name: "app", Link: "https://example.com/app.zip",
	}}})
	acc := f.account(owner.address)

	require.NoError(t, f.reg.Verify(f.ledger, tx, acc, 9))
	if err := f.reg.Verify(f.ledger, tx, acc, 10); !errors.Is(err, ErrFrozen) {
		t.Fatalf("expected ErrFrozen, got %v", err)
	}
	require.False(t, f.reg.Frozen(types.TxTypeTransfer, 100))

	// History stays replayable past the freeze.
	require.NoError(t, f.reg.ApplyUnconfirmed(f.ledger, tx, acc))
	require.NoError(t, f.confirm(tx, testBlock(11)))
}

func TestDappReservationsAndTransfers(t *testing.T) {
	f := newFixture(t)
	owner, user := newKey(1), newKey(2)
	f.fund(owner, 1e10)
	f.fund(user, 1e10)

	reg := f.sign(owner, &types.Transaction{Type: types.TxTypeDapp, Asset: types.Asset{Dapp: &types.DappAsset{
		Name: "app", Link: "https://example.com/app.zip", Icon: "https://example.com/icon.png", Tags: "a,b",
	}}})
	require.NoError(t, f.admit(reg, 1))
	dup := f.sign(user, &types.Transaction{Type: types.TxTypeDapp, Asset: types.Asset{Dapp: &types.DappAsset{
		Name: "app", Link: "https://example.com/other.zip",
	}}})
	if err := f.admit(dup, 1); !errors.Is(err, ErrDappNameTaken) {
		t.Fatalf("expected ErrDappNameTaken, got %v", err)
	}
	require.NoError(t, f.confirm(reg, testBlock(2)))
	if err := f.admit(dup, 3); !errors.Is(err, ErrDappNameTaken) {
		t.Fatalf("expected persisted ErrDappNameTaken, got %v", err)
	}

	in := f.sign(user, &types.Transaction{Type: types.TxTypeInTransfer, Amount: 1000, Asset: types.Asset{InTransfer: &types.InTransferAsset{DappID: reg.ID}}})
	ownerBefore := f.account(owner.address)
	require.NoError(t, f.admit(in, 3))
	require.NoError(t, f.confirm(in, testBlock(3)))
	require.Equal(t, ownerBefore.Confirmed.Balance+1000, f.account(owner.address).Confirmed.Balance)

	out := f.sign(owner, &types.Transaction{Type: types.TxTypeOutTransfer, RecipientID: user.address, Amount: 500, Asset: types.Asset{OutTransfer: &types.OutTransferAsset{
		DappID: reg.ID, TransactionID: "777",
	}}})
	require.NoError(t, f.admit(out, 4))
	if err := f.reg.Process(f.ledger, out, f.account(owner.address)); !errors.Is(err, ErrOutTransferInFlight) {
		t.Fatalf("expected ErrOutTransferInFlight, got %v", err)
	}
	require.NoError(t, f.confirm(out, testBlock(4)))
	out2 := f.sign(owner, &types.Transaction{Type: types.TxTypeOutTransfer, RecipientID: user.address, Amount: 1, Timestamp: 300, Asset: types.Asset{OutTransfer: &types.OutTransferAsset{
		DappID: reg.ID, TransactionID: "777",
	}}})
	if err := f.reg.Process(f.ledger, out2, f.account(owner.address)); !errors.Is(err, ErrOutTransferConfirmed) {
		t.Fatalf("expected ErrOutTransferConfirmed, got %v", err)
	}
}

func TestObjectNormalize(t *testing.T) {
	f := newFixture(t)
	sender := newKey(1)
	tx := f.sign(sender, &types.Transaction{Type: types.TxTypeVote, RecipientID: sender.address, Asset: types.Asset{Votes: []string{"+" + newKey(2).hex()}}})
	require.NoError(t, f.reg.ObjectNormalize(tx))

	tx.Asset.Votes = append(tx.Asset.Votes, tx.Asset.Votes[0])
	err := f.reg.ObjectNormalize(tx)
	require.True(t, IsValidationError(err), "got %v", err)

	tx.Asset.Votes = tx.Asset.Votes[:1]
	tx.Signature = tx.Signature[:10]
	var ve *ValidationError
	require.ErrorAs(t, f.reg.ObjectNormalize(tx), &ve)
	require.Equal(t, "signature", ve.Field)

	unknown := &types.Transaction{Type: types.TxType(42)}
	require.ErrorIs(t, f.reg.ObjectNormalize(unknown), ErrUnknownType)
}

func TestRowRoundTrip(t *testing.T) {
	f := newFixture(t)
	sender, member := newKey(1), newKey(2)
	tx := f.sign(sender, &types.Transaction{Type: types.TxTypeMultisignature, Asset: types.Asset{Multisignature: &types.MultisignatureAsset{
		Min: 1, Lifetime: 5, Keysgroup: []string{"+" + member.hex()},
	}}})
	sig, err := f.reg.MultiSign(member.priv, tx)
	require.NoError(t, err)
	tx.Signatures = []string{sig}
	tx.BlockID, tx.Height = "55", 7

	back, err := f.reg.DBRead(f.reg.Row(tx))
	require.NoError(t, err)
	require.Equal(t, tx.ID, back.ID)
	require.Equal(t, tx.Asset.Multisignature, back.Asset.Multisignature)
	require.Equal(t, tx.Signatures, back.Signatures)
	id, err := f.reg.GetID(back)
	require.NoError(t, err)
	require.Equal(t, tx.ID, id)

	empty, err := f.reg.DBRead(&types.TxRow{})
	require.NoError(t, err)
	require.Nil(t, empty)
}
