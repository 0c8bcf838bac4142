package sqlstore

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LiskArchive/lisk-sdk-sub000/core/tx"
	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
	"github.com/LiskArchive/lisk-sdk-sub000/storage"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	reg, err := tx.NewRegistry(tx.DefaultParams(), nil)
	require.NoError(t, err)
	store, err := Open("sqlite", filepath.Join(t.TempDir(), "ledger.db"), reg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func key(seed byte) []byte { return bytes.Repeat([]byte{seed}, 32) }

func sampleBlock(height uint64) *types.Block {
	sender := key(1)
	dapp := &types.Transaction{
		ID:              "1001",
		Type:            types.TxTypeDapp,
		Timestamp:       10,
		SenderPublicKey: sender,
		SenderID:        types.AddressFromPublicKey(sender),
		Fee:             tx.DefaultFees().Dapp,
		Signature:       bytes.Repeat([]byte{0xaa}, 64),
		Asset: types.Asset{Dapp: &types.DappAsset{
			Category: 1,
			Name:     "ledger-app",
			Type:     0,
			Link:     "https://example.com/app.zip",
		}},
	}
	transfer := &types.Transaction{
		ID:              "1002",
		Type:            types.TxTypeTransfer,
		Timestamp:       11,
		SenderPublicKey: sender,
		SenderID:        types.AddressFromPublicKey(sender),
		RecipientID:     "58191285901858109L",
		Amount:          42,
		Fee:             tx.DefaultFees().Transfer,
		Signature:       bytes.Repeat([]byte{0xbb}, 64),
	}
	out := &types.Transaction{
		ID:              "1003",
		Type:            types.TxTypeOutTransfer,
		Timestamp:       12,
		SenderPublicKey: sender,
		SenderID:        types.AddressFromPublicKey(sender),
		RecipientID:     "58191285901858109L",
		Amount:          5,
		Fee:             tx.DefaultFees().OutTransfer,
		Signature:       bytes.Repeat([]byte{0xcc}, 64),
		Asset:           types.Asset{OutTransfer: &types.OutTransferAsset{DappID: "1001", TransactionID: "777"}},
	}
	return &types.Block{
		ID:                 "b" + string(rune('0'+height)),
		Height:             height,
		Timestamp:          100,
		GeneratorPublicKey: key(9),
		Transactions:       []*types.Transaction{dapp, transfer, out},
		TotalFee:           dapp.Fee + transfer.Fee + out.Fee,
		TotalAmount:        47,
		Reward:             500_000_000,
	}
}

func TestSaveAndLoadBlock(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	height, err := store.Height(ctx)
	require.NoError(t, err)
	require.Zero(t, height)
	_, err = store.LastBlock(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	block := sampleBlock(1)
	require.NoError(t, store.SaveBlock(ctx, block, nil))

	height, err = store.Height(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), height)

	loaded, err := store.LastBlock(ctx)
	require.NoError(t, err)
	require.Equal(t, block.ID, loaded.ID)
	require.Equal(t, block.GeneratorPublicKey, loaded.GeneratorPublicKey)
	require.Equal(t, block.Reward, loaded.Reward)
	require.Len(t, loaded.Transactions, 3)
	for i, want := range block.Transactions {
		got := loaded.Transactions[i]
		require.Equal(t, want.ID, got.ID)
		require.Equal(t, want.Type, got.Type)
		require.Equal(t, want.Amount, got.Amount)
		require.Equal(t, want.Signature, got.Signature)
		require.Equal(t, block.ID, got.BlockID)
	}
	require.Equal(t, "ledger-app", loaded.Transactions[0].Asset.Dapp.Name)
	require.Equal(t, "777", loaded.Transactions[2].Asset.OutTransfer.TransactionID)

	byHeight, err := store.BlockByHeight(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, block.ID, byHeight.ID)
}

func TestTransactionStoreQueries(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.SaveBlock(context.Background(), sampleBlock(1), nil))

	ok, err := store.TransactionExists("1002")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.TransactionExists("9999")
	require.NoError(t, err)
	require.False(t, ok)

	dapp, err := store.Dapp("1001")
	require.NoError(t, err)
	require.NotNil(t, dapp)
	require.Equal(t, "https://example.com/app.zip", dapp.Asset.Dapp.Link)
	missing, err := store.Dapp("1002")
	require.NoError(t, err)
	require.Nil(t, missing, "a transfer is not an application")

	ok, err = store.DappNameExists("ledger-app")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.DappLinkExists("https://example.com/other.zip")
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = store.OutTransferExists("777")
	require.NoError(t, err)
	require.True(t, ok)

	var _ tx.TransactionStore = store
}

func TestDeleteBlockRemovesTransactions(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	first := sampleBlock(1)
	require.NoError(t, store.SaveBlock(ctx, first, nil))
	second := &types.Block{ID: "b2", Height: 2, GeneratorPublicKey: key(8), Reward: 1}
	require.NoError(t, store.SaveBlock(ctx, second, &types.Round{Number: 1, Generators: []string{"08"}, Rewards: []int64{1}, LastBlockID: "b2"}))

	headers, err := store.BlocksByHeight(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, headers, 2)
	require.Equal(t, uint64(1), headers[0].Height)
	require.Empty(t, headers[0].Transactions)

	require.NoError(t, store.DeleteBlock(ctx, first.ID, 0))
	ok, err := store.TransactionExists("1001")
	require.NoError(t, err)
	require.False(t, ok)
	require.ErrorIs(t, store.DeleteBlock(ctx, first.ID, 0), ErrNotFound)

	last, err := store.LastBlock(ctx)
	require.NoError(t, err)
	require.Equal(t, "b2", last.ID)

	settled, err := store.Round(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "b2", settled.LastBlockID)
	require.NoError(t, store.DeleteBlock(ctx, "b2", 1))
	_, err = store.Round(ctx, 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDuplicateBlockRejected(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveBlock(ctx, sampleBlock(1), nil))
	require.Error(t, store.SaveBlock(ctx, sampleBlock(1), nil))
	ok, err := store.TransactionExists("1002")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRoundRecords(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	r := &types.Round{
		Number:      3,
		Delegates:   []string{"aa", "bb"},
		Generators:  []string{"aa", "aa"},
		Rewards:     []int64{5, 5},
		TotalFees:   23,
		LastBlockID: "b6",
		Votes: []types.DelegateVote{
			{PublicKey: "aa", Vote: 400, Rank: 1},
			{PublicKey: "bb", Vote: 0, Rank: 2},
		},
		NextDelegates: []string{"bb", "aa"},
	}
	require.NoError(t, store.SaveRound(ctx, r))
	r.TotalFees = 24
	require.NoError(t, store.SaveRound(ctx, r))

	got, err := store.Round(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, r, got)

	require.NoError(t, store.DeleteRound(ctx, 3))
	_, err = store.Round(ctx, 3)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	reg, err := tx.NewRegistry(tx.DefaultParams(), nil)
	require.NoError(t, err)
	_, err = Open("oracle", "dsn", reg, nil)
	require.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestUnboundCodec(t *testing.T) {
	store, err := Open("sqlite", filepath.Join(t.TempDir(), "ledger.db"), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	require.ErrorIs(t, store.SaveBlock(ctx, sampleBlock(1), nil), ErrNoCodec)
	require.NoError(t, store.SaveBlock(ctx, &types.Block{ID: "empty", Height: 1, GeneratorPublicKey: key(1)}, nil))

	reg, err := tx.NewRegistry(tx.DefaultParams(), store)
	require.NoError(t, err)
	store.BindCodec(reg)
	require.NoError(t, store.SaveBlock(ctx, sampleBlock(2), nil))
	ok, err := store.DappNameExists("ledger-app")
	require.NoError(t, err)
	require.True(t, ok)
}
