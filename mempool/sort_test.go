package mempool

import (
	"testing"

	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
)

func TestSortForBlock(t *testing.T) {
	in := []*types.Transaction{
		{ID: "m", Type: types.TxTypeMultisignature},
		{ID: "v", Type: types.TxTypeVote},
		{ID: "t-small", Type: types.TxTypeTransfer, Amount: 1},
		{ID: "d", Type: types.TxTypeDapp},
		{ID: "t-big", Type: types.TxTypeTransfer, Amount: 100},
		{ID: "s", Type: types.TxTypeSecondSignature},
	}
	got := SortForBlock(in)
	want := []string{"t-big", "t-small", "s", "v", "d", "m"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: got %s want %s (order %v)", i, got[i].ID, id, txIDs(got))
		}
	}
	if in[0].ID != "m" {
		t.Fatalf("input slice must not be reordered")
	}
}
