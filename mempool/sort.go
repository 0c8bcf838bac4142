package mempool

import (
	"sort"

	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
)

// SortForBlock orders transactions for block assembly: ascending type, then
// descending amount within a type, with multisignature registrations after
// every other type. The input slice is not modified.
func SortForBlock(txs []*types.Transaction) []*types.Transaction {
	out := append([]*types.Transaction(nil), txs...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		am, bm := a.Type == types.TxTypeMultisignature, b.Type == types.TxTypeMultisignature
		if am != bm {
			return bm
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Amount > b.Amount
	})
	return out
}
