package mempool

import "github.com/LiskArchive/lisk-sdk-sub000/core/types"

// queue is an insertion ordered list with an id index. Removal leaves a hole
// that is compacted once holes outnumber live entries.
type queue struct {
	name  string
	txs   []*types.Transaction
	index map[string]int
	live  int
}

func newQueue(name string) *queue {
	return &queue{name: name, index: make(map[string]int)}
}

func (q *queue) len() int { return q.live }

func (q *queue) has(id string) bool {
	_, ok := q.index[id]
	return ok
}

func (q *queue) get(id string) *types.Transaction {
	idx, ok := q.index[id]
	if !ok {
		return nil
	}
	return q.txs[idx]
}

func (q *queue) add(tx *types.Transaction) bool {
	if q.has(tx.ID) {
		return false
	}
	q.index[tx.ID] = len(q.txs)
	q.txs = append(q.txs, tx)
	q.live++
	return true
}

func (q *queue) remove(id string) *types.Transaction {
	idx, ok := q.index[id]
	if !ok {
		return nil
	}
	tx := q.txs[idx]
	q.txs[idx] = nil
	delete(q.index, id)
	q.live--
	if holes := len(q.txs) - q.live; holes > 32 && holes > q.live {
		q.compact()
	}
	return tx
}

// oldest returns the entry admitted first.
func (q *queue) oldest() *types.Transaction {
	for _, tx := range q.txs {
		if tx != nil {
			return tx
		}
	}
	return nil
}

func (q *queue) compact() {
	out := make([]*types.Transaction, 0, q.live)
	for _, tx := range q.txs {
		if tx == nil {
			continue
		}
		q.index[tx.ID] = len(out)
		out = append(out, tx)
	}
	q.txs = out
}

// list returns up to limit live entries in admission order, or newest first
// when reverse is set. A non-positive limit returns every entry.
func (q *queue) list(reverse bool, limit int, keep func(*types.Transaction) bool) []*types.Transaction {
	if limit <= 0 || limit > q.live {
		limit = q.live
	}
	out := make([]*types.Transaction, 0, limit)
	visit := func(tx *types.Transaction) bool {
		if tx == nil || (keep != nil && !keep(tx)) {
			return true
		}
		out = append(out, tx)
		return len(out) < limit
	}
	if reverse {
		for i := len(q.txs) - 1; i >= 0; i-- {
			if !visit(q.txs[i]) {
				break
			}
		}
	} else {
		for _, tx := range q.txs {
			if !visit(tx) {
				break
			}
		}
	}
	return out
}
