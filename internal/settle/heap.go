package settle

import (
	"bytes"

	"github.com/google/uuid"
)

type position struct {
	memberID uuid.UUID
	amount   int64
	index    int
}

// balanceHeap is a max-heap on amount. Equal amounts are broken by the
// lower member id so repeated runs over the same balances produce the
// same matching order.
type balanceHeap []*position

func (h balanceHeap) Len() int { return len(h) }

func (h balanceHeap) Less(i, j int) bool {
	if h[i].amount != h[j].amount {
		return h[i].amount > h[j].amount
	}
	return bytes.Compare(h[i].memberID[:], h[j].memberID[:]) < 0
}

func (h balanceHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *balanceHeap) Push(x interface{}) {
	p := x.(*position)
	p.index = len(*h)
	*h = append(*h, p)
}

func (h *balanceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	p := old[n-1]
	old[n-1] = nil
	p.index = -1
	*h = old[0 : n-1]
	return p
}
