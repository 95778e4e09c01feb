// Package settle turns a room's net balances into a payment plan under a
// selectable strategy.
package settle

import (
	"bytes"
	"container/heap"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/susu3304/warikan/internal/ledger"
)

// Strategy selects how a settlement plan is derived.
type Strategy string

const (
	// StrategyReset clears any simplification: the plan is always empty and
	// clients fall back to reading the raw balances.
	StrategyReset Strategy = "RESET"
	// StrategyGreedy matches the largest creditor against the largest debtor
	// until all balances are zero. At most n-1 edges for n nonzero balances.
	StrategyGreedy Strategy = "GREEDY"
	// StrategyPreserve nets each directly-transacting pair into one edge and
	// never connects members who never transacted with each other.
	StrategyPreserve Strategy = "PRESERVE"

	DefaultStrategy = StrategyGreedy
)

var ErrUnknownStrategy = errors.New("unknown settlement strategy")

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyReset, StrategyGreedy, StrategyPreserve:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// Edge is one proposed settling payment: From pays To Amount minor units.
type Edge struct {
	From   uuid.UUID `json:"from_member_id"`
	To     uuid.UUID `json:"to_member_id"`
	Amount int64     `json:"amount"`
}

// Plan derives a settlement plan. GREEDY reads the balance vector, PRESERVE
// reads the transactions themselves; neither mutates anything. The result
// applied as transactions drives every balance to zero.
func Plan(strategy Strategy, balances map[uuid.UUID]int64, txs []ledger.Transaction) ([]Edge, error) {
	switch strategy {
	case StrategyReset:
		return nil, nil
	case StrategyGreedy:
		return greedy(balances), nil
	case StrategyPreserve:
		return preserve(txs), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

func greedy(balances map[uuid.UUID]int64) []Edge {
	creditors := make(balanceHeap, 0, len(balances))
	debtors := make(balanceHeap, 0, len(balances))
	for id, b := range balances {
		switch {
		case b > 0:
			creditors = append(creditors, &position{memberID: id, amount: b})
		case b < 0:
			debtors = append(debtors, &position{memberID: id, amount: -b})
		}
	}
	heap.Init(&creditors)
	heap.Init(&debtors)

	var edges []Edge
	for creditors.Len() > 0 && debtors.Len() > 0 {
		c := heap.Pop(&creditors).(*position)
		d := heap.Pop(&debtors).(*position)
		amount := c.amount
		if d.amount < amount {
			amount = d.amount
		}
		edges = append(edges, Edge{From: d.memberID, To: c.memberID, Amount: amount})
		c.amount -= amount
		d.amount -= amount
		if c.amount > 0 {
			heap.Push(&creditors, c)
		}
		if d.amount > 0 {
			heap.Push(&debtors, d)
		}
	}
	return edges
}

type pair struct {
	a, b uuid.UUID
}

func preserve(txs []ledger.Transaction) []Edge {
	// net[pair] is how much a owes b, with a < b by id.
	net := make(map[pair]int64)
	for _, tx := range txs {
		if bytes.Compare(tx.From[:], tx.To[:]) < 0 {
			net[pair{tx.From, tx.To}] += tx.Amount
		} else {
			net[pair{tx.To, tx.From}] -= tx.Amount
		}
	}
	edges := make([]Edge, 0, len(net))
	for p, amount := range net {
		switch {
		case amount > 0:
			edges = append(edges, Edge{From: p.a, To: p.b, Amount: amount})
		case amount < 0:
			edges = append(edges, Edge{From: p.b, To: p.a, Amount: -amount})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if c := bytes.Compare(edges[i].From[:], edges[j].From[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(edges[i].To[:], edges[j].To[:]) < 0
	})
	return edges
}
