// Package room serializes all mutations to a shared ledger room and keeps
// every live subscriber's view consistent with the transaction history.
package room

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/susu3304/warikan/internal/ledger"
	"github.com/susu3304/warikan/internal/settle"
)

// Room is the single owner of one room's ledger. Every mutation runs under
// its mutex: validate, write through the store, apply in memory, recompute
// the plan and publish the delta, in that order. Different rooms proceed in
// parallel; operations on one room are totally ordered.
type Room struct {
	mu       sync.Mutex
	info     Info
	ledger   *ledger.Ledger
	strategy settle.Strategy
	plan     []settle.Edge
	store    Store
	bcast    *Broadcaster
	log      *zap.Logger
}

func newRoom(state *State, store Store, bcast *Broadcaster, log *zap.Logger) *Room {
	r := &Room{
		info:     state.Info,
		ledger:   ledger.Restore(state.Info.ID, state.Members, state.Transactions),
		strategy: settle.DefaultStrategy,
		store:    store,
		bcast:    bcast,
		log:      log.With(zap.String("room_id", state.Info.ID.String())),
	}
	r.recompute()
	return r
}

func (r *Room) ID() uuid.UUID { return r.info.ID }

func (r *Room) IsMember(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.HasMember(id)
}

// Snapshot is a consistent read of the room: members, history and the plan
// derived from exactly that history.
type Snapshot struct {
	Room         Info                 `json:"room"`
	Members      []ledger.Member      `json:"members"`
	Transactions []ledger.Transaction `json:"transactions"`
	Plan         []settle.Edge        `json:"settlement_plan"`
	Strategy     settle.Strategy      `json:"strategy"`
}

func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() Snapshot {
	return Snapshot{
		Room:         r.info,
		Members:      r.ledger.Members(),
		Transactions: r.ledger.Transactions(),
		Plan:         r.plan,
		Strategy:     r.strategy,
	}
}

// SnapshotAndSubscribe registers a subscriber under the same lock that
// serializes mutations, so no delta published after the snapshot was taken
// can be missed.
func (r *Room) SnapshotAndSubscribe() (Snapshot, *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.snapshotLocked()
	sub := r.bcast.Subscribe(r.info.ID)
	return snap, sub
}

// Append validates and records a group of draft transactions atomically.
// A single transaction is a group of one.
func (r *Room) Append(ctx context.Context, drafts []ledger.Transaction) ([]ledger.Transaction, []settle.Edge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	staged, err := r.ledger.Stage(drafts)
	if err != nil {
		return nil, nil, err
	}
	if err := r.store.AppendTransactions(ctx, staged); err != nil {
		return nil, nil, fmt.Errorf("persist transactions: %w", err)
	}
	r.ledger.Commit(staged)
	r.recompute()
	r.publish(Delta{NewTransactions: staged, Plan: r.plan})
	return staged, r.plan, nil
}

// DeleteTransaction removes one transaction. Deleting an id that does not
// exist succeeds without side effects.
func (r *Room) DeleteTransaction(ctx context.Context, id int64) ([]settle.Edge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ledger.Transaction(id); !ok {
		return r.plan, nil
	}
	if err := r.store.DeleteTransaction(ctx, r.info.ID, id); err != nil {
		return nil, fmt.Errorf("delete transaction: %w", err)
	}
	r.ledger.Delete(id)
	r.recompute()
	r.publish(Delta{DeletedTransactionIDs: []int64{id}, Plan: r.plan})
	return r.plan, nil
}

// DeleteGroup removes every transaction of a group in one step. An absent
// group is a no-op success.
func (r *Room) DeleteGroup(ctx context.Context, groupID uuid.UUID) ([]settle.Edge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	group := r.ledger.Group(groupID)
	if len(group) == 0 {
		return r.plan, nil
	}
	if err := r.store.DeleteGroup(ctx, r.info.ID, groupID); err != nil {
		return nil, fmt.Errorf("delete group: %w", err)
	}
	removed := r.ledger.DeleteGroup(groupID)
	ids := make([]int64, 0, len(removed))
	for _, tx := range removed {
		ids = append(ids, tx.ID)
	}
	r.recompute()
	r.publish(Delta{DeletedTransactionIDs: ids, Plan: r.plan})
	return r.plan, nil
}

// Join adds a member. Joining twice is a no-op.
func (r *Room) Join(ctx context.Context, m ledger.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ledger.HasMember(m.ID) {
		return nil
	}
	if err := r.store.AddMember(ctx, r.info.ID, m); err != nil {
		return fmt.Errorf("persist member: %w", err)
	}
	r.ledger.AddMember(m)
	joined := m
	r.publish(Delta{Plan: r.plan, NewMember: &joined})
	return nil
}

// Leave removes a member. Refused while the member's balance is nonzero so
// remaining balances stay explainable; leaving a room one is not in is a
// no-op.
func (r *Room) Leave(ctx context.Context, memberID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ledger.HasMember(memberID) {
		return nil
	}
	if r.ledger.Balances()[memberID] != 0 {
		return ledger.ErrMemberHasBalance
	}
	if err := r.store.RemoveMember(ctx, r.info.ID, memberID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return r.ledger.RemoveMember(memberID)
}

// Simplify selects a settlement strategy and recomputes the plan from the
// current ledger. The ledger itself is never mutated.
func (r *Room) Simplify(strategy settle.Strategy) ([]settle.Edge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	plan, err := settle.Plan(strategy, r.ledger.Balances(), r.ledger.Transactions())
	if err != nil {
		return nil, err
	}
	r.strategy = strategy
	r.plan = plan
	r.publish(Delta{Plan: plan})
	return plan, nil
}

// recompute refreshes the plan under the selected strategy. Caller holds
// r.mu.
func (r *Room) recompute() {
	plan, err := settle.Plan(r.strategy, r.ledger.Balances(), r.ledger.Transactions())
	if err != nil {
		// Unreachable: the stored strategy is always one of the known ones.
		r.log.Error("plan recomputation failed", zap.Error(err))
		return
	}
	r.plan = plan
}

func (r *Room) publish(d Delta) {
	r.bcast.Publish(r.info.ID, d)
}
