package ledger

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidTransaction rejects a transaction before anything is written.
	ErrInvalidTransaction = errors.New("invalid transaction")
	// ErrMemberHasBalance refuses to remove a member who still owes or is owed.
	ErrMemberHasBalance = errors.New("member has nonzero balance")
)

// Ledger is the ordered transaction record of a single room together with
// its member set. It is not safe for concurrent use; the owning room
// coordinator serializes all access.
type Ledger struct {
	roomID   uuid.UUID
	members  map[uuid.UUID]Member
	txs      []Transaction
	nextID   int64
	balances map[uuid.UUID]int64
}

func New(roomID uuid.UUID) *Ledger {
	return &Ledger{
		roomID:   roomID,
		members:  make(map[uuid.UUID]Member),
		balances: make(map[uuid.UUID]int64),
		nextID:   1,
	}
}

// Restore rebuilds a ledger from persisted state. Transactions must already
// be ordered by id; the sequence resumes after the highest seen id.
func Restore(roomID uuid.UUID, members []Member, txs []Transaction) *Ledger {
	l := New(roomID)
	for _, m := range members {
		l.members[m.ID] = m
		l.balances[m.ID] = 0
	}
	for _, tx := range txs {
		l.txs = append(l.txs, tx)
		l.adjust(tx.From, -tx.Amount)
		l.adjust(tx.To, tx.Amount)
		if tx.ID >= l.nextID {
			l.nextID = tx.ID + 1
		}
	}
	return l
}

// adjust applies a signed balance change, dropping the entry again when a
// departed member returns to zero so the cache matches a full recompute.
func (l *Ledger) adjust(id uuid.UUID, delta int64) {
	b := l.balances[id] + delta
	if b == 0 && !l.HasMember(id) {
		delete(l.balances, id)
		return
	}
	l.balances[id] = b
}

func (l *Ledger) RoomID() uuid.UUID { return l.roomID }

func (l *Ledger) AddMember(m Member) {
	if _, ok := l.members[m.ID]; ok {
		return
	}
	l.members[m.ID] = m
	l.balances[m.ID] = 0
}

func (l *Ledger) RemoveMember(id uuid.UUID) error {
	if _, ok := l.members[id]; !ok {
		return nil
	}
	if l.balances[id] != 0 {
		return ErrMemberHasBalance
	}
	delete(l.members, id)
	delete(l.balances, id)
	return nil
}

func (l *Ledger) HasMember(id uuid.UUID) bool {
	_, ok := l.members[id]
	return ok
}

// Members returns the member set ordered by id.
func (l *Ledger) Members() []Member {
	out := make([]Member, 0, len(l.members))
	for _, m := range l.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func (l *Ledger) validate(tx Transaction) error {
	if tx.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidTransaction, tx.Amount)
	}
	if tx.From == tx.To {
		return fmt.Errorf("%w: from and to are the same member", ErrInvalidTransaction)
	}
	if !l.HasMember(tx.From) {
		return fmt.Errorf("%w: unknown member %s", ErrInvalidTransaction, tx.From)
	}
	if !l.HasMember(tx.To) {
		return fmt.Errorf("%w: unknown member %s", ErrInvalidTransaction, tx.To)
	}
	if _, err := ParseKind(string(tx.Kind)); err != nil {
		return err
	}
	return nil
}

// Stage validates a group of draft transactions and assigns ids, timestamps
// and the shared group id without committing anything. A single invalid
// draft fails the whole group. The caller persists the staged transactions
// first and then applies them with Commit, so a persistence failure leaves
// the ledger untouched.
func (l *Ledger) Stage(drafts []Transaction) ([]Transaction, error) {
	if len(drafts) == 0 {
		return nil, fmt.Errorf("%w: empty group", ErrInvalidTransaction)
	}
	groupID := uuid.New()
	now := time.Now().UTC()
	staged := make([]Transaction, 0, len(drafts))
	for i, d := range drafts {
		if err := l.validate(d); err != nil {
			return nil, err
		}
		d.ID = l.nextID + int64(i)
		d.RoomID = l.roomID
		d.GroupID = groupID
		d.CreatedAt = now
		staged = append(staged, d)
	}
	return staged, nil
}

// Commit appends transactions previously returned by Stage and advances the
// id sequence. Balances are maintained incrementally.
func (l *Ledger) Commit(staged []Transaction) {
	for _, tx := range staged {
		l.txs = append(l.txs, tx)
		l.adjust(tx.From, -tx.Amount)
		l.adjust(tx.To, tx.Amount)
		if tx.ID >= l.nextID {
			l.nextID = tx.ID + 1
		}
	}
}

// Delete removes a transaction by id. Deleting an absent id is a no-op;
// the second return value reports whether anything was removed.
func (l *Ledger) Delete(id int64) (Transaction, bool) {
	for i, tx := range l.txs {
		if tx.ID == id {
			l.txs = append(l.txs[:i], l.txs[i+1:]...)
			l.adjust(tx.From, tx.Amount)
			l.adjust(tx.To, -tx.Amount)
			return tx, true
		}
	}
	return Transaction{}, false
}

// DeleteGroup removes every transaction sharing the group id and returns
// the removed transactions. Absent groups delete nothing.
func (l *Ledger) DeleteGroup(groupID uuid.UUID) []Transaction {
	var removed []Transaction
	kept := l.txs[:0]
	for _, tx := range l.txs {
		if tx.GroupID == groupID {
			removed = append(removed, tx)
			l.adjust(tx.From, tx.Amount)
			l.adjust(tx.To, -tx.Amount)
		} else {
			kept = append(kept, tx)
		}
	}
	l.txs = kept
	return removed
}

// Transactions returns a snapshot ordered by creation id.
func (l *Ledger) Transactions() []Transaction {
	out := make([]Transaction, len(l.txs))
	copy(out, l.txs)
	return out
}

// Balances returns the net balance vector: memberID -> signed minor units.
// Every member appears, including those at zero; the values always sum to 0.
func (l *Ledger) Balances() map[uuid.UUID]int64 {
	out := make(map[uuid.UUID]int64, len(l.balances))
	for id, b := range l.balances {
		out[id] = b
	}
	return out
}

// computeBalances derives the balance vector from scratch. The incremental
// cache in Balances must always equal this; tests assert the equivalence.
func (l *Ledger) computeBalances() map[uuid.UUID]int64 {
	out := make(map[uuid.UUID]int64, len(l.members))
	for id := range l.members {
		out[id] = 0
	}
	for _, tx := range l.txs {
		out[tx.From] -= tx.Amount
		out[tx.To] += tx.Amount
	}
	// Departed members keep an entry only while their past transactions
	// still leave them at a nonzero position.
	for id, b := range out {
		if b == 0 && !l.HasMember(id) {
			delete(out, id)
		}
	}
	return out
}

// Transaction looks up a single transaction by id.
func (l *Ledger) Transaction(id int64) (Transaction, bool) {
	for _, tx := range l.txs {
		if tx.ID == id {
			return tx, true
		}
	}
	return Transaction{}, false
}

// Group returns the transactions sharing a group id, in creation order.
func (l *Ledger) Group(groupID uuid.UUID) []Transaction {
	var out []Transaction
	for _, tx := range l.txs {
		if tx.GroupID == groupID {
			out = append(out, tx)
		}
	}
	return out
}
