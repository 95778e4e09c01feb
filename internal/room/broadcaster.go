package room

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/susu3304/warikan/internal/ledger"
	"github.com/susu3304/warikan/internal/settle"
)

// Delta is the incremental change pushed to live subscribers after a room
// mutation. The plan always reflects the ledger as of this mutation.
type Delta struct {
	NewTransactions       []ledger.Transaction `json:"new_transactions,omitempty"`
	DeletedTransactionIDs []int64              `json:"deleted_transaction_ids,omitempty"`
	Plan                  []settle.Edge        `json:"settlement_plan"`
	NewMember             *ledger.Member       `json:"new_member,omitempty"`
}

// DefaultQueueSize bounds each subscriber's undelivered deltas.
const DefaultQueueSize = 16

// Broadcaster fans deltas out to the live subscribers of each room. A
// subscriber whose queue is full is torn down rather than ever blocking the
// publishing room; the client resynchronizes with a fresh snapshot.
type Broadcaster struct {
	mu        sync.Mutex
	queueSize int
	rooms     map[uuid.UUID]map[*Subscriber]struct{}
	log       *zap.Logger
}

func NewBroadcaster(queueSize int, log *zap.Logger) *Broadcaster {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Broadcaster{
		queueSize: queueSize,
		rooms:     make(map[uuid.UUID]map[*Subscriber]struct{}),
		log:       log,
	}
}

// Subscriber is one live delta stream. Its channel is closed when the
// subscriber is torn down, either by Close or by falling behind.
type Subscriber struct {
	ch     chan Delta
	roomID uuid.UUID
	b      *Broadcaster
	closed bool // guarded by b.mu
}

func (s *Subscriber) Deltas() <-chan Delta { return s.ch }

func (s *Subscriber) Close() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.drop(s)
}

func (b *Broadcaster) Subscribe(roomID uuid.UUID) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscriber{
		ch:     make(chan Delta, b.queueSize),
		roomID: roomID,
		b:      b,
	}
	set := b.rooms[roomID]
	if set == nil {
		set = make(map[*Subscriber]struct{})
		b.rooms[roomID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Publish delivers a delta to every current subscriber of the room without
// ever blocking on any of them.
func (b *Broadcaster) Publish(roomID uuid.UUID, d Delta) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.rooms[roomID] {
		select {
		case sub.ch <- d:
		default:
			b.log.Warn("subscriber queue full, dropping subscriber",
				zap.String("room_id", roomID.String()))
			b.drop(sub)
		}
	}
}

// drop removes and closes a subscriber. Caller holds b.mu.
func (b *Broadcaster) drop(sub *Subscriber) {
	if sub.closed {
		return
	}
	sub.closed = true
	set := b.rooms[sub.roomID]
	delete(set, sub)
	if len(set) == 0 {
		delete(b.rooms, sub.roomID)
	}
	close(sub.ch)
}
