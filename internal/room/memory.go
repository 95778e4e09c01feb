package room

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/susu3304/warikan/internal/ledger"
)

// MemoryStore keeps room history in process memory. It backs the service
// when no database is configured and the room tests.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]*State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[uuid.UUID]*State)}
}

func (s *MemoryStore) CreateRoom(_ context.Context, info Info, creator ledger.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[info.ID] = &State{
		Info:    info,
		Members: []ledger.Member{creator},
	}
	return nil
}

func (s *MemoryStore) AddMember(_ context.Context, roomID uuid.UUID, m ledger.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	for _, existing := range st.Members {
		if existing.ID == m.ID {
			return nil
		}
	}
	st.Members = append(st.Members, m)
	return nil
}

func (s *MemoryStore) RemoveMember(_ context.Context, roomID, memberID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	for i, m := range st.Members {
		if m.ID == memberID {
			st.Members = append(st.Members[:i], st.Members[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) AppendTransactions(_ context.Context, txs []ledger.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rooms[txs[0].RoomID]
	if !ok {
		return ErrRoomNotFound
	}
	st.Transactions = append(st.Transactions, txs...)
	return nil
}

func (s *MemoryStore) DeleteTransaction(_ context.Context, roomID uuid.UUID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	for i, tx := range st.Transactions {
		if tx.ID == id {
			st.Transactions = append(st.Transactions[:i], st.Transactions[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) DeleteGroup(_ context.Context, roomID, groupID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	kept := st.Transactions[:0]
	for _, tx := range st.Transactions {
		if tx.GroupID != groupID {
			kept = append(kept, tx)
		}
	}
	st.Transactions = kept
	return nil
}

func (s *MemoryStore) LoadRoom(_ context.Context, roomID uuid.UUID) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	out := &State{
		Info:         st.Info,
		Members:      append([]ledger.Member(nil), st.Members...),
		Transactions: append([]ledger.Transaction(nil), st.Transactions...),
	}
	return out, nil
}
