package room

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/susu3304/warikan/internal/ledger"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	// ErrNotMember rejects a caller who is not part of the room.
	ErrNotMember = errors.New("caller is not a member of the room")
)

// Info is the administrative identity of a room.
type Info struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// State is everything needed to rebuild a room after a restart.
type State struct {
	Info         Info
	Members      []ledger.Member
	Transactions []ledger.Transaction
}

// Store persists room history. Mutations are written through before they are
// applied in memory, inside the room's serialized section, so a store
// failure aborts the mutation cleanly.
type Store interface {
	CreateRoom(ctx context.Context, info Info, creator ledger.Member) error
	AddMember(ctx context.Context, roomID uuid.UUID, m ledger.Member) error
	RemoveMember(ctx context.Context, roomID, memberID uuid.UUID) error
	// AppendTransactions writes a staged group atomically.
	AppendTransactions(ctx context.Context, txs []ledger.Transaction) error
	DeleteTransaction(ctx context.Context, roomID uuid.UUID, id int64) error
	DeleteGroup(ctx context.Context, roomID, groupID uuid.UUID) error
	// LoadRoom returns ErrRoomNotFound for an unknown id.
	LoadRoom(ctx context.Context, roomID uuid.UUID) (*State, error)
}
