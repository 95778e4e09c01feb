package room

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/susu3304/warikan/internal/ledger"
)

// Manager owns the registry of live room coordinators and restores rooms
// from the store on first access.
type Manager struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*Room
	store Store
	bcast *Broadcaster
	log   *zap.Logger
}

func NewManager(store Store, bcast *Broadcaster, log *zap.Logger) *Manager {
	return &Manager{
		rooms: make(map[uuid.UUID]*Room),
		store: store,
		bcast: bcast,
		log:   log,
	}
}

// CreateRoom creates a room with the creator as its first member.
func (m *Manager) CreateRoom(ctx context.Context, name string, creator ledger.Member) (*Room, error) {
	info := Info{ID: uuid.New(), Name: name, CreatedAt: time.Now().UTC()}
	if err := m.store.CreateRoom(ctx, info, creator); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	r := newRoom(&State{Info: info, Members: []ledger.Member{creator}}, m.store, m.bcast, m.log)
	m.mu.Lock()
	m.rooms[info.ID] = r
	m.mu.Unlock()
	m.log.Info("room created", zap.String("room_id", info.ID.String()), zap.String("name", name))
	return r, nil
}

// Room returns the live coordinator for a room id, loading its state from
// the store the first time it is touched after a restart.
func (m *Manager) Room(ctx context.Context, id uuid.UUID) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[id]; ok {
		return r, nil
	}
	state, err := m.store.LoadRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	r := newRoom(state, m.store, m.bcast, m.log)
	m.rooms[id] = r
	return r, nil
}
