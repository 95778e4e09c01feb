package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/susu3304/warikan/internal/ledger"
	"github.com/susu3304/warikan/internal/room"
)

// Store is the Postgres-backed room history, written through by the room
// coordinators.
type Store struct {
	db *DB
}

func NewStore(db *DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateRoom(ctx context.Context, info room.Info, creator ledger.Member) error {
	tx, err := s.db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO rooms (id, name, created_at) VALUES ($1, $2, $3)`,
		info.ID, info.Name, info.CreatedAt,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO room_members (room_id, member_id, display_name) VALUES ($1, $2, $3)`,
		info.ID, creator.ID, creator.DisplayName,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) AddMember(ctx context.Context, roomID uuid.UUID, m ledger.Member) error {
	_, err := s.db.pool.Exec(ctx,
		`INSERT INTO room_members (room_id, member_id, display_name)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (room_id, member_id) DO UPDATE SET display_name = EXCLUDED.display_name`,
		roomID, m.ID, m.DisplayName,
	)
	return err
}

func (s *Store) RemoveMember(ctx context.Context, roomID, memberID uuid.UUID) error {
	_, err := s.db.pool.Exec(ctx,
		`DELETE FROM room_members WHERE room_id = $1 AND member_id = $2`,
		roomID, memberID,
	)
	return err
}

// AppendTransactions inserts a staged group in one transaction so a group is
// never partially persisted.
func (s *Store) AppendTransactions(ctx context.Context, txs []ledger.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	tx, err := s.db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, t := range txs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO transactions (room_id, id, group_id, from_member, to_member, amount, label, kind, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			t.RoomID, t.ID, t.GroupID, t.From, t.To, t.Amount, t.Label, string(t.Kind), t.CreatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) DeleteTransaction(ctx context.Context, roomID uuid.UUID, id int64) error {
	_, err := s.db.pool.Exec(ctx,
		`DELETE FROM transactions WHERE room_id = $1 AND id = $2`,
		roomID, id,
	)
	return err
}

func (s *Store) DeleteGroup(ctx context.Context, roomID, groupID uuid.UUID) error {
	_, err := s.db.pool.Exec(ctx,
		`DELETE FROM transactions WHERE room_id = $1 AND group_id = $2`,
		roomID, groupID,
	)
	return err
}

func (s *Store) LoadRoom(ctx context.Context, roomID uuid.UUID) (*room.State, error) {
	var state room.State
	err := s.db.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM rooms WHERE id = $1`, roomID,
	).Scan(&state.Info.ID, &state.Info.Name, &state.Info.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, room.ErrRoomNotFound
		}
		return nil, err
	}

	rows, err := s.db.pool.Query(ctx,
		`SELECT member_id, display_name FROM room_members WHERE room_id = $1`, roomID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m ledger.Member
		if err := rows.Scan(&m.ID, &m.DisplayName); err != nil {
			return nil, err
		}
		state.Members = append(state.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	txRows, err := s.db.pool.Query(ctx,
		`SELECT room_id, id, group_id, from_member, to_member, amount, label, kind, created_at
		 FROM transactions WHERE room_id = $1 ORDER BY id`, roomID,
	)
	if err != nil {
		return nil, err
	}
	defer txRows.Close()
	for txRows.Next() {
		var t ledger.Transaction
		var kind string
		if err := txRows.Scan(&t.RoomID, &t.ID, &t.GroupID, &t.From, &t.To, &t.Amount, &t.Label, &kind, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Kind = ledger.Kind(kind)
		state.Transactions = append(state.Transactions, t)
	}
	if err := txRows.Err(); err != nil {
		return nil, err
	}

	return &state, nil
}
