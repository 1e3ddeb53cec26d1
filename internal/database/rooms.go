// internal/database/rooms.go
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/mindmeld/internal/protocol"
	"github.com/jason-s-yu/mindmeld/internal/room"
)

const roomsSchema = `
	CREATE TABLE IF NOT EXISTS rooms (
		id         TEXT PRIMARY KEY,
		state      JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// RoomStateStore keeps one JSONB row per room.
type RoomStateStore struct {
	pool *pgxpool.Pool
}

var _ room.StateStore = (*RoomStateStore)(nil)

func NewRoomStateStore(pool *pgxpool.Pool) *RoomStateStore {
	return &RoomStateStore{pool: pool}
}

// EnsureSchema creates the rooms table if it does not exist.
func (s *RoomStateStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, roomsSchema); err != nil {
		return fmt.Errorf("create rooms table: %w", err)
	}
	return nil
}

func (s *RoomStateStore) Load(ctx context.Context, roomID string) (*protocol.RoomSyncState, bool, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT state FROM rooms WHERE id = $1`, roomID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select room %s: %w", roomID, err)
	}
	state, err := room.DecodeState(data)
	if err != nil {
		return nil, false, err
	}
	return state, true, nil
}

// Save upserts the snapshot for roomID.
func (s *RoomStateStore) Save(ctx context.Context, roomID string, state *protocol.RoomSyncState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal room %s: %w", roomID, err)
	}
	q := `
		INSERT INTO rooms (id, state, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id)
		DO UPDATE SET state = EXCLUDED.state, updated_at = NOW()
	`
	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, e := tx.Exec(ctx, q, roomID, data)
		return e
	})
	if err != nil {
		return fmt.Errorf("upsert room %s: %w", roomID, err)
	}
	return nil
}

// SaveBatch upserts many snapshots in one transaction.
func (s *RoomStateStore) SaveBatch(ctx context.Context, states map[string]*protocol.RoomSyncState) error {
	if len(states) == 0 {
		return nil
	}
	q := `
		INSERT INTO rooms (id, state, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id)
		DO UPDATE SET state = EXCLUDED.state, updated_at = NOW()
	`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for id, state := range states {
			data, err := json.Marshal(state)
			if err != nil {
				return fmt.Errorf("failed to marshal room %s: %w", id, err)
			}
			batch.Queue(q, id, data)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert %d rooms: %w", len(states), err)
		}
		return nil
	})
}
