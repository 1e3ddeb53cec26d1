// internal/room/store.go
package room

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jason-s-yu/mindmeld/internal/protocol"
)

// StateStore persists one RoomSyncState per room id. Pending guesses are never
// passed to a store.
type StateStore interface {
	// Load returns the stored state, or found=false when the room has none yet.
	Load(ctx context.Context, roomID string) (state *protocol.RoomSyncState, found bool, err error)
	Save(ctx context.Context, roomID string, state *protocol.RoomSyncState) error
}

// MemoryStore keeps encoded snapshots in process memory. Snapshots are stored
// as JSON so a loaded state never aliases a live one.
type MemoryStore struct {
	mu    sync.Mutex
	rooms map[string][]byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: make(map[string][]byte),
	}
}

func (s *MemoryStore) Load(ctx context.Context, roomID string) (*protocol.RoomSyncState, bool, error) {
	s.mu.Lock()
	data, ok := s.rooms[roomID]
	s.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	state, err := DecodeState(data)
	if err != nil {
		return nil, false, err
	}
	return state, true, nil
}

func (s *MemoryStore) Save(ctx context.Context, roomID string, state *protocol.RoomSyncState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal room %s: %w", roomID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[roomID] = data
	return nil
}

// DecodeState parses a stored snapshot. Shared by the store backends.
func DecodeState(data []byte) (*protocol.RoomSyncState, error) {
	var state protocol.RoomSyncState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room state: %w", err)
	}
	if state.Phase == "" {
		state.Phase = protocol.PhaseWaiting
	}
	if state.History == nil {
		state.History = []protocol.RoundRecord{}
	}
	return &state, nil
}
