// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jason-s-yu/mindmeld/internal/protocol"
	"github.com/jason-s-yu/mindmeld/internal/room"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces room snapshots in Redis.
const DefaultKeyPrefix = "mindmeld:room:"

// ConnectRedis opens a client and verifies the server answers a PING.
func ConnectRedis(addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// RoomStateStore keeps one JSON snapshot per room under prefix+roomID.
// Keys carry no TTL; a room lives until its players reset it.
type RoomStateStore struct {
	rdb    *redis.Client
	prefix string
}

var _ room.StateStore = (*RoomStateStore)(nil)

// NewRoomStateStore wraps an existing client. An empty prefix uses DefaultKeyPrefix.
func NewRoomStateStore(rdb *redis.Client, prefix string) *RoomStateStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RoomStateStore{rdb: rdb, prefix: prefix}
}

func (s *RoomStateStore) key(roomID string) string {
	return s.prefix + roomID
}

// Load fetches the snapshot for roomID. A missing key is not an error.
func (s *RoomStateStore) Load(ctx context.Context, roomID string) (*protocol.RoomSyncState, bool, error) {
	data, err := s.rdb.Get(ctx, s.key(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to GET room %s: %w", roomID, err)
	}
	state, err := room.DecodeState(data)
	if err != nil {
		return nil, false, err
	}
	return state, true, nil
}

// Save overwrites the snapshot for roomID.
func (s *RoomStateStore) Save(ctx context.Context, roomID string, state *protocol.RoomSyncState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal room %s: %w", roomID, err)
	}
	if err := s.rdb.Set(ctx, s.key(roomID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to SET room %s: %w", roomID, err)
	}
	return nil
}

// RoomIDs lists every stored room. It walks the keyspace with SCAN so a large
// instance is never blocked.
func (s *RoomStateStore) RoomIDs(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to SCAN rooms: %w", err)
	}
	return ids, nil
}
