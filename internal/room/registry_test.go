package room

import (
	"context"
	"errors"
	"testing"

	"github.com/jason-s-yu/mindmeld/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenStore struct{}

func (brokenStore) Load(context.Context, string) (*protocol.RoomSyncState, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (brokenStore) Save(context.Context, string, *protocol.RoomSyncState) error { return nil }

func TestRegistrySharesSessionPerRoom(t *testing.T) {
	reg := NewRegistry(NewMemoryStore(), quietLogger())
	ctx := context.Background()

	a, err := reg.Acquire(ctx, "alpha")
	require.NoError(t, err)
	b, err := reg.Acquire(ctx, "alpha")
	require.NoError(t, err)
	c, err := reg.Acquire(ctx, "beta")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, reg.Len())

	reg.Release("alpha", a)
	_, ok := reg.Get("alpha")
	assert.True(t, ok, "still referenced")

	reg.Release("alpha", b)
	_, ok = reg.Get("alpha")
	assert.False(t, ok, "evicted after last release")
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryReloadsEvictedRoom(t *testing.T) {
	store := NewMemoryStore()
	reg := NewRegistry(store, quietLogger())
	ctx := context.Background()

	s, err := reg.Acquire(ctx, "alpha")
	require.NoError(t, err)
	peer := &fakePeer{}
	conn, err := s.Connect(ctx, protocol.RoleHost, peer)
	require.NoError(t, err)
	s.HandleFrame(ctx, conn, frame(t, protocol.StartRound{Round: 1, Params: params("p", 1)}))
	s.Disconnect(conn)
	reg.Release("alpha", s)

	again, err := reg.Acquire(ctx, "alpha")
	require.NoError(t, err)
	assert.NotSame(t, s, again)
	assert.Equal(t, 1, again.Snapshot().CurrentRound)
}

func TestRegistryReleasesOnLoadFailure(t *testing.T) {
	reg := NewRegistry(brokenStore{}, quietLogger())

	_, err := reg.Acquire(context.Background(), "alpha")
	assert.Error(t, err)
	assert.Zero(t, reg.Len())
}

func TestReleaseIgnoresStaleSession(t *testing.T) {
	reg := NewRegistry(NewMemoryStore(), quietLogger())
	ctx := context.Background()

	s, err := reg.Acquire(ctx, "alpha")
	require.NoError(t, err)
	reg.Release("alpha", NewSession("alpha", NewMemoryStore(), quietLogger()))

	got, ok := reg.Get("alpha")
	require.True(t, ok)
	assert.Same(t, s, got)
}
