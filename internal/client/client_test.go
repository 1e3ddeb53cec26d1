package client

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jason-s-yu/mindmeld/internal/handlers"
	"github.com/jason-s-yu/mindmeld/internal/protocol"
	"github.com/jason-s-yu/mindmeld/internal/room"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomEndpoint(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8080", "ws://localhost:8080/room/ws/abc?role=host"},
		{"https://play.example.com/", "wss://play.example.com/room/ws/abc?role=host"},
		{"ws://10.0.0.1:9000/api", "ws://10.0.0.1:9000/api/room/ws/abc?role=host"},
	}
	for _, tt := range tests {
		got, err := roomEndpoint(tt.base, "abc", protocol.RoleHost)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := roomEndpoint("ftp://nope", "abc", protocol.RoleHost)
	assert.Error(t, err)
}

func TestDialRejectsInvalidRole(t *testing.T) {
	_, err := Dial(context.Background(), "http://localhost", "abc", protocol.Role("admin"), Options{})
	assert.Error(t, err)
}

func TestSendWithoutConnection(t *testing.T) {
	c := &Client{opts: Options{WriteTimeout: time.Second}}
	err := c.Send(context.Background(), protocol.PlayAgain{})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, c.Connected())
}

func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger, _ := test.NewNullLogger()
	rs := handlers.NewRoomServer(room.NewRegistry(room.NewMemoryStore(), logger), logger)
	srv := httptest.NewServer(handlers.NewRouter(rs))
	t.Cleanup(srv.Close)
	return srv
}

func TestReconnectResynchronizes(t *testing.T) {
	srv := startServer(t)
	logger, _ := test.NewNullLogger()
	inbox := make(chan protocol.ServerMessage, 64)

	c, err := Dial(context.Background(), srv.URL, "resync", protocol.RoleHost, Options{
		Nickname:  "Ada",
		Logger:    logger,
		OnMessage: func(m protocol.ServerMessage) { inbox <- m },
	})
	require.NoError(t, err)
	defer c.Close()
	assert.True(t, c.Connected())

	await := func(typ protocol.ServerMessageType) protocol.ServerMessage {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case m := <-inbox:
				if m.ServerType() == typ {
					return m
				}
			case <-deadline:
				t.Fatalf("no %s", typ)
				return nil
			}
		}
	}

	await(protocol.TypePlayerJoined)
	require.NoError(t, c.Send(context.Background(), protocol.StartRound{Round: 1, Params: protocol.VisualParams{SceneID: "dunes"}}))
	await(protocol.TypeRoundStart)

	require.NoError(t, c.Reconnect(context.Background()))
	snap := await(protocol.TypeRoomState).(protocol.RoomState).State
	assert.Equal(t, 1, snap.CurrentRound)
	assert.Equal(t, protocol.PhasePlaying, snap.Phase)
	assert.Equal(t, "Ada", snap.HostName)
	assert.True(t, c.Connected())
}

func TestCloseIsFinal(t *testing.T) {
	srv := startServer(t)
	logger, _ := test.NewNullLogger()
	statuses := make(chan Status, 8)

	c, err := Dial(context.Background(), srv.URL, "final", protocol.RoleGuest, Options{
		Logger:   logger,
		OnStatus: func(s Status) { statuses <- s },
	})
	require.NoError(t, err)

	require.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	assert.False(t, c.Connected())
	assert.ErrorIs(t, c.Send(context.Background(), protocol.PlayAgain{}), ErrNotConnected)
	assert.ErrorIs(t, c.Reconnect(context.Background()), ErrNotConnected)

	assert.Equal(t, StatusConnecting, <-statuses)
	assert.Equal(t, StatusConnected, <-statuses)
	assert.Equal(t, StatusDisconnected, <-statuses)
}
