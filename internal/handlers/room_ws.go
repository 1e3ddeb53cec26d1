// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/mindmeld/internal/middleware"
	"github.com/jason-s-yu/mindmeld/internal/protocol"
	"github.com/jason-s-yu/mindmeld/internal/room"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Room ids are chosen by clients, so keep them short and URL/key safe.
var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Art payloads are the largest frames clients send.
const maxFrameBytes = 1 << 20

const rateLimitedMessage = "Too many messages, slow down"

// RoomServer serves room sockets on top of a session registry.
type RoomServer struct {
	Registry       *room.Registry
	Logger         *logrus.Logger
	WriteTimeout   time.Duration
	SendBuffer     int
	MessageRate    rate.Limit
	MessageBurst   int
	OriginPatterns []string
}

// NewRoomServer returns a server with the default transport settings.
func NewRoomServer(reg *room.Registry, logger *logrus.Logger) *RoomServer {
	return &RoomServer{
		Registry:       reg,
		Logger:         logger,
		WriteTimeout:   5 * time.Second,
		SendBuffer:     32,
		MessageRate:    20,
		MessageBurst:   40,
		OriginPatterns: []string{"*"},
	}
}

func roomIDParam(r *http.Request) (string, bool) {
	id := chi.URLParam(r, "roomID")
	if !roomIDPattern.MatchString(id) {
		return "", false
	}
	return id, true
}

// RoomWSHandler upgrades /room/ws/{roomID}?role=host|guest to a room socket.
// The role in the query string is the only role the session trusts.
func (rs *RoomServer) RoomWSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, ok := roomIDParam(r)
		if !ok {
			http.Error(w, "invalid room id", http.StatusBadRequest)
			return
		}
		role := protocol.Role(r.URL.Query().Get("role"))
		if !role.Valid() {
			http.Error(w, "role must be host or guest", http.StatusBadRequest)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: rs.OriginPatterns,
		})
		if err != nil {
			rs.Logger.Warnf("websocket accept error for room %s: %v", roomID, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != Subprotocol {
			c.Close(BadSubprotocolError, "client must speak the room subprotocol")
			return
		}
		c.SetReadLimit(maxFrameBytes)

		log := rs.Logger.WithFields(logrus.Fields{"room": roomID, "role": role})

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sess, err := rs.Registry.Acquire(ctx, roomID)
		if err != nil {
			log.Errorf("Failed to open room: %v", err)
			c.Close(InvalidRoomIDError, "room unavailable")
			return
		}
		defer rs.Registry.Release(roomID, sess)

		peer := newWSPeer(rs.SendBuffer)
		connID, err := sess.Connect(ctx, role, peer)
		if err != nil {
			log.Errorf("Failed to attach connection: %v", err)
			c.Close(websocket.StatusInternalError, "room unavailable")
			return
		}
		log = log.WithField("conn", connID)
		middleware.LogWebSocketConnect(rs.Logger, r.RemoteAddr, roomID, string(role))

		go writePump(ctx, c, peer, rs.WriteTimeout, log)

		readErr := rs.readPump(ctx, c, sess, connID, peer, log)

		sess.Disconnect(connID)
		middleware.LogWebSocketDisconnect(rs.Logger, r.RemoteAddr, roomID, string(role), readErr)
	}
}

// readPump feeds inbound frames to the session until the socket closes. It
// returns nil for a normal closure.
func (rs *RoomServer) readPump(ctx context.Context, c *websocket.Conn, sess *room.Session, connID uuid.UUID, peer *wsPeer, log *logrus.Entry) error {
	limiter := rate.NewLimiter(rs.MessageRate, rs.MessageBurst)

	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			switch {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				return nil
			case errors.Is(err, context.Canceled):
				return nil
			default:
				select {
				case <-peer.done:
					// Closed from our side (replaced or slow consumer).
					return nil
				default:
				}
				log.Debugf("Read error: %v (CloseStatus: %d)", err, status)
				return err
			}
		}

		if typ != websocket.MessageText {
			log.Warnf("Ignoring non-text message type %d", typ)
			continue
		}
		if !limiter.Allow() {
			log.Warn("Rate limit exceeded, dropping frame")
			sendError(peer, rateLimitedMessage, log)
			continue
		}

		sess.HandleFrame(ctx, connID, data)
	}
}

func sendError(peer *wsPeer, message string, log *logrus.Entry) {
	data, err := json.Marshal(protocol.ErrorMessage{Message: message})
	if err != nil {
		log.Errorf("Failed to marshal error message: %v", err)
		return
	}
	if err := peer.Send(data); err != nil {
		log.Warnf("Failed to queue error message: %v", err)
	}
}
