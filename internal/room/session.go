// internal/room/session.go
package room

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/mindmeld/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Peer is one live socket as seen by a session. Send must not block; the
// transport queues frames and writes them in order.
type Peer interface {
	Send(data []byte) error
	Close(reason string)
}

type member struct {
	id   uuid.UUID
	role protocol.Role
	peer Peer
}

// Session owns one room: its durable state, the pending guesses of the current
// round, and the sockets connected to it. Every entry point holds mu for its
// whole duration, so messages for a room are applied one at a time.
type Session struct {
	ID string

	store  StateStore
	logger *logrus.Entry

	mu      sync.Mutex
	loaded  bool
	state   *protocol.RoomSyncState
	members []*member

	// Pending guesses are never persisted or included in a snapshot.
	pendingA *string
	pendingB *string
}

// NewSession builds an inactive session. Call Activate before use.
func NewSession(id string, store StateStore, logger *logrus.Logger) *Session {
	return &Session{
		ID:     id,
		store:  store,
		logger: logger.WithField("room", id),
	}
}

// Activate loads the durable state, creating an empty one if the room has
// never been stored. Safe to call repeatedly.
func (s *Session) Activate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activateUnsafe(ctx)
}

func (s *Session) activateUnsafe(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	state, found, err := s.store.Load(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("failed to load room %s: %w", s.ID, err)
	}
	if !found {
		state = CreateEmptyState()
		s.logger.Debug("No stored state, starting empty room")
	}
	s.state = state
	s.loaded = true
	return nil
}

// Snapshot returns a copy of the durable state.
func (s *Session) Snapshot() protocol.RoomSyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return *CreateEmptyState()
	}
	return *s.state.Clone()
}

// Connections returns the number of sockets attached to the room.
func (s *Session) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

// Connect tags a new socket with its role, sends it the full room snapshot and
// tells everyone else the opponent is back. An older socket holding the same
// role is closed and replaced.
func (s *Session) Connect(ctx context.Context, role protocol.Role, peer Peer) (uuid.UUID, error) {
	if !role.Valid() {
		return uuid.Nil, fmt.Errorf("invalid role %q", role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.activateUnsafe(ctx); err != nil {
		return uuid.Nil, err
	}

	for i, m := range s.members {
		if m.role == role {
			s.logger.WithField("conn", m.id).Infof("Replacing existing %s connection", role)
			s.members = append(s.members[:i], s.members[i+1:]...)
			m.peer.Close("replaced by a newer connection")
			break
		}
	}

	m := &member{id: uuid.New(), role: role, peer: peer}
	s.members = append(s.members, m)
	s.logger.WithFields(logrus.Fields{"conn": m.id, "role": role}).Info("Connection attached")

	s.sendTo(m, protocol.RoomState{State: *s.state.Clone()})
	s.broadcastExcept(m, protocol.OpponentReconnected{})
	return m.id, nil
}

// Disconnect detaches a socket and tells the remaining one. Unknown or already
// replaced connection ids are ignored.
func (s *Session) Disconnect(connID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, m := range s.members {
		if m.id == connID {
			s.members = append(s.members[:i], s.members[i+1:]...)
			s.logger.WithFields(logrus.Fields{"conn": m.id, "role": m.role}).Info("Connection detached")
			s.broadcastExcept(m, protocol.OpponentDisconnected{})
			return
		}
	}
}

// HandleFrame decodes one client frame and applies it on behalf of the
// connection it arrived on. The sender's role comes from the connection tag,
// never from the frame.
func (s *Session) HandleFrame(ctx context.Context, connID uuid.UUID, data []byte) {
	msg, err := protocol.DecodeClient(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	sender := s.memberUnsafe(connID)
	if sender == nil {
		s.logger.WithField("conn", connID).Debug("Ignoring frame from detached connection")
		return
	}
	if err != nil {
		s.logger.WithFields(logrus.Fields{"conn": connID, "role": sender.role}).Warnf("Dropping bad frame: %v", err)
		s.sendTo(sender, protocol.ErrorMessage{Message: "Invalid message"})
		return
	}
	s.applyUnsafe(ctx, sender, msg)
}

// Apply runs an already decoded message for the given connection.
func (s *Session) Apply(ctx context.Context, connID uuid.UUID, msg protocol.ClientMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sender := s.memberUnsafe(connID)
	if sender == nil {
		return
	}
	s.applyUnsafe(ctx, sender, msg)
}

func (s *Session) applyUnsafe(ctx context.Context, sender *member, msg protocol.ClientMessage) {
	role := sender.role
	prev := s.state
	log := s.logger.WithFields(logrus.Fields{"conn": sender.id, "role": role, "type": msg.ClientType()})
	log.Debug("Applying message")

	var t Transition
	switch m := msg.(type) {
	case protocol.Join:
		if m.Role != "" && m.Role != role {
			log.Debugf("Join claims role %s; using connection role", m.Role)
		}
		t = HandleJoin(prev, role, m.Nickname)
		t.Messages = append(t.Messages, protocol.RoomState{State: *t.State})

	case protocol.StartRound:
		t = HandleStartRound(prev, role, m.Round, m.Params)
		if t.State != prev {
			s.pendingA, s.pendingB = nil, nil
		}

	case protocol.SubmitGuess:
		gt := HandleGuess(prev, role, m.Guess, s.pendingA, s.pendingB)
		s.pendingA, s.pendingB = gt.GuessA, gt.GuessB
		t = gt.Transition

	case protocol.JudgeResult:
		t = HandleJudgeResult(prev, role, m.Result, deref(s.pendingA), deref(s.pendingB))
		if t.State != prev {
			s.pendingA, s.pendingB = nil, nil
		}

	case protocol.UpdateRoundArt:
		t = patchRoundArt(prev, role, m)

	case protocol.PlayAgain:
		t = HandlePlayAgain(prev)
		s.pendingA, s.pendingB = nil, nil

	default:
		log.Warnf("No handler for message %T", msg)
		return
	}

	if t.Rejected(prev) {
		log.Infof("Rejected: %s", t.Messages[0].(protocol.ErrorMessage).Message)
	}

	if t.State != prev {
		s.state = t.State
		if err := s.store.Save(ctx, s.ID, s.state); err != nil {
			log.Errorf("Failed to persist room state: %v", err)
		}
	}

	for _, out := range t.Messages {
		if _, isErr := out.(protocol.ErrorMessage); isErr {
			s.sendTo(sender, out)
			continue
		}
		s.broadcast(out)
	}
}

// patchRoundArt overwrites the art of the current round. It is a data patch
// with no phase change, so it lives beside the reducer rather than in it.
func patchRoundArt(state *protocol.RoomSyncState, role protocol.Role, art protocol.UpdateRoundArt) Transition {
	if role != protocol.RoleHost {
		return reject(state, errOnlyHostArt)
	}
	if state.CurrentParams == nil {
		return reject(state, errNoRoundForArt)
	}
	if art.SVGContent == "" {
		return reject(state, errEmptyArt)
	}

	next := state.Clone()
	next.CurrentParams.SVGContent = art.SVGContent
	next.CurrentParams.Theme = art.Theme
	return Transition{
		State:    next,
		Messages: []protocol.ServerMessage{protocol.RoundArtUpdated{SVGContent: art.SVGContent, Theme: art.Theme}},
	}
}

func (s *Session) memberUnsafe(connID uuid.UUID) *member {
	for _, m := range s.members {
		if m.id == connID {
			return m
		}
	}
	return nil
}

func (s *Session) broadcast(msg protocol.ServerMessage) {
	s.broadcastExcept(nil, msg)
}

func (s *Session) broadcastExcept(skip *member, msg protocol.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Errorf("Failed to marshal %s: %v", msg.ServerType(), err)
		return
	}
	for _, m := range s.members {
		if m == skip {
			continue
		}
		s.write(m, msg.ServerType(), data)
	}
}

func (s *Session) sendTo(m *member, msg protocol.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Errorf("Failed to marshal %s: %v", msg.ServerType(), err)
		return
	}
	s.write(m, msg.ServerType(), data)
}

func (s *Session) write(m *member, typ protocol.ServerMessageType, data []byte) {
	if err := m.peer.Send(data); err != nil {
		s.logger.WithFields(logrus.Fields{"conn": m.id, "role": m.role}).Warnf("Failed to queue %s: %v", typ, err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
