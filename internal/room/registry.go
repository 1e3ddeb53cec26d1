// internal/room/registry.go
package room

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

type entry struct {
	session *Session
	refs    int
}

// Registry maps room ids to live sessions. A session stays in memory while at
// least one handler holds it; after the last Release it is dropped and the
// next Acquire reloads it from the store.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	store    StateStore
	logger   *logrus.Logger
}

// NewRegistry returns an empty registry backed by store.
func NewRegistry(store StateStore, logger *logrus.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		store:    store,
		logger:   logger,
	}
}

// Acquire returns the live session for roomID, creating and activating it if
// needed. Every successful Acquire must be paired with a Release.
func (r *Registry) Acquire(ctx context.Context, roomID string) (*Session, error) {
	r.mu.Lock()
	e, ok := r.sessions[roomID]
	if !ok {
		e = &entry{session: NewSession(roomID, r.store, r.logger)}
		r.sessions[roomID] = e
		r.logger.WithField("room", roomID).Debug("Session created")
	}
	e.refs++
	r.mu.Unlock()

	if err := e.session.Activate(ctx); err != nil {
		r.Release(roomID, e.session)
		return nil, err
	}
	return e.session, nil
}

// Release drops one reference taken by Acquire.
func (r *Registry) Release(roomID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[roomID]
	if !ok || e.session != s {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(r.sessions, roomID)
		r.logger.WithField("room", roomID).Debug("Session evicted")
	}
}

// Get returns the live session for roomID, if any.
func (r *Registry) Get(roomID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[roomID]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Store exposes the backing store, used to read rooms with no live session.
func (r *Registry) Store() StateStore {
	return r.store
}
