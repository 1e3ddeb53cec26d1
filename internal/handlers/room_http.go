// internal/handlers/room_http.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/jason-s-yu/mindmeld/internal/protocol"
)

// RoomStateHandler serves GET /room/state/{roomID}: the durable snapshot of a
// room, read from the live session if one exists and from the store otherwise.
// Pending guesses are never part of the snapshot.
func (rs *RoomServer) RoomStateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, ok := roomIDParam(r)
		if !ok {
			http.Error(w, "invalid room id", http.StatusBadRequest)
			return
		}

		var state protocol.RoomSyncState
		if sess, live := rs.Registry.Get(roomID); live {
			state = sess.Snapshot()
		} else {
			stored, found, err := rs.Registry.Store().Load(r.Context(), roomID)
			if err != nil {
				rs.Logger.Errorf("Failed to load room %s: %v", roomID, err)
				http.Error(w, "failed to load room", http.StatusInternalServerError)
				return
			}
			if !found {
				http.Error(w, "room not found", http.StatusNotFound)
				return
			}
			state = *stored
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(state); err != nil {
			rs.Logger.Warnf("Failed to write room %s state: %v", roomID, err)
		}
	}
}
