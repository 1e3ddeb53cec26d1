// internal/handlers/router.go
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jason-s-yu/mindmeld/internal/middleware"
)

// NewRouter mounts the room endpoints. /ping answers liveness checks before
// any logging.
func NewRouter(rs *RoomServer) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: rs.OriginPatterns,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.LogMiddleware(rs.Logger))
		r.Get("/room/ws/{roomID}", rs.RoomWSHandler())
		r.Get("/room/state/{roomID}", rs.RoomStateHandler())
	})
	return r
}
