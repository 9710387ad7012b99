package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gathermap/backend/internal/handler/ws"
	middlewarePkg "github.com/gathermap/backend/internal/middleware"
	roomservice "github.com/gathermap/backend/internal/service/room"
	"github.com/gathermap/backend/pkg/utils"
)

// NewRouter wires the websocket endpoint and the HTTP collaborator surface.
func NewRouter(roomSvc *roomservice.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	wsHandler := ws.New(roomSvc)
	wsHandler.RegisterRoutes(r)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			sessions, notes, meetings, history := roomSvc.Counts()
			utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
				"status":   "ok",
				"clients":  sessions,
				"notes":    notes,
				"meetings": meetings,
				"history":  history,
			})
		})

		api.Get("/state", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, roomSvc.StateSnapshot())
		})
	})

	return r
}
