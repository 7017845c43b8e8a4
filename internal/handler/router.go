package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	conversationHandler "github.com/trieuvy/aria/backend/internal/handler/conversation"
	middlewarePkg "github.com/trieuvy/aria/backend/internal/middleware"
	conversationService "github.com/trieuvy/aria/backend/internal/service/conversation"
	"github.com/trieuvy/aria/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(convSvc *conversationService.Service, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	convHandler := conversationHandler.New(convSvc, log)

	r.Route("/api", func(api chi.Router) {
		api.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		api.Group(func(authed chi.Router) {
			authed.Use(middlewarePkg.Identity)
			convHandler.RegisterRoutes(authed)
		})
	})

	return r
}
