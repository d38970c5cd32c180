package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/z-clinic/backend/internal/handler/chat"
	"github.com/zhouzirui/z-clinic/backend/internal/handler/persona"
	"github.com/zhouzirui/z-clinic/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/z-clinic/backend/internal/middleware"
	personaModel "github.com/zhouzirui/z-clinic/backend/internal/model/persona"
	"github.com/zhouzirui/z-clinic/backend/internal/observability"
	chatService "github.com/zhouzirui/z-clinic/backend/internal/service/chat"
	"github.com/zhouzirui/z-clinic/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services. metrics may be nil, in which
// case /metrics answers 404.
func NewRouter(personas personaModel.Store, chatSvc *chatService.Service, metrics *observability.Metrics) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":         "ok",
			"activeSessions": chatSvc.ActiveCount(),
		})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		persona.New(personas).RegisterRoutes(api)
		chat.New(chatSvc).RegisterRoutes(api)
		stream.New(chatSvc, metrics).RegisterRoutes(api)
	})

	return r
}
