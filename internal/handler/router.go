package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/zhouzirui/ernie-chat/backend/internal/handler/chat"
	"github.com/zhouzirui/ernie-chat/backend/internal/handler/persona"
	"github.com/zhouzirui/ernie-chat/backend/internal/handler/static"
	"github.com/zhouzirui/ernie-chat/backend/internal/handler/stream"
	"github.com/zhouzirui/ernie-chat/backend/internal/logging"
	"github.com/zhouzirui/ernie-chat/backend/internal/metrics"
	middlewarePkg "github.com/zhouzirui/ernie-chat/backend/internal/middleware"
	chatService "github.com/zhouzirui/ernie-chat/backend/internal/service/chat"
	"github.com/zhouzirui/ernie-chat/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(chatSvc *chatService.Service, staticDir string, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	httpLogger := logging.Component(logger, "http")
	r.Use(hlog.NewHandler(httpLogger))
	r.Use(middlewarePkg.RequestLogger(httpLogger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	// Create handlers
	chatHandler := chat.New(chatSvc)
	personaHandler := persona.New(chatSvc)
	streamHandler := stream.New(chatSvc, logger)
	staticHandler := static.New(staticDir)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	chatHandler.RegisterRoutes(r)
	personaHandler.RegisterRoutes(r)
	streamHandler.RegisterRoutes(r)

	// Static assets last: "/*" only catches what the API did not claim.
	staticHandler.RegisterRoutes(r)

	return r
}
