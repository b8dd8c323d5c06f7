package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spectraflex/omnichat/internal/handler/chat"
	"github.com/spectraflex/omnichat/internal/handler/webhook"
	"github.com/spectraflex/omnichat/internal/logging"
	"github.com/spectraflex/omnichat/internal/middleware"
	"github.com/spectraflex/omnichat/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(chatHandler *chat.Handler, webhookHandler *webhook.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(logging.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	chatHandler.RegisterRoutes(r)
	if webhookHandler != nil {
		webhookHandler.RegisterRoutes(r)
	}

	return r
}
