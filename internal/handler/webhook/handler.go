package webhook

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/spectraflex/omnichat/internal/ingest"
	"github.com/spectraflex/omnichat/internal/service/shopify"
	"github.com/spectraflex/omnichat/pkg/utils"
)

// Handler receives Shopify webhooks and flags the catalog for resync.
type Handler struct {
	secret string
	rdb    *redis.Client
}

// New creates the webhook handler. rdb may be nil; verification still runs
// but no dirty flag is recorded.
func New(secret string, rdb *redis.Client) *Handler {
	return &Handler{secret: secret, rdb: rdb}
}

// RegisterRoutes mounts the webhook endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/shopify", h.handleShopify)
}

func (h *Handler) handleShopify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	header := r.Header.Get("X-Shopify-Hmac-Sha256")
	if header == "" || !shopify.VerifyWebhook(h.secret, header, body) {
		log.Error().Str("topic", r.Header.Get("X-Shopify-Topic")).Msg("webhook hmac verification failed")
		utils.RespondError(w, http.StatusUnauthorized, "invalid hmac")
		return
	}

	topic := r.Header.Get("X-Shopify-Topic")
	log.Info().Str("topic", topic).Msg("shopify webhook received")

	switch topic {
	case "products/create", "products/update", "products/delete":
		if h.rdb != nil {
			if err := h.rdb.Set(r.Context(), ingest.DirtyKey, time.Now().UTC().Format(time.RFC3339), 0).Err(); err != nil {
				log.Warn().Err(err).Msg("failed to flag catalog dirty")
			}
		}
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
