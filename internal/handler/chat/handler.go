package chat

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/spectraflex/omnichat/internal/model/chat"
	"github.com/spectraflex/omnichat/internal/service/ai"
	"github.com/spectraflex/omnichat/internal/service/rag"
	"github.com/spectraflex/omnichat/internal/service/session"
)

// Limiter is the slice of the rate-limit service the handler needs.
// A nil Limiter disables limiting (Redis-less dev).
type Limiter interface {
	Allow(ctx context.Context, ip string) (bool, error)
	ConsumeTokens(ctx context.Context, sessionID string, tokens int) (bool, error)
}

// Guard screens messages before they reach the model.
type Guard interface {
	Blocked(ctx context.Context, message string) bool
}

// Responder produces the concierge answer for one user message.
type Responder interface {
	Respond(ctx context.Context, sessionID string, history []chat.Message, question string, matches []rag.Match) (ai.Reply, error)
}

// Options tunes the per-message pipeline.
type Options struct {
	OffTopicThreshold float64
	TopK              int
}

// Handler owns the widget-facing WebSocket endpoint.
type Handler struct {
	sessions  session.Store
	limiter   Limiter
	guard     Guard
	index     rag.VectorIndex
	responder Responder
	opts      Options
	upgrader  websocket.Upgrader
}

// New creates the chat handler. limiter, guard, and index may be nil; the
// corresponding pipeline stage is then skipped.
func New(sessions session.Store, limiter Limiter, guard Guard, index rag.VectorIndex, responder Responder, opts Options) *Handler {
	if opts.TopK < 1 {
		opts.TopK = 4
	}
	return &Handler{
		sessions:  sessions,
		limiter:   limiter,
		guard:     guard,
		index:     index,
		responder: responder,
		opts:      opts,
		upgrader: websocket.Upgrader{
			// The widget loads from arbitrary storefront domains.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the WebSocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}
