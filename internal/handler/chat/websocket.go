package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/spectraflex/omnichat/internal/metrics"
	"github.com/spectraflex/omnichat/internal/model/chat"
	"github.com/spectraflex/omnichat/internal/service/guardrails"
	"github.com/spectraflex/omnichat/internal/service/rag"
	"github.com/spectraflex/omnichat/internal/service/session"
)

// Close code sent when the IP message window is exceeded.
const closeRateLimited = 4008

// Canned replies, matching the widget's expectations.
const (
	answerBlocked   = "Sorry, can't help with that."
	answerOffTopic  = "I'm here for Spectraflex gear questions only 😊"
	answerExhausted = "You've reached the limit for this chat. Start a new conversation if needed!"
)

type inboundFrame struct {
	Session string `json:"session"`
	Message string `json:"message"`
	Product string `json:"product"`
}

type outboundFrame struct {
	Session string `json:"session"`
	Answer  string `json:"answer"`
}

type errorFrame struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ip := clientIP(r)
	log.Info().Str("client", ip).Msg("widget connected")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.writeJSON(conn, errorFrame{Error: "Invalid payload", Details: err.Error()})
			continue
		}

		// Reject locally; no session, index, or model round-trip.
		if strings.TrimSpace(frame.Message) == "" {
			h.writeJSON(conn, errorFrame{Error: "Invalid payload", Details: "message is required"})
			continue
		}

		if !h.handleFrame(r.Context(), conn, ip, frame) {
			return
		}
	}
}

// handleFrame runs the per-message pipeline. It returns false when the
// connection should close.
func (h *Handler) handleFrame(ctx context.Context, conn *websocket.Conn, ip string, frame inboundFrame) bool {
	metrics.MessagesTotal.Inc()

	if h.limiter != nil {
		allowed, err := h.limiter.Allow(ctx, ip)
		if err != nil {
			log.Error().Err(err).Msg("ip throttle check failed")
			h.writeJSON(conn, errorFrame{Error: "Service unavailable"})
			return true
		}
		if !allowed {
			metrics.RateLimitDropsTotal.WithLabelValues("ip").Inc()
			h.close(conn, closeRateLimited, "Rate limit")
			return false
		}
	}

	sess, err := h.resolveSession(ctx, frame.Session)
	if err != nil {
		log.Error().Err(err).Msg("session lookup failed")
		h.writeJSON(conn, errorFrame{Error: "Service unavailable"})
		return true
	}

	if h.guard != nil && h.guard.Blocked(ctx, frame.Message) {
		metrics.GuardrailBlocksTotal.WithLabelValues("blocklist").Inc()
		h.writeJSON(conn, outboundFrame{Session: sess.ID, Answer: answerBlocked})
		return true
	}

	// Redact obvious PII before the text reaches the embedder or the model.
	clean := guardrails.Scrub(frame.Message)

	query := clean
	if frame.Product != "" {
		query = "product: " + frame.Product + "\n" + clean
	}

	var matches []rag.Match
	if h.index != nil {
		sim, err := rag.MaxSimilarity(ctx, h.index, query)
		if err != nil {
			log.Error().Err(err).Msg("off-topic check failed")
			h.writeJSON(conn, errorFrame{Error: "Service unavailable"})
			return true
		}
		log.Debug().Float64("cosine", sim).Str("session", sess.ID).Msg("off-topic gate")

		if sim < h.opts.OffTopicThreshold {
			metrics.GuardrailBlocksTotal.WithLabelValues("off_topic").Inc()
			h.writeJSON(conn, outboundFrame{Session: sess.ID, Answer: answerOffTopic})
			return true
		}

		matches, err = h.index.Query(ctx, query, h.opts.TopK)
		if err != nil {
			log.Error().Err(err).Msg("context retrieval failed")
			h.writeJSON(conn, errorFrame{Error: "Service unavailable"})
			return true
		}
	}

	history, err := h.sessions.History(ctx, sess.ID)
	if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		log.Error().Err(err).Msg("history load failed")
	}

	start := time.Now()
	reply, err := h.responder.Respond(ctx, sess.ID, history, clean, matches)
	if err != nil {
		log.Error().Err(err).Str("session", sess.ID).Msg("model call failed")
		h.writeJSON(conn, errorFrame{Error: "Service unavailable"})
		return true
	}
	metrics.ModelLatency.Observe(time.Since(start).Seconds())
	metrics.TokensConsumedTotal.Add(float64(reply.Tokens))

	if h.limiter != nil {
		allowed, err := h.limiter.ConsumeTokens(ctx, sess.ID, reply.Tokens)
		if err != nil {
			log.Error().Err(err).Msg("token budget check failed")
		} else if !allowed {
			metrics.RateLimitDropsTotal.WithLabelValues("token_budget").Inc()
			h.writeJSON(conn, outboundFrame{Session: sess.ID, Answer: answerExhausted})
			h.close(conn, websocket.CloseNormalClosure, "")
			return false
		}
	}

	// The transcript feeds future prompts, so it stores the scrubbed form.
	h.persistTurn(ctx, sess.ID, clean, reply.Answer)

	metrics.RepliesTotal.Inc()
	h.writeJSON(conn, outboundFrame{Session: sess.ID, Answer: reply.Answer})
	return true
}

// resolveSession reuses the session named by the frame when it still exists
// and issues a fresh one otherwise.
func (h *Handler) resolveSession(ctx context.Context, id string) (chat.Session, error) {
	if id != "" {
		sess, err := h.sessions.Get(ctx, id)
		if err == nil {
			if err := h.sessions.Touch(ctx, id); err != nil {
				log.Warn().Err(err).Str("session", id).Msg("session touch failed")
			}
			return sess, nil
		}
		if !errors.Is(err, session.ErrSessionNotFound) {
			return chat.Session{}, err
		}
	}
	return h.sessions.Create(ctx)
}

func (h *Handler) persistTurn(ctx context.Context, sessionID, question, answer string) {
	userMsg := chat.Message{SessionID: sessionID, Sender: "user", Content: question}
	if err := h.sessions.AppendMessage(ctx, userMsg); err != nil {
		log.Warn().Err(err).Msg("failed to save user message")
	}

	assistantMsg := chat.Message{SessionID: sessionID, Sender: "assistant", Content: answer}
	if err := h.sessions.AppendMessage(ctx, assistantMsg); err != nil {
		log.Warn().Err(err).Msg("failed to save assistant message")
	}
}

func (h *Handler) writeJSON(conn *websocket.Conn, payload interface{}) {
	if err := conn.WriteJSON(payload); err != nil {
		log.Warn().Err(err).Msg("websocket write failed")
	}
}

func (h *Handler) close(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		log.Warn().Err(err).Msg("websocket close failed")
	}
}

func clientIP(r *http.Request) string {
	// chi's RealIP middleware already rewrote RemoteAddr from the proxy
	// headers when present.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
