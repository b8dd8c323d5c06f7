package session

import (
	"context"
	"errors"

	"github.com/spectraflex/omnichat/internal/model/chat"
)

var ErrSessionNotFound = errors.New("session not found")

// historyCap bounds the stored transcript; only the tail is replayed into
// the model prompt anyway.
const historyCap = 40

// Store abstracts session persistence so the handler works the same against
// Redis in production and the in-memory store in tests and Redis-less dev.
type Store interface {
	// Create provisions a fresh session and returns it.
	Create(ctx context.Context) (chat.Session, error)
	// Get returns the session or ErrSessionNotFound.
	Get(ctx context.Context, id string) (chat.Session, error)
	// Touch refreshes the session's idle TTL.
	Touch(ctx context.Context, id string) error
	// AppendMessage adds a turn to the session transcript.
	AppendMessage(ctx context.Context, message chat.Message) error
	// History returns the stored transcript, oldest first.
	History(ctx context.Context, id string) ([]chat.Message, error)
}
