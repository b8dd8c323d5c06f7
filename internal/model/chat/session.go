package chat

import "time"

// Session captures a transient anonymous conversation. The ID is the token
// the widget echoes back on every frame until the cache entry expires.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	LastSeen  time.Time `json:"lastSeen"`
}
