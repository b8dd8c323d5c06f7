package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/spectraflex/omnichat/pkg/utils"
)

// Recoverer converts panics into a uniform JSON 500 carrying an error id
// that can be grepped out of the logs.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				errorID := newErrorID()
				log.Error().
					Interface("panic", rec).
					Str("error_id", errorID).
					Str("path", r.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("unhandled panic")

				utils.RespondJSON(w, http.StatusInternalServerError, map[string]string{
					"detail":    "Internal Server Error",
					"error_id":  errorID,
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func newErrorID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(buf)
}
