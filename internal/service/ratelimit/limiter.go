package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Fixed-window counter per client IP.
var ipScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl   = tonumber(ARGV[2])
local n = redis.call('INCR', key)
if n == 1 then redis.call('EXPIRE', key, ttl) end
if n <= limit then return 1 else return 0 end
`)

// Decrementing token budget per chat session.
var sessionScript = redis.NewScript(`
local key = KEYS[1]
local budget = tonumber(ARGV[1])
local used   = tonumber(ARGV[2])
local ttl    = tonumber(ARGV[3])
local remain = tonumber(redis.call('GET', key) or budget) - used
if remain < 0 then return -1 end
redis.call('SET', key, remain, 'EX', ttl)
return remain
`)

// Config carries the limiter knobs.
type Config struct {
	IPLimit            int
	IPWindowSeconds    int
	SessionTokenBudget int
	SessionTTLSeconds  int
}

// Limiter implements the two Redis-backed limiters: a per-IP message
// throttle and a per-session model-token budget.
type Limiter struct {
	rdb redis.Scripter
	cfg Config
}

// New wraps a Redis client (or any Scripter) with the configured limits.
func New(rdb redis.Scripter, cfg Config) *Limiter {
	return &Limiter{rdb: rdb, cfg: cfg}
}

// Allow reports whether the client IP is still inside its message window.
func (l *Limiter) Allow(ctx context.Context, ip string) (bool, error) {
	res, err := ipScript.Run(ctx, l.rdb,
		[]string{"rl:ip:" + ip},
		l.cfg.IPLimit, l.cfg.IPWindowSeconds,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("ip throttle script failed: %w", err)
	}

	if res == 0 {
		log.Warn().Str("ip", ip).Msg("ip rate limit exceeded")
		return false, nil
	}
	return true, nil
}

// ConsumeTokens charges tokens against the session budget. It returns false
// once the budget is exhausted.
func (l *Limiter) ConsumeTokens(ctx context.Context, sessionID string, tokens int) (bool, error) {
	remain, err := sessionScript.Run(ctx, l.rdb,
		[]string{"rl:tok:" + sessionID},
		l.cfg.SessionTokenBudget, tokens, l.cfg.SessionTTLSeconds,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("token budget script failed: %w", err)
	}

	if remain == -1 {
		log.Warn().Str("session", sessionID).Msg("token budget exhausted")
		return false, nil
	}
	log.Debug().Str("session", sessionID).Int64("remaining", remain).Msg("token budget charged")
	return true, nil
}
