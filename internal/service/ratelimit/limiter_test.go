package ratelimit

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

// scriptRecorder satisfies redis.Scripter, returning a scripted result and
// recording the keys/args each script ran with.
type scriptRecorder struct {
	result int64
	keys   []string
	args   []interface{}
}

func (s *scriptRecorder) record(keys []string, args []interface{}) *redis.Cmd {
	s.keys = keys
	s.args = args
	return redis.NewCmdResult(s.result, nil)
}

func (s *scriptRecorder) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return s.record(keys, args)
}

func (s *scriptRecorder) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return s.record(keys, args)
}

func (s *scriptRecorder) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return s.record(keys, args)
}

func (s *scriptRecorder) EvalShaRO(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return s.record(keys, args)
}

func (s *scriptRecorder) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult([]bool{true}, nil)
}

func (s *scriptRecorder) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func testConfig() Config {
	return Config{
		IPLimit:            20,
		IPWindowSeconds:    60,
		SessionTokenBudget: 15000,
		SessionTTLSeconds:  1800,
	}
}

func TestAllowWithinWindow(t *testing.T) {
	rec := &scriptRecorder{result: 1}
	limiter := New(rec, testConfig())

	allowed, err := limiter.Allow(context.Background(), "203.0.113.9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatal("expected allowed")
	}
	if len(rec.keys) != 1 || rec.keys[0] != "rl:ip:203.0.113.9" {
		t.Fatalf("unexpected keys: %v", rec.keys)
	}
}

func TestAllowExceeded(t *testing.T) {
	rec := &scriptRecorder{result: 0}
	limiter := New(rec, testConfig())

	allowed, err := limiter.Allow(context.Background(), "203.0.113.9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatal("expected blocked")
	}
}

func TestConsumeTokensWithinBudget(t *testing.T) {
	rec := &scriptRecorder{result: 12000}
	limiter := New(rec, testConfig())

	ok, err := limiter.ConsumeTokens(context.Background(), "sess-1", 3000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected budget remaining")
	}
	if rec.keys[0] != "rl:tok:sess-1" {
		t.Fatalf("unexpected key: %s", rec.keys[0])
	}
	if len(rec.args) != 3 || rec.args[1] != 3000 {
		t.Fatalf("unexpected args: %v", rec.args)
	}
}

func TestConsumeTokensExhausted(t *testing.T) {
	rec := &scriptRecorder{result: -1}
	limiter := New(rec, testConfig())

	ok, err := limiter.ConsumeTokens(context.Background(), "sess-1", 99999)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected budget exhausted")
	}
}
