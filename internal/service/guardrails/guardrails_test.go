package guardrails

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBlockedKeyword(t *testing.T) {
	svc := New("", "", false)

	if !svc.Blocked(context.Background(), "What is the correct DOSAGE for this?") {
		t.Fatal("expected blocklist hit")
	}
	if svc.Blocked(context.Background(), "Which cable fits a Stratocaster?") {
		t.Fatal("expected clean message to pass")
	}
}

func TestBlockedModerationFlagged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/moderations" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Fatalf("missing auth header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[{"flagged":true}]}`))
	}))
	defer srv.Close()

	svc := New("sk-test", srv.URL, true)
	if !svc.Blocked(context.Background(), "something nasty") {
		t.Fatal("expected moderation flag to block")
	}
}

func TestBlockedModerationFailureSkips(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := New("sk-test", srv.URL, true)
	if svc.Blocked(context.Background(), "ordinary question") {
		t.Fatal("moderation outage must not block")
	}
}

func TestScrub(t *testing.T) {
	in := "reach me at jane@example.com or +1 (555) 123-4567 thanks"
	out := Scrub(in)
	if out == in {
		t.Fatal("expected redaction")
	}
	for _, leak := range []string{"jane@example.com", "555"} {
		if strings.Contains(out, leak) {
			t.Fatalf("PII leaked: %s", out)
		}
	}
	if !strings.Contains(out, "[redacted]") {
		t.Fatalf("expected redaction marker, got %s", out)
	}
}
