package guardrails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Topics the concierge must never engage with.
var badTopics = []string{"dosage", "prescription", "lawsuit", "bomb", "weapon"}

// Emails and phone numbers.
var piiRe = regexp.MustCompile(`[\w.-]+@[\w.-]+|\+?\d[\d\s\-()]{7,}`)

// Service screens inbound messages before they reach the model.
type Service struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	moderation bool
}

// New builds the guardrail service. Moderation requires an OpenAI key; when
// disabled only the keyword filter runs.
func New(apiKey, baseURL string, moderation bool) *Service {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &Service{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		moderation: moderation && apiKey != "",
	}
}

// Blocked reports whether the message is toxic, illegal, or off-limits.
// Moderation failures are logged and skipped so a provider outage never
// blocks the chat.
func (s *Service) Blocked(ctx context.Context, message string) bool {
	lowered := strings.ToLower(message)
	for _, topic := range badTopics {
		if strings.Contains(lowered, topic) {
			return true
		}
	}

	if !s.moderation {
		return false
	}

	flagged, err := s.moderate(ctx, message)
	if err != nil {
		log.Warn().Err(err).Msg("moderation check skipped")
		return false
	}
	return flagged
}

// Scrub redacts obvious PII (email / phone) from text bound for third
// parties.
func Scrub(text string) string {
	return piiRe.ReplaceAllString(text, "[redacted]")
}

type moderationResponse struct {
	Results []struct {
		Flagged bool `json:"flagged"`
	} `json:"results"`
}

func (s *Service) moderate(ctx context.Context, message string) (bool, error) {
	payload, err := json.Marshal(map[string]string{"input": message})
	if err != nil {
		return false, fmt.Errorf("failed to encode moderation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/moderations", bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("failed to build moderation request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("moderation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("moderation returned status %d", resp.StatusCode)
	}

	var decoded moderationResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return false, fmt.Errorf("failed to decode moderation response: %w", err)
	}
	if len(decoded.Results) == 0 {
		return false, nil
	}
	return decoded.Results[0].Flagged, nil
}
