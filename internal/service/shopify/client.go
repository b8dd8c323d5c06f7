package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

const apiVersion = "2025-04"

// Client is a thin wrapper over the Shopify Admin GraphQL API with
// exponential back-off on 429/5xx.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// NewClient builds the client for a shop host like "example.myshopify.com".
func NewClient(shopHost, adminToken string) *Client {
	return &Client{
		endpoint:   fmt.Sprintf("https://%s/admin/api/%s/graphql.json", shopHost, apiVersion),
		token:      adminToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// statusError distinguishes retryable HTTP failures.
type statusError struct {
	code int
}

func (e *statusError) Error() string { return fmt.Sprintf("shopify returned status %d", e.code) }

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// GraphQL executes one Admin API call, decoding the data payload into out.
func (c *Client) GraphQL(ctx context.Context, query string, variables map[string]any, out interface{}) error {
	if variables == nil {
		variables = map[string]any{}
	}
	payload, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to encode graphql request: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 60 * time.Second

	var body []byte
	attempt := 0
	operation := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
		}
		req.Header.Set("X-Shopify-Access-Token", c.token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "Omnichat/1.0 (+github.com/spectraflex/omnichat)")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := &statusError{code: resp.StatusCode}
			if !retryable(resp.StatusCode) {
				return backoff.Permanent(err)
			}
			log.Warn().Int("status", resp.StatusCode).Int("attempt", attempt).Msg("shopify call retrying")
			return err
		}

		var buf bytes.Buffer
		if _, err := buf.ReadFrom(resp.Body); err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		body = buf.Bytes()
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("shopify graphql call failed: %w", err)
	}

	var decoded graphqlResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("failed to decode graphql response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		return fmt.Errorf("shopify graphql error: %s", decoded.Errors[0].Message)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(decoded.Data, out); err != nil {
		return fmt.Errorf("failed to decode graphql data: %w", err)
	}
	return nil
}
