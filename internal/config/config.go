package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Config aggregates every runtime knob of the service.
type Config struct {
	Server    ServerConfig
	OpenAI    OpenAIConfig
	Pinecone  PineconeConfig
	Postgres  PostgresConfig
	Shopify   ShopifyConfig
	Redis     RedisConfig
	Guard     GuardConfig
	Limits    LimitConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	openai, err := loadOpenAIConfig()
	if err != nil {
		return nil, err
	}

	guard, err := loadGuardConfig()
	if err != nil {
		return nil, err
	}

	limits, err := loadLimitConfig()
	if err != nil {
		return nil, err
	}

	shopify, err := loadShopifyConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		OpenAI:   openai,
		Pinecone: loadPineconeConfig(),
		Postgres: PostgresConfig{DSN: strings.TrimSpace(os.Getenv("DATABASE_URL"))},
		Shopify:  shopify,
		Redis:    RedisConfig{URL: getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0")},
		Guard:    guard,
		Limits:   limits,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr     string
	Env      string
	LogLevel string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	addr := port
	if !strings.Contains(port, ":") {
		if strings.Contains(port, " ") {
			return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
		}
		addr = ":" + port
	}

	env := getEnvOrDefault("ENV", "dev")
	switch env {
	case "dev", "staging", "prod":
	default:
		return ServerConfig{}, fmt.Errorf("invalid ENV value: %q", env)
	}

	return ServerConfig{
		Addr:     addr,
		Env:      env,
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
	}, nil
}

// OpenAIConfig describes the chat and embedding models.
type OpenAIConfig struct {
	APIKey         string
	ChatModel      string
	EmbedModel     string
	BaseURL        string
	MaxTokens      int
	Temperature    *float32
	StreamResponse bool
}

// Enabled reports whether the required credentials were provided.
func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != "" && c.ChatModel != ""
}

func loadOpenAIConfig() (OpenAIConfig, error) {
	temperature, err := parseOptionalFloat32Env("OPENAI_TEMPERATURE")
	if err != nil {
		return OpenAIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("OPENAI_MAX_TOKENS")
	if err != nil {
		return OpenAIConfig{}, err
	}
	limit := 512
	if maxTokens != nil {
		limit = *maxTokens
	}

	stream, err := parseBoolEnv("OPENAI_STREAM", false)
	if err != nil {
		return OpenAIConfig{}, err
	}

	return OpenAIConfig{
		APIKey:         strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		ChatModel:      getEnvOrDefault("OPENAI_MODEL_CHAT", "gpt-4o-mini"),
		EmbedModel:     getEnvOrDefault("OPENAI_MODEL_EMBED", "text-embedding-3-small"),
		BaseURL:        strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		MaxTokens:      limit,
		Temperature:    temperature,
		StreamResponse: stream,
	}, nil
}

// PineconeConfig describes the hosted vector index.
type PineconeConfig struct {
	APIKey    string
	IndexHost string
	Index     string
	Namespace string
}

// Enabled reports whether the Pinecone data plane is reachable.
func (c PineconeConfig) Enabled() bool {
	return c.APIKey != "" && c.IndexHost != ""
}

func loadPineconeConfig() PineconeConfig {
	return PineconeConfig{
		APIKey:    strings.TrimSpace(os.Getenv("PINECONE_API_KEY")),
		IndexHost: strings.TrimSpace(os.Getenv("PINECONE_INDEX_HOST")),
		Index:     getEnvOrDefault("PINECONE_INDEX", "spectraflex-prod"),
		Namespace: getEnvOrDefault("PINECONE_NAMESPACE", "default"),
	}
}

// PostgresConfig is the alternate, self-hosted vector index backend.
type PostgresConfig struct {
	DSN string
}

// Enabled reports whether a DSN was provided.
func (c PostgresConfig) Enabled() bool { return c.DSN != "" }

// ShopifyConfig describes the storefront Admin API.
type ShopifyConfig struct {
	ShopHost      string
	AdminToken    string
	WebhookSecret string
}

// Enabled reports whether Admin API calls can be made.
func (c ShopifyConfig) Enabled() bool {
	return c.ShopHost != "" && c.AdminToken != ""
}

func loadShopifyConfig() (ShopifyConfig, error) {
	raw := strings.TrimSpace(os.Getenv("SHOP_URL"))
	host := ""
	if raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return ShopifyConfig{}, fmt.Errorf("invalid SHOP_URL value: %q", raw)
		}
		host = u.Host
	}

	token := strings.TrimSpace(os.Getenv("SHOP_ADMIN_TOKEN"))
	secret := strings.TrimSpace(os.Getenv("SHOP_WEBHOOK_SECRET"))
	if secret == "" {
		// Shopify signs webhooks with the app secret; fall back to the
		// admin token for single-app setups.
		secret = token
	}

	return ShopifyConfig{
		ShopHost:      host,
		AdminToken:    token,
		WebhookSecret: secret,
	}, nil
}

// RedisConfig carries the cache connection URL.
type RedisConfig struct {
	URL string
}

// GuardConfig tunes guardrails and retrieval.
type GuardConfig struct {
	OffTopicThreshold float64
	TopK              int
	ModerationEnabled bool
}

func loadGuardConfig() (GuardConfig, error) {
	threshold, err := parseOptionalFloatEnv("OFF_TOPIC_THRESHOLD")
	if err != nil {
		return GuardConfig{}, err
	}
	cutoff := 0.60
	if threshold != nil {
		cutoff = *threshold
	}

	topK, err := parseOptionalIntEnv("RAG_TOP_K")
	if err != nil {
		return GuardConfig{}, err
	}
	k := 4
	if topK != nil {
		if *topK < 1 {
			return GuardConfig{}, fmt.Errorf("RAG_TOP_K must be at least 1, got %d", *topK)
		}
		k = *topK
	}

	moderation, err := parseBoolEnv("MODERATION_ENABLED", true)
	if err != nil {
		return GuardConfig{}, err
	}

	return GuardConfig{
		OffTopicThreshold: cutoff,
		TopK:              k,
		ModerationEnabled: moderation,
	}, nil
}

// LimitConfig tunes the Redis-backed limiters.
type LimitConfig struct {
	IPLimit            int
	IPWindowSeconds    int
	SessionTokenBudget int
	SessionTTLSeconds  int
}

func loadLimitConfig() (LimitConfig, error) {
	out := LimitConfig{
		IPLimit:            20,
		IPWindowSeconds:    60,
		SessionTokenBudget: 15000,
		SessionTTLSeconds:  1800,
	}

	overrides := []struct {
		key string
		dst *int
	}{
		{"IP_LIMIT", &out.IPLimit},
		{"IP_WINDOW_SECONDS", &out.IPWindowSeconds},
		{"SESSION_TOKEN_BUDGET", &out.SessionTokenBudget},
		{"SESSION_TTL_SECONDS", &out.SessionTTLSeconds},
	}
	for _, o := range overrides {
		val, err := parseOptionalIntEnv(o.key)
		if err != nil {
			return LimitConfig{}, err
		}
		if val != nil {
			if *val < 1 {
				return LimitConfig{}, fmt.Errorf("%s must be positive, got %d", o.key, *val)
			}
			*o.dst = *val
		}
	}

	return out, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
