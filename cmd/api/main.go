package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/spectraflex/omnichat/internal/config"
	"github.com/spectraflex/omnichat/internal/handler"
	chathandler "github.com/spectraflex/omnichat/internal/handler/chat"
	webhookhandler "github.com/spectraflex/omnichat/internal/handler/webhook"
	"github.com/spectraflex/omnichat/internal/logging"
	"github.com/spectraflex/omnichat/internal/service/ai"
	"github.com/spectraflex/omnichat/internal/service/guardrails"
	"github.com/spectraflex/omnichat/internal/service/ratelimit"
	"github.com/spectraflex/omnichat/internal/service/rag"
	"github.com/spectraflex/omnichat/internal/service/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("no .env file loaded, using system environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Setup(cfg.Server.Env, cfg.Server.LogLevel)

	// Redis backs sessions, rate limits, and the ingest cursor. Without it
	// the service still answers, with in-memory sessions and no limiting.
	var rdb *redis.Client
	if opts, err := redis.ParseURL(cfg.Redis.URL); err != nil {
		log.Warn().Err(err).Msg("invalid REDIS_URL, continuing without redis")
	} else {
		rdb = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, continuing without redis")
			rdb = nil
		}
		cancel()
	}

	var sessions session.Store
	var limiter chathandler.Limiter
	if rdb != nil {
		sessions = session.NewRedisStore(rdb, time.Duration(cfg.Limits.SessionTTLSeconds)*time.Second)
		limiter = ratelimit.New(rdb, ratelimit.Config{
			IPLimit:            cfg.Limits.IPLimit,
			IPWindowSeconds:    cfg.Limits.IPWindowSeconds,
			SessionTokenBudget: cfg.Limits.SessionTokenBudget,
			SessionTTLSeconds:  cfg.Limits.SessionTTLSeconds,
		})
	} else {
		sessions = session.NewMemoryStore()
	}

	aiService, err := ai.NewService(ctx, cfg.OpenAI)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize AI service")
	}

	guard := guardrails.New(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.Guard.ModerationEnabled)

	index, err := buildIndex(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize vector index")
	}
	if index == nil {
		log.Warn().Msg("no vector index configured, retrieval and off-topic gate disabled")
	}

	chatHandler := chathandler.New(sessions, limiter, guard, index, aiService, chathandler.Options{
		OffTopicThreshold: cfg.Guard.OffTopicThreshold,
		TopK:              cfg.Guard.TopK,
	})

	var webhookHandler *webhookhandler.Handler
	if cfg.Shopify.WebhookSecret != "" {
		webhookHandler = webhookhandler.New(cfg.Shopify.WebhookSecret, rdb)
	} else {
		log.Info().Msg("shopify webhook secret not configured, webhook route disabled")
	}

	router := handler.NewRouter(chatHandler, webhookHandler)

	startServer(ctx, cfg.Server, router)
}

func buildIndex(ctx context.Context, cfg *config.Config) (rag.VectorIndex, error) {
	if !cfg.Pinecone.Enabled() && !cfg.Postgres.Enabled() {
		return nil, nil
	}

	embedder, err := rag.NewEmbedder(ctx, cfg.OpenAI.APIKey, cfg.OpenAI.EmbedModel, cfg.OpenAI.BaseURL)
	if err != nil {
		return nil, err
	}

	if cfg.Pinecone.Enabled() {
		log.Info().Str("host", cfg.Pinecone.IndexHost).Msg("using pinecone vector index")
		return rag.NewPineconeIndex(cfg.Pinecone.APIKey, cfg.Pinecone.IndexHost, cfg.Pinecone.Namespace, embedder), nil
	}

	log.Info().Msg("using pgvector vector index")
	return rag.NewPgvectorIndex(cfg.Postgres.DSN, embedder)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", serverCfg.Addr).Msg("omnichat backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
