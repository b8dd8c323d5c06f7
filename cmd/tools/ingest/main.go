// Command ingest performs an incremental Shopify catalog sync into the
// configured vector index. Run it from cron, or after the webhook handler
// flags the catalog dirty.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/spectraflex/omnichat/internal/config"
	"github.com/spectraflex/omnichat/internal/ingest"
	"github.com/spectraflex/omnichat/internal/logging"
	"github.com/spectraflex/omnichat/internal/service/rag"
	"github.com/spectraflex/omnichat/internal/service/shopify"
)

func main() {
	full := flag.Bool("full", false, "ignore the stored cursor and resync the whole catalog")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("no .env file loaded, using system environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Setup(cfg.Server.Env, cfg.Server.LogLevel)

	if !cfg.Shopify.Enabled() {
		log.Fatal().Msg("SHOP_URL and SHOP_ADMIN_TOKEN are required")
	}

	embedder, err := rag.NewEmbedder(ctx, cfg.OpenAI.APIKey, cfg.OpenAI.EmbedModel, cfg.OpenAI.BaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create embedder")
	}

	var index rag.VectorIndex
	switch {
	case cfg.Pinecone.Enabled():
		index = rag.NewPineconeIndex(cfg.Pinecone.APIKey, cfg.Pinecone.IndexHost, cfg.Pinecone.Namespace, embedder)
	case cfg.Postgres.Enabled():
		index, err = rag.NewPgvectorIndex(cfg.Postgres.DSN, embedder)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open pgvector index")
		}
	default:
		log.Fatal().Msg("configure PINECONE_API_KEY/PINECONE_INDEX_HOST or DATABASE_URL")
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err = rdb.Ping(pingCtx).Err()
	cancel()

	var cursors ingest.CursorStore
	if err != nil {
		log.Warn().Err(err).Msg("redis unreachable, syncing without a cursor")
		cursors = nullCursorStore{}
	} else {
		cursors = ingest.NewRedisCursorStore(rdb, cfg.Shopify.WebhookSecret != "")
	}
	if *full {
		cursors = nullCursorStore{inner: cursors}
	}

	source := shopify.NewClient(cfg.Shopify.ShopHost, cfg.Shopify.AdminToken)
	syncer := ingest.NewSyncer(source, index, cursors)
	if err := syncer.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("catalog sync failed")
	}
}

// nullCursorStore reads an empty cursor (forcing a full sync) while still
// advancing the real cursor when one is available.
type nullCursorStore struct {
	inner ingest.CursorStore
}

func (s nullCursorStore) GetCursor(context.Context) (string, error) { return "", nil }

func (s nullCursorStore) Dirty(context.Context) (bool, error) { return true, nil }

func (s nullCursorStore) SetCursor(ctx context.Context, value string) error {
	if s.inner == nil {
		return nil
	}
	return s.inner.SetCursor(ctx, value)
}
