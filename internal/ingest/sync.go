package ingest

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/spectraflex/omnichat/internal/model/catalog"
	"github.com/spectraflex/omnichat/internal/service/rag"
)

const (
	batchSize = 100
	// Embedding input cap; matches the provider's request limit.
	maxDocChars = 8191
)

// CursorKey is where the last successful sync timestamp lives in Redis.
const CursorKey = "sync:shopify:last_ts"

// DirtyKey is set by the webhook handler when the catalog changed upstream.
const DirtyKey = "sync:shopify:dirty"

var tagRe = regexp.MustCompile(`<[^>]*>`)

// Source yields the products changed since a cursor timestamp.
type Source interface {
	ChangedProducts(ctx context.Context, sinceISO string) ([]catalog.Product, error)
}

// CursorStore persists the incremental-sync cursor between runs. Dirty
// reports whether the catalog changed upstream since the cursor was written;
// stores without a webhook feed report every run as dirty.
type CursorStore interface {
	GetCursor(ctx context.Context) (string, error)
	SetCursor(ctx context.Context, value string) error
	Dirty(ctx context.Context) (bool, error)
}

// Syncer drives one incremental catalog sync.
type Syncer struct {
	source  Source
	index   rag.VectorIndex
	cursors CursorStore
}

// NewSyncer wires the sync pipeline.
func NewSyncer(source Source, index rag.VectorIndex, cursors CursorStore) *Syncer {
	return &Syncer{source: source, index: index, cursors: cursors}
}

// Run pulls changed products, embeds them, and advances the cursor. The
// cursor only moves after every batch landed.
func (s *Syncer) Run(ctx context.Context) error {
	since, err := s.cursors.GetCursor(ctx)
	if err != nil {
		return fmt.Errorf("failed to read sync cursor: %w", err)
	}
	if since == "" {
		log.Info().Msg("catalog sync started (first run)")
	} else {
		dirty, err := s.cursors.Dirty(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("dirty flag unreadable, syncing anyway")
		} else if !dirty {
			log.Info().Str("since", since).Msg("no webhook activity since last sync; skipping")
			return nil
		}
		log.Info().Str("since", since).Msg("catalog sync started")
	}

	changed, err := s.source.ChangedProducts(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to list changed products: %w", err)
	}
	if len(changed) == 0 {
		log.Info().Msg("no product changes; index unchanged")
		return nil
	}

	log.Info().Int("count", len(changed)).Msg("embedding and upserting changed products")
	for i := 0; i < len(changed); i += batchSize {
		end := i + batchSize
		if end > len(changed) {
			end = len(changed)
		}
		if err := s.index.Upsert(ctx, buildDocuments(changed[i:end])); err != nil {
			return fmt.Errorf("failed to upsert batch at %d: %w", i, err)
		}
	}

	cursor := time.Now().UTC().Format(time.RFC3339)
	if err := s.cursors.SetCursor(ctx, cursor); err != nil {
		return fmt.Errorf("failed to advance sync cursor: %w", err)
	}
	log.Info().Str("cursor", cursor).Msg("catalog sync complete")
	return nil
}

func buildDocuments(products []catalog.Product) []catalog.Document {
	docs := make([]catalog.Document, 0, len(products))
	for _, p := range products {
		variantIDs := make([]string, 0, len(p.Variants))
		for _, v := range p.Variants {
			variantIDs = append(variantIDs, v.ID)
		}

		docs = append(docs, catalog.Document{
			ID:   p.ID,
			Text: productText(p),
			Metadata: catalog.Metadata{
				Title:      p.Title,
				Handle:     p.Handle,
				VariantIDs: variantIDs,
				Source:     "shopify",
			},
		})
	}
	return docs
}

func productText(p catalog.Product) string {
	desc := strings.TrimSpace(tagRe.ReplaceAllString(p.DescriptionHTML, " "))
	text := p.Title + "\n" + strings.Join(p.Tags, ", ") + "\n" + desc
	if len(text) > maxDocChars {
		cut := maxDocChars
		// Back up so a multi-byte rune is never split.
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}
