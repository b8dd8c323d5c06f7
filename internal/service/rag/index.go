package rag

import (
	"context"

	"github.com/spectraflex/omnichat/internal/model/catalog"
)

// Match is one nearest-neighbor hit from the vector index.
type Match struct {
	ID       string
	Score    float64
	Metadata catalog.Metadata
}

// VectorIndex abstracts the nearest-neighbor store. Production uses the
// Pinecone data plane; a pgvector-backed Postgres index is available for
// self-hosted deployments.
type VectorIndex interface {
	// Upsert embeds and stores the documents.
	Upsert(ctx context.Context, docs []catalog.Document) error
	// Query returns the k nearest catalog entries for the text.
	Query(ctx context.Context, text string, k int) ([]Match, error)
}

// MaxSimilarity returns the best match score for the text, or 0 when the
// index is empty. Used as the off-topic gate.
func MaxSimilarity(ctx context.Context, index VectorIndex, text string) (float64, error) {
	matches, err := index.Query(ctx, text, 1)
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, nil
	}
	return matches[0].Score, nil
}
