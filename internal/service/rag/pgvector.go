package rag

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/spectraflex/omnichat/internal/model/catalog"
)

// PgvectorIndex is the self-hosted alternative to Pinecone, backed by a
// Postgres table with a pgvector column.
//
// Expected schema:
//
//	CREATE TABLE catalog_documents (
//	    id          TEXT PRIMARY KEY,
//	    title       TEXT NOT NULL,
//	    handle      TEXT NOT NULL,
//	    variant_ids TEXT[] NOT NULL DEFAULT '{}',
//	    body        TEXT NOT NULL,
//	    embedding   VECTOR(1536) NOT NULL
//	);
type PgvectorIndex struct {
	db       *sql.DB
	embedder embedding.Embedder
}

// NewPgvectorIndex opens the connection pool and verifies connectivity.
func NewPgvectorIndex(dsn string, embedder embedding.Embedder) (*PgvectorIndex, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	return &PgvectorIndex{db: db, embedder: embedder}, nil
}

// Close releases the connection pool.
func (p *PgvectorIndex) Close() error { return p.db.Close() }

// Upsert embeds the documents and writes them to the table.
func (p *PgvectorIndex) Upsert(ctx context.Context, docs []catalog.Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
	}

	vectors, err := p.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	const query = `
		INSERT INTO catalog_documents (id, title, handle, variant_ids, body, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title,
		    handle = EXCLUDED.handle,
		    variant_ids = EXCLUDED.variant_ids,
		    body = EXCLUDED.body,
		    embedding = EXCLUDED.embedding
	`

	for i, doc := range docs {
		vec := pgvector.NewVector(toFloat32(vectors[i]))
		_, err := p.db.ExecContext(ctx, query,
			doc.ID, doc.Metadata.Title, doc.Metadata.Handle,
			pq.Array(doc.Metadata.VariantIDs), doc.Text, vec,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
		}
	}
	return nil
}

// Query returns the k nearest catalog entries for the text, scored by
// cosine similarity to match what Pinecone reports.
func (p *PgvectorIndex) Query(ctx context.Context, text string, k int) ([]Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	vectors, err := p.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vector")
	}
	vec := pgvector.NewVector(toFloat32(vectors[0]))

	const query = `
		SELECT id, title, handle, variant_ids, 1 - (embedding <=> $1) AS score
		FROM catalog_documents
		ORDER BY embedding <=> $1
		LIMIT $2
	`

	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := p.db.QueryContext(queryCtx, query, vec, k)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search query: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var variantIDs []string
		if err := rows.Scan(&m.ID, &m.Metadata.Title, &m.Metadata.Handle, pq.Array(&variantIDs), &m.Score); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		m.Metadata.VariantIDs = variantIDs
		m.Metadata.Source = "shopify"
		matches = append(matches, m)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("error iterating through documents: %w", rows.Err())
	}

	return matches, nil
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}
