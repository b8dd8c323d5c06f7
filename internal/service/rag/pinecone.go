package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog/log"

	"github.com/spectraflex/omnichat/internal/model/catalog"
)

// PineconeIndex talks to the Pinecone data plane over its REST API.
type PineconeIndex struct {
	apiKey     string
	host       string
	namespace  string
	embedder   embedding.Embedder
	httpClient *http.Client
}

// NewPineconeIndex wires the index against its serverless host URL.
func NewPineconeIndex(apiKey, host, namespace string, embedder embedding.Embedder) *PineconeIndex {
	if !strings.HasPrefix(host, "http") {
		host = "https://" + host
	}
	return &PineconeIndex{
		apiKey:     apiKey,
		host:       strings.TrimRight(host, "/"),
		namespace:  namespace,
		embedder:   embedder,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type pineconeVector struct {
	ID       string           `json:"id"`
	Values   []float64        `json:"values"`
	Metadata catalog.Metadata `json:"metadata"`
}

type pineconeUpsertRequest struct {
	Vectors   []pineconeVector `json:"vectors"`
	Namespace string           `json:"namespace,omitempty"`
}

type pineconeQueryRequest struct {
	Vector          []float64 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
	Namespace       string    `json:"namespace,omitempty"`
}

type pineconeQueryResponse struct {
	Matches []struct {
		ID       string           `json:"id"`
		Score    float64          `json:"score"`
		Metadata catalog.Metadata `json:"metadata"`
	} `json:"matches"`
}

// Upsert embeds the documents and writes them to the index.
func (p *PineconeIndex) Upsert(ctx context.Context, docs []catalog.Document) error {
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

	payload := pineconeUpsertRequest{Namespace: p.namespace}
	for i, doc := range docs {
		payload.Vectors = append(payload.Vectors, pineconeVector{
			ID:       doc.ID,
			Values:   vectors[i],
			Metadata: doc.Metadata,
		})
	}

	if err := p.post(ctx, "/vectors/upsert", payload, nil); err != nil {
		return err
	}
	log.Info().Int("count", len(docs)).Msg("upserted vectors to pinecone")
	return nil
}

// Query returns the k nearest catalog entries for the text.
func (p *PineconeIndex) Query(ctx context.Context, text string, k int) ([]Match, error) {
	vectors, err := p.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vector")
	}

	var decoded pineconeQueryResponse
	req := pineconeQueryRequest{
		Vector:          vectors[0],
		TopK:            k,
		IncludeMetadata: true,
		Namespace:       p.namespace,
	}
	if err := p.post(ctx, "/query", req, &decoded); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(decoded.Matches))
	for _, m := range decoded.Matches {
		matches = append(matches, Match{ID: m.ID, Score: m.Score, Metadata: m.Metadata})
	}
	return matches, nil
}

func (p *PineconeIndex) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode pinecone request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build pinecone request: %w", err)
	}
	req.Header.Set("Api-Key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pinecone request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pinecone %s returned status %d", path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode pinecone response: %w", err)
	}
	return nil
}
