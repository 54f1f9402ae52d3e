// Package gemini implements memory.Embedder with the Gemini embedding API.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "text-embedding-004"

// Embedder implements the memory.Embedder interface using Gemini.
type Embedder struct {
	client *genai.Client
	model  string
}

// NewEmbedder creates an embedder sharing an existing client.
func NewEmbedder(client *genai.Client, model string) *Embedder {
	if model == "" {
		model = DefaultModel
	}
	return &Embedder{client: client, model: model}
}

// Embed converts a text string into a vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{{Parts: []*genai.Part{{Text: text}}}}
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}
	return firstEmbedding(resp)
}

func firstEmbedding(resp *genai.EmbedContentResponse) ([]float32, error) {
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("empty embedding response")
	}
	return resp.Embeddings[0].Values, nil
}
