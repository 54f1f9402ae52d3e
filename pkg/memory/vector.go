// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"sync"
)

// VectorStore defines the interface for a vector database.
type VectorStore interface {
	// Upsert adds or updates points in the vector store.
	Upsert(ctx context.Context, collection string, points []Point) error
	// Search searches for the nearest vectors to the given vector.
	Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]SearchResult, error)
	// CreateCollection creates a new collection if it doesn't exist.
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
}

// Point represents a data point in the vector store.
type Point struct {
	ID        string         `json:"id"`
	Vector    []float32      `json:"vector"`
	Payload   map[string]any `json:"payload"`
	Timestamp int64          `json:"timestamp"`
}

// SearchResult represents a result from a vector search.
type SearchResult struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
	Point Point   `json:"point"`
}

// Embedder defines the interface for converting text to vectors.
type Embedder interface {
	// Embed converts a text string into a vector.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorMirror embeds knowledge entries and upserts them into a vector
// store so later runs can recall them by similarity. The collection is
// created lazily, sized from the first embedding.
type VectorMirror struct {
	store      VectorStore
	embedder   Embedder
	collection string

	once    sync.Once
	initErr error
}

// NewVectorMirror creates a mirror writing to collection.
func NewVectorMirror(store VectorStore, embedder Embedder, collection string) *VectorMirror {
	return &VectorMirror{store: store, embedder: embedder, collection: collection}
}

// Remember implements Mirror.
func (m *VectorMirror) Remember(ctx context.Context, entry Entry) error {
	vector, err := m.embedder.Embed(ctx, entry.Text)
	if err != nil {
		return fmt.Errorf("embed insight: %w", err)
	}
	if err := m.ensure(ctx, len(vector)); err != nil {
		return err
	}
	return m.store.Upsert(ctx, m.collection, []Point{{
		ID:     entry.ID,
		Vector: vector,
		Payload: map[string]any{
			"role": entry.Author,
			"text": entry.Text,
		},
		Timestamp: entry.Timestamp.Unix(),
	}})
}

func (m *VectorMirror) ensure(ctx context.Context, size int) error {
	m.once.Do(func() {
		m.initErr = m.store.CreateCollection(ctx, m.collection, uint64(size))
	})
	return m.initErr
}

// Recall returns up to limit insights similar to query, rendered in
// knowledge-base form. A collection that was never written yields nothing.
func (m *VectorMirror) Recall(ctx context.Context, query string, limit int) ([]string, error) {
	vector, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if err := m.ensure(ctx, len(vector)); err != nil {
		return nil, err
	}
	results, err := m.store.Search(ctx, m.collection, vector, limit, 0)
	if err != nil {
		return nil, fmt.Errorf("search insights: %w", err)
	}
	out := make([]string, 0, len(results))
	for _, r := range results {
		role, _ := r.Point.Payload["role"].(string)
		text, _ := r.Point.Payload["text"].(string)
		if text == "" {
			continue
		}
		out = append(out, KnowledgeFormat(Entry{Author: role, Text: text}))
	}
	return out, nil
}

var _ Recaller = (*VectorMirror)(nil)
