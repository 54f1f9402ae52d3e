package graph

import (
	"context"
	"sync"
	"time"

	"github.com/jllopis/agis/pkg/core"
)

// Record is a graph event tagged with the run that produced it.
type Record struct {
	RunID string `json:"run_id"`
	core.GraphEvent
}

// Store persists graph events.
type Store interface {
	Append(ctx context.Context, record Record) error
	List(ctx context.Context, filter Filter) ([]Record, error)
}

// Filter limits graph event queries.
type Filter struct {
	RunID string
	Actor string
	Type  core.EdgeType
	Limit int
}

func (f Filter) matches(r Record) bool {
	if f.RunID != "" && r.RunID != f.RunID {
		return false
	}
	if f.Actor != "" && r.From != f.Actor && r.To != f.Actor {
		return false
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	return true
}

// MemoryStore keeps graph events in memory.
type MemoryStore struct {
	mu      sync.Mutex
	records []Record
}

// NewMemoryStore returns an in-memory graph store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append stores a record.
func (s *MemoryStore) Append(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// List returns filtered records in append order.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if !filter.matches(r) {
			continue
		}
		out = append(out, r)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// normalizeTime ensures timestamps are in UTC.
func normalizeTime(value time.Time) time.Time {
	if value.IsZero() {
		return value
	}
	return value.UTC()
}
