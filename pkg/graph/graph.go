// Package graph records who addressed whom during a run. Every event must
// name actors present in the role directory or the external user; events
// are never mutated once appended.
package graph

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jllopis/agis/pkg/core"
	"github.com/jllopis/agis/pkg/errors"
)

// Log validates and appends graph events, keeping the current run's events
// in memory for the read model and writing through to a Store.
type Log struct {
	dir    *core.Directory
	store  Store
	logger *slog.Logger

	mu     sync.RWMutex
	events []core.GraphEvent
}

// Option configures a Log.
type Option func(*Log)

// WithStore sets the persistent store. Defaults to a MemoryStore.
func WithStore(s Store) Option {
	return func(l *Log) { l.store = s }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

// NewLog creates a graph log validated against dir.
func NewLog(dir *core.Directory, opts ...Option) *Log {
	l := &Log{
		dir:    dir,
		store:  NewMemoryStore(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends an event from one actor to another. Unknown actors are
// rejected and nothing is appended. A store failure is logged; the event is
// still kept in memory.
func (l *Log) Record(ctx context.Context, from, to string, edge core.EdgeType, label string) error {
	for _, actor := range []string{from, to} {
		if !l.dir.IsKnownActor(actor) {
			return errors.New(errors.CodeInvalidInput, "graph event references unknown actor", nil).
				WithContext("actor", actor).
				WithContext("type", string(edge))
		}
	}
	fromRole := canonical(l.dir, from)
	toRole := canonical(l.dir, to)

	event := core.GraphEvent{
		From:      fromRole,
		To:        toRole,
		Type:      edge,
		Timestamp: time.Now().UTC(),
		Label:     label,
	}
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()

	runID, _ := core.RunID(ctx)
	if err := l.store.Append(ctx, Record{RunID: runID, GraphEvent: event}); err != nil {
		l.logger.WarnContext(ctx, "graph.store.append_failed",
			slog.String("from", event.From),
			slog.String("to", event.To),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Events returns the events recorded since the last reset.
func (l *Log) Events() []core.GraphEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]core.GraphEvent, len(l.events))
	copy(out, l.events)
	return out
}

// History queries the persistent store.
func (l *Log) History(ctx context.Context, filter Filter) ([]Record, error) {
	return l.store.List(ctx, filter)
}

// Reset clears the in-memory view. Persisted records are kept.
func (l *Log) Reset() {
	l.mu.Lock()
	l.events = nil
	l.mu.Unlock()
}

// canonical maps an alias or id to the directory alias.
func canonical(dir *core.Directory, actor string) string {
	if actor == core.ExternalActor {
		return actor
	}
	if r, ok := dir.Lookup(actor); ok {
		return r.Alias
	}
	return actor
}
