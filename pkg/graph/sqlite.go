package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jllopis/agis/pkg/core"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists graph events in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens dsn with the modernc driver and prepares the schema.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore creates a SQLite-backed graph store and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureGraphSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append stores a single record.
func (s *SQLiteStore) Append(ctx context.Context, record Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO graph_events (run_id, from_actor, to_actor, edge_type, label, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		record.RunID,
		record.From,
		record.To,
		string(record.Type),
		record.Label,
		normalizeTime(record.Timestamp),
	)
	return err
}

// List returns records matching the filter in append order.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]Record, error) {
	query := `
		SELECT run_id, from_actor, to_actor, edge_type, label, occurred_at
		FROM graph_events
	`
	var args []any
	where := ""
	addFilter := func(clause string, values ...any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, values...)
	}
	if filter.RunID != "" {
		addFilter("run_id = ?", filter.RunID)
	}
	if filter.Actor != "" {
		addFilter("(from_actor = ? OR to_actor = ?)", filter.Actor, filter.Actor)
	}
	if filter.Type != "" {
		addFilter("edge_type = ?", string(filter.Type))
	}
	query += where + " ORDER BY id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			record   Record
			edgeType string
			occurred sql.NullTime
		)
		if err := rows.Scan(
			&record.RunID,
			&record.From,
			&record.To,
			&edgeType,
			&record.Label,
			&occurred,
		); err != nil {
			return nil, err
		}
		record.Type = core.EdgeType(edgeType)
		if occurred.Valid {
			record.Timestamp = occurred.Time
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func ensureGraphSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS graph_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT,
			from_actor TEXT NOT NULL,
			to_actor TEXT NOT NULL,
			edge_type TEXT NOT NULL,
			label TEXT,
			occurred_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_graph_events_run ON graph_events(run_id);
		CREATE INDEX IF NOT EXISTS idx_graph_events_from ON graph_events(from_actor);
		CREATE INDEX IF NOT EXISTS idx_graph_events_to ON graph_events(to_actor);
	`)
	return err
}
