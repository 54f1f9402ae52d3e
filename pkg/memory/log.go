// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory holds the shared context every role invocation reads: the
// conversation history and the knowledge base of extracted insights. Both
// are append-only logs; readers take an immutable snapshot.
package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SystemAuthor is the author of runtime-generated lines.
const SystemAuthor = "System"

// Entry is one appended line.
type Entry struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Format renders an entry for inclusion in a prompt.
type Format func(Entry) string

// HistoryFormat renders "Author: text".
func HistoryFormat(e Entry) string {
	return fmt.Sprintf("%s: %s", e.Author, e.Text)
}

// KnowledgeFormat renders "[alias]: text".
func KnowledgeFormat(e Entry) string {
	return fmt.Sprintf("[%s]: %s", e.Author, e.Text)
}

// Log is an append-only text log safe for concurrent writers. Ordering
// across concurrent appends follows lock acquisition only.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	format  Format
}

// NewLog creates an empty log rendered with format.
func NewLog(format Format) *Log {
	if format == nil {
		format = HistoryFormat
	}
	return &Log{format: format}
}

// NewHistory creates the conversation history log.
func NewHistory() *Log {
	return NewLog(HistoryFormat)
}

// Append adds a line and returns the stored entry.
func (l *Log) Append(author, text string) Entry {
	e := Entry{
		ID:        uuid.NewString(),
		Author:    author,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
	return e
}

// Appendf adds a System line.
func (l *Log) Appendf(format string, args ...any) Entry {
	return l.Append(SystemAuthor, fmt.Sprintf(format, args...))
}

// Entries returns a copy of all entries.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Snapshot renders every entry, separated by blank lines.
func (l *Log) Snapshot() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	parts := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		parts = append(parts, l.format(e))
	}
	return strings.Join(parts, "\n\n")
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Reset clears the log. Only an explicit reset between requests may call it.
func (l *Log) Reset() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}
