// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

var (
	insightHeader = regexp.MustCompile(`(?i)(?:^|\n)[ \t]*(?:#{1,6}[ \t]*)?(?:\*\*)?key[ \t]+insights?(?:\*\*)?[ \t]*:?(?:\*\*)?[ \t]*`)
	nextHeading   = regexp.MustCompile(`\n[ \t]*#{1,6}[ \t]`)
)

// ExtractInsights returns the body of the first "Key Insights" section in
// text, up to the next markdown heading.
func ExtractInsights(text string) (string, bool) {
	loc := insightHeader.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	body := text[loc[1]:]
	if end := nextHeading.FindStringIndex(body); end != nil {
		body = body[:end[0]]
	}
	body = strings.TrimSpace(body)
	return body, body != ""
}

// Mirror receives every knowledge entry after it is appended.
type Mirror interface {
	Remember(ctx context.Context, entry Entry) error
}

// Recaller is a Mirror that can also return stored insights similar to a
// query, rendered in knowledge-base form.
type Recaller interface {
	Recall(ctx context.Context, query string, limit int) ([]string, error)
}

// DefaultRecallLimit bounds how many insights Prime pulls from the mirror.
const DefaultRecallLimit = 5

// KnowledgeBase accumulates insights tagged by role alias.
type KnowledgeBase struct {
	log         *Log
	mirror      Mirror
	logger      *slog.Logger
	recallLimit int

	mu       sync.RWMutex
	recalled []string
}

// KnowledgeOption configures a KnowledgeBase.
type KnowledgeOption func(*KnowledgeBase)

// WithMirror copies every insight to m. Mirror failures are logged only.
func WithMirror(m Mirror) KnowledgeOption {
	return func(kb *KnowledgeBase) { kb.mirror = m }
}

// WithRecallLimit sets how many insights Prime recalls. Zero disables recall.
func WithRecallLimit(n int) KnowledgeOption {
	return func(kb *KnowledgeBase) { kb.recallLimit = n }
}

// WithKnowledgeLogger sets the logger.
func WithKnowledgeLogger(l *slog.Logger) KnowledgeOption {
	return func(kb *KnowledgeBase) { kb.logger = l }
}

// NewKnowledgeBase creates an empty knowledge base.
func NewKnowledgeBase(opts ...KnowledgeOption) *KnowledgeBase {
	kb := &KnowledgeBase{
		log:         NewLog(KnowledgeFormat),
		logger:      slog.Default(),
		recallLimit: DefaultRecallLimit,
	}
	for _, opt := range opts {
		opt(kb)
	}
	return kb
}

// Add appends an insight attributed to alias.
func (kb *KnowledgeBase) Add(ctx context.Context, alias, text string) Entry {
	e := kb.log.Append(alias, text)
	if kb.mirror != nil {
		if err := kb.mirror.Remember(ctx, e); err != nil {
			kb.logger.WarnContext(ctx, "knowledge.mirror.failed",
				slog.String("role", alias),
				slog.String("error", err.Error()),
			)
		}
	}
	return e
}

// Capture extracts the key-insights section of a role's output, if any,
// and appends it. It reports whether an insight was added.
func (kb *KnowledgeBase) Capture(ctx context.Context, alias, output string) bool {
	insight, ok := ExtractInsights(output)
	if !ok {
		return false
	}
	kb.Add(ctx, alias, insight)
	return true
}

// Prime replaces the recalled insights with those the mirror holds for
// query. Insights already in the knowledge base are skipped. It returns the
// number kept; without a recalling mirror it does nothing.
func (kb *KnowledgeBase) Prime(ctx context.Context, query string) int {
	recaller, ok := kb.mirror.(Recaller)
	if !ok || kb.recallLimit <= 0 {
		return 0
	}
	hits, err := recaller.Recall(ctx, query, kb.recallLimit)
	if err != nil {
		kb.logger.WarnContext(ctx, "knowledge.recall.failed", slog.String("error", err.Error()))
		return 0
	}
	local := make(map[string]bool, kb.log.Len())
	for _, e := range kb.log.Entries() {
		local[KnowledgeFormat(e)] = true
	}
	kept := make([]string, 0, len(hits))
	for _, h := range hits {
		if h == "" || local[h] {
			continue
		}
		local[h] = true
		kept = append(kept, h)
	}
	kb.mu.Lock()
	kb.recalled = kept
	kb.mu.Unlock()
	kb.logger.DebugContext(ctx, "knowledge.recall", slog.Int("hits", len(hits)), slog.Int("kept", len(kept)))
	return len(kept)
}

// Recalled returns the insights recalled by the last Prime.
func (kb *KnowledgeBase) Recalled() []string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	out := make([]string, len(kb.recalled))
	copy(out, kb.recalled)
	return out
}

// Entries returns a copy of all insights.
func (kb *KnowledgeBase) Entries() []Entry {
	return kb.log.Entries()
}

// Snapshot renders the knowledge base for a prompt, recalled insights
// first.
func (kb *KnowledgeBase) Snapshot() string {
	parts := kb.Recalled()
	if local := kb.log.Snapshot(); local != "" {
		parts = append(parts, local)
	}
	return strings.Join(parts, "\n\n")
}

// Len returns the number of insights.
func (kb *KnowledgeBase) Len() int {
	return kb.log.Len()
}

// Reset clears the knowledge base and the recalled insights. The mirror is
// left untouched.
func (kb *KnowledgeBase) Reset() {
	kb.log.Reset()
	kb.mu.Lock()
	kb.recalled = nil
	kb.mu.Unlock()
}
