// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifact keeps generated media out of the text stream. Each media
// part is stored once in a Registry and referenced from role output by a
// placeholder tag.
package artifact

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind is the coarse media category of an artifact.
type Kind string

const (
	KindImage    Kind = "image"
	KindAudio    Kind = "audio"
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
	KindData     Kind = "data"
)

// Artifact is a generated media payload.
type Artifact struct {
	ID            string    `json:"id"`
	Kind          Kind      `json:"kind"`
	MIMEType      string    `json:"mime_type"`
	Payload       []byte    `json:"-"`
	Description   string    `json:"description,omitempty"`
	ProducingRole string    `json:"producing_role"`
	Timestamp     time.Time `json:"timestamp"`
}

var placeholderPattern = regexp.MustCompile(`\[\[ARTIFACT:([0-9a-fA-F-]+)\]\]`)

// Placeholder returns the reference tag embedded in text for id.
func Placeholder(id string) string {
	return fmt.Sprintf("[[ARTIFACT:%s]]", id)
}

// References returns the artifact ids referenced in text, in order.
func References(text string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(text, -1)
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m[1])
	}
	return ids
}

// KindFromMIME derives the artifact kind from a MIME type.
func KindFromMIME(mimeType string) Kind {
	mt := strings.ToLower(mimeType)
	switch {
	case strings.HasPrefix(mt, "image/"):
		return KindImage
	case strings.HasPrefix(mt, "audio/"):
		return KindAudio
	case strings.HasPrefix(mt, "video/"):
		return KindVideo
	case mt == "application/pdf", strings.HasPrefix(mt, "text/"):
		return KindDocument
	default:
		return KindData
	}
}

// Registry stores artifacts keyed by id. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	items map[string]Artifact
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Artifact)}
}

// Register stores a new artifact and returns it with its generated id.
func (r *Registry) Register(role, mimeType string, payload []byte, description string) Artifact {
	a := Artifact{
		ID:            uuid.NewString(),
		Kind:          KindFromMIME(mimeType),
		MIMEType:      mimeType,
		Payload:       payload,
		Description:   description,
		ProducingRole: role,
		Timestamp:     time.Now().UTC(),
	}
	r.mu.Lock()
	r.items[a.ID] = a
	r.order = append(r.order, a.ID)
	r.mu.Unlock()
	return a
}

// Get returns the artifact with id.
func (r *Registry) Get(id string) (Artifact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.items[id]
	return a, ok
}

// List returns all artifacts in registration order.
func (r *Registry) List() []Artifact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Artifact, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.items[id])
	}
	return out
}

// Len returns the number of registered artifacts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Reset removes every artifact.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.items = make(map[string]Artifact)
	r.order = nil
	r.mu.Unlock()
}
