// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package testing

import (
	"context"
	"sync"

	"github.com/jllopis/agis/pkg/core"
)

// EventCollector is a core.EventEmitter that records every event.
type EventCollector struct {
	mu     sync.RWMutex
	events []core.Event
}

// NewEventCollector creates a new event collector.
func NewEventCollector() *EventCollector {
	return &EventCollector{
		events: make([]core.Event, 0),
	}
}

// Emit implements core.EventEmitter.
func (c *EventCollector) Emit(_ context.Context, event core.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

// Events returns all collected events.
func (c *EventCollector) Events() []core.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]core.Event, len(c.events))
	copy(result, c.events)
	return result
}

// OfType returns the collected events of the given type.
func (c *EventCollector) OfType(eventType core.EventType) []core.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []core.Event
	for _, ev := range c.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// HasEvent checks if an event of the given type was collected.
func (c *EventCollector) HasEvent(eventType core.EventType) bool {
	return len(c.OfType(eventType)) > 0
}

// Count returns the number of collected events.
func (c *EventCollector) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

// Reset clears all collected events.
func (c *EventCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}

var _ core.EventEmitter = (*EventCollector)(nil)
