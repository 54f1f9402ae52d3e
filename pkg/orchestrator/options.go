package orchestrator

import (
	"log/slog"

	"github.com/jllopis/agis/pkg/artifact"
	"github.com/jllopis/agis/pkg/core"
	"github.com/jllopis/agis/pkg/graph"
	"github.com/jllopis/agis/pkg/leadership"
	"github.com/jllopis/agis/pkg/memory"
	"github.com/jllopis/agis/pkg/telemetry"
)

// Option configures a Controller.
type Option func(*Controller)

// WithLeadership sets the leadership roles and draft loop bounds. Its
// Orchestrator alias is also the role driving the loop.
func WithLeadership(cfg leadership.Config) Option {
	return func(c *Controller) { c.leadershipCfg = cfg }
}

// WithMaxCycles sets the cycle ceiling before the loop escalates.
func WithMaxCycles(n int) Option {
	return func(c *Controller) { c.maxCycles = n }
}

// WithModel overrides the gateway model for every call.
func WithModel(model string) Option {
	return func(c *Controller) { c.model = model }
}

func WithThinkingBudget(tokens int) Option {
	return func(c *Controller) { c.thinkingBudget = tokens }
}

// WithCapabilities enables web search and code execution for roles that
// declare them.
func WithCapabilities(enabled bool) Option {
	return func(c *Controller) { c.capabilities = enabled }
}

// WithInitialTeam sets the aliases the team starts with and returns to on
// Reset.
func WithInitialTeam(aliases ...string) Option {
	return func(c *Controller) { c.initialTeam = aliases }
}

// WithGraphStore persists graph events.
func WithGraphStore(s graph.Store) Option {
	return func(c *Controller) { c.graphStore = s }
}

// WithKnowledgeMirror mirrors every captured insight, e.g. to a vector store.
func WithKnowledgeMirror(m memory.Mirror) Option {
	return func(c *Controller) { c.mirror = m }
}

// WithRecallLimit bounds the insights recalled from the mirror when a new
// request starts. Zero disables recall.
func WithRecallLimit(n int) Option {
	return func(c *Controller) { c.recallLimit = n }
}

// WithArtifacts shares the registry the gateway stores media in.
func WithArtifacts(r *artifact.Registry) Option {
	return func(c *Controller) { c.artifacts = r }
}

func WithEmitter(em core.EventEmitter) Option {
	return func(c *Controller) { c.emitter = em }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}
