// Package runtime assembles a ready-to-use orchestration system from
// configuration: provider, gateway, role directory, stores and controller.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jllopis/agis/pkg/artifact"
	"github.com/jllopis/agis/pkg/config"
	"github.com/jllopis/agis/pkg/core"
	"github.com/jllopis/agis/pkg/dispatch"
	"github.com/jllopis/agis/pkg/errors"
	"github.com/jllopis/agis/pkg/gateway"
	"github.com/jllopis/agis/pkg/graph"
	"github.com/jllopis/agis/pkg/leadership"
	"github.com/jllopis/agis/pkg/llm"
	"github.com/jllopis/agis/pkg/memory"
	memgemini "github.com/jllopis/agis/pkg/memory/gemini"
	"github.com/jllopis/agis/pkg/memory/qdrant"
	"github.com/jllopis/agis/pkg/orchestrator"
	"github.com/jllopis/agis/pkg/resilience"
	"github.com/jllopis/agis/pkg/telemetry"
	"github.com/jllopis/agis/providers/anthropic"
	"github.com/jllopis/agis/providers/gemini"
)

// ServiceName identifies the process in telemetry resources.
const ServiceName = "agis"

// Version is overridden at build time.
var Version = "dev"

// System is a wired orchestration system. Close releases every resource
// Build acquired, in reverse order.
type System struct {
	Config     *config.Config
	Directory  *core.Directory
	Gateway    *gateway.Gateway
	Controller *orchestrator.Controller
	Artifacts  *artifact.Registry
	GraphStore graph.Store

	logger  *slog.Logger
	mu      sync.Mutex
	closers []func(context.Context) error
}

// Option customizes Build.
type Option func(*buildOptions)

type buildOptions struct {
	provider llm.StreamingProvider
	emitter  core.EventEmitter
	logger   *slog.Logger
	retry    *resilience.RetryConfig
}

// WithProvider bypasses provider construction, mostly for tests.
func WithProvider(p llm.StreamingProvider) Option {
	return func(o *buildOptions) { o.provider = p }
}

// WithEmitter receives every controller event.
func WithEmitter(em core.EventEmitter) Option {
	return func(o *buildOptions) { o.emitter = em }
}

// WithLogger sets the logger shared by all components.
func WithLogger(l *slog.Logger) Option {
	return func(o *buildOptions) { o.logger = l }
}

// WithRetry replaces the retry policy derived from the gateway section.
func WithRetry(rc resilience.RetryConfig) Option {
	return func(o *buildOptions) { o.retry = &rc }
}

// Build wires a System from cfg. On error, everything acquired so far is
// released before returning.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (sys *System, err error) {
	if cfg == nil {
		return nil, errors.New(errors.CodeInvalidInput, "config is required", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions{emitter: core.NoopEventEmitter{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	sys = &System{Config: cfg, logger: o.logger, Artifacts: artifact.NewRegistry()}
	defer func() {
		if err != nil {
			_ = sys.Close(context.WithoutCancel(ctx))
			sys = nil
		}
	}()

	o.logger.InfoContext(ctx, "runtime.build.start",
		slog.String("provider", cfg.LLM.Provider),
		slog.String("model", cfg.LLM.Model),
		slog.String("graph_driver", cfg.Graph.Driver),
		slog.Bool("vector", cfg.Knowledge.Vector.Enabled),
	)

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitWithConfig(ServiceName, Version, telemetry.Config{
			Exporter:           cfg.Telemetry.Exporter,
			OTLPEndpoint:       cfg.Telemetry.OTLPEndpoint,
			OTLPInsecure:       cfg.Telemetry.OTLPInsecure,
			OTLPTimeoutSeconds: cfg.Telemetry.OTLPTimeoutSeconds,
		})
		if err != nil {
			return nil, errors.New(errors.CodeInternal, "telemetry init failed", err)
		}
		sys.onClose(func(ctx context.Context) error { return shutdown(ctx) })
		if metrics, err = telemetry.NewMetrics(ctx); err != nil {
			return nil, errors.New(errors.CodeInternal, "metrics init failed", err)
		}
	}

	if cfg.Orchestration.RolesFile != "" {
		sys.Directory, err = core.LoadDirectory(cfg.Orchestration.RolesFile)
		if err != nil {
			return nil, err
		}
	} else {
		sys.Directory = core.DefaultDirectory()
	}

	provider := o.provider
	var geminiProvider *gemini.Provider
	if provider == nil {
		provider, geminiProvider, err = sys.newProvider(ctx, cfg.LLM)
		if err != nil {
			return nil, err
		}
	}

	retry := RetryConfig(cfg.Gateway)
	if o.retry != nil {
		retry = *o.retry
	}
	sys.Gateway = gateway.New(provider,
		gateway.WithModel(cfg.LLM.Model),
		gateway.WithProviderName(cfg.LLM.Provider),
		gateway.WithArtifacts(sys.Artifacts),
		gateway.WithRetry(retry),
		gateway.WithLogger(o.logger),
		gateway.WithMetrics(metrics),
	)

	ctrlOpts := []orchestrator.Option{
		orchestrator.WithLeadership(LeadershipConfig(cfg.Orchestration)),
		orchestrator.WithMaxCycles(cfg.Orchestration.MaxCycles),
		orchestrator.WithModel(cfg.LLM.Model),
		orchestrator.WithThinkingBudget(cfg.LLM.ThinkingBudget),
		orchestrator.WithCapabilities(cfg.LLM.EnableCapabilities),
		orchestrator.WithArtifacts(sys.Artifacts),
		orchestrator.WithEmitter(o.emitter),
		orchestrator.WithLogger(o.logger),
		orchestrator.WithMetrics(metrics),
	}
	if len(cfg.Orchestration.Team) > 0 {
		ctrlOpts = append(ctrlOpts, orchestrator.WithInitialTeam(cfg.Orchestration.Team...))
	}

	if cfg.Graph.Driver == "sqlite" {
		store, err := graph.OpenSQLite(cfg.Graph.DSN)
		if err != nil {
			return nil, errors.New(errors.CodeInternal, "open graph store", err).WithContext("dsn", cfg.Graph.DSN)
		}
		sys.onClose(func(context.Context) error { return store.Close() })
		sys.GraphStore = store
		ctrlOpts = append(ctrlOpts, orchestrator.WithGraphStore(store))
	}

	if mirror, err := sys.newMirror(cfg.Knowledge.Vector, geminiProvider); err != nil {
		return nil, err
	} else if mirror != nil {
		ctrlOpts = append(ctrlOpts,
			orchestrator.WithKnowledgeMirror(mirror),
			orchestrator.WithRecallLimit(cfg.Knowledge.Vector.RecallLimit),
		)
	}

	sys.Controller, err = orchestrator.New(sys.Gateway, sys.Directory, ctrlOpts...)
	if err != nil {
		return nil, err
	}

	o.logger.InfoContext(ctx, "runtime.build.done",
		slog.Int("roles", len(sys.Directory.Roles())),
		slog.Int("max_cycles", cfg.Orchestration.MaxCycles),
	)
	return sys, nil
}

func (s *System) newProvider(ctx context.Context, cfg config.LLMConfig) (llm.StreamingProvider, *gemini.Provider, error) {
	switch cfg.Provider {
	case "gemini":
		p, err := gemini.New(ctx, cfg.APIKey, gemini.WithModel(cfg.Model))
		if err != nil {
			return nil, nil, errors.New(errors.CodeAuth, "gemini client", err)
		}
		s.onClose(func(context.Context) error { return p.Close() })
		return p, p, nil
	case "anthropic":
		return anthropic.New(cfg.APIKey, cfg.BaseURL, anthropic.WithModel(cfg.Model)), nil, nil
	case "mock":
		return OfflineProvider(), nil, nil
	}
	return nil, nil, errors.New(errors.CodeInvalidInput, "unsupported llm provider", nil).WithContext("provider", cfg.Provider)
}

// The embedder reuses the Gemini client, so vector recall is only available
// with the gemini provider.
func (s *System) newMirror(cfg config.VectorConfig, p *gemini.Provider) (memory.Mirror, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if p == nil {
		s.logger.Warn("runtime.vector.disabled", slog.String("reason", "embedder requires the gemini provider"))
		return nil, nil
	}
	store, err := qdrant.New(cfg.QdrantAddr)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "connect vector store", err).WithContext("addr", cfg.QdrantAddr)
	}
	s.onClose(func(context.Context) error { return store.Close() })
	return memory.NewVectorMirror(store, memgemini.NewEmbedder(p.Client(), cfg.EmbedModel), cfg.Collection), nil
}

func (s *System) onClose(fn func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, fn)
}

// Close releases resources in reverse acquisition order. It is safe to call
// more than once.
func (s *System) Close(ctx context.Context) error {
	s.mu.Lock()
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	var first error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](ctx); err != nil {
			s.logger.WarnContext(ctx, "runtime.close.failed", slog.String("error", err.Error()))
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// RetryConfig maps the gateway section onto a retry policy.
func RetryConfig(cfg config.GatewayConfig) resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		rc = rc.WithMaxAttempts(cfg.MaxAttempts)
	}
	if cfg.InitialDelay > 0 {
		rc = rc.WithInitialDelay(cfg.InitialDelay)
	}
	if cfg.MaxDelay > 0 {
		rc = rc.WithMaxDelay(cfg.MaxDelay)
	}
	if cfg.Multiplier > 0 {
		rc.Multiplier = cfg.Multiplier
	}
	return rc
}

// LeadershipConfig maps the orchestration section onto workflow roles.
func LeadershipConfig(cfg config.OrchestrationConfig) leadership.Config {
	lc := leadership.DefaultConfig()
	if cfg.Orchestrator != "" {
		lc.Orchestrator = cfg.Orchestrator
	}
	if cfg.Auditor != "" {
		lc.Auditor = cfg.Auditor
	}
	if cfg.Senior != "" {
		lc.Senior = cfg.Senior
	}
	if cfg.Drafter != "" {
		lc.Drafter = cfg.Drafter
	}
	return lc
}

// OfflineResponse is what every role answers with the mock provider. It
// carries an approval for each leadership step.
const OfflineResponse = "AGIS_AUDIT::APPROVE\nPROCEED:: offline run\nAPPROVE:: offline run"

// OfflineProvider answers every call with OfflineResponse and a complete
// call, so a request runs end to end without network access.
func OfflineProvider() *llm.MockProvider {
	args, _ := json.Marshal(map[string]string{"final_report": "offline report"})
	return &llm.MockProvider{
		Response: OfflineResponse,
		ToolCalls: []llm.ToolCall{{
			ID:       "offline-complete",
			Type:     llm.ToolTypeFunction,
			Function: llm.FunctionCall{Name: dispatch.ToolComplete, Arguments: string(args)},
		}},
	}
}

// String describes the wiring for logs and the CLI.
func (s *System) String() string {
	store := "memory"
	if s.GraphStore != nil {
		store = s.Config.Graph.Driver
	}
	return fmt.Sprintf("provider=%s model=%s roles=%d graph=%s", s.Config.LLM.Provider, s.Config.LLM.Model, len(s.Directory.Roles()), store)
}
