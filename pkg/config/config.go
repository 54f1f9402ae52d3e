// Package config loads the runtime configuration. Sources are applied in
// order: built-in defaults, an optional YAML file, an optional profile
// overlay, AGIS_ environment variables and finally --set overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jllopis/agis/pkg/errors"
)

const envPrefix = "AGIS_"

type Config struct {
	Log           LogConfig           `koanf:"log"`
	LLM           LLMConfig           `koanf:"llm"`
	Gateway       GatewayConfig       `koanf:"gateway"`
	Orchestration OrchestrationConfig `koanf:"orchestration"`
	Graph         GraphConfig         `koanf:"graph"`
	Knowledge     KnowledgeConfig     `koanf:"knowledge"`
	Telemetry     TelemetryConfig     `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider           string `koanf:"provider"` // gemini, anthropic, mock
	Model              string `koanf:"model"`
	BaseURL            string `koanf:"base_url"`
	APIKey             string `koanf:"api_key"`
	ThinkingBudget     int    `koanf:"thinking_budget"`
	EnableCapabilities bool   `koanf:"enable_capabilities"`
}

// GatewayConfig is the retry policy of remote calls. MaxAttempts counts
// the first attempt.
type GatewayConfig struct {
	MaxAttempts  int           `koanf:"max_attempts"`
	InitialDelay time.Duration `koanf:"initial_delay"`
	Multiplier   float64       `koanf:"multiplier"`
	MaxDelay     time.Duration `koanf:"max_delay"`
}

type OrchestrationConfig struct {
	MaxCycles    int      `koanf:"max_cycles"`
	RolesFile    string   `koanf:"roles_file"`
	Orchestrator string   `koanf:"orchestrator"`
	Auditor      string   `koanf:"auditor"`
	Senior       string   `koanf:"senior"`
	Drafter      string   `koanf:"drafter"`
	Team         []string `koanf:"team"`
}

type GraphConfig struct {
	Driver string `koanf:"driver"` // memory, sqlite
	DSN    string `koanf:"dsn"`
}

type KnowledgeConfig struct {
	Vector VectorConfig `koanf:"vector"`
}

type VectorConfig struct {
	Enabled    bool   `koanf:"enabled"`
	QdrantAddr string `koanf:"qdrant_addr"`
	Collection string `koanf:"collection"`
	EmbedModel string `koanf:"embed_model"`
	// RecallLimit bounds the insights recalled for each new request.
	RecallLimit int `koanf:"recall_limit"`
}

type TelemetryConfig struct {
	Enabled            bool   `koanf:"enabled"`
	Exporter           string `koanf:"exporter"` // stdout, otlp, none
	OTLPEndpoint       string `koanf:"otlp_endpoint"`
	OTLPInsecure       bool   `koanf:"otlp_insecure"`
	OTLPTimeoutSeconds int    `koanf:"otlp_timeout_seconds"`
}

var defaults = map[string]any{
	"log.level":  "info",
	"log.format": "text",

	"llm.provider":            "gemini",
	"llm.model":               "gemini-2.5-flash",
	"llm.thinking_budget":     0,
	"llm.enable_capabilities": true,

	"gateway.max_attempts":  3,
	"gateway.initial_delay": "1s",
	"gateway.multiplier":    2.0,
	"gateway.max_delay":     "30s",

	"orchestration.max_cycles":   50,
	"orchestration.orchestrator": "orchestrator",
	"orchestration.auditor":      "supervisor",
	"orchestration.senior":       "director",
	"orchestration.drafter":      "writer",

	"graph.driver": "memory",

	"knowledge.vector.enabled":      false,
	"knowledge.vector.qdrant_addr":  "localhost:6334",
	"knowledge.vector.collection":   "agis_insights",
	"knowledge.vector.embed_model":  "text-embedding-004",
	"knowledge.vector.recall_limit": 5,

	"telemetry.enabled":              false,
	"telemetry.exporter":             "stdout",
	"telemetry.otlp_insecure":        true,
	"telemetry.otlp_timeout_seconds": 10,
}

// Load reads defaults, the file at path (if any) and the environment.
func Load(path string) (*Config, error) {
	return load(path, "", nil)
}

// LoadWithProfile loads path and then overlays config.<profile>.yaml from
// the same directory when it exists.
func LoadWithProfile(path, profile string) (*Config, error) {
	return load(path, profile, nil)
}

// LoadWithCLI loads configuration from command-line style arguments:
// --config <path>, --profile <name> and repeated --set key=value.
func LoadWithCLI(args []string) (*Config, error) {
	opts, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	return load(opts.path, opts.profile, opts.overrides)
}

func load(path, profile string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "cannot load config file", err).WithContext("path", path)
		}
		if profile != "" {
			overlay := profilePath(path, profile)
			if _, err := os.Stat(overlay); err == nil {
				if err := k.Load(file.Provider(overlay), yaml.Parser()); err != nil {
					return nil, errors.New(errors.CodeInvalidInput, "cannot load profile", err).WithContext("path", overlay)
				}
			}
		}
	}

	// AGIS_LLM_API_KEY -> llm.api_key, AGIS_KNOWLEDGE_VECTOR_ENABLED -> knowledge.vector.enabled
	if err := k.Load(env.ProviderWithValue(envPrefix, ".", envValue), nil); err != nil {
		return nil, err
	}

	for key, value := range overrides {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "invalid configuration", err)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = apiKeyFromEnv(cfg.LLM.Provider)
	}
	return &cfg, nil
}

func profilePath(path, profile string) string {
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(filepath.Base(path), ext)
	if ext == "" {
		ext = ".yaml"
	}
	return filepath.Join(dir, base+"."+profile+ext)
}

func envValue(key, value string) (string, any) {
	name := strings.ToLower(strings.TrimPrefix(key, envPrefix))
	if rest, ok := strings.CutPrefix(name, "knowledge_vector_"); ok {
		return "knowledge.vector." + rest, value
	}
	section, rest, ok := strings.Cut(name, "_")
	if !ok {
		return name, value
	}
	name = section + "." + rest
	if name == "orchestration.team" {
		return name, splitList(value)
	}
	return name, value
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// apiKeyFromEnv falls back to the variables each vendor SDK documents.
func apiKeyFromEnv(provider string) string {
	var names []string
	switch provider {
	case "gemini":
		names = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	case "anthropic":
		names = []string{"ANTHROPIC_API_KEY"}
	}
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

type cliOptions struct {
	path      string
	profile   string
	overrides map[string]any
}

func parseCLIOverrides(args []string) (cliOptions, error) {
	opts := cliOptions{overrides: map[string]any{}}
	for i := 0; i < len(args); i++ {
		name, inline, hasInline := strings.Cut(args[i], "=")
		switch name {
		case "--config", "--profile", "--set":
		default:
			continue
		}
		value := inline
		if !hasInline {
			if i+1 >= len(args) {
				return opts, fmt.Errorf("config: %s requires a value", name)
			}
			i++
			value = args[i]
		}
		switch name {
		case "--config":
			opts.path = value
		case "--profile":
			opts.profile = value
		case "--set":
			key, raw, ok := strings.Cut(value, "=")
			if !ok || strings.TrimSpace(key) == "" {
				return opts, fmt.Errorf("config: --set expects key=value, got %q", value)
			}
			opts.overrides[strings.TrimSpace(key)] = parseValue(raw)
		}
	}
	return opts, nil
}

// parseValue decodes JSON scalars and objects; anything else is a string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

// Validate checks values the runtime cannot work around.
func (c *Config) Validate() error {
	invalid := func(msg, key string, value any) error {
		return errors.New(errors.CodeInvalidInput, msg, nil).WithContext("key", key).WithContext("value", value)
	}
	switch c.LLM.Provider {
	case "gemini", "anthropic", "mock":
	default:
		return invalid("unsupported llm provider", "llm.provider", c.LLM.Provider)
	}
	switch c.Graph.Driver {
	case "memory":
	case "sqlite":
		if c.Graph.DSN == "" {
			return invalid("sqlite graph store requires a dsn", "graph.dsn", c.Graph.DSN)
		}
	default:
		return invalid("unsupported graph driver", "graph.driver", c.Graph.Driver)
	}
	if c.Gateway.MaxAttempts < 1 {
		return invalid("max attempts must be positive", "gateway.max_attempts", c.Gateway.MaxAttempts)
	}
	if c.Orchestration.MaxCycles < 1 {
		return invalid("max cycles must be positive", "orchestration.max_cycles", c.Orchestration.MaxCycles)
	}
	return nil
}
