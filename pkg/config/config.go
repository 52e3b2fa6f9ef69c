// Package config loads and validates pipeline configuration: cache
// location, rate limiting, per-stage timeouts, confidence thresholds,
// and legal-state rendering options (spec.md §6's enumerated options).
// Secrets (LLM API keys, Légifrance credentials) are read from the
// environment, optionally populated from a local .env file during
// development.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/coolbeans/regula/pkg/logging"
)

// RenderMode controls how LegalStateSynthesizer renders footnotes.
type RenderMode string

const (
	RenderFootnote RenderMode = "footnote"
	RenderInline   RenderMode = "inline"
)

// LegalStateConfig configures pkg/synth.
type LegalStateConfig struct {
	RenderMode             RenderMode `yaml:"render_mode"`
	MaxResolvedChars       int        `yaml:"max_resolved_chars"`
	AnnotateAllOccurrences bool       `yaml:"annotate_all_occurrences"`
	NormalizeMatching      bool       `yaml:"normalize_matching"`
}

// RateLimitConfig configures pkg/ratelimit.
type RateLimitConfig struct {
	PerMinute     int           `yaml:"rate_limit_per_minute"`
	MinDelay      time.Duration `yaml:"min_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	MaxRetries    int           `yaml:"max_retries"`
}

// CacheConfig configures pkg/cache.
type CacheConfig struct {
	Dir string `yaml:"cache_dir"`
}

// CorpusConfig configures pkg/corpus.
type CorpusConfig struct {
	FrenchCodeRoot string `yaml:"french_code_root"`
	EURegulationRoot string `yaml:"eu_regulation_root"`
	RemoteAPIBaseURL string `yaml:"remote_api_base_url"`
}

// LLMConfig configures pkg/llm.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // "gemini" | "mistral"
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`

	// APIKey is never read from YAML; it is populated from the
	// environment at load time (see resolveSecrets).
	APIKey string `yaml:"-"`
}

// PipelineConfig is the top-level configuration object.
type PipelineConfig struct {
	MaxResolutionDepth  int               `yaml:"max_resolution_depth"`
	ConfidenceThreshold float64           `yaml:"confidence_threshold"`
	TimeoutSeconds      int               `yaml:"timeout_seconds"`
	ReconstructionLog   string            `yaml:"reconstruction_log_path"`

	Cache      CacheConfig      `yaml:"cache"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	LLM        LLMConfig        `yaml:"llm"`
	LegalState LegalStateConfig `yaml:"legal_state"`
	Logging    logging.Config   `yaml:"logging"`
}

// Timeout returns the per-stage timeout as a time.Duration.
func (c *PipelineConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DefaultConfig returns the pipeline defaults named throughout spec.md:
// 0.6 confidence threshold, 3.5s minimum LLM delay, footnote rendering.
func DefaultConfig() *PipelineConfig {
	return &PipelineConfig{
		MaxResolutionDepth:  3,
		ConfidenceThreshold: 0.6,
		TimeoutSeconds:      30,
		ReconstructionLog:   "",
		Cache: CacheConfig{
			Dir: "./.amendex-cache",
		},
		RateLimit: RateLimitConfig{
			PerMinute:  17, // ~3.5s minimum inter-call gap
			MinDelay:   3500 * time.Millisecond,
			MaxDelay:   10 * time.Second,
			MaxRetries: 3,
		},
		Corpus: CorpusConfig{
			FrenchCodeRoot:   "./corpus/fr",
			EURegulationRoot: "./corpus/eu",
		},
		LLM: LLMConfig{
			Provider:    "mistral",
			Model:       "magistral-medium-2506",
			Temperature: 0.0,
			Timeout:     60 * time.Second,
		},
		LegalState: LegalStateConfig{
			RenderMode:             RenderFootnote,
			MaxResolvedChars:       400,
			AnnotateAllOccurrences: false,
			NormalizeMatching:      true,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load reads a YAML configuration file, applies environment overrides
// for secrets, and validates the result. envFile, when non-empty, is
// loaded via godotenv before secrets are resolved; a missing envFile is
// not an error (matching the teacher's tolerant flag-driven config
// loading in cmd/regula).
func Load(path string, envFile string) (*PipelineConfig, error) {
	cfg := DefaultConfig()

	if envFile != "" {
		_ = godotenv.Load(envFile)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	resolveSecrets(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveSecrets(cfg *PipelineConfig) {
	switch cfg.LLM.Provider {
	case "gemini":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			cfg.LLM.APIKey = key
		}
	default:
		if key := os.Getenv("MISTRAL_API_KEY"); key != "" {
			cfg.LLM.APIKey = key
		}
	}
}

// LegifranceCredentials returns the optional remote API credentials.
// The remote French legal-text API (spec.md §6) is only activated when
// both are present.
func LegifranceCredentials() (clientID, clientSecret string, ok bool) {
	clientID = os.Getenv("LEGIFRANCE_CLIENT_ID")
	clientSecret = os.Getenv("LEGIFRANCE_CLIENT_SECRET")
	return clientID, clientSecret, clientID != "" && clientSecret != ""
}

// Validate checks invariants that would otherwise surface confusingly
// deep in the pipeline. A ConfigError is fatal at pipeline start
// (spec.md §7).
func (c *PipelineConfig) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return ConfigError{Msg: fmt.Sprintf("confidence_threshold must be in [0,1], got %v", c.ConfidenceThreshold)}
	}
	if c.TimeoutSeconds <= 0 {
		return ConfigError{Msg: "timeout_seconds must be positive"}
	}
	if c.Cache.Dir == "" {
		return ConfigError{Msg: "cache_dir must not be empty"}
	}
	switch c.LegalState.RenderMode {
	case RenderFootnote, RenderInline:
	default:
		return ConfigError{Msg: fmt.Sprintf("unknown legal_state.render_mode: %s", c.LegalState.RenderMode)}
	}
	return nil
}

// ConfigError is fatal at pipeline start per spec.md §7.
type ConfigError struct {
	Msg string
}

func (e ConfigError) Error() string { return "config error: " + e.Msg }
