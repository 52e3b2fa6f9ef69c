// Command amendex drives the bill-to-legal-state pipeline from the
// command line, structured the way cmd/regula drives its own knowledge-
// graph pipeline: one cobra root command, one constructor function per
// subcommand, flags read at the top of RunE.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/coolbeans/regula/pkg/cache"
	"github.com/coolbeans/regula/pkg/config"
	"github.com/coolbeans/regula/pkg/corpus"
	"github.com/coolbeans/regula/pkg/llm"
	"github.com/coolbeans/regula/pkg/logging"
	"github.com/coolbeans/regula/pkg/pipeline"
	"github.com/coolbeans/regula/pkg/ratelimit"
	"github.com/coolbeans/regula/pkg/registry"
	"go.uber.org/zap"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "amendex",
		Short: "French legislative amendment analyzer",
		Long: `amendex turns a legislative bill into a structured,
verifiable before/after legal-state record.

It splits a bill into atomic amendment chunks, identifies the code
article each chunk targets, retrieves that article's current text,
applies the amendment deterministically or via an LLM, validates the
result for legal coherence, and resolves any legal references the
amendment introduces into a fully linked legal-state record.`,
		Version: version,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().String("cache-dir", "", "Override the configured cache directory")
	rootCmd.PersistentFlags().Int("timeout", 0, "Override the per-stage timeout, in seconds")
	rootCmd.PersistentFlags().Int("rate-limit", 0, "Override the LLM rate limit, in calls per minute")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(splitCmd())
	rootCmd.AddCommand(identifyCmd())
	rootCmd.AddCommand(reconstructCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(cacheCmd())
	rootCmd.AddCommand(corpusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the pipeline config from --config (or the built-in
// defaults when unset), then applies the global --cache-dir/--timeout/
// --rate-limit overrides on top — the same override-after-load order
// cmd/regula uses for its own --cache-dir ingest flag.
func loadConfig(cmd *cobra.Command) (*config.PipelineConfig, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cacheDir, _ := cmd.Flags().GetString("cache-dir")
	timeoutSeconds, _ := cmd.Flags().GetInt("timeout")
	rateLimit, _ := cmd.Flags().GetInt("rate-limit")

	var cfg *config.PipelineConfig
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath, ".env")
	} else {
		cfg, err = config.Load("", ".env")
	}
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	if cacheDir != "" {
		cfg.Cache.Dir = cacheDir
	}
	if timeoutSeconds != 0 {
		cfg.TimeoutSeconds = timeoutSeconds
	}
	if rateLimit != 0 {
		cfg.RateLimit.PerMinute = rateLimit
		cfg.RateLimit.MinDelay = time.Minute / time.Duration(rateLimit)
	}
	return cfg, nil
}

func buildLogger(cfg *config.PipelineConfig) *zap.SugaredLogger {
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return logging.Noop()
	}
	return log
}

// buildClient constructs the shared LLM client every LLM-backed stage
// uses, rate limited per cfg.RateLimit.
func buildClient(cfg *config.PipelineConfig) (*llm.Client, error) {
	provider, err := llm.New(llm.Config{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		APIKey:   cfg.LLM.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("constructing LLM provider: %w", err)
	}
	limiter := ratelimit.New(cfg.RateLimit.MinDelay, cfg.RateLimit.MaxDelay, cfg.RateLimit.MaxRetries)
	return llm.NewClient(provider, limiter, cfg.LLM.Model, cfg.LLM.Temperature), nil
}

// buildPipeline assembles the shared cache, registry, corpus retriever,
// and full Pipeline from cfg, matching the wiring pipeline.New itself
// documents as the caller's responsibility.
func buildPipeline(cfg *config.PipelineConfig, client *llm.Client, log *zap.SugaredLogger) (*pipeline.Pipeline, *cache.Cache, *registry.Registry, error) {
	c, err := cache.New(cfg.Cache.Dir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening cache: %w", err)
	}
	reg := registry.New()
	retriever := corpus.New(cfg.Corpus.FrenchCodeRoot, c, reg, client)
	p := pipeline.New(cfg, client, c, retriever, reg, log)
	return p, c, reg, nil
}
