// Package config provides configuration loading for thesisd.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the orchestration core.
type Config struct {
	Logging LoggingConfig `koanf:"logging"`
	Paths   PathsConfig   `koanf:"paths"`
	Memory  MemoryConfig  `koanf:"memory"`
	Quality QualityConfig `koanf:"quality"`
	Retry   RetryConfig   `koanf:"retry"`
	RLM     RLMConfig     `koanf:"rlm"`
	Agent   AgentConfig   `koanf:"agent"`

	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// TelemetryConfig controls OTLP metric export. Disabled by default;
// the gate and memory counters then stay on the no-op global provider.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	Insecure       bool     `koanf:"insecure"`
	ExportInterval Duration `koanf:"export_interval"`
}

// AgentConfig names the external agent runner the CLI shells out to.
type AgentConfig struct {
	// Command receives the request JSON on stdin and must write the
	// agent's markdown output to stdout.
	Command string   `koanf:"command"`
	Args    []string `koanf:"args"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" or "console"
}

// PathsConfig controls project resolution.
type PathsConfig struct {
	// ProjectOverride points the resolver at an explicit session file.
	// Normally supplied via the THESISD_PROJECT environment variable.
	ProjectOverride string `koanf:"project_override"`

	// OutputRoot is the directory that holds all thesis projects.
	OutputRoot string `koanf:"output_root"`
}

// MemoryConfig controls the hierarchical memory manager.
type MemoryConfig struct {
	// MaxBudgetTokens is the live-context token ceiling for the whole workflow.
	MaxBudgetTokens int `koanf:"max_budget_tokens"`

	// WindowSize is the number of full agent outputs kept verbatim.
	WindowSize int `koanf:"window_size"`

	// WarnUtilization emits a warning alert when crossed.
	WarnUtilization float64 `koanf:"warn_utilization"`

	// CriticalUtilization emits a critical alert when crossed.
	CriticalUtilization float64 `koanf:"critical_utilization"`

	// SummaryTokens bounds a Level-1 agent summary.
	SummaryTokens int `koanf:"summary_tokens"`

	// WaveCacheTokens bounds a Level-2 wave cache.
	WaveCacheTokens int `koanf:"wave_cache_tokens"`

	// SynthesisTokens bounds a Level-3 phase synthesis.
	SynthesisTokens int `koanf:"synthesis_tokens"`
}

// QualityConfig controls gate thresholds and scorer weights.
type QualityConfig struct {
	PTCSThreshold        float64 `koanf:"ptcs_threshold"`
	SRCSThreshold        float64 `koanf:"srcs_threshold"`
	ConsistencyThreshold float64 `koanf:"consistency_threshold"`

	// Philosophical switches the SRCS scorer to the philosophical
	// grounding pattern set and weight vector.
	Philosophical bool `koanf:"philosophical"`
}

// RetryConfig controls the retry enforcer.
type RetryConfig struct {
	MaxRetries int      `koanf:"max_retries"`
	Delay      Duration `koanf:"delay"`

	// InvokesPerMinute paces agent invocations. Zero disables pacing.
	InvokesPerMinute int `koanf:"invokes_per_minute"`

	// MinOutputLength below which an agent result is classified as failed.
	MinOutputLength int `koanf:"min_output_length"`
}

// RLMConfig controls chunked processing of oversized inputs.
type RLMConfig struct {
	ChunkSize          int `koanf:"chunk_size"`
	Workers            int `koanf:"workers"`
	ChunkAnalysisLimit int `koanf:"chunk_analysis_limit"`
	ChunkSummaryLimit  int `koanf:"chunk_summary_limit"`
	MergeLimit         int `koanf:"merge_limit"`
}

// applyDefaults fills zero values with production defaults.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Paths.OutputRoot == "" {
		cfg.Paths.OutputRoot = "thesis-output"
	}
	if cfg.Memory.MaxBudgetTokens == 0 {
		cfg.Memory.MaxBudgetTokens = 50000
	}
	if cfg.Memory.WindowSize == 0 {
		cfg.Memory.WindowSize = 3
	}
	if cfg.Memory.WarnUtilization == 0 {
		cfg.Memory.WarnUtilization = 0.75
	}
	if cfg.Memory.CriticalUtilization == 0 {
		cfg.Memory.CriticalUtilization = 0.90
	}
	if cfg.Memory.SummaryTokens == 0 {
		cfg.Memory.SummaryTokens = 50
	}
	if cfg.Memory.WaveCacheTokens == 0 {
		cfg.Memory.WaveCacheTokens = 500
	}
	if cfg.Memory.SynthesisTokens == 0 {
		cfg.Memory.SynthesisTokens = 2000
	}
	if cfg.Quality.PTCSThreshold == 0 {
		cfg.Quality.PTCSThreshold = 75
	}
	if cfg.Quality.SRCSThreshold == 0 {
		cfg.Quality.SRCSThreshold = 75
	}
	if cfg.Quality.ConsistencyThreshold == 0 {
		cfg.Quality.ConsistencyThreshold = 75
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 3
	}
	if cfg.Retry.Delay == 0 {
		cfg.Retry.Delay = Duration(5 * time.Second)
	}
	if cfg.Retry.MinOutputLength == 0 {
		cfg.Retry.MinOutputLength = 100
	}
	if cfg.RLM.ChunkSize == 0 {
		cfg.RLM.ChunkSize = 100
	}
	if cfg.RLM.Workers == 0 {
		cfg.RLM.Workers = 5
	}
	if cfg.RLM.ChunkAnalysisLimit == 0 {
		cfg.RLM.ChunkAnalysisLimit = 15000
	}
	if cfg.RLM.ChunkSummaryLimit == 0 {
		cfg.RLM.ChunkSummaryLimit = 1500
	}
	if cfg.RLM.MergeLimit == 0 {
		cfg.RLM.MergeLimit = 15000
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = Duration(30 * time.Second)
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	if c.Memory.MaxBudgetTokens <= 0 {
		return fmt.Errorf("memory.max_budget_tokens must be positive, got %d", c.Memory.MaxBudgetTokens)
	}
	if c.Memory.WindowSize <= 0 {
		return fmt.Errorf("memory.window_size must be positive, got %d", c.Memory.WindowSize)
	}
	if c.Memory.WarnUtilization <= 0 || c.Memory.WarnUtilization >= c.Memory.CriticalUtilization {
		return fmt.Errorf("memory.warn_utilization must be in (0, critical), got %v", c.Memory.WarnUtilization)
	}
	if c.Memory.CriticalUtilization > 1.0 {
		return fmt.Errorf("memory.critical_utilization must be at most 1.0, got %v", c.Memory.CriticalUtilization)
	}
	for name, v := range map[string]float64{
		"quality.ptcs_threshold":        c.Quality.PTCSThreshold,
		"quality.srcs_threshold":        c.Quality.SRCSThreshold,
		"quality.consistency_threshold": c.Quality.ConsistencyThreshold,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%s must be in [0,100], got %v", name, v)
		}
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries cannot be negative, got %d", c.Retry.MaxRetries)
	}
	if c.RLM.ChunkSize <= 0 {
		return fmt.Errorf("rlm.chunk_size must be positive, got %d", c.RLM.ChunkSize)
	}
	if c.RLM.Workers <= 0 {
		return fmt.Errorf("rlm.workers must be positive, got %d", c.RLM.Workers)
	}
	return nil
}

// Default returns a fully-defaulted configuration.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}
