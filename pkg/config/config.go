// Package config loads and validates application configuration from an
// optional YAML file layered under environment variables.
//
// Precedence: built-in defaults < YAML file < environment. The three
// variables of the deployment contract (LLM_API_KEY, DATABASE_URL,
// SESSION_TTL_SECONDS) are always honored from the environment.
package config

import "time"

// Supported LLM provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config is the umbrella configuration object returned by Load and used
// throughout the application.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Schema   SchemaConfig   `yaml:"schema"`
	Sessions SessionsConfig `yaml:"sessions"`
	Limits   LimitsConfig   `yaml:"limits"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig holds the analytical store connection settings.
// URL schemes select the engine: postgres:// uses pgx, sqlite:// (or a bare
// file path) uses the embedded SQLite driver.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// LLMConfig holds provider selection and gateway behavior.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	CallTimeoutSeconds     int `yaml:"call_timeout_seconds"`
	MaxRetryElapsedSeconds int `yaml:"max_retry_elapsed_seconds"`
	MaxInFlight            int `yaml:"max_in_flight"`
	HistoryTurns           int `yaml:"history_turns"`
}

// CallTimeout is the hard deadline applied to a single provider call.
func (c LLMConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

// MaxRetryElapsed bounds the total time spent retrying one completion.
func (c LLMConfig) MaxRetryElapsed() time.Duration {
	return time.Duration(c.MaxRetryElapsedSeconds) * time.Second
}

// SchemaConfig locates the schema description file and the optional profile
// annotations directory.
type SchemaConfig struct {
	File        string `yaml:"file"`
	AnalysisDir string `yaml:"analysis_dir"`
}

// SessionsConfig holds approval-session store settings. RedisURL selects the
// Redis-backed store; when empty sessions live in process memory.
type SessionsConfig struct {
	TTLSeconds           int    `yaml:"ttl_seconds"`
	SweepIntervalSeconds int    `yaml:"sweep_interval_seconds"`
	RedisURL             string `yaml:"redis_url"`
}

// TTL is the session expiry. Load clamps it to the 15 minute floor.
func (c SessionsConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// SweepInterval is the cadence of the expired-session sweeper.
func (c SessionsConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// LimitsConfig holds execution and summarization bounds.
type LimitsConfig struct {
	RowCap             int `yaml:"row_cap"`
	ExecTimeoutSeconds int `yaml:"exec_timeout_seconds"`
	TopK               int `yaml:"top_k"`
	TopKMaxCardinality int `yaml:"top_k_max_cardinality"`
}

// ExecTimeout is the wall-clock cap on one SQL execution.
func (c LimitsConfig) ExecTimeout() time.Duration {
	return time.Duration(c.ExecTimeoutSeconds) * time.Second
}

// Default returns the built-in configuration. Load layers the YAML file and
// environment on top of it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Database: DatabaseConfig{
			URL:          "sqlite://askql.db",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		LLM: LLMConfig{
			Provider:               ProviderOpenAI,
			Model:                  "gpt-4o",
			Temperature:            0.1,
			MaxTokens:              2048,
			CallTimeoutSeconds:     60,
			MaxRetryElapsedSeconds: 25,
			MaxInFlight:            4,
			HistoryTurns:           8,
		},
		Schema: SchemaConfig{
			File: "schema.yaml",
		},
		Sessions: SessionsConfig{
			TTLSeconds:           900,
			SweepIntervalSeconds: 60,
		},
		Limits: LimitsConfig{
			RowCap:             10000,
			ExecTimeoutSeconds: 30,
			TopK:               10,
			TopKMaxCardinality: 50,
		},
	}
}
