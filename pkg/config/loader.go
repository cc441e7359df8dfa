package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// sessionTTLFloorSeconds is the minimum session expiry. Shorter TTLs would
// let approval sessions vanish while a user is still reviewing SQL.
const sessionTTLFloorSeconds = 900

// Load builds the effective configuration.
//
// Steps performed:
//  1. Start from built-in defaults
//  2. Overlay the YAML file at path (optional; missing file is fine when the
//     path is the conventional default)
//  3. Expand {{.VAR}} environment references in the file content
//  4. Overlay environment variables
//  5. Clamp the session TTL to its floor
//  6. Validate the result
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if cfg.Sessions.TTLSeconds < sessionTTLFloorSeconds {
		slog.Warn("Session TTL below floor, clamping",
			"requested_seconds", cfg.Sessions.TTLSeconds,
			"floor_seconds", sessionTTLFloorSeconds)
		cfg.Sessions.TTLSeconds = sessionTTLFloorSeconds
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Info("Configuration loaded",
		"config_file", path,
		"database_url", redactURL(cfg.Database.URL),
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
		"session_ttl_seconds", cfg.Sessions.TTLSeconds)

	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		// The conventional default path may simply not exist.
		if errors.Is(err, fs.ErrNotExist) {
			slog.Info("No configuration file found, using defaults and environment", "path", path)
			return nil
		}
		return NewLoadError(path, err)
	}

	expanded := ExpandEnv(data)
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}
	return nil
}

// applyEnv overlays environment variables onto the configuration. These win
// over file values so deployments can keep secrets out of files entirely.
func applyEnv(cfg *Config) {
	setString(&cfg.Server.Addr, "HTTP_ADDR")
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.LLM.APIKey, "LLM_API_KEY")
	setString(&cfg.LLM.Provider, "LLM_PROVIDER")
	setString(&cfg.LLM.Model, "LLM_MODEL")
	setString(&cfg.LLM.BaseURL, "LLM_BASE_URL")
	setString(&cfg.Schema.File, "SCHEMA_FILE")
	setString(&cfg.Schema.AnalysisDir, "ANALYSIS_DIR")
	setString(&cfg.Sessions.RedisURL, "SESSION_REDIS_URL")

	setInt(&cfg.Sessions.TTLSeconds, "SESSION_TTL_SECONDS")
	setInt(&cfg.LLM.CallTimeoutSeconds, "LLM_TIMEOUT_SECONDS")
	setInt(&cfg.LLM.MaxInFlight, "LLM_MAX_CONCURRENT")
	setInt(&cfg.Limits.RowCap, "ROW_CAP")
	setInt(&cfg.Limits.ExecTimeoutSeconds, "EXEC_TIMEOUT_SECONDS")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Ignoring non-integer environment variable", "key", key, "value", v)
		return
	}
	*dst = n
}

// redactURL hides credentials embedded in connection URLs for logging.
func redactURL(url string) string {
	atIdx := -1
	schemeEnd := -1
	for i := 0; i+2 < len(url); i++ {
		if url[i] == ':' && url[i+1] == '/' && url[i+2] == '/' {
			schemeEnd = i + 3
			break
		}
	}
	if schemeEnd == -1 {
		return url
	}
	for i := schemeEnd; i < len(url); i++ {
		if url[i] == '@' {
			atIdx = i
		}
		if url[i] == '/' {
			break
		}
	}
	if atIdx == -1 {
		return url
	}
	return url[:schemeEnd] + "***" + url[atIdx:]
}
