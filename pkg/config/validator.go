package config

import "fmt"

// Validate checks the configuration for missing or nonsensical values.
// It returns the first problem found.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return NewValidationError("llm", "api_key",
			fmt.Errorf("%w: set LLM_API_KEY", ErrMissingRequiredField))
	}
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return NewValidationError("llm", "provider",
			fmt.Errorf("%w: %q (expected %q or %q)", ErrInvalidValue, c.LLM.Provider, ProviderOpenAI, ProviderAnthropic))
	}
	if c.LLM.Model == "" {
		return NewValidationError("llm", "model", ErrMissingRequiredField)
	}
	if c.LLM.CallTimeoutSeconds <= 0 || c.LLM.CallTimeoutSeconds > 60 {
		return NewValidationError("llm", "call_timeout_seconds",
			fmt.Errorf("%w: %d (must be 1-60)", ErrInvalidValue, c.LLM.CallTimeoutSeconds))
	}
	if c.LLM.MaxRetryElapsedSeconds <= 0 || c.LLM.MaxRetryElapsedSeconds > 30 {
		return NewValidationError("llm", "max_retry_elapsed_seconds",
			fmt.Errorf("%w: %d (must be 1-30)", ErrInvalidValue, c.LLM.MaxRetryElapsedSeconds))
	}
	if c.LLM.MaxInFlight <= 0 {
		return NewValidationError("llm", "max_in_flight",
			fmt.Errorf("%w: %d (must be positive)", ErrInvalidValue, c.LLM.MaxInFlight))
	}
	if c.LLM.HistoryTurns < 0 {
		return NewValidationError("llm", "history_turns",
			fmt.Errorf("%w: %d (must not be negative)", ErrInvalidValue, c.LLM.HistoryTurns))
	}
	if c.Database.URL == "" {
		return NewValidationError("database", "url", ErrMissingRequiredField)
	}
	if c.Database.MaxOpenConns <= 0 {
		return NewValidationError("database", "max_open_conns",
			fmt.Errorf("%w: %d (must be positive)", ErrInvalidValue, c.Database.MaxOpenConns))
	}
	if c.Schema.File == "" {
		return NewValidationError("schema", "file", ErrMissingRequiredField)
	}
	if c.Limits.RowCap <= 0 {
		return NewValidationError("limits", "row_cap",
			fmt.Errorf("%w: %d (must be positive)", ErrInvalidValue, c.Limits.RowCap))
	}
	if c.Limits.ExecTimeoutSeconds <= 0 {
		return NewValidationError("limits", "exec_timeout_seconds",
			fmt.Errorf("%w: %d (must be positive)", ErrInvalidValue, c.Limits.ExecTimeoutSeconds))
	}
	if c.Limits.TopK <= 0 || c.Limits.TopKMaxCardinality <= 0 {
		return NewValidationError("limits", "top_k",
			fmt.Errorf("%w: top_k and top_k_max_cardinality must be positive", ErrInvalidValue))
	}
	if c.Sessions.SweepIntervalSeconds <= 0 {
		return NewValidationError("sessions", "sweep_interval_seconds",
			fmt.Errorf("%w: %d (must be positive)", ErrInvalidValue, c.Sessions.SweepIntervalSeconds))
	}
	return nil
}
