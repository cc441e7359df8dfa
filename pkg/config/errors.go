package config

import (
	"errors"
	"fmt"
)

// Sentinel error classes for configuration failures, matched with errors.Is.
var (
	ErrInvalidYAML          = errors.New("invalid YAML syntax")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrInvalidValue         = errors.New("invalid field value")
)

// ValidationError locates a bad setting by config section and field name.
type ValidationError struct {
	Section string
	Field   string
	Err     error
}

// NewValidationError wraps err with its section and field location.
func NewValidationError(section, field string, err error) *ValidationError {
	return &ValidationError{Section: section, Field: field, Err: err}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: field '%s': %v", e.Section, e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// LoadError carries the path of the configuration file that failed to load.
type LoadError struct {
	File string
	Err  error
}

// NewLoadError wraps err with the file it came from.
func NewLoadError(file string, err error) *LoadError {
	return &LoadError{File: file, Err: err}
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
