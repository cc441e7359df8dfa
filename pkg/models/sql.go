package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// WarningKind identifies a finding from SQL self-validation.
type WarningKind string

const (
	WarnUnknownTable       WarningKind = "unknown-table"
	WarnUnknownColumn      WarningKind = "unknown-column"
	WarnUnbalancedParens   WarningKind = "unbalanced-parentheses"
	WarnSuspectedInjection WarningKind = "suspected-injection"
	WarnForbiddenKeyword   WarningKind = "forbidden-keyword"
	WarnMissingFrom        WarningKind = "missing-from"
)

// SQLWarning is a non-fatal finding surfaced alongside generated SQL for
// user judgment. Subject names the offending identifier or token when there
// is one.
type SQLWarning struct {
	Kind    WarningKind `json:"kind"`
	Subject string      `json:"subject,omitempty"`
}

func (w SQLWarning) String() string {
	if w.Subject == "" {
		return string(w.Kind)
	}
	return fmt.Sprintf("%s: %s", w.Kind, w.Subject)
}

// HasHardWarning reports whether the list contains an unknown-table or
// unknown-column finding. Hard warnings trigger the synthesizer's single
// refinement pass.
func HasHardWarning(warnings []SQLWarning) bool {
	for _, w := range warnings {
		if w.Kind == WarnUnknownTable || w.Kind == WarnUnknownColumn {
			return true
		}
	}
	return false
}

// WarningStrings renders warnings in "kind: subject" form for transport.
func WarningStrings(warnings []SQLWarning) []string {
	out := make([]string, 0, len(warnings))
	for _, w := range warnings {
		out = append(out, w.String())
	}
	return out
}

// GeneratedSQL is the synthesizer's output: the statement text exactly as it
// will be shown to the user, the remaining warnings, and the plan it was
// derived from. The text is never silently rewritten; any rewrite happens
// through the visible refinement pass and the warnings ride along.
type GeneratedSQL struct {
	SQL      string       `json:"sql"`
	Warnings []SQLWarning `json:"warnings"`
	Plan     Plan         `json:"plan"`
}

// ResultSet holds rows from a read-only query, preserving the engine's
// projection order and column names. RowCount is the true number of rows the
// query produced; when Truncated is set, Rows holds only the leading portion.
type ResultSet struct {
	Columns   []string `json:"columns"`
	Rows      []Row    `json:"rows"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated"`
}

// Row is a single result row. Values align positionally with the parent
// result set's Columns slice, which the row shares by reference.
type Row struct {
	Columns []string `json:"-"`
	Values  []any    `json:"-"`
}

// MarshalJSON renders the row as a JSON object with keys in projection order,
// so serialized results are stable across runs.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.Values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
