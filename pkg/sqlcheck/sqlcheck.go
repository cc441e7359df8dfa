// Package sqlcheck lexically validates SQL statements against the declared
// schema before they reach a user or the engine. It extracts table references
// from FROM/JOIN clauses, resolves aliases, checks qualified column
// references, rejects write keywords, and flags structural problems such as
// unbalanced parentheses or embedded comment sequences.
//
// The checks are lexical on purpose: the statement is never parsed into a
// full AST and never executed here. Findings come back as warnings for user
// judgment; only the caller decides what is fatal.
package sqlcheck

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/askql/askql/pkg/models"
	"github.com/askql/askql/pkg/schema"
)

// forbiddenRe matches write/DDL keywords on word boundaries. The surface is
// read-only: none of these may appear anywhere in a statement, masked
// literals excluded.
var forbiddenRe = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|ALTER|ATTACH|PRAGMA)\b`)

// aggregateRe detects aggregate calls, which make a FROM-less SELECT
// legitimate (e.g. SELECT COUNT(*) over a subquery result).
var aggregateRe = regexp.MustCompile(`(?i)\b(COUNT|SUM|AVG|MIN|MAX|TOTAL)\s*\(`)

// ForbiddenKeyword reports the first write keyword found in the statement,
// ignoring string literals.
func ForbiddenKeyword(sqlText string) (string, bool) {
	masked, _ := maskLiterals(sqlText)
	m := forbiddenRe.FindString(masked)
	if m == "" {
		return "", false
	}
	return strings.ToUpper(m), true
}

// SingleStatement trims the statement and strips one trailing semicolon.
// It fails when the input is empty or contains interior semicolons — the
// surface accepts exactly one statement at a time.
func SingleStatement(sqlText string) (string, error) {
	trimmed := strings.TrimSpace(sqlText)
	if trimmed == "" {
		return "", fmt.Errorf("empty statement")
	}
	masked, _ := maskLiterals(trimmed)
	if idx := strings.IndexByte(masked, ';'); idx >= 0 && idx != len(masked)-1 {
		return "", fmt.Errorf("multiple statements are not allowed")
	}
	trimmed = strings.TrimRight(strings.TrimSuffix(strings.TrimRight(trimmed, " \t\r\n"), ";"), " \t\r\n")
	if trimmed == "" {
		return "", fmt.Errorf("empty statement")
	}
	return trimmed, nil
}

// Checker validates statements against one schema.
type Checker struct {
	schema *schema.Schema
}

// NewChecker panics on a nil schema: a checker without a schema cannot make
// any table judgment.
func NewChecker(s *schema.Schema) *Checker {
	if s == nil {
		panic("sqlcheck: nil schema")
	}
	return &Checker{schema: s}
}

// Check runs the full lexical pass and returns deduplicated warnings in
// scan order.
func (c *Checker) Check(sqlText string) []models.SQLWarning {
	var warnings []models.SQLWarning
	seen := make(map[string]bool)
	add := func(kind models.WarningKind, subject string) {
		key := string(kind) + "\x00" + strings.ToLower(subject)
		if seen[key] {
			return
		}
		seen[key] = true
		warnings = append(warnings, models.SQLWarning{Kind: kind, Subject: subject})
	}

	masked, unterminated := maskLiterals(sqlText)

	if kw, ok := ForbiddenKeyword(sqlText); ok {
		add(models.WarnForbiddenKeyword, kw)
	}
	if unterminated {
		add(models.WarnSuspectedInjection, "unterminated string literal")
	}
	if strings.Contains(masked, "--") {
		add(models.WarnSuspectedInjection, "comment sequence --")
	}
	if strings.Contains(masked, "/*") {
		add(models.WarnSuspectedInjection, "comment sequence /*")
	}
	if !balancedParens(masked) {
		add(models.WarnUnbalancedParens, "")
	}

	toks := tokenize(masked)
	sc := c.buildScope(toks, add)
	c.checkQualifiedRefs(toks, sc, add)
	c.checkSelectShape(toks, masked, add)

	return warnings
}

// checkSelectShape warns about a SELECT with neither a FROM clause nor an
// aggregate call.
func (c *Checker) checkSelectShape(toks []token, masked string, add func(models.WarningKind, string)) {
	first := firstWord(toks)
	if !strings.EqualFold(first, "select") && !strings.EqualFold(first, "with") {
		return
	}
	for _, t := range toks {
		if t.kind == tokenWord && strings.EqualFold(t.text, "from") {
			return
		}
	}
	if aggregateRe.MatchString(masked) {
		return
	}
	add(models.WarnMissingFrom, "")
}

func firstWord(toks []token) string {
	for _, t := range toks {
		if t.kind == tokenWord {
			return t.text
		}
	}
	return ""
}

func balancedParens(s string) bool {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// maskLiterals blanks the content of single-quoted string literals so
// keyword and identifier scans cannot be confused by quoted text. The
// second return reports an unterminated literal ('' escapes are handled).
func maskLiterals(s string) (string, bool) {
	out := []byte(s)
	inString := false
	for i := 0; i < len(out); i++ {
		if !inString {
			if out[i] == '\'' {
				inString = true
			}
			continue
		}
		if out[i] == '\'' {
			// Doubled quote inside a literal is an escaped quote.
			if i+1 < len(out) && out[i+1] == '\'' {
				out[i] = ' '
				out[i+1] = ' '
				i++
				continue
			}
			inString = false
			continue
		}
		out[i] = ' '
	}
	return string(out), inString
}
