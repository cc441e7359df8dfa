package sqlcheck

import (
	"strings"

	"github.com/askql/askql/pkg/models"
)

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenNumber
	tokenSymbol
)

type token struct {
	kind tokenKind
	text string
}

// tokenize splits masked SQL into identifier, number, and symbol tokens.
// Double-quoted identifiers come back unquoted as word tokens.
func tokenize(s string) []token {
	var toks []token
	i := 0
	for i < len(s) {
		ch := s[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		case isWordStart(ch):
			j := i + 1
			for j < len(s) && isWordChar(s[j]) {
				j++
			}
			toks = append(toks, token{kind: tokenWord, text: s[i:j]})
			i = j
		case ch >= '0' && ch <= '9':
			// Consume the whole numeric literal including any decimal dot so
			// "10.2" never looks like a qualified identifier.
			j := i + 1
			for j < len(s) && (isWordChar(s[j]) || s[j] == '.') {
				j++
			}
			toks = append(toks, token{kind: tokenNumber, text: s[i:j]})
			i = j
		case ch == '"':
			j := i + 1
			for j < len(s) && s[j] != '"' {
				j++
			}
			toks = append(toks, token{kind: tokenWord, text: s[i+1 : min(j, len(s))]})
			if j < len(s) {
				j++
			}
			i = j
		default:
			toks = append(toks, token{kind: tokenSymbol, text: string(ch)})
			i++
		}
	}
	return toks
}

func isWordStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isWordChar(ch byte) bool {
	return isWordStart(ch) || (ch >= '0' && ch <= '9') || ch == '$'
}

// reservedWords never serve as table aliases.
var reservedWords = map[string]bool{
	"where": true, "group": true, "order": true, "having": true,
	"limit": true, "offset": true, "on": true, "using": true,
	"join": true, "inner": true, "left": true, "right": true,
	"full": true, "outer": true, "cross": true, "natural": true,
	"union": true, "intersect": true, "except": true, "as": true,
	"select": true, "with": true, "and": true, "or": true, "not": true,
	"in": true, "is": true, "between": true, "like": true, "case": true,
	"when": true, "then": true, "else": true, "end": true, "by": true,
	"asc": true, "desc": true, "distinct": true, "set": true, "window": true,
}

// scopeInfo is the statement's table scope: every name or alias a qualified
// column reference may legally use. Opaque entries (empty physical name) are
// CTEs and derived tables whose columns cannot be checked lexically.
type scopeInfo struct {
	refs     map[string]string
	consumed map[int]bool
}

func (s *scopeInfo) register(name, physical string) {
	s.refs[strings.ToLower(name)] = physical
}

// buildScope walks the token stream, registers every FROM/JOIN table
// reference (with aliases), registers CTE and derived-table names as opaque,
// and emits unknown-table warnings for references outside the schema.
func (c *Checker) buildScope(toks []token, add func(models.WarningKind, string)) *scopeInfo {
	sc := &scopeInfo{
		refs:     make(map[string]string),
		consumed: make(map[int]bool),
	}

	// CTE names: ident AS ( — registered opaque before reference scanning so
	// WITH totals AS (...) SELECT ... FROM totals passes.
	for i := 0; i+2 < len(toks); i++ {
		if toks[i].kind == tokenWord && !reservedWords[strings.ToLower(toks[i].text)] &&
			toks[i+1].kind == tokenWord && strings.EqualFold(toks[i+1].text, "as") &&
			toks[i+2].kind == tokenSymbol && toks[i+2].text == "(" {
			sc.register(toks[i].text, "")
			sc.consumed[i] = true
		}
	}

	for i := 0; i < len(toks); {
		t := toks[i]
		if t.kind == tokenWord {
			switch strings.ToLower(t.text) {
			case "from":
				i = c.parseTableRefs(toks, i+1, sc, add, true)
				continue
			case "join":
				i = c.parseTableRefs(toks, i+1, sc, add, false)
				continue
			}
		}
		i++
	}
	return sc
}

// parseTableRefs consumes one table reference (or a comma list after FROM)
// starting at index i and returns the index after the last consumed token.
func (c *Checker) parseTableRefs(toks []token, i int, sc *scopeInfo, add func(models.WarningKind, string), allowComma bool) int {
	for {
		switch {
		case i < len(toks) && toks[i].kind == tokenSymbol && toks[i].text == "(":
			// Derived table: skip the subquery, register its alias opaque.
			i = skipParens(toks, i)
			i = captureAlias(toks, i, sc, "")


		case i < len(toks) && toks[i].kind == tokenWord && !reservedWords[strings.ToLower(toks[i].text)]:
			name := toks[i].text
			sc.consumed[i] = true
			j := i + 1
			// Schema-qualified reference: keep the table part.
			if j+1 < len(toks) && toks[j].kind == tokenSymbol && toks[j].text == "." && toks[j+1].kind == tokenWord {
				sc.consumed[j] = true
				sc.consumed[j+1] = true
				name = toks[j+1].text
				j += 2
			}

			if sc.refs[strings.ToLower(name)] == "" {
				if tbl, ok := c.schema.Table(name); ok {
					sc.register(name, tbl.Physical)
				} else if _, isCTE := sc.refs[strings.ToLower(name)]; !isCTE {
					add(models.WarnUnknownTable, name)
					// Register opaque so column references through this name
					// do not produce cascading warnings.
					sc.register(name, "")
				}
			}
			physical := sc.refs[strings.ToLower(name)]
			i = captureAlias(toks, j, sc, physical)

		default:
			return i
		}

		if allowComma && i < len(toks) && toks[i].kind == tokenSymbol && toks[i].text == "," {
			i++
			continue
		}
		return i
	}
}

// captureAlias registers an optional "[AS] alias" following a table
// reference, mapping it to the given physical table ("" for opaque).
func captureAlias(toks []token, i int, sc *scopeInfo, physical string) int {
	if i < len(toks) && toks[i].kind == tokenWord && strings.EqualFold(toks[i].text, "as") {
		i++
	}
	if i < len(toks) && toks[i].kind == tokenWord && !reservedWords[strings.ToLower(toks[i].text)] {
		sc.register(toks[i].text, physical)
		sc.consumed[i] = true
		i++
	}
	return i
}

// skipParens returns the index after the parenthesized group opening at i.
func skipParens(toks []token, i int) int {
	depth := 0
	for ; i < len(toks); i++ {
		if toks[i].kind != tokenSymbol {
			continue
		}
		switch toks[i].text {
		case "(":
			depth++
		case ")":
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return i
}

// checkQualifiedRefs validates every table.column reference against the
// statement scope and the schema.
func (c *Checker) checkQualifiedRefs(toks []token, sc *scopeInfo, add func(models.WarningKind, string)) {
	for i := 0; i+2 < len(toks); i++ {
		if sc.consumed[i] {
			continue
		}
		if toks[i].kind != tokenWord || toks[i+1].kind != tokenSymbol || toks[i+1].text != "." || toks[i+2].kind != tokenWord {
			continue
		}
		// Skip the middle of a.b.c chains.
		if i > 0 && toks[i-1].kind == tokenSymbol && toks[i-1].text == "." {
			continue
		}
		prefix := toks[i].text
		column := toks[i+2].text

		physical, ok := sc.refs[strings.ToLower(prefix)]
		if !ok {
			add(models.WarnUnknownTable, prefix)
			continue
		}
		if physical == "" {
			// Opaque scope entry (CTE/derived/unknown): columns unverifiable.
			continue
		}
		tbl, ok := c.schema.Table(physical)
		if !ok {
			continue
		}
		if _, ok := tbl.Column(column); !ok {
			add(models.WarnUnknownColumn, prefix+"."+column)
		}
	}
}

