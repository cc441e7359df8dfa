// Package schema models the schema description file: the source of truth for
// which tables and columns exist in the analytical store, their declared
// types, and the relations between them.
package schema

import (
	"sort"
	"strings"
)

// Schema is the parsed schema description file.
type Schema struct {
	Tables []Table `yaml:"tables"`
}

// Table describes one relation. Name is the logical name used in prose;
// Physical is the name used in SQL (defaults to Name when omitted in the
// file). Columns preserve the declaration order from the file.
type Table struct {
	Name     string   `yaml:"name"`
	Physical string   `yaml:"table"`
	Columns  []Column `yaml:"columns"`
}

// Column describes one attribute of a table.
type Column struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable"`
	// References names the relation target as "table.column", empty when the
	// column is not a foreign key.
	References string `yaml:"references"`
}

// Table returns the table with the given physical name (case-insensitive).
func (s *Schema) Table(physical string) (*Table, bool) {
	for i := range s.Tables {
		if strings.EqualFold(s.Tables[i].Physical, physical) {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// PhysicalNames returns all physical table names sorted alphabetically.
// This is the canonical table ordering for rendered context.
func (s *Schema) PhysicalNames() []string {
	names := make([]string, 0, len(s.Tables))
	for i := range s.Tables {
		names = append(names, s.Tables[i].Physical)
	}
	sort.Strings(names)
	return names
}

// HasColumnNamed reports whether any table declares a column with the given
// name (case-insensitive). Used by the intent classifier's keyword fallback.
func (s *Schema) HasColumnNamed(name string) bool {
	for i := range s.Tables {
		if _, ok := s.Tables[i].Column(name); ok {
			return true
		}
	}
	return false
}

// Column returns the column with the given name (case-insensitive).
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// numericTypes and textTypes classify declared column types for the
// summarizer. Declared types are matched on their leading word so
// "VARCHAR(80)" classifies as text.
var numericTypes = map[string]bool{
	"int": true, "integer": true, "bigint": true, "smallint": true,
	"real": true, "float": true, "double": true, "numeric": true,
	"decimal": true, "serial": true, "bigserial": true,
}

var textTypes = map[string]bool{
	"text": true, "varchar": true, "char": true, "character": true,
	"string": true,
}

// IsNumeric reports whether the declared type is numeric (eligible for
// MIN/MAX/AVG summaries).
func (c *Column) IsNumeric() bool {
	return numericTypes[baseType(c.Type)]
}

// IsText reports whether the declared type is textual (eligible for top-k
// value summaries).
func (c *Column) IsText() bool {
	return textTypes[baseType(c.Type)]
}

func baseType(declared string) string {
	t := strings.ToLower(strings.TrimSpace(declared))
	for i := 0; i < len(t); i++ {
		if !(t[i] >= 'a' && t[i] <= 'z') {
			return t[:i]
		}
	}
	return t
}
