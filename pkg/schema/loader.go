package schema

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrSchemaNotFound indicates the schema description file does not exist.
	// Context construction treats this as fatal.
	ErrSchemaNotFound = errors.New("schema description file not found")

	// ErrInvalidSchema indicates the file parsed but describes an unusable
	// schema (no tables, duplicate names, dangling references).
	ErrInvalidSchema = errors.New("invalid schema description")
)

// Load reads and validates the schema description file at path.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, path)
		}
		return nil, fmt.Errorf("reading schema file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates schema description content.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	if len(s.Tables) == 0 {
		return nil, fmt.Errorf("%w: no tables declared", ErrInvalidSchema)
	}

	seen := make(map[string]bool, len(s.Tables))
	for i := range s.Tables {
		t := &s.Tables[i]
		if t.Name == "" {
			return nil, fmt.Errorf("%w: table %d has no name", ErrInvalidSchema, i)
		}
		if t.Physical == "" {
			t.Physical = t.Name
		}
		key := strings.ToLower(t.Physical)
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate table %q", ErrInvalidSchema, t.Physical)
		}
		seen[key] = true

		if len(t.Columns) == 0 {
			return nil, fmt.Errorf("%w: table %q has no columns", ErrInvalidSchema, t.Physical)
		}
		cols := make(map[string]bool, len(t.Columns))
		for j := range t.Columns {
			c := &t.Columns[j]
			if c.Name == "" {
				return nil, fmt.Errorf("%w: table %q column %d has no name", ErrInvalidSchema, t.Physical, j)
			}
			ck := strings.ToLower(c.Name)
			if cols[ck] {
				return nil, fmt.Errorf("%w: table %q duplicate column %q", ErrInvalidSchema, t.Physical, c.Name)
			}
			cols[ck] = true
			if c.Type == "" {
				return nil, fmt.Errorf("%w: table %q column %q has no type", ErrInvalidSchema, t.Physical, c.Name)
			}
		}
	}

	// References can only be checked once every table is known.
	for i := range s.Tables {
		t := &s.Tables[i]
		for j := range t.Columns {
			ref := t.Columns[j].References
			if ref == "" {
				continue
			}
			refTable, refColumn, ok := strings.Cut(ref, ".")
			if !ok {
				return nil, fmt.Errorf("%w: table %q column %q reference %q is not table.column",
					ErrInvalidSchema, t.Physical, t.Columns[j].Name, ref)
			}
			target, ok := s.Table(refTable)
			if !ok {
				return nil, fmt.Errorf("%w: table %q column %q references unknown table %q",
					ErrInvalidSchema, t.Physical, t.Columns[j].Name, refTable)
			}
			if _, ok := target.Column(refColumn); !ok {
				return nil, fmt.Errorf("%w: table %q column %q references unknown column %q.%q",
					ErrInvalidSchema, t.Physical, t.Columns[j].Name, refTable, refColumn)
			}
		}
	}

	return &s, nil
}
