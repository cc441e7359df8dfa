package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv substitutes {{.VAR}} references in raw config bytes with the
// named environment variables. Template syntax is used instead of $VAR so
// that dollar signs inside passwords, regex fragments, and SQL snippets
// survive untouched. Unknown variables expand to the empty string; the
// validator rejects required fields left empty. Input that does not parse
// as a template comes back unchanged, so plain YAML never fails here.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, environMap()); err != nil {
		return data
	}
	return buf.Bytes()
}

// environMap snapshots the process environment as template data. Values may
// themselves contain '=', so only the first one splits.
func environMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}
	return env
}
