package dbcontext

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Annotation carries curator-written notes for one table, loaded from a JSON
// file in the annotations directory. Columns maps column name to note.
type Annotation struct {
	Table   string            `json:"table"`
	Notes   string            `json:"notes"`
	Columns map[string]string `json:"columns"`
}

// LoadAnnotations reads every *.json file in dir and merges the annotations
// by table name (case-insensitive). Files are processed in lexical order, so
// later files win on conflicting notes. A missing directory is not an error;
// unreadable files are logged and skipped.
func LoadAnnotations(dir string, logger *slog.Logger) map[string]Annotation {
	annotations := make(map[string]Annotation)
	if dir == "" {
		return annotations
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Failed to read annotations directory", "dir", dir, "error", err)
		}
		return annotations
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("Failed to read annotation file", "file", path, "error", err)
			continue
		}
		var a Annotation
		if err := json.Unmarshal(data, &a); err != nil {
			logger.Warn("Failed to parse annotation file", "file", path, "error", err)
			continue
		}
		if a.Table == "" {
			logger.Warn("Annotation file names no table", "file", path)
			continue
		}

		key := strings.ToLower(a.Table)
		merged := annotations[key]
		merged.Table = a.Table
		if a.Notes != "" {
			merged.Notes = a.Notes
		}
		if merged.Columns == nil {
			merged.Columns = make(map[string]string)
		}
		for col, note := range a.Columns {
			merged.Columns[strings.ToLower(col)] = note
		}
		annotations[key] = merged
	}
	return annotations
}
