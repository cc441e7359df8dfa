// Package dbcontext renders the analytical-store context handed to the
// language model: the declared schema plus live per-table statistics. The
// rendering is deterministic so identical store states produce identical
// prompts.
package dbcontext

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/askql/askql/pkg/database"
	"github.com/askql/askql/pkg/schema"
)

const (
	defaultTopK           = 10
	defaultCardinalityCap = 50
)

// Config tunes context rendering.
type Config struct {
	// TopK limits how many frequent values are listed per text column.
	TopK int
	// CardinalityCap disables value listings for text columns with more
	// distinct values than this.
	CardinalityCap int
	// AnnotationsDir optionally points at curator-written JSON notes.
	AnnotationsDir string
}

// Provider renders store context from the schema description and live
// summary queries.
type Provider struct {
	schema         *schema.Schema
	client         *database.Client
	topK           int
	cardinalityCap int
	annotations    map[string]Annotation
	logger         *slog.Logger
}

// NewProvider creates a context provider. The logger defaults to
// slog.Default when nil.
func NewProvider(s *schema.Schema, client *database.Client, cfg Config, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.CardinalityCap <= 0 {
		cfg.CardinalityCap = defaultCardinalityCap
	}
	return &Provider{
		schema:         s,
		client:         client,
		topK:           cfg.TopK,
		cardinalityCap: cfg.CardinalityCap,
		annotations:    LoadAnnotations(cfg.AnnotationsDir, logger),
		logger:         logger,
	}
}

// Context renders the full store context: every table in alphabetical order
// of physical name, columns in declaration order, followed by the live
// summary. A table whose summary queries fail is still listed with its
// declared columns; the failure only suppresses the statistics for that one
// table. Only a dead turn (cancelled or expired ctx) fails the whole
// rendering.
func (p *Provider) Context(ctx context.Context) (string, error) {
	var b strings.Builder

	for _, physical := range p.schema.PhysicalNames() {
		tbl, ok := p.schema.Table(physical)
		if !ok {
			continue
		}
		p.renderTable(ctx, &b, tbl)
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("context construction aborted at %s: %w", tbl.Physical, err)
		}
	}
	return b.String(), nil
}

func (p *Provider) renderTable(ctx context.Context, b *strings.Builder, tbl *schema.Table) {
	annotation := p.annotations[strings.ToLower(tbl.Physical)]

	fmt.Fprintf(b, "--- Table: %s ---\n", tbl.Physical)
	if !strings.EqualFold(tbl.Name, tbl.Physical) {
		fmt.Fprintf(b, "Known as: %s\n", tbl.Name)
	}
	if annotation.Notes != "" {
		fmt.Fprintf(b, "Description: %s\n", annotation.Notes)
	}

	b.WriteString("Columns:\n")
	for i := range tbl.Columns {
		col := &tbl.Columns[i]
		fmt.Fprintf(b, "  - %s %s", col.Name, col.Type)
		if col.Nullable {
			b.WriteString(" nullable")
		}
		if col.References != "" {
			fmt.Fprintf(b, " REFERENCES %s", col.References)
		}
		if note := annotation.Columns[strings.ToLower(col.Name)]; note != "" {
			fmt.Fprintf(b, " -- %s", note)
		}
		b.WriteString("\n")
	}

	summary, err := p.summarize(ctx, tbl)
	if err != nil {
		p.logger.Warn("Table summary failed", "table", tbl.Physical, "error", err)
		b.WriteString("(live summary unavailable)\n\n")
		return
	}

	fmt.Fprintf(b, "Rows: %d\n", summary.rowCount)
	b.WriteString("Profile:\n")
	for _, cs := range summary.columns {
		fmt.Fprintf(b, "  - %s: nulls=%d", cs.name, cs.nulls)
		if cs.numeric != nil {
			fmt.Fprintf(b, ", min=%s, max=%s, avg=%s",
				formatValue(cs.numeric.min),
				formatValue(cs.numeric.max),
				formatValue(cs.numeric.avg),
			)
		}
		if cs.hasDistinct {
			fmt.Fprintf(b, ", distinct=%d", cs.distinct)
		}
		if len(cs.top) > 0 {
			parts := make([]string, 0, len(cs.top))
			for _, vc := range cs.top {
				parts = append(parts, fmt.Sprintf("'%s' (%d)", vc.value, vc.count))
			}
			fmt.Fprintf(b, ", top: %s", strings.Join(parts, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}
