package dbcontext

import (
	"context"
	"fmt"
	"strconv"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/askql/askql/pkg/schema"
)

// tableSummary holds the live statistics gathered for one table.
type tableSummary struct {
	rowCount int64
	columns  []columnSummary
}

// columnSummary holds per-column statistics. numeric is set for numeric
// columns, distinct and top for textual ones.
type columnSummary struct {
	name    string
	nulls   int64
	numeric *numericSummary

	hasDistinct bool
	distinct    int64
	top         []valueCount
}

type numericSummary struct {
	min, max, avg any
}

type valueCount struct {
	value string
	count int64
}

// summarize profiles one table: total row count, per-column null counts,
// MIN/MAX/AVG for numeric columns, and distinct counts plus top values for
// low-cardinality text columns. Queries are composed with the dialect-aware
// SQL builder so the same code serves both engines.
func (p *Provider) summarize(ctx context.Context, tbl *schema.Table) (*tableSummary, error) {
	d := entsql.Dialect(p.client.Engine().Dialect())
	summary := &tableSummary{}

	q, args := d.Select(entsql.As(entsql.Count("*"), "n")).
		From(entsql.Table(tbl.Physical)).
		Query()
	if err := p.queryInt(ctx, q, args, &summary.rowCount); err != nil {
		return nil, fmt.Errorf("row count: %w", err)
	}

	for i := range tbl.Columns {
		col := &tbl.Columns[i]
		cs := columnSummary{name: col.Name}

		q, args := d.Select(entsql.As(entsql.Count("*"), "n")).
			From(entsql.Table(tbl.Physical)).
			Where(entsql.IsNull(col.Name)).
			Query()
		if err := p.queryInt(ctx, q, args, &cs.nulls); err != nil {
			return nil, fmt.Errorf("null count for %s: %w", col.Name, err)
		}

		switch {
		case col.IsNumeric():
			ns, err := p.numericProfile(ctx, d, tbl.Physical, col.Name)
			if err != nil {
				return nil, fmt.Errorf("numeric profile for %s: %w", col.Name, err)
			}
			cs.numeric = ns

		case col.IsText():
			q, args := d.Select(entsql.As(entsql.Count(entsql.Distinct(col.Name)), "n")).
				From(entsql.Table(tbl.Physical)).
				Query()
			if err := p.queryInt(ctx, q, args, &cs.distinct); err != nil {
				return nil, fmt.Errorf("distinct count for %s: %w", col.Name, err)
			}
			cs.hasDistinct = true

			if cs.distinct > 0 && cs.distinct <= int64(p.cardinalityCap) {
				top, err := p.topValues(ctx, d, tbl.Physical, col.Name)
				if err != nil {
					return nil, fmt.Errorf("top values for %s: %w", col.Name, err)
				}
				cs.top = top
			}
		}

		summary.columns = append(summary.columns, cs)
	}
	return summary, nil
}

func (p *Provider) numericProfile(ctx context.Context, d *entsql.DialectBuilder, table, column string) (*numericSummary, error) {
	q, args := d.Select(
		entsql.As(entsql.Min(column), "mn"),
		entsql.As(entsql.Max(column), "mx"),
		entsql.As(entsql.Avg(column), "av"),
	).From(entsql.Table(table)).Query()

	var rows entsql.Rows
	if err := p.client.Driver().Query(ctx, q, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	ns := &numericSummary{}
	if rows.Next() {
		if err := rows.Scan(&ns.min, &ns.max, &ns.avg); err != nil {
			return nil, err
		}
	}
	return ns, rows.Err()
}

// topValues returns the most frequent non-null values for a column, ordered
// by count descending with the value itself as tie-break so the rendering is
// stable across runs.
func (p *Provider) topValues(ctx context.Context, d *entsql.DialectBuilder, table, column string) ([]valueCount, error) {
	q, args := d.Select(column, entsql.As(entsql.Count("*"), "n")).
		From(entsql.Table(table)).
		Where(entsql.NotNull(column)).
		GroupBy(column).
		OrderBy(entsql.Desc("n"), entsql.Asc(column)).
		Limit(p.topK).
		Query()

	var rows entsql.Rows
	if err := p.client.Driver().Query(ctx, q, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	var top []valueCount
	for rows.Next() {
		var value any
		var count int64
		if err := rows.Scan(&value, &count); err != nil {
			return nil, err
		}
		top = append(top, valueCount{value: formatValue(value), count: count})
	}
	return top, rows.Err()
}

// queryInt runs a single-row single-column count query.
func (p *Provider) queryInt(ctx context.Context, query string, args []any, out *int64) error {
	var rows entsql.Rows
	if err := p.client.Driver().Query(ctx, query, args, &rows); err != nil {
		return err
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(out); err != nil {
			return err
		}
	}
	return rows.Err()
}

// formatValue renders a scanned value for the context text.
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(t)
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", t)
	}
}
