package prompt

import (
	"fmt"
	"strings"

	"github.com/askql/askql/pkg/models"
)

// maxResultRows bounds how many rows are rendered into the interpreter
// prompt. The interpreter cites at most five values, so a small window is
// plenty.
const maxResultRows = 5

// FormatContextSection wraps the rendered database context.
func FormatContextSection(dbContext string) string {
	var sb strings.Builder
	sb.WriteString("## Database Context\n")
	if dbContext == "" {
		sb.WriteString("No context available.\n")
		return sb.String()
	}
	sb.WriteString(dbContext)
	if !strings.HasSuffix(dbContext, "\n") {
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatQuestionSection wraps the user's utterance.
func FormatQuestionSection(utterance string) string {
	return "## Question\n" + utterance + "\n"
}

// FormatPlanSection wraps the numbered plan text.
func FormatPlanSection(plan models.Plan) string {
	var sb strings.Builder
	sb.WriteString("## Plan\n")
	if plan.IsEmpty() {
		sb.WriteString("No plan provided.\n")
		return sb.String()
	}
	sb.WriteString(plan.Text())
	sb.WriteString("\n")
	return sb.String()
}

// FormatSQLSection wraps a SQL statement.
func FormatSQLSection(heading, sql string) string {
	return "## " + heading + "\n" + sql + "\n"
}

// FormatWarningsSection lists validation warnings one per line.
func FormatWarningsSection(warnings []models.SQLWarning) string {
	var sb strings.Builder
	sb.WriteString("## Validation Warnings\n")
	for _, w := range warnings {
		sb.WriteString("- ")
		sb.WriteString(w.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatResultSection renders a result set for the interpreter: column
// order preserved, at most maxResultRows rows, with an explicit note when
// the listing or the result itself is truncated.
func FormatResultSection(rs *models.ResultSet) string {
	var sb strings.Builder
	sb.WriteString("## Query Result\n")
	if rs == nil || rs.RowCount == 0 {
		sb.WriteString("The query returned no rows.\n")
		return sb.String()
	}

	fmt.Fprintf(&sb, "Columns: %s\n", strings.Join(rs.Columns, ", "))

	shown := len(rs.Rows)
	if shown > maxResultRows {
		shown = maxResultRows
	}
	for i := 0; i < shown; i++ {
		row := rs.Rows[i]
		parts := make([]string, 0, len(row.Columns))
		for j, col := range row.Columns {
			parts = append(parts, fmt.Sprintf("%s=%v", col, row.Values[j]))
		}
		fmt.Fprintf(&sb, "Row %d: %s\n", i+1, strings.Join(parts, ", "))
	}

	fmt.Fprintf(&sb, "Total rows: %d\n", rs.RowCount)
	if shown < len(rs.Rows) || rs.Truncated {
		sb.WriteString("Note: the listing above is truncated; not all rows are shown.\n")
	}
	return sb.String()
}

// FormatEngineErrorSection wraps the engine failure text.
func FormatEngineErrorSection(engineError string) string {
	return "## Engine Error\n" + engineError + "\n"
}
