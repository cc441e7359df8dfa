package e2e

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ────────────────────────────────────────────────────────────
// Scenario: a specific question is planned, validated, and
// synthesized into SQL, then the approved SQL executes and the
// result is interpreted.
// ────────────────────────────────────────────────────────────

func TestE2E_ApproveAndExecute(t *testing.T) {
	script := NewScriptedLLM()
	script.AddSequential(
		ScriptEntry{Text: "specific 0.93"},
		ScriptEntry{Text: "1. Count rows of the sales table.\n" +
			"2. Keep only rows where the sale_date column is 2025-04-11."},
		ScriptEntry{Text: "FEASIBLE"},
		ScriptEntry{Text: "SELECT COUNT(*) AS n FROM sales WHERE sale_date = '2025-04-11'"},
		ScriptEntry{Text: "There were 2 sales on 2025-04-11, half of the 4 rows in the table."},
	)
	app := NewTestApp(t, WithLLM(script))

	// Analyze: the SQL waits for approval, the session is stored.
	resp := app.Analyze(t, "How many sales happened on 2025-04-11?", "")
	require.Equal(t, "sql", resp["kind"], "analyze outcome: %v", resp)
	sessionID := resp["session_id"].(string)
	require.NotEmpty(t, sessionID)
	assert.Contains(t, resp["sql"], "FROM sales")
	assert.Empty(t, resp["warnings"])
	assert.Len(t, resp["plan"], 2)

	// The conversation transcript is already queryable.
	status, history := app.History(t, sessionID)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, history["turns"])

	// Execute the approved statement.
	status, result := app.Execute(t, sessionID,
		"SELECT COUNT(*) FROM sales WHERE sale_date='2025-04-11'")
	require.Equal(t, http.StatusOK, status, "execute: %v", result)
	require.Equal(t, "result", result["kind"])
	assert.EqualValues(t, 1, result["row_count"])
	rows := result["rows"].([]any)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 2, firstValue(t, rows[0]))
	interpretation := result["interpretation"].(string)
	assert.Contains(t, interpretation, "2")
	assert.Contains(t, interpretation, "2025-04-11")

	// The session was consumed by the attempt.
	status, second := app.Execute(t, sessionID, "SELECT COUNT(*) FROM sales")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "session_missing", second["kind"])

	// classify + plan + validate + synthesize + interpret.
	assert.Equal(t, 5, script.CallCount())
}

// ────────────────────────────────────────────────────────────
// Scenario: the plan references entities the schema does not
// contain, so the turn fails at planning without synthesis.
// ────────────────────────────────────────────────────────────

func TestE2E_UnknownEntitiesFailAtPlanning(t *testing.T) {
	script := NewScriptedLLM()
	script.AddSequential(
		ScriptEntry{Text: "specific 0.9"},
		ScriptEntry{Text: "1. Look at the products table.\n" +
			"2. Group by the category column.\n" +
			"3. Count how many fall in each group."},
	)
	app := NewTestApp(t, WithLLM(script))

	resp := app.Analyze(t,
		"What are the different product categories and how many products in each?", "")
	require.Equal(t, "error", resp["kind"], "analyze outcome: %v", resp)
	assert.Equal(t, "plan", resp["stage"])
	message := resp["message"].(string)
	assert.Contains(t, message, "products")
	assert.Contains(t, message, "category")

	// The infeasibility was caught without a synthesis call.
	assert.Equal(t, 2, script.CallCount())
}

// ────────────────────────────────────────────────────────────
// Scenario: a broken approved statement surfaces the engine
// error together with a validated repair suggestion.
// ────────────────────────────────────────────────────────────

func TestE2E_ExecutionFailureYieldsSuggestion(t *testing.T) {
	script := NewScriptedLLM()
	script.AddSequential(
		ScriptEntry{Text: "specific"},
		ScriptEntry{Text: "1. Count rows of the sales table."},
		ScriptEntry{Text: "FEASIBLE"},
		ScriptEntry{Text: "SELECT COUNT(*) AS n FROM sales"},
		ScriptEntry{Text: "SELECT COUNT(*) FROM sales"},
	)
	app := NewTestApp(t, WithLLM(script))

	sessionID, _ := app.AnalyzeToApproval(t, "How many sales are there?")

	status, resp := app.Execute(t, sessionID, "SELEC COUNT(*) FROM sales")
	require.Equal(t, http.StatusOK, status, "execute: %v", resp)
	require.Equal(t, "exec_error", resp["kind"])
	assert.NotEmpty(t, resp["engine_error"])
	require.NotNil(t, resp["debug_suggestion"])
	suggestion := resp["debug_suggestion"].(string)
	assert.True(t, strings.HasPrefix(suggestion, "SELECT"), "suggestion: %q", suggestion)
}

// ────────────────────────────────────────────────────────────
// Scenario: an exploratory-analytical question returns proposed
// analyses instead of SQL.
// ────────────────────────────────────────────────────────────

func TestE2E_InsightSuggestions(t *testing.T) {
	script := NewScriptedLLM()
	script.AddSequential(
		ScriptEntry{Text: "exploratory_analytical 0.88"},
		ScriptEntry{Text: "Which product generates the most revenue?\n" +
			"How do daily sales totals change over time?\n" +
			"What is the average sale amount per product?\n" +
			"Which day had the highest sales volume?\n" +
			"How many distinct products were sold?"},
	)
	app := NewTestApp(t, WithLLM(script))

	resp := app.Analyze(t, "give me some interesting insights", "")
	require.Equal(t, "suggestions", resp["kind"], "analyze outcome: %v", resp)
	suggestions := resp["suggestions"].([]any)
	assert.Len(t, suggestions, 5)
	for _, s := range suggestions {
		assert.LessOrEqual(t, len(strings.Fields(s.(string))), 30)
	}
	assert.Equal(t, 2, script.CallCount())
}

// ────────────────────────────────────────────────────────────
// Scenario: an exploratory-descriptive question returns a prose
// overview of the dataset.
// ────────────────────────────────────────────────────────────

func TestE2E_DatasetDescription(t *testing.T) {
	script := NewScriptedLLM()
	script.AddSequential(
		ScriptEntry{Text: "exploratory_descriptive"},
		ScriptEntry{Text: "The dataset holds a single sales table with one row per " +
			"transaction: an id, a product reference, an amount, and the sale date."},
	)
	app := NewTestApp(t, WithLLM(script))

	resp := app.Analyze(t, "what data do you have?", "")
	require.Equal(t, "description", resp["kind"], "analyze outcome: %v", resp)
	assert.Contains(t, resp["text"], "sales")
}

// ────────────────────────────────────────────────────────────
// Scenario: results wider than the row cap come back truncated
// with the true row count.
// ────────────────────────────────────────────────────────────

func TestE2E_TruncatedResults(t *testing.T) {
	script := NewScriptedLLM()
	script.AddSequential(
		ScriptEntry{Text: "specific"},
		ScriptEntry{Text: "1. List every sale_id of the sales table."},
		ScriptEntry{Text: "FEASIBLE"},
		ScriptEntry{Text: "SELECT sale_id FROM sales ORDER BY sale_id"},
		ScriptEntry{Text: "The table holds 4 sales; only the first rows are listed because the result was truncated."},
	)
	app := NewTestApp(t, WithLLM(script), WithRowCap(2))

	sessionID, sql := app.AnalyzeToApproval(t, "List all sale ids.")

	status, result := app.Execute(t, sessionID, sql)
	require.Equal(t, http.StatusOK, status, "execute: %v", result)
	require.Equal(t, "result", result["kind"])
	assert.Equal(t, true, result["truncated"])
	assert.EqualValues(t, 4, result["row_count"])
	assert.Len(t, result["rows"], 2)
	assert.Contains(t, result["interpretation"], "truncated")
}

// ────────────────────────────────────────────────────────────
// Health and version endpoints.
// ────────────────────────────────────────────────────────────

func TestE2E_HealthAndVersion(t *testing.T) {
	app := NewTestApp(t)

	status, health := app.Health(t)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", health["status"])
	db := health["database"].(map[string]any)
	assert.Equal(t, true, db["healthy"])
	assert.Equal(t, "sqlite", db["engine"])

	status, version := app.Version(t)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, version["version"], "askql/")
}
