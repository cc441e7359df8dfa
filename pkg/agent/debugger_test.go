package agent

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askql/askql/pkg/llm"
)

func newTestDebugger(t *testing.T, provider llm.Completer) *Debugger {
	t.Helper()
	return NewDebugger(newStageGateway(t, provider), stageChecker(t, stageSchemaYAML), "sqlite", slog.Default())
}

func TestSuggestReturnsCorrectedStatement(t *testing.T) {
	provider := &scriptedLLM{fallback: reply(
		"SELECT sale_date, SUM(amount) FROM sales GROUP BY sale_date",
	)}
	d := newTestDebugger(t, provider)

	sql, ok := d.Suggest(context.Background(),
		"sales per day?",
		"SELECT sale_date, SUM(amount) FROM sales GROUP BY date",
		"no such column: date",
		testPlan, "ctx")

	require.True(t, ok)
	assert.Equal(t, "SELECT sale_date, SUM(amount) FROM sales GROUP BY sale_date", sql)

	sent := provider.request(0)
	assert.Contains(t, sent.Messages[0].Content, "GROUP BY date")
	assert.Contains(t, sent.Messages[0].Content, "no such column: date")
	assert.Contains(t, sent.Messages[0].Content, "sales per day?")
}

func TestSuggestNoneMeansNoSuggestion(t *testing.T) {
	d := newTestDebugger(t, &scriptedLLM{fallback: reply("NONE\n")})

	_, ok := d.Suggest(context.Background(), "q", "SELECT 1", "boom", testPlan, "ctx")
	assert.False(t, ok)
}

func TestSuggestLLMFailureMeansNoSuggestion(t *testing.T) {
	d := newTestDebugger(t, &scriptedLLM{fallback: fail(llm.ErrTimeout)})

	_, ok := d.Suggest(context.Background(), "q", "SELECT 1", "boom", testPlan, "ctx")
	assert.False(t, ok)
}

func TestSuggestWithheldWhenValidationFails(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{name: "unknown table", reply: "SELECT * FROM orders"},
		{name: "unknown column", reply: "SELECT s.price FROM sales s"},
		{name: "write keyword", reply: "UPDATE sales SET amount = 0"},
		{name: "multiple statements", reply: "SELECT 1; SELECT 2"},
		{name: "unbalanced parens", reply: "SELECT COUNT( FROM sales"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDebugger(t, &scriptedLLM{fallback: reply(tt.reply)})

			_, ok := d.Suggest(context.Background(), "q", "SELECT 1", "boom", testPlan, "ctx")
			assert.False(t, ok)
		})
	}
}
