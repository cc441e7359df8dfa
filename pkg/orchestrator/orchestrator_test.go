package orchestrator

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/askql/askql/pkg/agent"
	"github.com/askql/askql/pkg/database"
	"github.com/askql/askql/pkg/dbcontext"
	"github.com/askql/askql/pkg/llm"
	"github.com/askql/askql/pkg/schema"
	"github.com/askql/askql/pkg/session"
	"github.com/askql/askql/pkg/sqlcheck"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// The test schema mirrors the bundled demo migrations: a single sales table
// with four seeded rows, two of them on 2025-04-11.
const testSchemaYAML = `
tables:
  - name: sales
    columns:
      - name: sale_id
        type: INTEGER
      - name: product_id
        type: INTEGER
      - name: amount
        type: NUMERIC(10,2)
        nullable: true
      - name: sale_date
        type: TEXT
`

// scriptedLLM plays back canned completions in call order.
type scriptedLLM struct {
	mu       sync.Mutex
	calls    int
	requests []llm.Request
	script   []func(ctx context.Context, req llm.Request) (string, error)
	fallback func(ctx context.Context, req llm.Request) (string, error)
}

func (s *scriptedLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	idx := s.calls
	s.calls++
	s.requests = append(s.requests, req)
	fn := s.fallback
	if idx < len(s.script) {
		fn = s.script[idx]
	}
	s.mu.Unlock()

	if fn == nil {
		return "", llm.ErrEmpty
	}
	return fn(ctx, req)
}

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func reply(text string) func(ctx context.Context, req llm.Request) (string, error) {
	return func(context.Context, llm.Request) (string, error) { return text, nil }
}

func fail(err error) func(ctx context.Context, req llm.Request) (string, error) {
	return func(context.Context, llm.Request) (string, error) { return "", err }
}

type harness struct {
	orch     *Orchestrator
	provider *scriptedLLM
	store    *session.MemoryStore
	client   *database.Client
}

func newHarness(t *testing.T, script ...func(ctx context.Context, req llm.Request) (string, error)) *harness {
	t.Helper()

	s, err := schema.Parse([]byte(testSchemaYAML))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "orch.db")
	client, err := database.Open(context.Background(), database.DefaultConfig("sqlite://"+path))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, database.ApplyMigrations(client, slog.Default()))

	provider := &scriptedLLM{script: script}
	gateway := llm.NewGateway(provider, llm.GatewayConfig{
		MaxRetryElapsed: 20 * time.Millisecond,
	}, nil)
	t.Cleanup(gateway.Close)

	store := session.NewMemoryStore(time.Minute, time.Hour, nil)
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.Default()
	checker := sqlcheck.NewChecker(s)
	dialect := string(client.Engine())

	orch := New(Deps{
		Contexts:    dbcontext.NewProvider(s, client, dbcontext.Config{}, logger),
		Classifier:  agent.NewClassifier(gateway, s, logger),
		Planner:     agent.NewPlanner(gateway, logger),
		Validator:   agent.NewValidator(gateway, s, logger),
		Synthesizer: agent.NewSynthesizer(gateway, checker, dialect, logger),
		Debugger:    agent.NewDebugger(gateway, checker, dialect, logger),
		Interpreter: agent.NewInterpreter(gateway, logger),
		Describer:   agent.NewDescriber(gateway, logger),
		Executor:    database.NewExecutor(client, 5*time.Second, 100, logger),
		Sessions:    store,
		Gateway:     gateway,
		Logger:      logger,
	})

	return &harness{orch: orch, provider: provider, store: store, client: client}
}

// analyzeToApproval drives a specific-intent analyze through the scripted
// pipeline and returns the approval result.
func analyzeToApproval(t *testing.T, h *harness, utterance string) NeedsSQLApproval {
	t.Helper()
	result := h.orch.Analyze(context.Background(), utterance, "")
	approval, ok := result.(NeedsSQLApproval)
	require.True(t, ok, "expected NeedsSQLApproval, got %T", result)
	return approval
}

func TestAnalyzeSpecificHappyPath(t *testing.T) {
	h := newHarness(t,
		reply("specific 0.95"),
		reply("1. Count rows of the sales table.\n2. Return the count."),
		reply("FEASIBLE"),
		reply("SELECT COUNT(*) AS n FROM sales"),
	)

	approval := analyzeToApproval(t, h, "how many sales are there?")

	assert.NotEmpty(t, approval.SessionID)
	assert.Equal(t, "SELECT COUNT(*) AS n FROM sales", approval.SQL)
	assert.Empty(t, approval.Warnings)
	assert.Len(t, approval.Plan.Steps, 2)

	// Exactly one session awaits execution.
	assert.Equal(t, 1, h.store.Len())
	assert.Equal(t, 4, h.provider.callCount())
}

func TestAnalyzeInfeasiblePlanFails(t *testing.T) {
	h := newHarness(t,
		reply("specific"),
		reply("1. Join the sales table with the products table on product_id.\n"+
			"2. Group by the category column and sum amount."),
	)

	result := h.orch.Analyze(context.Background(), "which product category sold best in Q2 2025?", "")
	failed, ok := result.(Failed)
	require.True(t, ok, "expected Failed, got %T", result)

	assert.Equal(t, "plan", failed.Stage)
	assert.Contains(t, failed.Reason, "products")
	assert.Contains(t, failed.Reason, "category")

	// The identifier gate decides without a validation LLM call, and no
	// session is left behind.
	assert.Equal(t, 2, h.provider.callCount())
	assert.Equal(t, 0, h.store.Len())
}

func TestAnalyzeDescriptive(t *testing.T) {
	h := newHarness(t,
		reply("exploratory_descriptive"),
		reply("The dataset holds retail sales.\n\nEach row is one sale.\n\nAmounts are small."),
	)

	result := h.orch.Analyze(context.Background(), "what's in this dataset?", "")
	description, ok := result.(Description)
	require.True(t, ok, "expected Description, got %T", result)

	assert.Contains(t, description.Text, "The dataset holds retail sales.")
	assert.Equal(t, 0, h.store.Len())
}

func TestAnalyzeSuggestions(t *testing.T) {
	h := newHarness(t,
		reply("exploratory_analytical"),
		reply("- Which day had the most sales?\n"+
			"- What is the average amount per sale?\n"+
			"- Which product brought the most revenue?\n"+
			"- How many sales lack an amount?\n"+
			"- How do daily totals trend?"),
	)

	result := h.orch.Analyze(context.Background(), "suggest some analyses", "")
	suggestions, ok := result.(Suggestions)
	require.True(t, ok, "expected Suggestions, got %T", result)

	require.Len(t, suggestions.Suggestions, 5)
	assert.Equal(t, "Which day had the most sales?", suggestions.Suggestions[0])
	assert.Equal(t, 0, h.store.Len())
}

func TestAnalyzeSynthesisFailureLeavesNoSession(t *testing.T) {
	h := newHarness(t,
		reply("specific"),
		reply("1. Count rows of the sales table."),
		reply("FEASIBLE"),
		fail(llm.ErrEmpty),
	)

	result := h.orch.Analyze(context.Background(), "how many sales?", "")
	failed, ok := result.(Failed)
	require.True(t, ok, "expected Failed, got %T", result)

	assert.Equal(t, "llm_empty", failed.Stage)
	assert.Equal(t, 0, h.store.Len())
}

func TestAnalyzeSurfacesPersistingWarnings(t *testing.T) {
	h := newHarness(t,
		reply("specific"),
		reply("1. Count the orders."),
		reply("FEASIBLE"),
		reply("SELECT COUNT(*) FROM orders"),
		reply("SELECT COUNT(*) FROM order_log"),
	)

	approval := analyzeToApproval(t, h, "how many orders?")

	require.Len(t, approval.Warnings, 1)
	assert.Equal(t, "unknown-table: order_log", approval.Warnings[0].String())
	assert.Equal(t, "SELECT COUNT(*) FROM order_log", approval.SQL)

	// Warned SQL still reaches the approval gate.
	assert.Equal(t, 1, h.store.Len())
}

func TestExecuteHappyPath(t *testing.T) {
	h := newHarness(t,
		reply("specific"),
		reply("1. Count sales on 2025-04-11."),
		reply("FEASIBLE"),
		reply("SELECT COUNT(*) AS n FROM sales WHERE sale_date = '2025-04-11'"),
		reply("There were exactly 2 sales on 2025-04-11."),
	)

	approval := analyzeToApproval(t, h, "how many sales on 2025-04-11?")

	result := h.orch.Execute(context.Background(), approval.SessionID, approval.SQL)
	success, ok := result.(Success)
	require.True(t, ok, "expected Success, got %T", result)

	assert.Equal(t, "There were exactly 2 sales on 2025-04-11.", success.Interpretation)
	require.Equal(t, 1, success.Result.RowCount)
	assert.EqualValues(t, 2, success.Result.Rows[0].Values[0])
	assert.False(t, success.Result.Truncated)

	// The session was consumed by the attempt.
	assert.Equal(t, 0, h.store.Len())
}

func TestExecuteUnknownSession(t *testing.T) {
	h := newHarness(t)

	result := h.orch.Execute(context.Background(), "no-such-session", "SELECT 1")
	assert.IsType(t, SessionMissing{}, result)
}

func TestExecuteConsumesSessionOnFailure(t *testing.T) {
	h := newHarness(t,
		reply("specific"),
		reply("1. Count sales."),
		reply("FEASIBLE"),
		reply("SELECT COUNT(*) FROM sales"),
		reply("NONE"),
	)

	approval := analyzeToApproval(t, h, "how many sales?")

	// The user edits the SQL into something broken before approving.
	result := h.orch.Execute(context.Background(), approval.SessionID, "SELECT nope FROM sales")
	execFailed, ok := result.(ExecutionFailed)
	require.True(t, ok, "expected ExecutionFailed, got %T", result)
	assert.NotEmpty(t, execFailed.EngineError)
	assert.Nil(t, execFailed.DebugSuggestion)

	// Consume-on-attempt: the failed execute still burned the session.
	assert.Equal(t, 0, h.store.Len())
	result = h.orch.Execute(context.Background(), approval.SessionID, approval.SQL)
	assert.IsType(t, SessionMissing{}, result)
}

func TestExecuteAttachesDebugSuggestion(t *testing.T) {
	h := newHarness(t,
		reply("specific"),
		reply("1. Sum amounts per day."),
		reply("FEASIBLE"),
		reply("SELECT sale_date, SUM(amount) AS total FROM sales GROUP BY sale_date"),
		reply("SELECT sale_date, SUM(amount) AS total FROM sales GROUP BY sale_date"),
	)

	approval := analyzeToApproval(t, h, "sales per day?")

	result := h.orch.Execute(context.Background(), approval.SessionID,
		"SELECT saledate, SUM(amount) FROM sales GROUP BY saledate")
	execFailed, ok := result.(ExecutionFailed)
	require.True(t, ok, "expected ExecutionFailed, got %T", result)

	assert.Contains(t, execFailed.EngineError, "saledate")
	require.NotNil(t, execFailed.DebugSuggestion)
	assert.Equal(t,
		"SELECT sale_date, SUM(amount) AS total FROM sales GROUP BY sale_date",
		*execFailed.DebugSuggestion)
}

func TestExecuteWithheldSuggestionYieldsNull(t *testing.T) {
	h := newHarness(t,
		reply("specific"),
		reply("1. Count sales."),
		reply("FEASIBLE"),
		reply("SELECT COUNT(*) FROM sales"),
		// The debugger proposes a statement referencing an unknown table;
		// validation withholds it.
		reply("SELECT COUNT(*) FROM orders"),
	)

	approval := analyzeToApproval(t, h, "how many sales?")

	result := h.orch.Execute(context.Background(), approval.SessionID, "SELECT boom FROM sales")
	execFailed, ok := result.(ExecutionFailed)
	require.True(t, ok, "expected ExecutionFailed, got %T", result)
	assert.Nil(t, execFailed.DebugSuggestion)
}

func TestConcurrentExecutesHaveOneWinner(t *testing.T) {
	h := newHarness(t,
		reply("specific"),
		reply("1. Count sales."),
		reply("FEASIBLE"),
		reply("SELECT COUNT(*) FROM sales"),
	)
	h.provider.fallback = reply("The table holds 4 sales.")

	approval := analyzeToApproval(t, h, "how many sales?")

	const attempts = 8
	results := make([]ExecuteResult, attempts)
	var start, wg sync.WaitGroup
	start.Add(1)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start.Wait()
			results[i] = h.orch.Execute(context.Background(), approval.SessionID, approval.SQL)
		}(i)
	}
	start.Done()
	wg.Wait()

	var wins, misses int
	for _, r := range results {
		switch r.(type) {
		case Success:
			wins++
		case SessionMissing:
			misses++
		default:
			t.Fatalf("unexpected result type %T", r)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, attempts-1, misses)
}

func TestExecuteTruncatesLargeResults(t *testing.T) {
	h := newHarness(t,
		reply("specific"),
		reply("1. List all sales."),
		reply("FEASIBLE"),
		reply("SELECT sale_id FROM sales ORDER BY sale_id"),
		reply("The listing shows the first sales."),
	)
	// Shrink the cap below the seeded row count.
	h.orch.deps.Executor = database.NewExecutor(h.client, 5*time.Second, 2, slog.Default())

	approval := analyzeToApproval(t, h, "list the sales")

	result := h.orch.Execute(context.Background(), approval.SessionID, approval.SQL)
	success, ok := result.(Success)
	require.True(t, ok, "expected Success, got %T", result)

	assert.True(t, success.Result.Truncated)
	assert.Equal(t, 4, success.Result.RowCount)
	assert.Len(t, success.Result.Rows, 2)
}

func TestAnalyzeWithPriorSessionReplacesIt(t *testing.T) {
	h := newHarness(t,
		reply("specific"),
		reply("1. Count sales."),
		reply("FEASIBLE"),
		reply("SELECT COUNT(*) FROM sales"),
		// Second turn.
		reply("specific"),
		reply("1. Count sales on 2025-04-11."),
		reply("FEASIBLE"),
		reply("SELECT COUNT(*) FROM sales WHERE sale_date = '2025-04-11'"),
	)

	first := analyzeToApproval(t, h, "how many sales?")
	assert.Equal(t, 1, h.store.Len())

	result := h.orch.Analyze(context.Background(), "only on 2025-04-11 please", first.SessionID)
	second, ok := result.(NeedsSQLApproval)
	require.True(t, ok, "expected NeedsSQLApproval, got %T", result)
	assert.NotEqual(t, first.SessionID, second.SessionID)

	// The superseded approval is gone; only the new turn awaits execution.
	assert.Equal(t, 1, h.store.Len())
	exec := h.orch.Execute(context.Background(), first.SessionID, first.SQL)
	assert.IsType(t, SessionMissing{}, exec)
}

func TestAnalyzeCarriesConversationMemory(t *testing.T) {
	h := newHarness(t,
		reply("specific"),
		reply("1. Count sales."),
		reply("FEASIBLE"),
		reply("SELECT COUNT(*) FROM sales"),
		// Second turn: the classifier call should see the first turn's
		// history ahead of the new question.
		reply("specific"),
	)

	first := analyzeToApproval(t, h, "how many sales?")

	h.orch.Analyze(context.Background(), "and on 2025-04-11?", first.SessionID)

	h.provider.mu.Lock()
	classify2 := h.provider.requests[4]
	h.provider.mu.Unlock()
	require.Greater(t, len(classify2.Messages), 1)
	assert.Contains(t, classify2.Messages[0].Content, "how many sales?")
}
