package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/askql/askql/pkg/agent"
	"github.com/askql/askql/pkg/database"
	"github.com/askql/askql/pkg/dbcontext"
	"github.com/askql/askql/pkg/llm"
	"github.com/askql/askql/pkg/orchestrator"
	"github.com/askql/askql/pkg/schema"
	"github.com/askql/askql/pkg/session"
	"github.com/askql/askql/pkg/sqlcheck"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

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

type scriptedLLM struct {
	mu     sync.Mutex
	calls  int
	script []func(ctx context.Context, req llm.Request) (string, error)
}

func (s *scriptedLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	idx := s.calls
	s.calls++
	var fn func(ctx context.Context, req llm.Request) (string, error)
	if idx < len(s.script) {
		fn = s.script[idx]
	}
	s.mu.Unlock()

	if fn == nil {
		return "", llm.ErrEmpty
	}
	return fn(ctx, req)
}

func reply(text string) func(ctx context.Context, req llm.Request) (string, error) {
	return func(context.Context, llm.Request) (string, error) { return text, nil }
}

// newTestRouter boots the whole stack on a temp SQLite store with a scripted
// model and returns the assembled router.
func newTestRouter(t *testing.T, script ...func(ctx context.Context, req llm.Request) (string, error)) *gin.Engine {
	t.Helper()

	s, err := schema.Parse([]byte(testSchemaYAML))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "api.db")
	client, err := database.Open(context.Background(), database.DefaultConfig("sqlite://"+path))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, database.ApplyMigrations(client, slog.Default()))

	gateway := llm.NewGateway(&scriptedLLM{script: script}, llm.GatewayConfig{
		MaxRetryElapsed: 20 * time.Millisecond,
	}, nil)
	t.Cleanup(gateway.Close)

	store := session.NewMemoryStore(time.Minute, time.Hour, nil)
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.Default()
	checker := sqlcheck.NewChecker(s)
	dialect := string(client.Engine())

	orch := orchestrator.New(orchestrator.Deps{
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

	return NewServer(orch, gateway, client, logger).Router()
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "body: %s", w.Body.String())
	return body
}

// countScript drives a specific-intent analyze to a COUNT(*) statement.
func countScript() []func(ctx context.Context, req llm.Request) (string, error) {
	return []func(ctx context.Context, req llm.Request) (string, error){
		reply("specific"),
		reply("1. Count rows of the sales table.\n2. Return the count."),
		reply("FEASIBLE"),
		reply("SELECT COUNT(*) AS n FROM sales"),
	}
}

func TestAnalyzeReturnsSQLKind(t *testing.T) {
	router := newTestRouter(t, countScript()...)

	w := doJSON(t, router, http.MethodPost, "/analyze", `{"utterance": "how many sales?"}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "sql", body["kind"])
	assert.NotEmpty(t, body["session_id"])
	assert.Equal(t, "SELECT COUNT(*) AS n FROM sales", body["sql"])
	assert.Empty(t, body["warnings"])
	assert.Len(t, body["plan"], 2)
}

func TestAnalyzeRejectsMissingUtterance(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/analyze", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "error", body["kind"])
	assert.Equal(t, "request", body["stage"])
}

func TestAnalyzeRejectsBlankUtterance(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/analyze", `{"utterance": "   "}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "utterance is required")
}

func TestAnalyzeRejectsMalformedJSON(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/analyze", `{"utterance": `)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyzePipelineFailureIsOK(t *testing.T) {
	router := newTestRouter(t,
		reply("specific"),
		reply("1. Join the sales table with the products table on product_id."),
	)

	w := doJSON(t, router, http.MethodPost, "/analyze", `{"utterance": "best category?"}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "error", body["kind"])
	assert.Equal(t, "plan", body["stage"])
	assert.Contains(t, body["message"], "products")
}

func TestAnalyzeDescriptionKind(t *testing.T) {
	router := newTestRouter(t,
		reply("exploratory_descriptive"),
		reply("One table of retail sales."),
	)

	w := doJSON(t, router, http.MethodPost, "/analyze", `{"utterance": "what is in here?"}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "description", body["kind"])
	assert.Equal(t, "One table of retail sales.", body["text"])
}

func TestAnalyzeSuggestionsKind(t *testing.T) {
	router := newTestRouter(t,
		reply("exploratory_analytical"),
		reply("- Which day sold best?\n- What is the average sale amount?\n"+
			"- Which product leads revenue?\n- How many sales lack amounts?\n- Do weekends differ?"),
	)

	w := doJSON(t, router, http.MethodPost, "/analyze", `{"utterance": "ideas?"}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "suggestions", body["kind"])
	assert.Len(t, body["suggestions"], 5)
}

func TestAnalyzeSurfacesWarnings(t *testing.T) {
	router := newTestRouter(t,
		reply("specific"),
		reply("1. Count the orders."),
		reply("FEASIBLE"),
		reply("SELECT COUNT(*) FROM orders"),
		reply("SELECT COUNT(*) FROM order_log"),
	)

	w := doJSON(t, router, http.MethodPost, "/analyze", `{"utterance": "how many orders?"}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "sql", body["kind"])
	require.Len(t, body["warnings"], 1)
	assert.Contains(t, body["warnings"], "unknown-table: order_log")
}

func TestExecuteRoundTrip(t *testing.T) {
	script := append(countScript(), reply("There are 4 sales in total."))
	router := newTestRouter(t, script...)

	analyze := decodeBody(t, doJSON(t, router, http.MethodPost, "/analyze",
		`{"utterance": "how many sales?"}`))
	require.Equal(t, "sql", analyze["kind"])
	payload, err := json.Marshal(map[string]string{
		"session_id":   analyze["session_id"].(string),
		"approved_sql": analyze["sql"].(string),
	})
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodPost, "/execute", string(payload))
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "result", body["kind"])
	assert.Equal(t, "There are 4 sales in total.", body["interpretation"])
	assert.EqualValues(t, 1, body["row_count"])
	assert.Equal(t, false, body["truncated"])
	require.Len(t, body["rows"], 1)
	row := body["rows"].([]any)[0].(map[string]any)
	assert.EqualValues(t, 4, row["n"])
}

func TestExecuteSessionMissingIs404(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/execute",
		`{"session_id": "nope", "approved_sql": "SELECT 1"}`)
	require.Equal(t, http.StatusNotFound, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "session_missing", body["kind"])
}

func TestExecuteEngineErrorKind(t *testing.T) {
	script := append(countScript(), reply("NONE"))
	router := newTestRouter(t, script...)

	analyze := decodeBody(t, doJSON(t, router, http.MethodPost, "/analyze",
		`{"utterance": "how many sales?"}`))
	require.Equal(t, "sql", analyze["kind"])
	payload, err := json.Marshal(map[string]string{
		"session_id":   analyze["session_id"].(string),
		"approved_sql": "SELECT nope FROM sales",
	})
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodPost, "/execute", string(payload))
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "exec_error", body["kind"])
	assert.NotEmpty(t, body["engine_error"])

	// The field is present and explicitly null when nothing passed validation.
	suggestion, present := body["debug_suggestion"]
	assert.True(t, present)
	assert.Nil(t, suggestion)
}

func TestExecuteRejectsBlankSQL(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/execute",
		`{"session_id": "abc", "approved_sql": "  "}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "approved_sql is required")
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "healthy", body["status"])
	db := body["database"].(map[string]any)
	assert.Equal(t, true, db["healthy"])
	assert.Equal(t, "sqlite", db["engine"])
}

func TestVersion(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/version", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version":"askql/`)
}

func TestHistoryRoundTrip(t *testing.T) {
	router := newTestRouter(t, countScript()...)

	analyze := decodeBody(t, doJSON(t, router, http.MethodPost, "/analyze",
		`{"utterance": "how many sales?"}`))
	require.Equal(t, "sql", analyze["kind"])
	sessionID := analyze["session_id"].(string)

	w := doJSON(t, router, http.MethodGet, "/history/"+sessionID, "")
	require.Equal(t, http.StatusOK, w.Code)

	var history HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Equal(t, sessionID, history.SessionID)
	require.NotEmpty(t, history.Turns)
	assert.Equal(t, "user", history.Turns[0].Role)
	assert.Contains(t, history.Turns[0].Content, "how many sales?")
}

func TestHistoryUnknownSessionIs404(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/history/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSecurityHeaders(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/version", "")
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.NotEmpty(t, w.Header().Get("Permissions-Policy"))
}
