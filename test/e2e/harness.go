// Package e2e boots the whole analysis service behind a real HTTP listener
// and drives the acceptance scenarios with a scripted model.
package e2e

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/askql/askql/pkg/agent"
	"github.com/askql/askql/pkg/api"
	"github.com/askql/askql/pkg/database"
	"github.com/askql/askql/pkg/dbcontext"
	"github.com/askql/askql/pkg/llm"
	"github.com/askql/askql/pkg/orchestrator"
	"github.com/askql/askql/pkg/schema"
	"github.com/askql/askql/pkg/session"
	"github.com/askql/askql/pkg/sqlcheck"
	"github.com/askql/askql/test/util"
)

// DefaultSchemaYAML mirrors the demo migrations: one sales table with four
// seeded rows, two of them on 2025-04-11.
const DefaultSchemaYAML = `
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

// TestApp boots a complete askql instance for end-to-end testing.
type TestApp struct {
	Client   *database.Client
	Schema   *schema.Schema
	LLM      *ScriptedLLM
	Gateway  *llm.Gateway
	Sessions session.Store
	BaseURL  string

	httpClient *http.Client
	t          *testing.T
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	llm        *ScriptedLLM
	schemaYAML string
	client     *database.Client
	ttl        time.Duration
	rowCap     int
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithLLM sets a pre-scripted model.
func WithLLM(s *ScriptedLLM) TestAppOption {
	return func(c *testAppConfig) { c.llm = s }
}

// WithSchemaYAML replaces the default schema description.
func WithSchemaYAML(yaml string) TestAppOption {
	return func(c *testAppConfig) { c.schemaYAML = yaml }
}

// WithStore injects a pre-built store client, skipping the default SQLite
// setup. Used to run the scenarios against PostgreSQL.
func WithStore(client *database.Client) TestAppOption {
	return func(c *testAppConfig) { c.client = client }
}

// WithSessionTTL shortens the approval-session expiry.
func WithSessionTTL(ttl time.Duration) TestAppOption {
	return func(c *testAppConfig) { c.ttl = ttl }
}

// WithRowCap lowers the result row cap.
func WithRowCap(n int) TestAppOption {
	return func(c *testAppConfig) { c.rowCap = n }
}

// NewTestApp boots the full pipeline behind an HTTP listener on a random
// port. Shutdown is registered via t.Cleanup.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{
		schemaYAML: DefaultSchemaYAML,
		ttl:        15 * time.Minute,
		rowCap:     100,
	}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.llm == nil {
		tc.llm = NewScriptedLLM()
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// 1. Store with the demo dataset.
	client := tc.client
	if client == nil {
		client = util.NewSQLiteStore(t)
	}

	// 2. Schema description.
	sch, err := schema.Parse([]byte(tc.schemaYAML))
	require.NoError(t, err)

	// 3. Scripted model behind the real gateway. The short retry budget
	// keeps transport-failure scenarios fast.
	gateway := llm.NewGateway(tc.llm, llm.GatewayConfig{
		MaxRetryElapsed: 20 * time.Millisecond,
	}, logger)

	// 4. Approval sessions.
	sessions := session.NewMemoryStore(tc.ttl, time.Minute, logger)

	// 5. Pipeline stages and orchestrator.
	checker := sqlcheck.NewChecker(sch)
	dialect := string(client.Engine())
	orch := orchestrator.New(orchestrator.Deps{
		Contexts:    dbcontext.NewProvider(sch, client, dbcontext.Config{}, logger),
		Classifier:  agent.NewClassifier(gateway, sch, logger),
		Planner:     agent.NewPlanner(gateway, logger),
		Validator:   agent.NewValidator(gateway, sch, logger),
		Synthesizer: agent.NewSynthesizer(gateway, checker, dialect, logger),
		Debugger:    agent.NewDebugger(gateway, checker, dialect, logger),
		Interpreter: agent.NewInterpreter(gateway, logger),
		Describer:   agent.NewDescriber(gateway, logger),
		Executor:    database.NewExecutor(client, 5*time.Second, tc.rowCap, logger),
		Sessions:    sessions,
		Gateway:     gateway,
		Logger:      logger,
	})

	// 6. HTTP server on a random port.
	server := api.NewServer(orch, gateway, client, logger)
	httpServer := &http.Server{Handler: server.Router()}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = httpServer.Serve(ln) }()

	httpClient := &http.Client{Transport: &http.Transport{}}

	// Cleanup in reverse-creation order.
	t.Cleanup(func() {
		httpClient.CloseIdleConnections()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		_ = sessions.Close()
		gateway.Close()
	})

	return &TestApp{
		Client:     client,
		Schema:     sch,
		LLM:        tc.llm,
		Gateway:    gateway,
		Sessions:   sessions,
		BaseURL:    "http://" + ln.Addr().String(),
		httpClient: httpClient,
		t:          t,
	}
}
