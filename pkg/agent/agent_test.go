package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/askql/askql/pkg/llm"
	"github.com/askql/askql/pkg/schema"
	"github.com/askql/askql/pkg/sqlcheck"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const stageSchemaYAML = `
tables:
  - name: products
    columns:
      - name: product_id
        type: INTEGER
      - name: category
        type: TEXT
  - name: sales
    columns:
      - name: sale_id
        type: INTEGER
      - name: product_id
        type: INTEGER
        references: products.product_id
      - name: amount
        type: NUMERIC(10,2)
        nullable: true
      - name: sale_date
        type: TEXT
`

const salesOnlySchemaYAML = `
tables:
  - name: sales
    columns:
      - name: sale_id
        type: INTEGER
      - name: product_id
        type: INTEGER
      - name: amount
        type: NUMERIC(10,2)
      - name: sale_date
        type: TEXT
`

func stageSchema(t *testing.T, yamlText string) *schema.Schema {
	t.Helper()
	s, err := schema.Parse([]byte(yamlText))
	require.NoError(t, err)
	return s
}

func stageChecker(t *testing.T, yamlText string) *sqlcheck.Checker {
	t.Helper()
	return sqlcheck.NewChecker(stageSchema(t, yamlText))
}

// scriptedLLM plays back canned completions in call order, recording every
// request.
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

func (s *scriptedLLM) request(i int) llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[i]
}

func reply(text string) func(ctx context.Context, req llm.Request) (string, error) {
	return func(context.Context, llm.Request) (string, error) { return text, nil }
}

func fail(err error) func(ctx context.Context, req llm.Request) (string, error) {
	return func(context.Context, llm.Request) (string, error) { return "", err }
}

// newStageGateway wraps a scripted provider in a real gateway with a tiny
// retry budget so failure paths resolve quickly.
func newStageGateway(t *testing.T, provider llm.Completer) *llm.Gateway {
	t.Helper()
	g := llm.NewGateway(provider, llm.GatewayConfig{
		MaxRetryElapsed: 20 * time.Millisecond,
	}, nil)
	t.Cleanup(g.Close)
	return g
}
