// Package llm wraps the language-model providers behind a single gateway
// that owns retries, timeouts, concurrency limits, and optional per-session
// conversation memory. Everything above this package talks to the model
// through the Gateway and never sees provider SDK types.
package llm

import (
	"context"
	"errors"
	"strings"
)

// Role identifies who authored a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a model conversation.
type Message struct {
	Role    Role
	Content string
}

// Request is a single completion request. The system prompt travels
// separately from the turn list because both provider APIs treat it that
// way.
type Request struct {
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Completer is the provider-facing completion surface. Implementations
// classify their failures into the package sentinel errors.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Sentinel errors classifying completion failures. The gateway retries
// transport and quota failures; timeouts and empty completions surface
// immediately.
var (
	ErrTransport = errors.New("llm request failed in transport")
	ErrTimeout   = errors.New("llm request timed out")
	ErrQuota     = errors.New("llm quota or rate limit exhausted")
	ErrEmpty     = errors.New("llm returned an empty completion")
)

// ErrorCode maps a gateway error onto its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "llm_timeout"
	case errors.Is(err, ErrQuota):
		return "llm_quota"
	case errors.Is(err, ErrEmpty):
		return "llm_empty"
	case errors.Is(err, ErrTransport):
		return "llm_transport"
	default:
		return "internal"
	}
}

// classifyCtxErr folds a context error into the sentinel taxonomy.
func classifyCtxErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

// StripFences removes a markdown code fence wrapping the whole payload,
// including any language tag on the opening fence. Content that is not
// fenced is only whitespace-trimmed. Models wrap SQL and JSON this way no
// matter how firmly the prompt says not to.
func StripFences(s string) string {
	t := strings.TrimSpace(s)
	if len(t) < 6 || !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") {
		return t
	}
	body := t[3 : len(t)-3]
	if i := strings.IndexByte(body, '\n'); i >= 0 && isFenceTag(body[:i]) {
		body = body[i+1:]
	}
	return strings.TrimSpace(body)
}

// isFenceTag reports whether the first line of a fenced block is a language
// tag ("sql", "json", ...) rather than content.
func isFenceTag(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}
	if len(line) > 12 {
		return false
	}
	for _, r := range line {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
