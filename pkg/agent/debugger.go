package agent

import (
	"context"
	"log/slog"

	"github.com/askql/askql/pkg/agent/prompt"
	"github.com/askql/askql/pkg/llm"
	"github.com/askql/askql/pkg/models"
	"github.com/askql/askql/pkg/sqlcheck"
)

// noSuggestion is the token the model answers when it sees no viable fix.
const noSuggestion = "NONE"

// Debugger proposes a corrected statement after an execution failure. The
// suggestion is advisory text for the user's next attempt; it is never
// executed. A suggestion that fails the same lexical checks applied to
// synthesized SQL is withheld rather than surfaced.
type Debugger struct {
	gateway *llm.Gateway
	checker *sqlcheck.Checker
	dialect string
	logger  *slog.Logger
}

// NewDebugger creates a SQL debugger targeting the given dialect.
func NewDebugger(gateway *llm.Gateway, checker *sqlcheck.Checker, dialect string, logger *slog.Logger) *Debugger {
	return &Debugger{gateway: gateway, checker: checker, dialect: dialect, logger: logger}
}

// Suggest asks for a corrected statement. The second return is false when no
// suggestion could be produced, for any reason; execution failures are
// already non-fatal and a debugging failure must not escalate them.
func (d *Debugger) Suggest(ctx context.Context, utterance, failedSQL, engineError string, plan models.Plan, dbContext string) (string, bool) {
	reply, err := d.gateway.Ask(ctx, "", prompt.Debug(utterance, failedSQL, engineError, plan, dbContext, d.dialect))
	if err != nil {
		d.logger.Warn("debug suggestion call failed", "error", err)
		return "", false
	}
	if firstLine(reply) == noSuggestion {
		return "", false
	}

	sql, err := sqlcheck.SingleStatement(reply)
	if err != nil {
		d.logger.Warn("debug suggestion rejected", "error", err)
		return "", false
	}
	if warnings := d.checker.Check(sql); len(warnings) > 0 {
		d.logger.Warn("debug suggestion failed validation",
			"warnings", models.WarningStrings(warnings))
		return "", false
	}
	return sql, true
}
