package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/askql/askql/pkg/agent/prompt"
	"github.com/askql/askql/pkg/llm"
	"github.com/askql/askql/pkg/models"
)

// interpretMaxWords caps the interpretation length. The prompt asks for it;
// this enforces it when the model does not listen.
const interpretMaxWords = 500

// Interpreter turns query results back into prose answering the original
// utterance.
type Interpreter struct {
	gateway *llm.Gateway
	logger  *slog.Logger
}

// NewInterpreter creates a result interpreter.
func NewInterpreter(gateway *llm.Gateway, logger *slog.Logger) *Interpreter {
	return &Interpreter{gateway: gateway, logger: logger}
}

// Interpret produces the answer paragraph for the executed query's results.
// sessionID opts into conversation memory so the answer can acknowledge
// earlier turns.
func (i *Interpreter) Interpret(ctx context.Context, sessionID, utterance string, rs *models.ResultSet) (string, error) {
	reply, err := i.gateway.Ask(ctx, sessionID, prompt.Interpret(utterance, rs))
	if err != nil {
		return "", models.NewStageError(models.StageInterpret, err)
	}

	words := strings.Fields(reply)
	if len(words) > interpretMaxWords {
		i.logger.Warn("interpretation exceeded word cap, truncating",
			"words", len(words))
		reply = strings.Join(words[:interpretMaxWords], " ")
	}
	return reply, nil
}
