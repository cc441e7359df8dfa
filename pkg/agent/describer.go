package agent

import (
	"context"
	"log/slog"

	"github.com/askql/askql/pkg/agent/prompt"
	"github.com/askql/askql/pkg/llm"
	"github.com/askql/askql/pkg/models"
)

// Describer answers exploratory questions about what the dataset contains.
// It works from the rendered context alone and issues no SQL.
type Describer struct {
	gateway *llm.Gateway
	logger  *slog.Logger
}

// NewDescriber creates a dataset describer.
func NewDescriber(gateway *llm.Gateway, logger *slog.Logger) *Describer {
	return &Describer{gateway: gateway, logger: logger}
}

// Describe produces the dataset overview.
func (d *Describer) Describe(ctx context.Context, sessionID, dbContext string) (string, error) {
	reply, err := d.gateway.Ask(ctx, sessionID, prompt.Describe(dbContext))
	if err != nil {
		return "", models.NewStageError(models.StageDescribe, err)
	}
	return reply, nil
}
