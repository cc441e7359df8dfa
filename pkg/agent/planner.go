package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/askql/askql/pkg/agent/prompt"
	"github.com/askql/askql/pkg/llm"
	"github.com/askql/askql/pkg/models"
)

const (
	maxPlanSteps    = 10
	maxInsights     = 7
	maxInsightWords = 30
)

var errEmptyPlan = errors.New("planner produced no usable steps")

// Planner turns a specific question into conceptual analysis steps, or an
// exploratory one into a list of suggested analyses. Both modes parse the
// model's answer line by line, tolerating whatever enumeration markers it
// chose to add.
type Planner struct {
	gateway *llm.Gateway
	logger  *slog.Logger
}

// NewPlanner creates a planner.
func NewPlanner(gateway *llm.Gateway, logger *slog.Logger) *Planner {
	return &Planner{gateway: gateway, logger: logger}
}

// Plan produces the conceptual steps for answering the utterance. Overlong
// answers are cut at ten steps; an empty answer fails the turn.
func (p *Planner) Plan(ctx context.Context, sessionID, utterance, dbContext string) (models.Plan, error) {
	reply, err := p.gateway.Ask(ctx, sessionID, prompt.Plan(utterance, dbContext))
	if err != nil {
		return models.Plan{}, models.NewStageError(models.StagePlan, err)
	}

	steps := parseListReply(reply)
	if len(steps) == 0 {
		return models.Plan{}, models.NewStageError(models.StagePlan, errEmptyPlan)
	}
	if len(steps) > maxPlanSteps {
		p.logger.Warn("planner exceeded step limit, keeping leading steps",
			"got", len(steps), "kept", maxPlanSteps)
		steps = steps[:maxPlanSteps]
	}
	return models.Plan{Steps: steps}, nil
}

// Insights produces suggested analytical questions. Items over the word
// limit are dropped and the list is cut at seven; an empty list fails the
// turn.
func (p *Planner) Insights(ctx context.Context, sessionID, utterance, dbContext string) ([]string, error) {
	reply, err := p.gateway.Ask(ctx, sessionID, prompt.Insights(utterance, dbContext))
	if err != nil {
		return nil, models.NewStageError(models.StagePlan, err)
	}

	var items []string
	for _, item := range parseListReply(reply) {
		if len(strings.Fields(item)) > maxInsightWords {
			p.logger.Warn("dropping overlong suggestion", "words", len(strings.Fields(item)))
			continue
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, models.NewStageError(models.StagePlan, errEmptyPlan)
	}
	if len(items) > maxInsights {
		items = items[:maxInsights]
	}
	return items, nil
}

// parseListReply extracts list items from a model answer, one per non-empty
// line, stripping leading enumeration markers ("1.", "2)", "-", "*").
func parseListReply(reply string) []string {
	var items []string
	for _, line := range strings.Split(reply, "\n") {
		item := stripEnumerationMarker(line)
		if item == "" {
			continue
		}
		items = append(items, item)
	}
	return items
}

func stripEnumerationMarker(line string) string {
	s := strings.TrimSpace(line)

	// Bullet markers.
	for _, marker := range []string{"- ", "* ", "• "} {
		if rest, ok := strings.CutPrefix(s, marker); ok {
			return strings.TrimSpace(rest)
		}
	}

	// Numeric markers: digits followed by '.', ')' or ':'.
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')' || s[i] == ':') {
		return strings.TrimSpace(s[i+1:])
	}

	return s
}
