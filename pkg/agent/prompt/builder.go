package prompt

import (
	"fmt"

	"github.com/askql/askql/pkg/llm"
	"github.com/askql/askql/pkg/models"
)

// Classify builds the closed-label intent classification request.
func Classify(utterance, dbContext string) llm.Request {
	user := FormatContextSection(dbContext) + "\n" + FormatQuestionSection(utterance)
	return llm.Request{
		System:   classifySystem,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: user}},
	}
}

// Plan builds the conceptual-plan request for a specific question.
func Plan(utterance, dbContext string) llm.Request {
	user := FormatContextSection(dbContext) + "\n" + FormatQuestionSection(utterance)
	return llm.Request{
		System:   planSystem,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: user}},
	}
}

// Insights builds the suggested-analyses request.
func Insights(utterance, dbContext string) llm.Request {
	user := FormatContextSection(dbContext) + "\n" + FormatQuestionSection(utterance)
	return llm.Request{
		System:   insightsSystem,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: user}},
	}
}

// Validate builds the plan feasibility review request.
func Validate(utterance string, plan models.Plan, dbContext string) llm.Request {
	user := FormatContextSection(dbContext) + "\n" +
		FormatQuestionSection(utterance) + "\n" +
		FormatPlanSection(plan)
	return llm.Request{
		System:   validateSystem,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: user}},
	}
}

// Synthesize builds the plan-to-SQL request. dialect names the SQL dialect
// of the store ("sqlite" or "postgres").
func Synthesize(plan models.Plan, dbContext, dialect string) llm.Request {
	user := FormatContextSection(dbContext) + "\n" + FormatPlanSection(plan)
	return llm.Request{
		System:   fmt.Sprintf(synthesizeSystem, dialect),
		Messages: []llm.Message{{Role: llm.RoleUser, Content: user}},
	}
}

// Refine builds the one-shot correction request after validation warnings.
func Refine(plan models.Plan, dbContext, dialect, priorSQL string, warnings []models.SQLWarning) llm.Request {
	user := FormatContextSection(dbContext) + "\n" +
		FormatPlanSection(plan) + "\n" +
		FormatSQLSection("Previous Attempt", priorSQL) + "\n" +
		FormatWarningsSection(warnings) + "\n" +
		refineTask
	return llm.Request{
		System:   fmt.Sprintf(synthesizeSystem, dialect),
		Messages: []llm.Message{{Role: llm.RoleUser, Content: user}},
	}
}

// Debug builds the repair request after an execution failure.
func Debug(utterance, failedSQL, engineError string, plan models.Plan, dbContext, dialect string) llm.Request {
	user := FormatContextSection(dbContext) + "\n" +
		FormatQuestionSection(utterance) + "\n" +
		FormatPlanSection(plan) + "\n" +
		FormatSQLSection("Failed Statement", failedSQL) + "\n" +
		FormatEngineErrorSection(engineError)
	return llm.Request{
		System:   fmt.Sprintf(debugSystem, dialect),
		Messages: []llm.Message{{Role: llm.RoleUser, Content: user}},
	}
}

// Interpret builds the result interpretation request.
func Interpret(utterance string, rs *models.ResultSet) llm.Request {
	user := FormatQuestionSection(utterance) + "\n" + FormatResultSection(rs)
	return llm.Request{
		System:   interpretSystem,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: user}},
	}
}

// Describe builds the dataset overview request.
func Describe(dbContext string) llm.Request {
	return llm.Request{
		System:   describeSystem,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: FormatContextSection(dbContext)}},
	}
}
