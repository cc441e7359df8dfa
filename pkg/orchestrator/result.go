package orchestrator

import "github.com/askql/askql/pkg/models"

// AnalyzeResult is the outcome of one analyze turn. Exactly one of the
// concrete types below is returned per call; callers branch with a type
// switch.
type AnalyzeResult interface {
	isAnalyzeResult()
}

// ExecuteResult is the outcome of one execute attempt.
type ExecuteResult interface {
	isExecuteResult()
}

// NeedsSQLApproval carries generated SQL awaiting the user's approval. The
// session lives until the first execute on SessionID or until expiry.
type NeedsSQLApproval struct {
	SessionID string
	SQL       string
	Warnings  []models.SQLWarning
	Plan      models.Plan
}

// Suggestions carries proposed analyses for an exploratory-analytical turn.
type Suggestions struct {
	Suggestions []string
}

// Description carries the dataset overview for an exploratory-descriptive
// turn.
type Description struct {
	Text string
}

// Failed reports an unrecoverable pipeline error with the stage that gave
// up. Reason is safe to show the user.
type Failed struct {
	Stage  string
	Reason string
}

// Success carries executed query results and their interpretation.
type Success struct {
	Result         *models.ResultSet
	Interpretation string
}

// ExecutionFailed reports an engine error for an approved statement.
// DebugSuggestion, when non-nil, is a corrected statement for the user's
// next attempt; it has not been executed.
type ExecutionFailed struct {
	EngineError     string
	DebugSuggestion *string
}

// SessionMissing reports an unknown, consumed, or expired session ID.
type SessionMissing struct{}

func (NeedsSQLApproval) isAnalyzeResult() {}
func (Suggestions) isAnalyzeResult()      {}
func (Description) isAnalyzeResult()      {}
func (Failed) isAnalyzeResult()           {}

func (Success) isExecuteResult()         {}
func (ExecutionFailed) isExecuteResult() {}
func (SessionMissing) isExecuteResult()  {}
func (Failed) isExecuteResult()          {}
