package api

import (
	"net/http"

	"github.com/askql/askql/pkg/models"
	"github.com/askql/askql/pkg/orchestrator"
)

// Response discriminator values. Every response body carries exactly one of
// these in its kind field.
const (
	KindSQL            = "sql"
	KindSuggestions    = "suggestions"
	KindDescription    = "description"
	KindResult         = "result"
	KindExecError      = "exec_error"
	KindSessionMissing = "session_missing"
	KindError          = "error"
)

// SQLResponse is the analyze outcome awaiting user approval.
type SQLResponse struct {
	Kind      string   `json:"kind"`
	SessionID string   `json:"session_id"`
	SQL       string   `json:"sql"`
	Warnings  []string `json:"warnings"`
	Plan      []string `json:"plan"`
}

// SuggestionsResponse carries proposed analyses for an exploratory question.
type SuggestionsResponse struct {
	Kind        string   `json:"kind"`
	Suggestions []string `json:"suggestions"`
}

// DescriptionResponse carries the dataset overview.
type DescriptionResponse struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// ResultResponse is a successful execution with its interpretation.
type ResultResponse struct {
	Kind           string       `json:"kind"`
	Columns        []string     `json:"columns"`
	Rows           []models.Row `json:"rows"`
	RowCount       int          `json:"row_count"`
	Truncated      bool         `json:"truncated"`
	Interpretation string       `json:"interpretation"`
}

// ExecErrorResponse reports an engine failure. DebugSuggestion is null when
// the debugger produced nothing that passed validation.
type ExecErrorResponse struct {
	Kind            string  `json:"kind"`
	EngineError     string  `json:"engine_error"`
	DebugSuggestion *string `json:"debug_suggestion"`
}

// SessionMissingResponse reports an unknown, expired, or already-consumed
// approval session.
type SessionMissingResponse struct {
	Kind string `json:"kind"`
}

// ErrorResponse reports a pipeline failure with the stage that gave up.
type ErrorResponse struct {
	Kind    string `json:"kind"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// HistoryResponse lists the remembered conversation turns of a session.
type HistoryResponse struct {
	SessionID string        `json:"session_id"`
	Turns     []HistoryTurn `json:"turns"`
}

type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// analyzeResponse maps an analyze result union onto HTTP status and body.
// Pipeline failures are ordinary outcomes and return 200.
func analyzeResponse(result orchestrator.AnalyzeResult) (int, any) {
	switch r := result.(type) {
	case orchestrator.NeedsSQLApproval:
		return http.StatusOK, SQLResponse{
			Kind:      KindSQL,
			SessionID: r.SessionID,
			SQL:       r.SQL,
			Warnings:  models.WarningStrings(r.Warnings),
			Plan:      r.Plan.Steps,
		}
	case orchestrator.Suggestions:
		return http.StatusOK, SuggestionsResponse{Kind: KindSuggestions, Suggestions: r.Suggestions}
	case orchestrator.Description:
		return http.StatusOK, DescriptionResponse{Kind: KindDescription, Text: r.Text}
	case orchestrator.Failed:
		return http.StatusOK, ErrorResponse{Kind: KindError, Stage: r.Stage, Message: r.Reason}
	default:
		return http.StatusInternalServerError, ErrorResponse{
			Kind: KindError, Stage: "internal", Message: "unmapped analyze result",
		}
	}
}

// executeResponse maps an execute result union onto HTTP status and body.
func executeResponse(result orchestrator.ExecuteResult) (int, any) {
	switch r := result.(type) {
	case orchestrator.Success:
		return http.StatusOK, ResultResponse{
			Kind:           KindResult,
			Columns:        r.Result.Columns,
			Rows:           r.Result.Rows,
			RowCount:       r.Result.RowCount,
			Truncated:      r.Result.Truncated,
			Interpretation: r.Interpretation,
		}
	case orchestrator.ExecutionFailed:
		return http.StatusOK, ExecErrorResponse{
			Kind:            KindExecError,
			EngineError:     r.EngineError,
			DebugSuggestion: r.DebugSuggestion,
		}
	case orchestrator.SessionMissing:
		return http.StatusNotFound, SessionMissingResponse{Kind: KindSessionMissing}
	case orchestrator.Failed:
		return http.StatusOK, ErrorResponse{Kind: KindError, Stage: r.Stage, Message: r.Reason}
	default:
		return http.StatusInternalServerError, ErrorResponse{
			Kind: KindError, Stage: "internal", Message: "unmapped execute result",
		}
	}
}
