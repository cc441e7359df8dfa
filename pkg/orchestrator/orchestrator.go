// Package orchestrator drives one user turn through the pipeline: context
// construction, intent classification, planning, validation, SQL synthesis,
// the human approval gate, and execution with debugging and interpretation.
// It owns the routing between stages and the mapping of stage failures onto
// response shapes; it never rewrites what a stage decided.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/askql/askql/pkg/agent"
	"github.com/askql/askql/pkg/database"
	"github.com/askql/askql/pkg/dbcontext"
	"github.com/askql/askql/pkg/llm"
	"github.com/askql/askql/pkg/models"
	"github.com/askql/askql/pkg/session"
)

// Deps bundles everything the orchestrator needs. All fields are required.
type Deps struct {
	Contexts    *dbcontext.Provider
	Classifier  *agent.Classifier
	Planner     *agent.Planner
	Validator   *agent.Validator
	Synthesizer *agent.Synthesizer
	Debugger    *agent.Debugger
	Interpreter *agent.Interpreter
	Describer   *agent.Describer
	Executor    *database.Executor
	Sessions    session.Store
	Gateway     *llm.Gateway
	Logger      *slog.Logger
}

// Orchestrator is re-entrant: any number of turns may be in flight. Within
// one turn the pipeline is strictly sequential.
type Orchestrator struct {
	deps   Deps
	logger *slog.Logger
}

// New creates an orchestrator over the given dependencies.
func New(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{deps: deps, logger: logger}
}

// Analyze runs the analysis half of a turn: from utterance to approved-SQL
// gate, suggestions, or description. priorSessionID, when non-empty, links
// this turn to an earlier one so conversation memory carries forward.
func (o *Orchestrator) Analyze(ctx context.Context, utterance, priorSessionID string) AnalyzeResult {
	dbCtx, err := o.deps.Contexts.Context(ctx)
	if err != nil {
		o.logger.Error("Context construction failed", "error", err)
		return Failed{Stage: models.StageContext, Reason: failureReason(models.StageContext)}
	}

	sessionID := session.NewID()
	if priorSessionID != "" {
		o.adoptPriorTurn(ctx, priorSessionID, sessionID)
	}

	intent := o.deps.Classifier.Classify(ctx, sessionID, utterance, dbCtx)
	o.logger.Info("Utterance classified",
		"label", intent.Label, "confidence", intent.Confidence, "source", intent.Source)

	switch intent.Label {
	case models.IntentExploratoryDescriptive:
		text, err := o.deps.Describer.Describe(ctx, sessionID, dbCtx)
		if err != nil {
			return o.failure("describe", err)
		}
		return Description{Text: text}

	case models.IntentExploratoryAnalytical:
		items, err := o.deps.Planner.Insights(ctx, sessionID, utterance, dbCtx)
		if err != nil {
			return o.failure("insights", err)
		}
		return Suggestions{Suggestions: items}

	default:
		return o.analyzeSpecific(ctx, sessionID, utterance, intent, dbCtx)
	}
}

// analyzeSpecific runs plan, validate, synthesize, and persists the approval
// session. The session is stored only after synthesis succeeds, so a failed
// turn leaves nothing behind.
func (o *Orchestrator) analyzeSpecific(ctx context.Context, sessionID, utterance string, intent models.Intent, dbCtx string) AnalyzeResult {
	plan, err := o.deps.Planner.Plan(ctx, sessionID, utterance, dbCtx)
	if err != nil {
		return o.failure("plan", err)
	}

	verdict, err := o.deps.Validator.Validate(ctx, utterance, plan, dbCtx)
	if err != nil {
		return o.failure("validate", err)
	}
	switch verdict.Kind {
	case models.VerdictInfeasible:
		o.logger.Info("Plan rejected as infeasible", "rationale", verdict.Rationale)
		return Failed{Stage: models.StagePlan, Reason: verdict.Rationale}
	case models.VerdictRevised:
		o.logger.Info("Plan revised before synthesis", "rationale", verdict.Rationale)
	}

	generated, err := o.deps.Synthesizer.Synthesize(ctx, sessionID, verdict.Plan, dbCtx)
	if err != nil {
		return o.failure("synthesize", err)
	}

	sess := &session.Session{
		ID:        sessionID,
		Utterance: utterance,
		Intent:    intent,
		Plan:      generated.Plan,
		SQL:       generated.SQL,
		Warnings:  generated.Warnings,
	}
	if err := o.deps.Sessions.Put(ctx, sess); err != nil {
		o.logger.Error("Session persist failed", "session_id", sessionID, "error", err)
		return Failed{Stage: models.StageSession, Reason: failureReason(models.StageSession)}
	}

	o.logger.Info("SQL awaiting approval",
		"session_id", sessionID, "warnings", len(generated.Warnings))
	return NeedsSQLApproval{
		SessionID: sessionID,
		SQL:       generated.SQL,
		Warnings:  generated.Warnings,
		Plan:      generated.Plan,
	}
}

// Execute runs the approval half of a turn: consume the session, execute the
// approved statement, and interpret or debug the outcome.
func (o *Orchestrator) Execute(ctx context.Context, sessionID, approvedSQL string) ExecuteResult {
	sess, err := o.deps.Sessions.Take(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		o.logger.Info("Execute on missing session", "session_id", sessionID)
		return SessionMissing{}
	}
	if err != nil {
		o.logger.Error("Session lookup failed", "session_id", sessionID, "error", err)
		return Failed{Stage: models.StageSession, Reason: failureReason(models.StageSession)}
	}

	// The session is consumed at this point: concurrent or repeated execute
	// calls on the same ID observe SessionMissing no matter how this attempt
	// ends.
	rs, err := o.deps.Executor.Run(ctx, approvedSQL)
	if err != nil {
		return o.executionFailed(ctx, sess, approvedSQL, err)
	}

	interpretation, err := o.deps.Interpreter.Interpret(ctx, sess.ID, sess.Utterance, rs)
	if err != nil {
		return o.failure("interpret", err)
	}

	o.logger.Info("Turn completed",
		"session_id", sessionID, "rows", rs.RowCount, "truncated", rs.Truncated)
	return Success{Result: rs, Interpretation: interpretation}
}

// executionFailed maps an engine error to ExecutionFailed, attaching a debug
// suggestion when one can be produced. Debugging is best-effort: a missing
// context or failed suggestion still yields the engine error.
func (o *Orchestrator) executionFailed(ctx context.Context, sess *session.Session, approvedSQL string, execErr error) ExecuteResult {
	var engineErr *database.EngineError
	if !errors.As(execErr, &engineErr) {
		o.logger.Error("Executor failed without engine error", "error", execErr)
		return Failed{Stage: models.StageExec, Reason: failureReason(models.StageExec)}
	}

	o.logger.Info("Approved statement failed",
		"session_id", sess.ID, "code", engineErr.Code, "error", engineErr.Message)

	result := ExecutionFailed{EngineError: engineErr.Error()}
	dbCtx, err := o.deps.Contexts.Context(ctx)
	if err != nil {
		o.logger.Warn("Context for debugging unavailable", "error", err)
		return result
	}
	if suggestion, ok := o.deps.Debugger.Suggest(ctx, sess.Utterance, approvedSQL, engineErr.Error(), sess.Plan, dbCtx); ok {
		result.DebugSuggestion = &suggestion
	}
	return result
}

// adoptPriorTurn carries conversation memory forward to the new turn and
// retires any unconsumed approval session from the prior one: a re-analyzed
// turn replaces its predecessor rather than accumulating beside it.
func (o *Orchestrator) adoptPriorTurn(ctx context.Context, priorID, newID string) {
	o.deps.Gateway.AdoptSession(priorID, newID)
	if _, err := o.deps.Sessions.Take(ctx, priorID); err == nil {
		o.logger.Info("Superseded unconsumed approval session", "session_id", priorID)
	}
}

// failure maps a stage error onto the Failed shape. Rationale text shown to
// users comes only from verdicts and suggestions; everything else gets a
// fixed per-stage message, with the underlying error kept to the logs.
func (o *Orchestrator) failure(op string, err error) Failed {
	stage := failureStage(err)
	o.logger.Error("Pipeline stage failed", "op", op, "stage", stage, "error", err)
	return Failed{Stage: stage, Reason: failureReason(stage)}
}

// failureStage resolves the stage label for a failure. Gateway errors keep
// their transport-level code; everything else reports the pipeline stage
// that wrapped it.
func failureStage(err error) string {
	if code := llm.ErrorCode(err); code != "internal" {
		return code
	}
	var stageErr *models.StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return "internal"
}

var failureReasons = map[string]string{
	models.StageContext:   "could not build the database context",
	models.StagePlan:      "could not produce a usable analysis plan",
	models.StageSQLSynth:  "could not generate SQL for the plan",
	models.StageExec:      "query execution failed",
	models.StageInterpret: "could not interpret the query results",
	models.StageDescribe:  "could not describe the dataset",
	models.StageSession:   "the approval session store is unavailable",
	"llm_transport":       "the language model request failed",
	"llm_timeout":         "the language model request timed out",
	"llm_quota":           "the language model quota is exhausted",
	"llm_empty":           "the language model returned no usable output",
}

func failureReason(stage string) string {
	if reason, ok := failureReasons[stage]; ok {
		return reason
	}
	return "internal error"
}
