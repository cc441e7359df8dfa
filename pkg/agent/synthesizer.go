package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/askql/askql/pkg/agent/prompt"
	"github.com/askql/askql/pkg/llm"
	"github.com/askql/askql/pkg/models"
	"github.com/askql/askql/pkg/sqlcheck"
)

// Synthesizer turns a validated plan into one SELECT statement. Every
// candidate is checked lexically against the schema; hard warnings earn
// exactly one refinement call, and whatever warnings survive ride along with
// the SQL for the user to judge. A write keyword is the one finding that
// fails the stage outright.
type Synthesizer struct {
	gateway *llm.Gateway
	checker *sqlcheck.Checker
	dialect string
	logger  *slog.Logger
}

// NewSynthesizer creates a SQL synthesizer targeting the given dialect.
func NewSynthesizer(gateway *llm.Gateway, checker *sqlcheck.Checker, dialect string, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{gateway: gateway, checker: checker, dialect: dialect, logger: logger}
}

// Synthesize generates SQL for the plan. The returned text is exactly what
// the user will approve; it is never rewritten after this function returns.
func (s *Synthesizer) Synthesize(ctx context.Context, sessionID string, plan models.Plan, dbContext string) (models.GeneratedSQL, error) {
	reply, err := s.gateway.Ask(ctx, sessionID, prompt.Synthesize(plan, dbContext, s.dialect))
	if err != nil {
		return models.GeneratedSQL{}, models.NewStageError(models.StageSQLSynth, err)
	}

	sql, warnings, err := s.accept(reply)
	if err != nil {
		return models.GeneratedSQL{}, models.NewStageError(models.StageSQLSynth, err)
	}

	if models.HasHardWarning(warnings) {
		sql, warnings = s.refine(ctx, plan, dbContext, sql, warnings)
	}

	return models.GeneratedSQL{SQL: sql, Warnings: warnings, Plan: plan}, nil
}

// accept parses and checks one candidate statement. Multi-statement answers
// and write keywords are rejected; everything else passes with warnings.
func (s *Synthesizer) accept(reply string) (string, []models.SQLWarning, error) {
	sql, err := sqlcheck.SingleStatement(reply)
	if err != nil {
		return "", nil, err
	}
	if kw, found := sqlcheck.ForbiddenKeyword(sql); found {
		return "", nil, fmt.Errorf("generated statement contains write keyword %s", kw)
	}
	return sql, s.checker.Check(sql), nil
}

// refine performs the single correction pass for hard warnings. Any failure
// keeps the original statement: one bad attempt must not cost the user a
// reviewable (if warned) one.
func (s *Synthesizer) refine(ctx context.Context, plan models.Plan, dbContext, sql string, warnings []models.SQLWarning) (string, []models.SQLWarning) {
	reply, err := s.gateway.Ask(ctx, "", prompt.Refine(plan, dbContext, s.dialect, sql, warnings))
	if err != nil {
		s.logger.Warn("refinement call failed, keeping original statement", "error", err)
		return sql, warnings
	}

	refined, refinedWarnings, err := s.accept(reply)
	if err != nil {
		s.logger.Warn("refined statement rejected, keeping original", "error", err)
		return sql, warnings
	}

	if models.HasHardWarning(refinedWarnings) {
		s.logger.Warn("hard warnings persist after refinement",
			"warnings", models.WarningStrings(refinedWarnings))
	}
	return refined, refinedWarnings
}
