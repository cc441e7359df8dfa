package models

import "fmt"

// Pipeline stage labels. They appear in failure payloads so clients can tell
// which part of the turn gave up.
const (
	StageContext   = "context"
	StageIntent    = "intent"
	StagePlan      = "plan"
	StageSQLSynth  = "sql_synth"
	StageExec      = "exec"
	StageInterpret = "interpret"
	StageDescribe  = "describe"
	StageSession   = "session"
)

// StageError wraps a failure with the pipeline stage that produced it. The
// orchestrator routes these to the error response shape without rewriting
// their semantics.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with its originating stage.
func NewStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
