package api

// AnalyzeRequest is the body for POST /analyze. SessionID optionally binds
// the turn to a prior one for conversational context.
type AnalyzeRequest struct {
	Utterance string `json:"utterance" binding:"required"`
	SessionID string `json:"session_id"`
}

// ExecuteRequest is the body for POST /execute. ApprovedSQL is the statement
// as approved, possibly edited by the user.
type ExecuteRequest struct {
	SessionID   string `json:"session_id" binding:"required"`
	ApprovedSQL string `json:"approved_sql" binding:"required"`
}
