package models

import (
	"fmt"
	"strings"
)

// Plan is an ordered list of conceptual analysis steps in prose.
// Steps reference table and column names from the database context and
// never contain SQL.
type Plan struct {
	Steps []string `json:"steps"`
}

// IsEmpty reports whether the plan has no usable steps.
func (p Plan) IsEmpty() bool {
	return len(p.Steps) == 0
}

// Text renders the plan as a numbered list, one step per line.
// This is the canonical form used in prompts and in transport responses.
func (p Plan) Text() string {
	var b strings.Builder
	for i, step := range p.Steps {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, step)
	}
	return b.String()
}

// VerdictKind is the plan validator's decision.
type VerdictKind string

const (
	VerdictFeasible   VerdictKind = "feasible"
	VerdictRevised    VerdictKind = "revised"
	VerdictInfeasible VerdictKind = "infeasible"
)

// Verdict is the plan validator's output. For feasible and revised verdicts
// Plan carries the plan to hand to SQL synthesis (the original or the revised
// one). For revised and infeasible verdicts Rationale explains why.
type Verdict struct {
	Kind      VerdictKind `json:"kind"`
	Plan      Plan        `json:"plan"`
	Rationale string      `json:"rationale,omitempty"`
}
