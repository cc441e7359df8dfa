package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/askql/askql/pkg/agent/prompt"
	"github.com/askql/askql/pkg/llm"
	"github.com/askql/askql/pkg/models"
	"github.com/askql/askql/pkg/schema"
)

// nearMatchDistance is the maximum edit distance at which a misnamed
// identifier is silently correctable. Two keeps "amnt" close to "amount"
// while leaving "products" far from everything in a single-table schema.
const nearMatchDistance = 2

// Validator gates plans before SQL synthesis. Identifier checking is
// deterministic and runs first: any table or column a plan names that the
// context does not contain makes the plan infeasible, unless a near-match
// exists, in which case the substitution is applied and the plan proceeds as
// revised. Only plans that pass the gate reach the LLM feasibility review.
type Validator struct {
	gateway *llm.Gateway
	schema  *schema.Schema
	logger  *slog.Logger
}

// NewValidator creates a plan validator.
func NewValidator(gateway *llm.Gateway, s *schema.Schema, logger *slog.Logger) *Validator {
	return &Validator{gateway: gateway, schema: s, logger: logger}
}

// Validate reviews the plan against the rendered context and returns the
// verdict. Feasible and revised verdicts carry the plan to synthesize from.
func (v *Validator) Validate(ctx context.Context, utterance string, plan models.Plan, dbContext string) (models.Verdict, error) {
	gated, substitutions, unknown := v.gate(plan)
	if len(unknown) > 0 {
		return models.Verdict{
			Kind:      models.VerdictInfeasible,
			Rationale: unknownIdentifierRationale(unknown),
		}, nil
	}
	if len(substitutions) > 0 {
		// The plan was only feasible after correction; no need to ask the
		// model to re-review the corrected names it did not write.
		return models.Verdict{
			Kind:      models.VerdictRevised,
			Plan:      gated,
			Rationale: strings.Join(substitutions, "; "),
		}, nil
	}

	reply, err := v.gateway.Ask(ctx, "", prompt.Validate(utterance, plan, dbContext))
	if err != nil {
		return models.Verdict{}, models.NewStageError(models.StagePlan, err)
	}
	return v.parseVerdict(reply, plan), nil
}

// parseVerdict reads the model's FEASIBLE / REVISED / INFEASIBLE answer. An
// answer outside the protocol is treated as feasible so a chatty model
// cannot fail a plan the deterministic gate already accepted.
func (v *Validator) parseVerdict(reply string, plan models.Plan) models.Verdict {
	lines := strings.Split(strings.TrimSpace(reply), "\n")
	head := strings.TrimSpace(lines[0])
	upper := strings.ToUpper(head)

	switch {
	case strings.HasPrefix(upper, "FEASIBLE"):
		return models.Verdict{Kind: models.VerdictFeasible, Plan: plan}

	case strings.HasPrefix(upper, "INFEASIBLE"):
		return models.Verdict{
			Kind:      models.VerdictInfeasible,
			Rationale: verdictReason(head),
		}

	case strings.HasPrefix(upper, "REVISED"):
		revised := models.Plan{Steps: parseListReply(strings.Join(lines[1:], "\n"))}
		if revised.IsEmpty() {
			v.logger.Warn("revised verdict carried no plan, keeping original")
			return models.Verdict{Kind: models.VerdictFeasible, Plan: plan}
		}
		return v.reviewRevision(revised, verdictReason(head))

	default:
		v.logger.Warn("plan verdict not parseable, treating as feasible",
			"reply", firstLine(reply))
		return models.Verdict{Kind: models.VerdictFeasible, Plan: plan}
	}
}

// reviewRevision re-runs the identifier gate over a model-revised plan. The
// model's rewrite gets no more trust than the original.
func (v *Validator) reviewRevision(revised models.Plan, rationale string) models.Verdict {
	gated, substitutions, unknown := v.gate(revised)
	if len(unknown) > 0 {
		return models.Verdict{
			Kind:      models.VerdictInfeasible,
			Rationale: unknownIdentifierRationale(unknown),
		}
	}
	if len(substitutions) > 0 {
		rationale = rationale + "; " + strings.Join(substitutions, "; ")
	}
	return models.Verdict{
		Kind:      models.VerdictRevised,
		Plan:      gated,
		Rationale: rationale,
	}
}

// verdictReason extracts the text after the "REVISED:"/"INFEASIBLE:" marker.
func verdictReason(head string) string {
	if _, after, ok := strings.Cut(head, ":"); ok {
		if reason := strings.TrimSpace(after); reason != "" {
			return reason
		}
	}
	return "the plan cannot be answered from the available tables"
}

func unknownIdentifierRationale(unknown []string) string {
	return "plan references identifiers not present in the database context: " +
		strings.Join(unknown, ", ")
}

// gate checks every identifier the plan claims against the schema. It
// returns the plan with near-match substitutions applied to every step, a
// description of each substitution, and the identifiers that matched
// nothing.
func (v *Validator) gate(plan models.Plan) (models.Plan, []string, []string) {
	type substitution struct{ from, to string }
	var subs []substitution
	var described, unknown []string
	resolved := map[string]bool{}
	unknownSet := map[string]bool{}

	for _, step := range plan.Steps {
		for _, claim := range claimedIdentifiers(step) {
			lower := strings.ToLower(claim.name)
			if resolved[lower] {
				continue
			}
			resolved[lower] = true

			if v.knownIdentifier(lower, claim.kind) {
				continue
			}
			// A qualified name whose table part is already reported adds
			// nothing to the rationale.
			if t, _, ok := strings.Cut(lower, "."); ok && unknownSet[t] {
				continue
			}
			if match, ok := v.nearestIdentifier(lower, claim.kind); ok {
				subs = append(subs, substitution{from: claim.name, to: match})
				described = append(described,
					fmt.Sprintf("replaced %q with %q", claim.name, match))
				continue
			}
			unknownSet[lower] = true
			unknown = append(unknown, claim.name)
		}
	}

	if len(subs) == 0 {
		return plan, described, unknown
	}
	steps := make([]string, len(plan.Steps))
	copy(steps, plan.Steps)
	for i := range steps {
		for _, s := range subs {
			steps[i] = replaceWord(steps[i], s.from, s.to)
		}
	}
	return models.Plan{Steps: steps}, described, unknown
}

// identifierKind scopes what a claimed name is checked against.
type identifierKind int

const (
	claimAny identifierKind = iota
	claimTable
	claimColumn
)

type claimedIdentifier struct {
	name string
	kind identifierKind
}

// planStopwords are words that sit next to "table"/"column" in ordinary
// prose without naming anything: function words ("the sales table with")
// and the modifiers plans use for derived relations ("the resulting
// table"). They are never identifier claims.
var planStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "this": true, "that": true,
	"these": true, "those": true, "each": true, "every": true, "all": true,
	"any": true, "both": true, "one": true, "same": true, "other": true,
	"and": true, "or": true, "of": true, "on": true, "in": true, "to": true,
	"by": true, "for": true, "with": true, "from": true, "as": true,
	"at": true, "into": true, "per": true, "over": true, "using": true,
	"above": true, "below": true, "between": true, "within": true,
	"resulting": true, "combined": true, "joined": true, "merged": true,
	"aggregated": true, "filtered": true, "grouped": true, "derived": true,
	"intermediate": true, "temporary": true, "previous": true, "final": true,
	"original": true, "entire": true, "whole": true, "full": true,
	"single": true, "first": true, "second": true, "relevant": true,
	"corresponding": true, "given": true, "available": true, "new": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"has": true, "have": true, "had": true, "contains": true, "holds": true,
	"stores": true, "shows": true, "lists": true, "records": true,
	"represents": true, "equals": true, "matches": true, "named": true,
	"called": true, "where": true, "which": true, "whose": true,
	"when": true, "then": true, "also": true, "only": true, "not": true,
	"value": true, "values": true, "entry": true, "entries": true,
	"row": true, "rows": true, "data": true,
}

// claimedIdentifiers extracts the table and column names one plan step
// commits to: words adjacent to "table"/"column", backtick-quoted names, and
// qualified table.column references. Ordinary prose words are not claims.
func claimedIdentifiers(step string) []claimedIdentifier {
	var claims []claimedIdentifier

	for _, quoted := range backtickSpans(step) {
		claims = append(claims, claimedIdentifier{name: quoted, kind: claimAny})
	}

	words := strings.Fields(step)
	for i, raw := range words {
		word := trimWordPunct(raw)
		if word == "" || strings.HasPrefix(raw, "`") {
			continue
		}

		if t, c, ok := strings.Cut(word, "."); ok && isQualifiedPart(t) && isQualifiedPart(c) {
			claims = append(claims,
				claimedIdentifier{name: t, kind: claimTable},
				claimedIdentifier{name: word, kind: claimColumn})
			continue
		}
		if !isIdentifierWord(word) || planStopwords[strings.ToLower(word)] {
			continue
		}

		switch {
		case neighborIs(words, i, "table", "tables"):
			claims = append(claims, claimedIdentifier{name: word, kind: claimTable})
		case neighborIs(words, i, "column", "columns"):
			claims = append(claims, claimedIdentifier{name: word, kind: claimColumn})
		}
	}

	return claims
}

// knownIdentifier reports whether the lowercased name exists in the schema
// under the claimed kind. Qualified names check the column on the named
// table.
func (v *Validator) knownIdentifier(lower string, kind identifierKind) bool {
	if t, c, ok := strings.Cut(lower, "."); ok {
		tbl, found := v.schema.Table(t)
		if !found {
			return false
		}
		_, found = tbl.Column(c)
		return found
	}

	switch kind {
	case claimTable:
		_, ok := v.schema.Table(lower)
		return ok
	case claimColumn:
		return v.schema.HasColumnNamed(lower)
	default:
		if _, ok := v.schema.Table(lower); ok {
			return true
		}
		return v.schema.HasColumnNamed(lower)
	}
}

// nearestIdentifier finds a schema name within nearMatchDistance of the
// claimed one. Candidates are scoped by the claimed kind; ties go to the
// first candidate in schema order.
func (v *Validator) nearestIdentifier(lower string, kind identifierKind) (string, bool) {
	if t, c, ok := strings.Cut(lower, "."); ok {
		tbl, found := v.schema.Table(t)
		if !found {
			return "", false
		}
		if match, ok := nearest(c, columnNames(tbl)); ok {
			return tbl.Physical + "." + match, true
		}
		return "", false
	}

	var candidates []string
	if kind == claimTable || kind == claimAny {
		candidates = append(candidates, v.schema.PhysicalNames()...)
	}
	if kind == claimColumn || kind == claimAny {
		for _, name := range v.schema.PhysicalNames() {
			tbl, _ := v.schema.Table(name)
			candidates = append(candidates, columnNames(tbl)...)
		}
	}
	return nearest(lower, candidates)
}

func nearest(name string, candidates []string) (string, bool) {
	best, bestDist := "", nearMatchDistance+1
	for _, candidate := range candidates {
		if d := levenshtein.Distance(name, strings.ToLower(candidate), nil); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best, bestDist <= nearMatchDistance
}

func columnNames(t *schema.Table) []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

// replaceWord rewrites one identifier in a step, matching on word
// boundaries so "amnt" does not touch "amnt_total".
func replaceWord(step, from, to string) string {
	var sb strings.Builder
	rest := step
	for {
		idx := strings.Index(strings.ToLower(rest), strings.ToLower(from))
		if idx < 0 {
			sb.WriteString(rest)
			return sb.String()
		}
		before, after := rest[:idx], rest[idx+len(from):]
		if boundedWord(before, after) {
			sb.WriteString(before)
			sb.WriteString(to)
		} else {
			sb.WriteString(rest[:idx+len(from)])
		}
		rest = after
	}
}

func boundedWord(before, after string) bool {
	if len(before) > 0 && isIdentifierByte(before[len(before)-1]) {
		return false
	}
	if len(after) > 0 && isIdentifierByte(after[0]) {
		return false
	}
	return true
}

func isIdentifierByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_'
}

func isIdentifierWord(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentifierByte(s[i]) {
			return false
		}
	}
	return true
}

// isQualifiedPart accepts either side of a table.column reference. The
// two-letter minimum keeps prose like "e.g" and numbers like "2.5" from
// reading as identifiers.
func isQualifiedPart(s string) bool {
	if len(s) < 2 || !isIdentifierWord(s) {
		return false
	}
	return s[0] < '0' || s[0] > '9'
}

func trimWordPunct(s string) string {
	return strings.Trim(s, "\"'.,;:!?()")
}

func neighborIs(words []string, i int, cues ...string) bool {
	for _, offset := range []int{-1, 1} {
		j := i + offset
		if j < 0 || j >= len(words) {
			continue
		}
		neighbor := strings.ToLower(trimWordPunct(words[j]))
		for _, cue := range cues {
			if neighbor == cue {
				return true
			}
		}
	}
	return false
}

// backtickSpans returns the contents of `quoted` spans in a step.
func backtickSpans(step string) []string {
	var spans []string
	for {
		start := strings.IndexByte(step, '`')
		if start < 0 {
			return spans
		}
		end := strings.IndexByte(step[start+1:], '`')
		if end < 0 {
			return spans
		}
		if name := strings.TrimSpace(step[start+1 : start+1+end]); name != "" {
			spans = append(spans, name)
		}
		step = step[start+2+end:]
	}
}
